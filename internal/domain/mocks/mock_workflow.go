// Package mocks provides testify mocks of the domain interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gooze.dev/pkg/jgooze/internal/domain"
)

// MockWorkflow is a mock of domain.Workflow.
type MockWorkflow struct {
	mock.Mock
}

var _ domain.Workflow = (*MockWorkflow)(nil)

// NewMockWorkflow creates a MockWorkflow whose expectations are asserted
// when the test ends.
func NewMockWorkflow(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockWorkflow {
	mw := &MockWorkflow{}
	mw.Mock.Test(t)

	t.Cleanup(func() { mw.AssertExpectations(t) })

	return mw
}

// Estimate implements domain.Workflow.
func (mw *MockWorkflow) Estimate(ctx context.Context, args domain.EstimateArgs) error {
	return mw.Called(ctx, args).Error(0)
}

// Test implements domain.Workflow.
func (mw *MockWorkflow) Test(ctx context.Context, args domain.RunArgs) error {
	return mw.Called(ctx, args).Error(0)
}

// View implements domain.Workflow.
func (mw *MockWorkflow) View(ctx context.Context, args domain.ViewArgs) error {
	return mw.Called(ctx, args).Error(0)
}

// Merge implements domain.Workflow.
func (mw *MockWorkflow) Merge(ctx context.Context, args domain.MergeArgs) error {
	return mw.Called(ctx, args).Error(0)
}
