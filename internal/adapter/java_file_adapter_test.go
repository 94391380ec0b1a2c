package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gooze.dev/pkg/jgooze/internal/tree"
)

const calculator = `package com.example.calc;

import java.util.List;

/** Adds things. */
public class Calculator {
    // running total
    private int total = 0;

    public int add(int a, int b) {
        String label = "a + b";
        return a + b; /* trailing */
    }
}
`

func TestLocalJavaFileAdapter_Parse(t *testing.T) {
	adapter := NewLocalJavaFileAdapter()

	tr, err := adapter.Parse(context.Background(), "Calculator.java", []byte(calculator))
	require.NoError(t, err)

	t.Run("renders back byte for byte", func(t *testing.T) {
		assert.Equal(t, calculator, tr.Source())
	})

	t.Run("package name", func(t *testing.T) {
		assert.Equal(t, "com.example.calc", adapter.PackageName(tr))
	})

	t.Run("binary operator is a field", func(t *testing.T) {
		bins := tr.FindType(tr.Root(), "binary_expression")
		require.Len(t, bins, 1)

		op := tr.ChildByField(bins[0], "operator")
		require.NotEqual(t, tree.None, op)
		assert.Equal(t, "+", tr.Text(op))
		assert.Equal(t, "a", tr.Text(tr.ChildByField(bins[0], "left")))
		assert.Equal(t, 12, tr.Node(op).Line)
	})

	t.Run("string literal is one terminal", func(t *testing.T) {
		lits := tr.FindType(tr.Root(), "string_literal")
		require.Len(t, lits, 1)
		assert.True(t, tr.IsTerminal(lits[0]))
		assert.Equal(t, `"a + b"`, tr.Text(lits[0]))
	})

	t.Run("comments become trivia", func(t *testing.T) {
		assert.Empty(t, tr.FindType(tr.Root(), "line_comment"))
		assert.Empty(t, tr.FindType(tr.Root(), "block_comment"))
	})

	t.Run("method is indexed", func(t *testing.T) {
		methods := tr.FindType(tr.Root(), "method_declaration")
		require.Len(t, methods, 1)
		assert.Equal(t, "add", tr.MethodName(methods[0]))
		assert.Positive(t, tr.MaxDepth())
	})
}

func TestLocalJavaFileAdapter_ParseEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		pkg     string
		wantErr error
	}{
		{name: "default package", src: "class A { int x = 1 - 2; }\n"},
		{name: "empty file", src: ""},
		{name: "comment only", src: "// nothing here\n"},
		{name: "syntax error", src: "class A { int x = ; }\n", wantErr: ErrSyntax},
		{name: "missing brace", src: "class A {\n", wantErr: ErrSyntax},
	}

	adapter := NewLocalJavaFileAdapter()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := adapter.Parse(context.Background(), "A.java", []byte(tt.src))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.src, tr.Source())
			assert.Equal(t, tt.pkg, adapter.PackageName(tr))
		})
	}
}

func TestLocalJavaFileAdapter_ParseCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocalJavaFileAdapter().Parse(ctx, "A.java", []byte("class A {}"))
	assert.ErrorIs(t, err, context.Canceled)
}
