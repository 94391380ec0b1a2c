package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	m "gooze.dev/pkg/jgooze/internal/model"
)

// CoverageAdapter loads the per-line test coverage of a project.
type CoverageAdapter interface {
	Load(path m.Path) (m.Coverage, error)
}

// FileCoverageAdapter reads coverage from a YAML or JSON file.
type FileCoverageAdapter struct{}

// NewFileCoverageAdapter constructs a FileCoverageAdapter.
func NewFileCoverageAdapter() *FileCoverageAdapter {
	return &FileCoverageAdapter{}
}

// Load implements CoverageAdapter. JSON is accepted since it is valid YAML.
// Paths are normalized to forward slashes.
func (a *FileCoverageAdapter) Load(path m.Path) (m.Coverage, error) {
	data, err := os.ReadFile(string(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read coverage file: %w", err)
	}

	var cov m.Coverage
	if err := yaml.Unmarshal(data, &cov); err != nil {
		return nil, fmt.Errorf("failed to parse coverage file %s: %w", path, err)
	}

	for i := range cov {
		if cov[i].Path == "" {
			return nil, fmt.Errorf("coverage file %s: entry %d has no path", path, i)
		}

		cov[i].Path = m.Path(strings.TrimPrefix(filepath.ToSlash(string(cov[i].Path)), "./"))
	}

	return cov, nil
}
