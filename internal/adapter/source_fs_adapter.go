// Package adapter contains the infrastructure adapters of jgooze: the Java
// parser, the project filesystem, the build and test runner, the report
// store and the coverage and metrics files.
package adapter

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	m "gooze.dev/pkg/jgooze/internal/model"
)

// ErrNoProjectRoot is returned when no build file encloses a path.
var ErrNoProjectRoot = errors.New("no Maven, Ant or Gradle build file found")

// DefaultExclude keeps tests and build output out of the mutated sources.
var DefaultExclude = []string{"**/src/test/**", "**/target/**", "**/build/**"}

// projectMarkers are the build files that identify a project root.
var projectMarkers = []string{"pom.xml", "build.xml", "build.gradle", "build.gradle.kts"}

// SourceFSAdapter hides the filesystem from the domain layer so the workflow
// can be tested without touching the disk.
//
//nolint:interfacebloat // A richer interface keeps workflow logic decoupled from os/fs.
type SourceFSAdapter interface {
	// Get lists the Java sources under roots. Patterns are doublestar globs
	// matched against the path relative to its root; a pattern without a
	// separator also matches the base name. An empty include list selects
	// every .java file.
	Get(ctx context.Context, roots []m.Path, include, exclude []string) ([]m.Source, error)

	// ReadFile loads a file from disk and returns its contents.
	ReadFile(path m.Path) ([]byte, error)

	// WriteFile writes content to a file, creating parent directories.
	WriteFile(path m.Path, content []byte, perm os.FileMode) error

	// HashFile returns the SHA-256 fingerprint of the file at path.
	HashFile(path m.Path) (string, error)

	// FileInfo returns metadata for a path.
	FileInfo(path m.Path) (os.FileInfo, error)

	// FindProjectRoot walks up from start to the first directory holding a
	// build file.
	FindProjectRoot(start m.Path) (m.Path, error)

	// CreateTempDir creates a temporary directory for mutation testing.
	CreateTempDir(pattern string) (m.Path, error)

	// RemoveAll removes a directory and all its contents.
	RemoveAll(path m.Path) error

	// CopyDir recursively copies a directory tree, leaving out version
	// control data and the directories named in skip.
	CopyDir(ctx context.Context, src, dst m.Path, skip ...string) error

	// RelPath returns the relative path from base to target.
	RelPath(base, target m.Path) (m.Path, error)

	// Glob lists the files matching a doublestar pattern.
	Glob(pattern string) ([]m.Path, error)

	// JoinPath joins path elements into a single path.
	JoinPath(elem ...string) m.Path
}

// LocalSourceFSAdapter implements SourceFSAdapter on the local disk.
type LocalSourceFSAdapter struct{}

// NewLocalSourceFSAdapter constructs a LocalSourceFSAdapter.
func NewLocalSourceFSAdapter() *LocalSourceFSAdapter {
	return &LocalSourceFSAdapter{}
}

// Get implements SourceFSAdapter. Sources come back sorted by full path.
func (a *LocalSourceFSAdapter) Get(ctx context.Context, roots []m.Path, include, exclude []string) ([]m.Source, error) {
	seen := make(map[m.Path]bool)

	var sources []m.Source

	for _, root := range roots {
		files, err := a.collect(ctx, root, include, exclude)
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			if seen[f.FullPath] {
				continue
			}

			seen[f.FullPath] = true
			sources = append(sources, m.Source{Origin: f})
		}
	}

	slices.SortFunc(sources, func(x, y m.Source) int {
		return strings.Compare(string(x.Origin.FullPath), string(y.Origin.FullPath))
	})

	return sources, nil
}

func (a *LocalSourceFSAdapter) collect(ctx context.Context, root m.Path, include, exclude []string) ([]*m.File, error) {
	rootStr := filepath.Clean(string(root))

	info, err := os.Stat(rootStr)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}

	if !info.IsDir() {
		if filepath.Ext(rootStr) != ".java" {
			return nil, nil
		}

		f, err := a.file(filepath.Dir(rootStr), rootStr)
		if err != nil {
			return nil, err
		}

		return []*m.File{f}, nil
	}

	var files []*m.File

	err = filepath.WalkDir(rootStr, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if d.Name() == ".git" && path != rootStr {
				return filepath.SkipDir
			}

			return nil
		}

		if filepath.Ext(path) != ".java" {
			return nil
		}

		rel, err := filepath.Rel(rootStr, path)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)

		if len(include) > 0 && !matchAny(include, rel) {
			return nil
		}

		if matchAny(exclude, rel) {
			return nil
		}

		f, err := a.file(rootStr, path)
		if err != nil {
			return err
		}

		files = append(files, f)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return files, nil
}

func (a *LocalSourceFSAdapter) file(root, path string) (*m.File, error) {
	hash, err := a.HashFile(m.Path(path))
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, err
	}

	return &m.File{Path: m.Path(filepath.ToSlash(rel)), FullPath: m.Path(path), Hash: hash}, nil
}

// matchAny reports whether rel matches one of patterns. A pattern without a
// separator is tried against the base name as well.
func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.PathMatch(pattern, rel); err == nil && matched {
			return true
		}

		// "**/x/**" should also exclude x at the top of the root.
		if trimmed, ok := strings.CutPrefix(pattern, "**/"); ok {
			if matched, err := doublestar.PathMatch(trimmed, rel); err == nil && matched {
				return true
			}
		}

		if !strings.Contains(pattern, "/") {
			if matched, err := doublestar.PathMatch(pattern, filepath.Base(rel)); err == nil && matched {
				return true
			}
		}
	}

	return false
}

// ReadFile loads file contents from disk.
func (a *LocalSourceFSAdapter) ReadFile(path m.Path) ([]byte, error) {
	return os.ReadFile(string(path))
}

// WriteFile writes content to a file with the given permissions.
func (a *LocalSourceFSAdapter) WriteFile(path m.Path, content []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(string(path)), 0o750); err != nil {
		return err
	}

	return os.WriteFile(string(path), content, perm)
}

// HashFile returns the SHA-256 hash of the file at the provided path.
func (a *LocalSourceFSAdapter) HashFile(path m.Path) (string, error) {
	f, err := os.Open(string(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// FileInfo returns os.FileInfo metadata for the given path.
func (a *LocalSourceFSAdapter) FileInfo(path m.Path) (os.FileInfo, error) {
	return os.Stat(string(path))
}

// FindProjectRoot implements SourceFSAdapter. start may be a file or a
// directory.
func (a *LocalSourceFSAdapter) FindProjectRoot(start m.Path) (m.Path, error) {
	dir, err := filepath.Abs(string(start))
	if err != nil {
		return "", err
	}

	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	for {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return m.Path(dir), nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w above %s", ErrNoProjectRoot, start)
		}

		dir = parent
	}
}

// CreateTempDir creates a temporary directory for mutation testing.
func (a *LocalSourceFSAdapter) CreateTempDir(pattern string) (m.Path, error) {
	tmpDir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return "", err
	}

	return m.Path(tmpDir), nil
}

// RemoveAll removes a directory and all its contents.
func (a *LocalSourceFSAdapter) RemoveAll(path m.Path) error {
	return os.RemoveAll(string(path))
}

// CopyDir implements SourceFSAdapter. Entries of skip are matched against
// the path relative to src.
func (a *LocalSourceFSAdapter) CopyDir(ctx context.Context, src, dst m.Path, skip ...string) error {
	srcStr := filepath.Clean(string(src))

	return filepath.WalkDir(srcStr, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(srcStr, path)
		if err != nil {
			return err
		}

		if d.IsDir() && rel != "." && (d.Name() == ".git" || slices.Contains(skip, filepath.ToSlash(rel))) {
			return filepath.SkipDir
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		target := filepath.Join(string(dst), rel)

		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	// #nosec G304 - src is a project file found by the walk
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() { _ = sourceFile.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	// #nosec G304 - dst is inside the workspace
	destFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		_ = destFile.Close()
		return err
	}

	return destFile.Close()
}

// RelPath returns the relative path from base to target.
func (a *LocalSourceFSAdapter) RelPath(base, target m.Path) (m.Path, error) {
	absBase, err := filepath.Abs(string(base))
	if err != nil {
		return "", err
	}

	absTarget, err := filepath.Abs(string(target))
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return "", err
	}

	return m.Path(rel), nil
}

// Glob returns the files matching a doublestar pattern, sorted.
func (a *LocalSourceFSAdapter) Glob(pattern string) ([]m.Path, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to glob %s: %w", pattern, err)
	}

	slices.Sort(matches)

	paths := make([]m.Path, len(matches))
	for i, match := range matches {
		paths[i] = m.Path(match)
	}

	return paths, nil
}

// JoinPath joins path elements into a single path.
func (a *LocalSourceFSAdapter) JoinPath(elem ...string) m.Path {
	return m.Path(filepath.Join(elem...))
}
