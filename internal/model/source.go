package model

import "strings"

// Path represents a file system path.
type Path string

// File represents a source code file.
type File struct {
	// Path is relative to the project root.
	Path     Path
	FullPath Path
	Hash     string
}

// Source is one Java compilation unit scheduled for mutation.
type Source struct {
	Origin *File
	// Package is the declared Java package, empty for the default package.
	Package string
}

// QualifiedName returns the package-qualified name of the primary class of
// the source, derived from its file name.
func (s Source) QualifiedName() string {
	if s.Origin == nil {
		return ""
	}

	name := string(s.Origin.Path)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = strings.TrimSuffix(name, ".java")
	if s.Package == "" {
		return name
	}

	return s.Package + "." + name
}
