// Package domain contains the core mutation testing workflow and logic.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"gooze.dev/pkg/jgooze/internal/adapter"
	"gooze.dev/pkg/jgooze/internal/domain/mutagens"
	m "gooze.dev/pkg/jgooze/internal/model"
	"gooze.dev/pkg/jgooze/internal/tree"
)

// Unit is one parsed source file with the mutations generated on it.
type Unit struct {
	Source m.Source
	// Tree is indexed and never modified; encoders work on a Copy.
	Tree      *tree.Tree
	Text      string
	Mutations []m.Mutation
}

// LastID returns the highest mutation id of the unit, or 0.
func (u *Unit) LastID() int {
	last := 0
	for _, mu := range u.Mutations {
		last = max(last, mu.ID)
	}

	return last
}

// Mutagen defines the interface for mutation generation.
type Mutagen interface {
	// GenerateMutation parses source and runs the operators of metaTypes
	// over it. Mutation ids continue after lastID.
	GenerateMutation(ctx context.Context, source m.Source, lastID int, metaTypes ...string) (*Unit, error)
	// StreamMutations parses sources on up to threads goroutines and emits
	// their units in source order, so ids are the same on every run. Files
	// that do not parse are logged and skipped.
	StreamMutations(ctx context.Context, sources []m.Source, threads int, metaTypes ...string) (<-chan *Unit, <-chan error)
}

// mutagen handles pure mutation generation logic.
type mutagen struct {
	adapter.JavaFileAdapter
	adapter.SourceFSAdapter
}

// NewMutagen creates a new Mutagen instance.
func NewMutagen(javaFileAdapter adapter.JavaFileAdapter, sourceFSAdapter adapter.SourceFSAdapter) Mutagen {
	return &mutagen{
		JavaFileAdapter: javaFileAdapter,
		SourceFSAdapter: sourceFSAdapter,
	}
}

func (mg *mutagen) GenerateMutation(ctx context.Context, source m.Source, lastID int, metaTypes ...string) (*Unit, error) {
	ops, err := mutagens.Select(metaTypes...)
	if err != nil {
		return nil, err
	}

	unit, err := mg.parse(ctx, source)
	if err != nil {
		return nil, err
	}

	generate(unit, ops, lastID)

	return unit, nil
}

func validateSource(source m.Source) error {
	if source.Origin == nil || source.Origin.FullPath == "" {
		return fmt.Errorf("missing source origin")
	}

	return nil
}

func (mg *mutagen) parse(ctx context.Context, source m.Source) (*Unit, error) {
	if err := validateSource(source); err != nil {
		return nil, err
	}

	if mg.SourceFSAdapter == nil || mg.JavaFileAdapter == nil {
		return nil, fmt.Errorf("missing adapters")
	}

	content, err := mg.ReadFile(source.Origin.FullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source.Origin.FullPath, err)
	}

	t, err := mg.Parse(ctx, source.Origin.Path, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source.Origin.FullPath, err)
	}

	source.Package = mg.PackageName(t)

	return &Unit{Source: source, Tree: t, Text: string(content)}, nil
}

// generate runs every operator over the whole unit in catalogue order and
// drops the mutations silenced by ignore comments.
func generate(unit *Unit, ops []mutagens.Operator, lastID int) {
	ignores := buildIgnoreIndex(unit.Text)
	path := unit.Source.Origin.Path

	for _, op := range ops {
		if ignores.ignoresFile(op.Name()) {
			continue
		}

		run := mutagens.NewRun(op, unit.Tree, unit.Tree.Root(), unit.Text, mutagens.Options{
			LastID:         lastID,
			Mutations:      true,
			SearchChildren: true,
			Path:           path,
		})
		lastID = run.LastID()

		for _, mu := range run.Mutations() {
			if ignores.ignoresLine(mu.Line, op.Name()) {
				slog.Debug("Ignoring mutation", "path", path, "line", mu.Line, "operator", op.Name())
				continue
			}

			unit.Mutations = append(unit.Mutations, mu)
		}
	}
}

func (mg *mutagen) StreamMutations(ctx context.Context, sources []m.Source, threads int, metaTypes ...string) (<-chan *Unit, <-chan error) {
	if threads <= 0 {
		threads = 1
	}

	unitCh := make(chan *Unit, threads)
	errCh := make(chan error, 1)

	go func() {
		defer close(unitCh)
		defer close(errCh)

		ops, err := mutagens.Select(metaTypes...)
		if err != nil {
			errCh <- err
			return
		}

		units, err := mg.parseAll(ctx, sources, threads)
		if err != nil {
			errCh <- err
			return
		}

		lastID := 0

		for _, unit := range units {
			if unit == nil {
				continue
			}

			generate(unit, ops, lastID)
			lastID = max(lastID, unit.LastID())

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case unitCh <- unit:
			}
		}
	}()

	return unitCh, errCh
}

// parseAll parses sources in parallel. The result keeps the input order with
// nil in place of files that failed to parse.
func (mg *mutagen) parseAll(ctx context.Context, sources []m.Source, threads int) ([]*Unit, error) {
	units := make([]*Unit, len(sources))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(threads)

	for i, source := range sources {
		group.Go(func() error {
			unit, err := mg.parse(groupCtx, source)

			switch {
			case err == nil:
				units[i] = unit
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				slog.Warn("Skipping source", "path", pathOf(source), "error", err)
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return units, nil
}

func pathOf(source m.Source) m.Path {
	if source.Origin == nil {
		return ""
	}

	return source.Origin.Path
}

// ignoreRule silences every operator when names is empty, otherwise only
// the named ones.
type ignoreRule struct {
	names []string
}

func (r ignoreRule) ignores(operator string) bool {
	return len(r.names) == 0 || slices.Contains(r.names, operator)
}

type ignoreIndex struct {
	file *ignoreRule
	line map[int]ignoreRule
}

func (ix ignoreIndex) ignoresFile(operator string) bool {
	return ix.file != nil && ix.file.ignores(operator)
}

func (ix ignoreIndex) ignoresLine(line int, operator string) bool {
	rule, ok := ix.line[line]
	return ok && rule.ignores(operator)
}

var ignorePattern = regexp.MustCompile(`(?://|/\*)\s*jgooze:ignore(-file)?(?:\s+([A-Za-z]+(?:\s*,\s*[A-Za-z]+)*))?`)

// buildIgnoreIndex reads the jgooze:ignore comments of a source. A comment
// covers its own line and the line below it, so it works both trailing and
// leading; jgooze:ignore-file covers the whole file. Both take an optional
// comma separated list of operator names.
func buildIgnoreIndex(text string) ignoreIndex {
	idx := ignoreIndex{line: make(map[int]ignoreRule)}

	for i, line := range strings.Split(text, "\n") {
		match := ignorePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		var names []string

		if match[2] != "" {
			for _, name := range strings.Split(match[2], ",") {
				names = append(names, strings.TrimSpace(name))
			}
		}

		if match[1] == "" {
			idx.silenceLine(i+1, names)
			idx.silenceLine(i+2, names)

			continue
		}

		idx.file = widen(idx.file, names)
	}

	return idx
}

func (ix ignoreIndex) silenceLine(line int, names []string) {
	var current *ignoreRule
	if rule, ok := ix.line[line]; ok {
		current = &rule
	}

	ix.line[line] = *widen(current, names)
}

// widen extends rule by names. No names, or a rule that already silences
// everything, silences everything.
func widen(rule *ignoreRule, names []string) *ignoreRule {
	switch {
	case rule == nil:
		return &ignoreRule{names: names}
	case len(names) == 0 || len(rule.names) == 0:
		return &ignoreRule{}
	default:
		return &ignoreRule{names: append(slices.Clone(rule.names), names...)}
	}
}
