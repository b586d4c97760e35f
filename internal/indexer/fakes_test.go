package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mvp-joe/defindex/internal/compdb"
	"github.com/mvp-joe/defindex/internal/sourcemodel"
)

// fakeDecl is a declaration with its qualified name.
type fakeDecl struct {
	decl sourcemodel.Decl
	name string
}

// fakeUnit is an in-memory translation unit.
type fakeUnit struct {
	file       string
	decls      []fakeDecl
	traversals int
	closed     bool
}

func (u *fakeUnit) MainFile() string { return u.file }

func (u *fakeUnit) Traverse(visit func(sourcemodel.Decl) bool) {
	u.traversals++
	for i, fd := range u.decls {
		d := fd.decl
		d.ID = i
		if !visit(d) {
			return
		}
	}
}

func (u *fakeUnit) QualifiedName(d sourcemodel.Decl) string {
	return u.decls[d.ID].name
}

func (u *fakeUnit) IsInMainFile(loc sourcemodel.Location) bool {
	return loc.IncludedFrom == "" && loc.File == u.file
}

func (u *fakeUnit) PresumedLoc(loc sourcemodel.Location) sourcemodel.PresumedLoc {
	return loc.Presumed
}

func (u *fakeUnit) Close() { u.closed = true }

// add appends a declaration located at a one-based line and column of
// the unit's file.
func (u *fakeUnit) add(kind sourcemodel.DeclKind, definition bool, name string, line, col int) *fakeUnit {
	u.decls = append(u.decls, fakeDecl{
		name: name,
		decl: sourcemodel.Decl{
			Kind:       kind,
			Definition: definition,
			Loc: sourcemodel.Location{
				File:     u.file,
				Line:     line,
				Column:   col,
				Presumed: sourcemodel.PresumedLoc{Filename: u.file, Line: line, Column: col},
			},
		},
	})
	return u
}

// addAt appends a declaration with an explicit location.
func (u *fakeUnit) addAt(kind sourcemodel.DeclKind, name string, loc sourcemodel.Location) *fakeUnit {
	u.decls = append(u.decls, fakeDecl{
		name: name,
		decl: sourcemodel.Decl{Kind: kind, Definition: true, Loc: loc},
	})
	return u
}

// fakeFrontend returns prepared units by file; files without a unit fail.
type fakeFrontend struct {
	units  map[string]*fakeUnit
	parsed []string
}

func (f *fakeFrontend) Name() string { return "fake" }

func (f *fakeFrontend) Parse(ctx context.Context, cmd compdb.Command) (sourcemodel.TranslationUnit, error) {
	f.parsed = append(f.parsed, cmd.File)
	u, ok := f.units[cmd.File]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such file", sourcemodel.ErrParse, cmd.File)
	}
	return u, nil
}

// memorySink collects records; failAfter > 0 makes the Nth Emit fail.
type memorySink struct {
	records   []Record
	flushes   int
	emits     int
	failAfter int
	flushErr  error
}

var errDiskFull = errors.New("disk full")

func (s *memorySink) Emit(rec Record) error {
	s.emits++
	if s.failAfter > 0 && s.emits >= s.failAfter {
		return errDiskFull
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Flush() error {
	s.flushes++
	return s.flushErr
}

// recordingReporter remembers progress callbacks.
type recordingReporter struct {
	NoOpProgressReporter
	total     int
	processed []string
	failed    []string
	completed *Stats
}

func (r *recordingReporter) OnFileProcessingStart(totalFiles int) { r.total = totalFiles }

func (r *recordingReporter) OnFileProcessed(fileName string, records int) {
	r.processed = append(r.processed, fileName)
}

func (r *recordingReporter) OnFileFailed(fileName string, err error) {
	r.failed = append(r.failed, fileName)
}

func (r *recordingReporter) OnComplete(stats *Stats) { r.completed = stats }

func commandsFor(files ...string) []compdb.Command {
	cmds := make([]compdb.Command, 0, len(files))
	for _, f := range files {
		cmds = append(cmds, compdb.Command{Directory: "/src", File: f, Arguments: []string{"clang++", f}})
	}
	return cmds
}
