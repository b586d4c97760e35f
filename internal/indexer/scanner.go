package indexer

import (
	"iter"

	"github.com/mvp-joe/defindex/internal/sourcemodel"
)

// Record is one definition in the index. Line and Column are zero-based.
type Record struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Line   uint   `json:"line"`
	Column uint   `json:"column"`
}

// Scan returns the function and type definitions of tu's primary file in
// traversal order. The sequence is lazy and single-use: ranging over it a
// second time yields nothing.
func Scan(tu sourcemodel.TranslationUnit) iter.Seq[Record] {
	used := false
	return func(yield func(Record) bool) {
		if used {
			return
		}
		used = true

		tu.Traverse(func(d sourcemodel.Decl) bool {
			rec, ok := toRecord(tu, d)
			if !ok {
				return true
			}
			return yield(rec)
		})
	}
}

// toRecord converts a visited declaration. ok is false for declarations
// that are not indexed.
func toRecord(tu sourcemodel.TranslationUnit, d sourcemodel.Decl) (rec Record, ok bool) {
	switch d.Kind {
	case sourcemodel.DeclFunction, sourcemodel.DeclRecord:
	default:
		return Record{}, false
	}

	if !d.Definition {
		return Record{}, false
	}
	if !d.Loc.IsValid() || !tu.IsInMainFile(d.Loc) {
		return Record{}, false
	}

	// Locations that cannot be presumed (broken #line) are skipped.
	p := tu.PresumedLoc(d.Loc)
	if !p.IsValid() {
		return Record{}, false
	}

	return Record{
		Name:   tu.QualifiedName(d),
		File:   p.Filename,
		Line:   uint(p.Line - 1),
		Column: uint(p.Column - 1),
	}, true
}
