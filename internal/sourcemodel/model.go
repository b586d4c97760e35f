// Package sourcemodel binds C and C++ front ends behind a small
// translation-unit interface: pre-order declaration traversal, definition
// status, qualified names and presumed source locations.
package sourcemodel

import (
	"context"
	"errors"
	"fmt"

	"github.com/mvp-joe/defindex/internal/compdb"
)

var (
	// ErrParse indicates the front end could not produce a translation unit.
	ErrParse = errors.New("parse failed")

	// ErrUnknownFrontend indicates an unsupported front end name.
	ErrUnknownFrontend = errors.New("unknown frontend")
)

// DeclKind is the closed set of declaration kinds the indexer understands.
type DeclKind uint8

const (
	// DeclOther is any declaration the indexer ignores.
	DeclOther DeclKind = iota
	// DeclFunction covers free functions, methods, constructors,
	// destructors, operators and conversion functions.
	DeclFunction
	// DeclRecord covers class, struct and union declarations.
	DeclRecord
)

func (k DeclKind) String() string {
	switch k {
	case DeclFunction:
		return "function"
	case DeclRecord:
		return "record"
	default:
		return "other"
	}
}

// PresumedLoc is a position after line directives are applied. Line and
// Column are one-based; a zero value is invalid.
type PresumedLoc struct {
	Filename string
	Line     int
	Column   int
}

// IsValid reports whether the position could be resolved.
func (p PresumedLoc) IsValid() bool {
	return p.Filename != "" && p.Line > 0 && p.Column > 0
}

// Location is a declaration's primary position as the front end saw it.
type Location struct {
	// File is the buffer the location was expanded into.
	File string
	// Line and Column are physical and one-based.
	Line   int
	Column int
	// IncludedFrom names the including file when File was reached through
	// an #include; empty for the primary file.
	IncludedFrom string
	// Presumed is the line-directive adjusted position.
	Presumed PresumedLoc
}

// IsValid reports whether the location points into a buffer.
func (l Location) IsValid() bool {
	return l.File != "" && l.Line > 0 && l.Column > 0
}

// Decl is one visited declaration.
type Decl struct {
	Kind       DeclKind
	Definition bool
	Loc        Location

	// ID is a front end specific handle used by QualifiedName.
	ID int
}

// TranslationUnit is one parsed source file.
type TranslationUnit interface {
	// MainFile is the primary input file as the front end names it.
	MainFile() string

	// Traverse visits declarations depth-first in pre-order until visit
	// returns false.
	Traverse(visit func(Decl) bool)

	// QualifiedName returns the fully scoped name of d.
	QualifiedName(d Decl) string

	// IsInMainFile reports whether loc lies in the primary input file.
	IsInMainFile(loc Location) bool

	// PresumedLoc resolves loc after line directives. The result is
	// invalid when resolution fails.
	PresumedLoc(loc Location) PresumedLoc

	// Close releases front end resources.
	Close()
}

// Frontend parses one compile command into a translation unit.
type Frontend interface {
	Name() string
	Parse(ctx context.Context, cmd compdb.Command) (TranslationUnit, error)
}

// Options configures front end construction.
type Options struct {
	// ClangPath is the clang binary used by the clang front end.
	ClangPath string
	// ExtraArgs are appended to every compile command.
	ExtraArgs []string
	// Strict makes tree-sitter syntax errors fail the file.
	Strict bool
}

// Frontend names.
const (
	FrontendTreeSitter = "treesitter"
	FrontendClang      = "clang"
)

// New returns the front end registered under name.
func New(name string, opts Options) (Frontend, error) {
	switch name {
	case FrontendTreeSitter, "":
		return NewTreeSitterFrontend(opts), nil
	case FrontendClang:
		return NewClangFrontend(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrontend, name)
	}
}
