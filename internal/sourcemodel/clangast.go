package sourcemodel

import (
	"encoding/json"
	"fmt"
	"io"
)

// clangNode is the subset of clang's JSON AST node the indexer reads.
type clangNode struct {
	ID                  string      `json:"id"`
	Kind                string      `json:"kind"`
	Loc                 clangLoc    `json:"loc"`
	Range               clangRange  `json:"range"`
	Name                string      `json:"name"`
	TagUsed             string      `json:"tagUsed"`
	IsImplicit          bool        `json:"isImplicit"`
	IsInline            bool        `json:"isInline"`
	CompleteDefinition  bool        `json:"completeDefinition"`
	ExplicitlyDefaulted string      `json:"explicitlyDefaulted"`
	ExplicitlyDeleted   bool        `json:"explicitlyDeleted"`
	ParentDeclContextID string      `json:"parentDeclContextId"`
	Type                *clangType  `json:"type"`
	Decl                *clangRef   `json:"decl"`
	OwnedTagDecl        *clangRef   `json:"ownedTagDecl"`
	Inner               []clangNode `json:"inner"`

	// resolved is filled by resolveLocations.
	resolved Location
}

type clangType struct {
	QualType string `json:"qualType"`
}

type clangRef struct {
	ID string `json:"id"`
}

type clangRange struct {
	Begin clangLoc `json:"begin"`
	End   clangLoc `json:"end"`
}

// clangLoc is either a bare location or a spelling/expansion pair for
// locations produced by macro expansion.
type clangLoc struct {
	clangBareLoc
	SpellingLoc  *clangBareLoc `json:"spellingLoc"`
	ExpansionLoc *clangBareLoc `json:"expansionLoc"`
}

type clangBareLoc struct {
	Offset       *int          `json:"offset"`
	File         string        `json:"file"`
	Line         int           `json:"line"`
	PresumedFile string        `json:"presumedFile"`
	PresumedLine int           `json:"presumedLine"`
	Col          int           `json:"col"`
	TokLen       int           `json:"tokLen"`
	IncludedFrom *clangInclude `json:"includedFrom"`
}

type clangInclude struct {
	File string `json:"file"`
}

// decodeClangAST reads a JSON AST dump and resolves every node location.
func decodeClangAST(r io.Reader) (*clangNode, error) {
	var root clangNode
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to decode clang AST: %w", err)
	}
	if root.Kind != "TranslationUnitDecl" {
		return nil, fmt.Errorf("unexpected clang AST root %q", root.Kind)
	}

	var state locState
	resolveLocations(&root, &state)
	return &root, nil
}

// resolveLocations replays the dump's location stream in document order.
// Clang omits file and line when they repeat the previous location, so
// every location (loc, range begin, range end) of every node matters.
func resolveLocations(n *clangNode, s *locState) {
	n.resolved = s.full(&n.Loc)
	s.full(&n.Range.Begin)
	s.full(&n.Range.End)
	for i := range n.Inner {
		resolveLocations(&n.Inner[i], s)
	}
}

// locState is the previously written location.
type locState struct {
	file         string
	line         int
	presumedFile string
	presumedLine int
}

// full resolves a location, preferring the expansion side of macro
// locations the way the indexer's main-file test does.
func (s *locState) full(l *clangLoc) Location {
	if l.SpellingLoc != nil || l.ExpansionLoc != nil {
		s.bare(l.SpellingLoc)
		return s.bare(l.ExpansionLoc)
	}
	return s.bare(&l.clangBareLoc)
}

func (s *locState) bare(b *clangBareLoc) Location {
	if b == nil || b.Offset == nil {
		return Location{}
	}

	file, line := s.file, s.line
	if b.File != "" {
		file, line = b.File, b.Line
	} else if b.Line != 0 {
		line = b.Line
	}

	// An omitted presumedFile repeats the previous presumed file only
	// while still inside the same remapped buffer. A new line with neither
	// presumed field has a presumed line equal to its physical line, which
	// only holds once the remap has ended.
	backInFile := b.PresumedLine == 0 && line != s.line
	presumedFile := file
	switch {
	case b.PresumedFile != "":
		presumedFile = b.PresumedFile
	case file == s.file && !backInFile && s.presumedFile != "" && s.presumedFile != s.file:
		presumedFile = s.presumedFile
	}

	presumedLine := line
	switch {
	case b.PresumedLine != 0:
		presumedLine = b.PresumedLine
	case file == s.file && line == s.line && s.presumedLine != 0:
		presumedLine = s.presumedLine
	}

	s.file, s.line = file, line
	s.presumedFile, s.presumedLine = presumedFile, presumedLine

	loc := Location{
		File:   file,
		Line:   line,
		Column: b.Col,
		Presumed: PresumedLoc{
			Filename: presumedFile,
			Line:     presumedLine,
			Column:   b.Col,
		},
	}
	if b.IncludedFrom != nil {
		loc.IncludedFrom = b.IncludedFrom.File
		if loc.IncludedFrom == "" {
			loc.IncludedFrom = "<unknown>"
		}
	}
	return loc
}
