package sourcemodel

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// maxPresumedLine mirrors the largest value a #line directive may carry.
const maxPresumedLine = 2147483647

// directiveFile matches the quoted file name of a #line directive or line
// marker argument, and whatever follows it.
var directiveFile = regexp.MustCompile(`^"((?:[^"\\]|\\.)*)"(.*)$`)

// lineEntry remaps every physical line after directiveLine.
type lineEntry struct {
	directiveLine int
	presumedLine  int
	file          string
	// includedFrom is the including file while a line marker's include
	// region is open.
	includedFrom string
	broken       bool
}

// lineMap resolves physical lines to presumed (file, line) pairs the way
// a preprocessor line table does.
type lineMap struct {
	mainFile string
	entries  []lineEntry
}

// buildLineMap collects #line directives and GNU line markers from the
// preprocessor calls of a parsed tree. Comments, string literals and the
// dead branch of a literal #if never contribute.
func buildLineMap(mainFile string, root *sitter.Node, source []byte) *lineMap {
	b := &lineMapBuilder{
		m:    &lineMap{mainFile: mainFile},
		file: mainFile,
	}

	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n.Kind() == "preproc_call" {
			b.directive(n, source)
			return
		}
		for _, child := range liveChildren(n, source) {
			visit(child)
		}
	}
	if root != nil {
		visit(root)
	}

	sort.SliceStable(b.m.entries, func(i, j int) bool {
		return b.m.entries[i].directiveLine < b.m.entries[j].directiveLine
	})
	return b.m
}

type lineMapBuilder struct {
	m    *lineMap
	file string
	// includes holds the including files of open line marker regions.
	includes []string
}

func (b *lineMapBuilder) directive(n *sitter.Node, source []byte) {
	name := strings.TrimSpace(strings.TrimPrefix(nodeText(n.ChildByFieldName("directive"), source), "#"))
	arg := strings.TrimSpace(nodeText(n.ChildByFieldName("argument"), source))

	var number, rest string
	marker := false
	switch {
	case name == "line":
		number = arg
		if i := strings.IndexAny(arg, " \t"); i >= 0 {
			number, rest = arg[:i], strings.TrimSpace(arg[i:])
		}
	case isDigits(name):
		number, rest = name, arg
		marker = true
	default:
		return
	}

	entry := lineEntry{
		directiveLine: int(n.StartPosition().Row) + 1,
		file:          b.file,
	}
	v, err := strconv.ParseUint(number, 10, 64)
	if err != nil || v > maxPresumedLine {
		entry.broken = true
	} else {
		entry.presumedLine = int(v)
	}

	if match := directiveFile.FindStringSubmatch(rest); match != nil {
		entry.file = unescapeDirectiveString(match[1])
		if marker {
			b.applyFlags(match[2])
		}
		b.file = entry.file
	}
	if len(b.includes) > 0 {
		entry.includedFrom = b.includes[len(b.includes)-1]
	}

	b.m.entries = append(b.m.entries, entry)
}

// applyFlags handles line marker flags: 1 enters an include of the
// marker's file from the current file, 2 returns from one.
func (b *lineMapBuilder) applyFlags(flags string) {
	for _, flag := range strings.Fields(flags) {
		switch flag {
		case "1":
			b.includes = append(b.includes, b.file)
		case "2":
			if len(b.includes) > 0 {
				b.includes = b.includes[:len(b.includes)-1]
			}
		}
	}
}

// entry returns the line entry governing a one-based physical line, or
// nil before the first directive.
func (m *lineMap) entry(physical int) *lineEntry {
	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].directiveLine >= physical
	})
	if i == 0 {
		return nil
	}
	return &m.entries[i-1]
}

// presumed returns the presumed file and line for a one-based physical
// line. ok is false when a malformed directive governs the line.
func (m *lineMap) presumed(physical int) (file string, line int, ok bool) {
	if physical < 1 {
		return "", 0, false
	}

	e := m.entry(physical)
	if e == nil {
		return m.mainFile, physical, true
	}
	if e.broken {
		return "", 0, false
	}
	line = e.presumedLine + (physical - e.directiveLine - 1)
	if line < 1 {
		return "", 0, false
	}
	return e.file, line, true
}

// includedFrom returns the including file when physical lies in a line
// marker's include region.
func (m *lineMap) includedFrom(physical int) string {
	if e := m.entry(physical); e != nil {
		return e.includedFrom
	}
	return ""
}

func unescapeDirectiveString(raw string) string {
	if strings.IndexByte(raw, '\\') < 0 {
		return raw
	}
	var out bytes.Buffer
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
		}
		out.WriteByte(raw[i])
	}
	return out.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func nodeText(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	return string(source[n.StartByte():n.EndByte()])
}
