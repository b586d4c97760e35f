package sourcemodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sitter "github.com/tree-sitter/go-tree-sitter"
	cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
)

// Test Plan for the line table:
// - #line and GNU line markers remap the lines after them
// - A malformed directive makes the lines it governs unresolvable
// - Line marker flags 1 and 2 open and close include regions
// - Directive text in comments, raw strings and #if 0 branches is ignored

func lineMapOf(t *testing.T, mainFile, source string) *lineMap {
	t.Helper()

	parser := sitter.NewParser()
	defer parser.Close()
	require.NoError(t, parser.SetLanguage(sitter.NewLanguage(cpp.Language())))

	tree := parser.Parse([]byte(source), nil)
	require.NotNil(t, tree)
	defer tree.Close()

	return buildLineMap(mainFile, tree.RootNode(), []byte(source))
}

func TestLineMap(t *testing.T) {
	t.Parallel()

	m := lineMapOf(t, "main.c", `int a;
#line 100 "gen.y"
int b;
int c;
# 7 "other.h" 1
int d;
#line 20
int e;
#line oops
int f;
#line 5 "esc\"aped.c"
int g;
`)

	tests := []struct {
		physical int
		file     string
		line     int
		ok       bool
	}{
		{1, "main.c", 1, true},
		{3, "gen.y", 100, true},
		{4, "gen.y", 101, true},
		{6, "other.h", 7, true},
		{8, "other.h", 20, true},
		{10, "", 0, false},
		{12, `esc"aped.c`, 5, true},
		{0, "", 0, false},
	}

	for _, tt := range tests {
		file, line, ok := m.presumed(tt.physical)
		assert.Equal(t, tt.ok, ok, "line %d", tt.physical)
		assert.Equal(t, tt.file, file, "line %d", tt.physical)
		assert.Equal(t, tt.line, line, "line %d", tt.physical)
	}

	// The marker's include region stays open through later #line directives.
	assert.Equal(t, "", m.includedFrom(3))
	assert.Equal(t, "gen.y", m.includedFrom(6))
	assert.Equal(t, "gen.y", m.includedFrom(12))
}

func TestLineMap_NoDirectives(t *testing.T) {
	t.Parallel()

	m := lineMapOf(t, "/src/a.cpp", "#include <x>\n#define N 3\nint x;\n")
	assert.Empty(t, m.entries)

	file, line, ok := m.presumed(3)
	assert.True(t, ok)
	assert.Equal(t, "/src/a.cpp", file)
	assert.Equal(t, 3, line)
	assert.Equal(t, "", m.includedFrom(3))
}

func TestLineMap_ZeroLineMarker(t *testing.T) {
	t.Parallel()

	// The directive line itself is governed by the preceding state; the
	// line after a "#line 0" would be line 0, which cannot be resolved.
	m := lineMapOf(t, "a.c", "#line 0\nint x;\nint y;\n")

	_, _, ok := m.presumed(2)
	assert.False(t, ok)

	_, line, ok := m.presumed(3)
	assert.True(t, ok)
	assert.Equal(t, 1, line)
}

func TestLineMap_IncludeRegions(t *testing.T) {
	t.Parallel()

	m := lineMapOf(t, "main.ii", `# 1 "main.cpp"
# 1 "foo.h" 1
struct A {};
# 1 "bar.h" 1
struct B {};
# 2 "foo.h" 2
struct C {};
# 2 "main.cpp" 2
struct D {};
# 3 "main.cpp" 2
int e;
`)

	tests := []struct {
		physical     int
		file         string
		line         int
		includedFrom string
	}{
		{3, "foo.h", 1, "main.cpp"},
		{5, "bar.h", 1, "foo.h"},
		{7, "foo.h", 2, "main.cpp"},
		{9, "main.cpp", 2, ""},
		// A return with nothing open is ignored.
		{11, "main.cpp", 3, ""},
	}

	for _, tt := range tests {
		file, line, ok := m.presumed(tt.physical)
		require.True(t, ok, "line %d", tt.physical)
		assert.Equal(t, tt.file, file, "line %d", tt.physical)
		assert.Equal(t, tt.line, line, "line %d", tt.physical)
		assert.Equal(t, tt.includedFrom, m.includedFrom(tt.physical), "line %d", tt.physical)
	}
}

func TestLineMap_IgnoresDirectiveText(t *testing.T) {
	t.Parallel()

	m := lineMapOf(t, "a.cpp", `/*
#line 100 "fake.c"
*/
const char *s = R"(
#line 200 "raw.c"
)";
#if 0
#line 300 "dead.c"
#else
#line 400 "live.c"
#endif
int x;
`)

	require.Len(t, m.entries, 1)

	file, line, ok := m.presumed(4)
	require.True(t, ok)
	assert.Equal(t, "a.cpp", file)
	assert.Equal(t, 4, line)

	file, line, ok = m.presumed(12)
	require.True(t, ok)
	assert.Equal(t, "live.c", file)
	assert.Equal(t, 401, line)
}
