package compdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Compilation Database:
// - Parse entries with "arguments" and with a quoted "command"
// - Relative "file" entries resolve against "directory"
// - Lookup by relative and absolute path finds the same entry
// - Entries without file or command are rejected with ErrInvalidEntry
// - AutoDetect walks up parent directories
// - AutoDetect returns ErrNotFound when no database exists
// - FixedDatabase synthesizes commands for any file
// - SplitCommandLine handles quotes and escapes
// - SyntaxOnlyArgs drops output, dependency and source arguments
// - Language honors -x, the driver name and the extension

func writeDatabase(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DatabaseFile), []byte(contents), 0644))
}

func TestParse_ArgumentsAndCommand(t *testing.T) {
	t.Parallel()

	data := `[
		{"directory": "/src", "file": "a.cpp", "arguments": ["clang++", "-Iinc", "-c", "a.cpp"]},
		{"directory": "/src", "file": "/src/b.c", "command": "cc -DNAME=\"x y\" -c b.c -o b.o", "output": "b.o"}
	]`

	db, err := Parse("compile_commands.json", []byte(data))
	require.NoError(t, err)

	files := db.AllFiles()
	assert.Equal(t, []string{"/src/a.cpp", "/src/b.c"}, files)

	cmds := db.CompileCommands("/src/b.c")
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{"cc", "-DNAME=x y", "-c", "b.c", "-o", "b.o"}, cmds[0].Arguments)
	assert.Equal(t, "b.o", cmds[0].Output)
	assert.Equal(t, "/src", cmds[0].Directory)
}

func TestParse_RejectsInvalidEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"no command", `[{"directory": "/src", "file": "a.cpp"}]`},
		{"no file", `[{"directory": "/src", "arguments": ["cc"]}]`},
		{"bad quoting", `[{"directory": "/src", "file": "a.c", "command": "cc 'a.c"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("db", []byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidEntry)
		})
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := Parse("db", []byte(`{not json`))
	require.Error(t, err)
}

func TestCompileCommands_RelativeLookup(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.cpp")
	require.NoError(t, os.WriteFile(src, []byte("int main() { return 0; }\n"), 0644))
	writeDatabase(t, dir, `[{"directory": "`+dir+`", "file": "main.cpp", "arguments": ["clang++", "main.cpp"]}]`)

	db, err := LoadFromDirectory(dir)
	require.NoError(t, err)

	t.Chdir(dir)

	cmds := db.CompileCommands("main.cpp")
	require.Len(t, cmds, 1)
	assert.Equal(t, src, cmds[0].File)

	assert.Empty(t, db.CompileCommands("other.cpp"))
}

func TestAutoDetect_WalksParents(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	nested := filepath.Join(root, "src", "lib")
	require.NoError(t, os.MkdirAll(nested, 0755))
	writeDatabase(t, root, `[{"directory": "`+root+`", "file": "src/lib/x.cpp", "arguments": ["clang++", "x.cpp"]}]`)

	db, err := AutoDetect(filepath.Join(nested, "x.cpp"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, DatabaseFile), db.Path())
	assert.Equal(t, []string{filepath.Join(nested, "x.cpp")}, db.AllFiles())
}

func TestAutoDetect_NotFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := LoadFromDirectory(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFixedDatabase(t *testing.T) {
	t.Parallel()

	db := NewFixed("/work", []string{"-std=c++17", "-Iinclude"})

	cmds := db.CompileCommands("src/a.cpp")
	require.Len(t, cmds, 1)
	assert.Equal(t, "/work/src/a.cpp", cmds[0].File)
	assert.Equal(t, []string{"clang++", "-std=c++17", "-Iinclude", "/work/src/a.cpp"}, cmds[0].Arguments)

	cmds = db.CompileCommands("/abs/b.c")
	require.Len(t, cmds, 1)
	assert.Equal(t, "clang", cmds[0].Arguments[0])

	assert.Empty(t, db.AllFiles())
}

func TestCommandFor_InfersUnknownFiles(t *testing.T) {
	t.Parallel()

	cmd := CommandFor(nil, "/tmp/x/file.c")
	assert.Equal(t, "/tmp/x", cmd.Directory)
	assert.Equal(t, []string{"clang", "/tmp/x/file.c"}, cmd.Arguments)
}

func TestSplitCommandLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{`cc -c a.c`, []string{"cc", "-c", "a.c"}},
		{"  cc   -c\ta.c  ", []string{"cc", "-c", "a.c"}},
		{`cc '-DX=a b' a.c`, []string{"cc", "-DX=a b", "a.c"}},
		{`cc "-DX=\"q\"" a.c`, []string{"cc", `-DX="q"`, "a.c"}},
		{`cc "-I C:\dir" a.c`, []string{"cc", `-I C:\dir`, "a.c"}},
		{`cc -DX=a\ b`, []string{"cc", "-DX=a b"}},
		{`cc ""`, []string{"cc", ""}},
	}

	for _, tt := range tests {
		got, err := SplitCommandLine(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := SplitCommandLine(`cc "open`)
	assert.Error(t, err)
	_, err = SplitCommandLine(`cc \`)
	assert.Error(t, err)
}

func TestSyntaxOnlyArgs(t *testing.T) {
	t.Parallel()

	cmd := Command{
		Directory: "/src",
		File:      "/src/a.cpp",
		Arguments: []string{"clang++", "-std=c++20", "-c", "a.cpp", "-o", "a.o", "-MD", "-MF", "a.d", "-Iinc", "-oother.o"},
	}
	assert.Equal(t, []string{"-std=c++20", "-Iinc"}, SyntaxOnlyArgs(cmd))
	assert.Nil(t, SyntaxOnlyArgs(Command{}))
}

func TestLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"c extension", Command{File: "/a.c", Arguments: []string{"cc", "/a.c"}}, "c"},
		{"cpp extension", Command{File: "/a.cc", Arguments: []string{"cc", "/a.cc"}}, "c++"},
		{"x flag", Command{File: "/a.inc", Arguments: []string{"cc", "-x", "c", "/a.inc"}}, "c"},
		{"joined x flag", Command{File: "/a.c", Arguments: []string{"cc", "-xc++", "/a.c"}}, "c++"},
		{"c++ driver", Command{File: "/a.c", Arguments: []string{"/usr/bin/g++", "/a.c"}}, "c++"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Language(tt.cmd))
		})
	}
}
