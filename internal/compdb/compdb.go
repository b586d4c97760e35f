package compdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DatabaseFile is the JSON compilation database file name.
const DatabaseFile = "compile_commands.json"

var (
	// ErrNotFound indicates no compilation database could be located.
	ErrNotFound = errors.New("compilation database not found")

	// ErrInvalidEntry indicates a database entry without a usable command.
	ErrInvalidEntry = errors.New("invalid compilation database entry")
)

// Command is one compile invocation for one source file.
type Command struct {
	// Directory is the working directory of the compilation.
	Directory string

	// File is the source file, absolute after loading.
	File string

	// Arguments is the full compiler command line, argv[0] included.
	Arguments []string

	// Output is the object file, when recorded.
	Output string
}

// Database supplies compile commands for source files.
type Database interface {
	// CompileCommands returns the commands recorded for file.
	// An empty result means the file is unknown to the database.
	CompileCommands(file string) []Command

	// AllFiles returns every source file in database order.
	AllFiles() []string
}

// entry mirrors one object in compile_commands.json.
type entry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Command   string   `json:"command,omitempty"`
	Arguments []string `json:"arguments,omitempty"`
	Output    string   `json:"output,omitempty"`
}

// JSONDatabase is a compilation database loaded from compile_commands.json.
type JSONDatabase struct {
	path     string
	commands []Command
	byFile   map[string][]int
}

// LoadFromDirectory loads dir/compile_commands.json.
func LoadFromDirectory(dir string) (*JSONDatabase, error) {
	path := filepath.Join(dir, DatabaseFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(path, data)
}

// AutoDetect looks for compile_commands.json in the directory of path and
// each of its parents.
func AutoDetect(path string) (*JSONDatabase, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	dir := abs
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	for {
		db, err := LoadFromDirectory(dir)
		if err == nil {
			return db, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("%w: searched parents of %s", ErrNotFound, abs)
		}
		dir = parent
	}
}

// Parse decodes compilation database contents. path is used for messages only.
func Parse(path string, data []byte) (*JSONDatabase, error) {
	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	db := &JSONDatabase{
		path:   path,
		byFile: make(map[string][]int, len(entries)),
	}

	for i, e := range entries {
		args := e.Arguments
		if len(args) == 0 {
			if strings.TrimSpace(e.Command) == "" {
				return nil, fmt.Errorf("%w: entry %d in %s has neither command nor arguments", ErrInvalidEntry, i, path)
			}
			split, err := SplitCommandLine(e.Command)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d in %s: %v", ErrInvalidEntry, i, path, err)
			}
			args = split
		}
		if e.File == "" {
			return nil, fmt.Errorf("%w: entry %d in %s has no file", ErrInvalidEntry, i, path)
		}

		file := e.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(e.Directory, file)
		}
		file = filepath.Clean(file)

		db.commands = append(db.commands, Command{
			Directory: e.Directory,
			File:      file,
			Arguments: args,
			Output:    e.Output,
		})
		db.byFile[file] = append(db.byFile[file], len(db.commands)-1)
	}

	return db, nil
}

// Path returns the location the database was loaded from.
func (db *JSONDatabase) Path() string {
	return db.path
}

// CompileCommands returns the commands recorded for file.
func (db *JSONDatabase) CompileCommands(file string) []Command {
	key, err := filepath.Abs(file)
	if err != nil {
		key = filepath.Clean(file)
	}

	idx := db.byFile[key]
	out := make([]Command, 0, len(idx))
	for _, i := range idx {
		out = append(out, db.commands[i])
	}
	return out
}

// AllFiles returns every distinct file in database order.
func (db *JSONDatabase) AllFiles() []string {
	seen := make(map[string]bool, len(db.commands))
	files := make([]string, 0, len(db.commands))
	for _, cmd := range db.commands {
		if seen[cmd.File] {
			continue
		}
		seen[cmd.File] = true
		files = append(files, cmd.File)
	}
	return files
}

// FixedDatabase returns the same compiler arguments for every file.
// It backs the arguments given after "--" on the command line.
type FixedDatabase struct {
	directory string
	args      []string
}

// NewFixed creates a fixed database rooted at dir.
func NewFixed(dir string, args []string) *FixedDatabase {
	return &FixedDatabase{
		directory: dir,
		args:      append([]string(nil), args...),
	}
}

// CompileCommands synthesizes a command for file.
func (db *FixedDatabase) CompileCommands(file string) []Command {
	abs := file
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(db.directory, file)
	}
	abs = filepath.Clean(abs)

	args := make([]string, 0, len(db.args)+2)
	args = append(args, DefaultCompiler(abs))
	args = append(args, db.args...)
	args = append(args, abs)

	return []Command{{
		Directory: db.directory,
		File:      abs,
		Arguments: args,
	}}
}

// AllFiles is always empty for a fixed database.
func (db *FixedDatabase) AllFiles() []string {
	return nil
}

// DefaultCompiler picks clang or clang++ from the file extension.
func DefaultCompiler(file string) string {
	if IsCSource(file) {
		return "clang"
	}
	return "clang++"
}

// IsCSource reports whether file is plain C by extension.
func IsCSource(file string) bool {
	return strings.ToLower(filepath.Ext(file)) == ".c"
}

// CommandFor returns the first command for file, inferring one when the
// database has no entry.
func CommandFor(db Database, file string) Command {
	if db != nil {
		if cmds := db.CompileCommands(file); len(cmds) > 0 {
			return cmds[0]
		}
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		abs = filepath.Clean(file)
	}
	return Command{
		Directory: filepath.Dir(abs),
		File:      abs,
		Arguments: []string{DefaultCompiler(abs), abs},
	}
}
