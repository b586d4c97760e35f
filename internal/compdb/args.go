package compdb

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SplitCommandLine splits a shell-quoted compile command into arguments.
// Single quotes are literal, double quotes allow backslash escapes of
// `"` and `\`, and a bare backslash escapes the next character.
func SplitCommandLine(cmd string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range cmd {
		switch {
		case escaped:
			if quote == '"' && r != '"' && r != '\\' {
				cur.WriteRune('\\')
			}
			cur.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				cur.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			inWord = true
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash")
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}

// flags that take the following argument as their value and must be
// dropped together with it when rewriting a command for syntax-only runs.
var droppedWithValue = map[string]bool{
	"-o":  true,
	"-MF": true,
	"-MT": true,
	"-MQ": true,
}

var droppedFlags = map[string]bool{
	"-c":   true,
	"-S":   true,
	"-E":   true,
	"-M":   true,
	"-MM":  true,
	"-MD":  true,
	"-MMD": true,
	"-MG":  true,
	"-MP":  true,
}

// SyntaxOnlyArgs returns the compiler flags of cmd with argv[0], the
// source file and output/dependency options removed.
func SyntaxOnlyArgs(cmd Command) []string {
	if len(cmd.Arguments) == 0 {
		return nil
	}

	out := make([]string, 0, len(cmd.Arguments))
	args := cmd.Arguments[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case droppedWithValue[arg]:
			i++
			continue
		case droppedFlags[arg]:
			continue
		case strings.HasPrefix(arg, "-o") && len(arg) > 2:
			continue
		case isSameFile(arg, cmd):
			continue
		}
		out = append(out, arg)
	}
	return out
}

// Language returns "c" or "c++" for cmd, honoring -x before the extension.
func Language(cmd Command) string {
	args := cmd.Arguments
	for i := 0; i < len(args); i++ {
		var lang string
		switch {
		case args[i] == "-x" && i+1 < len(args):
			lang = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-x") && len(args[i]) > 2:
			lang = args[i][2:]
		default:
			continue
		}
		switch lang {
		case "c", "c-header", "cpp-output":
			return "c"
		case "c++", "c++-header", "c++-cpp-output":
			return "c++"
		}
	}

	// C++ drivers compile .c files as C++.
	if len(args) > 0 {
		base := filepath.Base(args[0])
		if strings.HasSuffix(base, "++") || strings.HasSuffix(base, "++.exe") {
			return "c++"
		}
	}
	if IsCSource(cmd.File) {
		return "c"
	}
	return "c++"
}

func isSameFile(arg string, cmd Command) bool {
	if strings.HasPrefix(arg, "-") {
		return false
	}
	path := arg
	if !filepath.IsAbs(path) {
		path = filepath.Join(cmd.Directory, path)
	}
	return filepath.Clean(path) == filepath.Clean(cmd.File)
}
