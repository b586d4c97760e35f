package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/defindex/internal/config"
)

var (
	cfgFile     string
	verboseFlag bool
	quietFlag   bool
	buildPath   string
)

// rootCmd indexes the source files given on the command line.
var rootCmd = &cobra.Command{
	Use:   "defindex [flags] <source>... [-- <compiler args>]",
	Short: "Index function and class definitions in C and C++ sources",
	Long: `defindex parses each source file and appends one JSON line per
function, method or class definition found in the file itself:

  {"name":"Foo::bar","file":"foo.cpp","line":0,"column":18}

Lines and columns are zero-based. Definitions in included headers are
skipped. Output is appended, so repeated runs accumulate.

Compile flags come from compile_commands.json (found next to the first
source or given with -p), or from the arguments after "--".

Examples:
  # Index two files using the nearest compile_commands.json
  defindex src/a.cpp src/b.cpp

  # Index every file in a build's compilation database
  defindex -p build

  # Index a directory with explicit flags, writing to stdout
  defindex -o - src/ -- -std=c++20 -Iinclude

  # Use clang's AST instead of tree-sitter
  defindex --frontend clang src/a.cpp
`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runIndex,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// flagKeys maps config keys to the flags that override them.
var flagKeys = map[string]string{
	"output.path":         "out",
	"output.format":       "format",
	"frontend.name":       "frontend",
	"frontend.clang_path": "clang",
	"frontend.extra_args": "extra-arg",
	"frontend.strict":     "strict",
}

func init() {
	cobra.OnInitialize(initLogging)

	defaults := config.Default()

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.defindex.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "disable progress bars and non-error output")

	flags := rootCmd.Flags()
	flags.StringP("out", "o", defaults.Output.Path, `output path ("-" for stdout)`)
	flags.String("format", defaults.Output.Format, "output format: jsonl or sqlite")
	flags.String("frontend", defaults.Frontend.Name, "parser front end: treesitter or clang")
	flags.String("clang", defaults.Frontend.ClangPath, "clang binary for the clang front end")
	flags.StringArray("extra-arg", nil, "extra compiler argument (repeatable)")
	flags.Bool("strict", false, "fail files with syntax errors (treesitter)")
	flags.StringVarP(&buildPath, "build-path", "p", "", "directory holding compile_commands.json")
}

// initLogging sends log output to stderr without timestamps; stdout may
// carry records.
func initLogging() {
	log.SetOutput(os.Stderr)
	log.SetFlags(0)
}
