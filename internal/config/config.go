// Package config provides configuration loading for defindex.
//
// Configuration Hierarchy (highest to lowest priority):
//  1. Command-line flags
//  2. Environment variables (DEFINDEX_*)
//  3. Config file (.defindex.yaml in the working directory, or --config)
//  4. Built-in defaults
//
// Environment Variable Convention:
//   - Prefix: DEFINDEX_
//   - Nested fields: Use underscores (DEFINDEX_FRONTEND_CLANG_PATH)
//   - List values are comma separated (DEFINDEX_FRONTEND_EXTRA_ARGS=-DNDEBUG,-Iinclude)
package config

import "github.com/mvp-joe/defindex/internal/sourcemodel"

// Output formats.
const (
	FormatJSONL  = "jsonl"
	FormatSQLite = "sqlite"
)

// DefaultOutputPath is the index file written when no path is configured.
const DefaultOutputPath = "index.jsonl"

// Config represents the complete defindex configuration.
// It can be loaded from .defindex.yaml with environment variable overrides.
type Config struct {
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Frontend  FrontendConfig  `yaml:"frontend" mapstructure:"frontend"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
}

// OutputConfig configures where records go.
type OutputConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`     // "-" for stdout
	Format string `yaml:"format" mapstructure:"format"` // "jsonl" or "sqlite"
}

// FrontendConfig selects and configures the C/C++ front end.
type FrontendConfig struct {
	Name      string   `yaml:"name" mapstructure:"name"`             // "treesitter" or "clang"
	ClangPath string   `yaml:"clang_path" mapstructure:"clang_path"` // clang binary for the clang front end
	ExtraArgs []string `yaml:"extra_args" mapstructure:"extra_args"` // appended to every compile command
	Strict    bool     `yaml:"strict" mapstructure:"strict"`         // syntax errors fail the file (treesitter)
}

// DiscoveryConfig filters files found under directory arguments.
type DiscoveryConfig struct {
	Include []string `yaml:"include" mapstructure:"include"` // glob patterns relative to the directory
	Ignore  []string `yaml:"ignore" mapstructure:"ignore"`   // glob patterns to skip
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			Path:   DefaultOutputPath,
			Format: FormatJSONL,
		},
		Frontend: FrontendConfig{
			Name:      sourcemodel.FrontendTreeSitter,
			ClangPath: sourcemodel.DefaultClangPath,
			ExtraArgs: []string{},
		},
		Discovery: DiscoveryConfig{
			Include: []string{
				"**/*.c",
				"**/*.cc",
				"**/*.cpp",
				"**/*.cxx",
				"**/*.c++",
			},
			Ignore: []string{
				".git/**",
				"**/.git/**",
			},
		},
	}
}

// FrontendOptions converts the frontend section to source model options.
func (c *Config) FrontendOptions() sourcemodel.Options {
	return sourcemodel.Options{
		ClangPath: c.Frontend.ClangPath,
		ExtraArgs: c.Frontend.ExtraArgs,
		Strict:    c.Frontend.Strict,
	}
}
