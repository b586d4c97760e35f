package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigName is the config file base name searched in the root directory
// (.defindex.yaml or .defindex.yml).
const ConfigName = ".defindex"

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from flags, environment and file.
	// Priority: defaults → config file → environment variables → flags
	Load() (*Config, error)
}

// LoaderOption customizes a Loader.
type LoaderOption func(*loader)

// WithConfigFile reads path instead of searching the root directory.
// The file must exist.
func WithConfigFile(path string) LoaderOption {
	return func(l *loader) {
		l.configFile = path
	}
}

// WithFlags binds command-line flags to config keys. keys maps a config
// key (e.g. "output.path") to a flag name. Only flags the user set
// override other sources.
func WithFlags(flags *pflag.FlagSet, keys map[string]string) LoaderOption {
	return func(l *loader) {
		l.flags = flags
		l.flagKeys = keys
	}
}

type loader struct {
	rootDir    string
	configFile string
	flags      *pflag.FlagSet
	flagKeys   map[string]string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string, opts ...LoaderOption) Loader {
	l := &loader{
		rootDir: rootDir,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Command-line flags that were set
// 2. Environment variables (DEFINDEX_*)
// 3. Config file (.defindex.yaml or .defindex.yml, or --config)
// 4. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(l.rootDir)
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("DEFINDEX")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., DEFINDEX_OUTPUT_PATH)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range configKeys {
		v.BindEnv(key)
	}

	if l.flags != nil {
		for key, name := range l.flagKeys {
			flag := l.flags.Lookup(name)
			if flag == nil {
				return nil, fmt.Errorf("unknown flag %q for config key %q", name, key)
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %q: %w", name, err)
			}
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// configKeys lists every key that environment variables may override.
var configKeys = []string{
	"output.path",
	"output.format",
	"frontend.name",
	"frontend.clang_path",
	"frontend.extra_args",
	"frontend.strict",
	"discovery.include",
	"discovery.ignore",
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("output.path", defaults.Output.Path)
	v.SetDefault("output.format", defaults.Output.Format)

	v.SetDefault("frontend.name", defaults.Frontend.Name)
	v.SetDefault("frontend.clang_path", defaults.Frontend.ClangPath)
	v.SetDefault("frontend.extra_args", defaults.Frontend.ExtraArgs)
	v.SetDefault("frontend.strict", defaults.Frontend.Strict)

	v.SetDefault("discovery.include", defaults.Discovery.Include)
	v.SetDefault("discovery.ignore", defaults.Discovery.Ignore)
}
