package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/mvp-joe/defindex/internal/sourcemodel"
)

var (
	// ErrEmptyOutput indicates a missing output path
	ErrEmptyOutput = errors.New("empty output path")

	// ErrInvalidFormat indicates an unsupported output format
	ErrInvalidFormat = errors.New("invalid output format")

	// ErrInvalidFrontend indicates an unsupported front end
	ErrInvalidFrontend = errors.New("invalid frontend")

	// ErrEmptyClangPath indicates the clang front end has no binary
	ErrEmptyClangPath = errors.New("empty clang path")

	// ErrInvalidPattern indicates a discovery glob that does not compile
	ErrInvalidPattern = errors.New("invalid discovery pattern")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateOutput(&cfg.Output); err != nil {
		errs = append(errs, err)
	}

	if err := validateFrontend(&cfg.Frontend); err != nil {
		errs = append(errs, err)
	}

	if err := validateDiscovery(&cfg.Discovery); err != nil {
		errs = append(errs, err)
	}

	return joinErrors(errs)
}

func validateOutput(cfg *OutputConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.Path) == "" {
		errs = append(errs, fmt.Errorf("%w: output.path is required", ErrEmptyOutput))
	}

	if cfg.Format != FormatJSONL && cfg.Format != FormatSQLite {
		errs = append(errs, fmt.Errorf("%w: must be '%s' or '%s', got '%s'", ErrInvalidFormat, FormatJSONL, FormatSQLite, cfg.Format))
	}

	if cfg.Format == FormatSQLite && cfg.Path == "-" {
		errs = append(errs, fmt.Errorf("%w: sqlite output cannot be written to stdout", ErrInvalidFormat))
	}

	return joinErrors(errs)
}

func validateFrontend(cfg *FrontendConfig) error {
	var errs []error

	switch cfg.Name {
	case sourcemodel.FrontendTreeSitter:
	case sourcemodel.FrontendClang:
		if strings.TrimSpace(cfg.ClangPath) == "" {
			errs = append(errs, fmt.Errorf("%w: frontend.clang_path is required for the clang frontend", ErrEmptyClangPath))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: must be '%s' or '%s', got '%s'",
			ErrInvalidFrontend, sourcemodel.FrontendTreeSitter, sourcemodel.FrontendClang, cfg.Name))
	}

	return joinErrors(errs)
}

func validateDiscovery(cfg *DiscoveryConfig) error {
	var errs []error

	for _, patterns := range [][]string{cfg.Include, cfg.Ignore} {
		for _, p := range patterns {
			if _, err := glob.Compile(p, '/'); err != nil {
				errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err))
			}
		}
	}

	return joinErrors(errs)
}

// validationErrors reports several violations at once. errors.Is matches
// any of them.
type validationErrors []error

func (e validationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

func (e validationErrors) Unwrap() []error {
	return e
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}

	// Flatten nested groups so the message stays one list.
	var flat validationErrors
	for _, err := range errs {
		var nested validationErrors
		if errors.As(err, &nested) {
			flat = append(flat, nested...)
			continue
		}
		flat = append(flat, err)
	}
	return flat
}
