package settings

import (
	"errors"
	"fmt"
)

// ErrMissingField is wrapped by a ConfigError when a required setting is absent.
var ErrMissingField = errors.New("required setting is missing")

// ConfigError reports missing or malformed settings. It is distinct from the
// filesystem errors returned by WriteRepositorySettings.
type ConfigError struct {
	Path  string // file that failed to parse, if any
	Field string // dotted setting name, if any
	Err   error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Path != "":
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	case e.Field != "":
		return fmt.Sprintf("config %s: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("config: %v", e.Err)
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }
