package config

import (
	"fmt"

	"github.com/liamcoop/crewrecovery/fdtl"
)

// ConfigurationError reports an unreadable or invalid configuration file.
// It matches fdtl.ErrConfiguration as well as the underlying cause.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() []error {
	return []error{fdtl.ErrConfiguration, e.Err}
}
