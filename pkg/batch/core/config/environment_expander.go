package config

import "os"

// EnvironmentExpander expands environment variable placeholders in raw configuration.
type EnvironmentExpander interface {
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander replaces ${VAR} and $VAR with the value of VAR, or with an empty string when
// VAR is not set.
type OsEnvironmentExpander struct{}

// NewOsEnvironmentExpander creates an OsEnvironmentExpander.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{}
}

func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	return []byte(os.ExpandEnv(string(input))), nil
}
