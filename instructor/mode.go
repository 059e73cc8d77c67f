package instructor

import (
	"fmt"
	"strings"
)

// Mode selects how the provider is told to use the injected tool.
type Mode string

const (
	// ModeFunction forces the model to call the response model's function. Default.
	ModeFunction Mode = "function"
	// ModeAuto lets the model decide whether to call a tool.
	ModeAuto Mode = "auto"
	// ModeRequired forces a call to some tool.
	ModeRequired Mode = "required"
	// ModeNone disables tool calls.
	ModeNone Mode = "none"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeFunction, ModeAuto, ModeRequired, ModeNone}

// ParseMode converts a configuration string into a Mode. Empty means ModeFunction.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeFunction, nil
	}
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", &ConfigurationError{Message: fmt.Sprintf("unknown mode %q", s)}
}

func (m Mode) String() string { return string(m) }

// Valid reports whether m is one of Modes.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}
