package config

import (
	"fmt"
	"strings"
	"unicode"
)

// KeyPlaceholder is replaced by the key name in actuator command templates.
const KeyPlaceholder = "{key}"

// HasKeyPlaceholder reports whether any argv element references the key.
func (c CommandConfig) HasKeyPlaceholder() bool {
	for _, arg := range c.Argv {
		if strings.Contains(arg, KeyPlaceholder) {
			return true
		}
	}
	return false
}

// Expand returns a copy of argv with every key placeholder replaced.
func (c CommandConfig) Expand(key string) []string {
	out := make([]string, len(c.Argv))
	for i, arg := range c.Argv {
		out[i] = strings.ReplaceAll(arg, KeyPlaceholder, key)
	}
	return out
}

// parseArgv splits a command string with shell-like quoting, without
// variable expansion or globbing. A leading '#' comments the command out.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var (
		argv    []string
		current strings.Builder
		quote   rune
		escape  bool
		started bool
	)

	flush := func() {
		if !started {
			return
		}
		argv = append(argv, current.String())
		current.Reset()
		started = false
	}

	for _, r := range input {
		switch {
		case escape:
			current.WriteRune(r)
			escape = false
		case r == '\\':
			escape = true
			started = true
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			started = true
		case unicode.IsSpace(r):
			flush()
		default:
			current.WriteRune(r)
			started = true
		}
	}

	if escape {
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}

	flush()
	return argv, nil
}

// ParseArgv exposes parseArgv for callers assembling commands from flags.
func ParseArgv(input string) ([]string, error) {
	return parseArgv(input)
}
