package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath applies CLI/XDG/home fallback rules for config.jsonc location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "kombo", "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", "kombo", "config.jsonc"), nil
}

// ResolveMacroPath locates the command table. Relative paths resolve against
// the directory holding the config file; a leading "~/" expands to home.
func ResolveMacroPath(configPath, macroPath string) string {
	macroPath = strings.TrimSpace(macroPath)
	if rest, ok := strings.CutPrefix(macroPath, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	if filepath.IsAbs(macroPath) {
		return macroPath
	}
	return filepath.Join(filepath.Dir(configPath), macroPath)
}
