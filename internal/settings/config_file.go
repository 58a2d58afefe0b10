package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// configFilePerms matches the teacher's filePerms for persisted config.
const configFilePerms = 0o644

// ConfigFileName is the rcfile name looked up under the user's config home.
const ConfigFileName = "config.json"

// globalConfigPath resolves ~/.config/hexpeek/config.json or
// $XDG_CONFIG_HOME/hexpeek/config.json, matching the teacher's
// getGlobalConfigPath precedence. Returns "" if no home directory is known.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "hexpeek", ConfigFileName)
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "hexpeek", ConfigFileName)
	}

	return ""
}

// LoadRCFile reads and merges the optional JSONC rcfile over base. A missing
// file is not an error; it leaves base untouched.
func LoadRCFile(base Settings, env map[string]string) (Settings, string, error) {
	path := globalConfigPath(env)
	if path == "" {
		return base, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, "", nil
		}

		return base, "", fmt.Errorf("read rcfile %q: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return base, "", fmt.Errorf("parse rcfile %q: invalid JSONC: %w", path, err)
	}

	merged := base

	if err := json.Unmarshal(standardized, &merged); err != nil {
		return base, "", fmt.Errorf("parse rcfile %q: invalid JSON: %w", path, err)
	}

	return merged, path, nil
}

// SaveRCFile persists s as the global rcfile, used by the `settings save`
// introspection command (SPEC_FULL.md "settings/files/ops introspection").
// The write is atomic (rename-into-place via natefinch/atomic) so a crash or
// concurrent hexpeek process never observes a half-written config file,
// mirroring the teacher's WriteTicket use of atomic.WriteFile for its own
// durable, non-data artifacts.
func SaveRCFile(s Settings, env map[string]string) (string, error) {
	path := globalConfigPath(env)
	if path == "" {
		return "", fmt.Errorf("save rcfile: no HOME or XDG_CONFIG_HOME in environment")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("save rcfile: %w", err)
	}

	encoded, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("save rcfile: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(encoded)); err != nil {
		return "", fmt.Errorf("save rcfile %q: %w", path, err)
	}

	if err := os.Chmod(path, configFilePerms); err != nil {
		return "", fmt.Errorf("save rcfile: set permissions: %w", err)
	}

	return path, nil
}
