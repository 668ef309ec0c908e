package policy

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/mcpshield/mcpshield/internal/models"
)

//go:embed presets/*.yaml
var presetFS embed.FS

var presetFiles = map[string]string{
	"baseline": "presets/baseline.yaml",
	"strict":   "presets/strict.yaml",
}

// presetCache memoizes parsed presets; they're read-only once loaded.
var presetCache = map[string]*models.Policy{}

// GetPreset returns a built-in policy preset by name, or nil if name isn't
// one of the embedded presets.
func GetPreset(name string) *models.Policy {
	if cached, ok := presetCache[name]; ok {
		return cached
	}

	path, ok := presetFiles[name]
	if !ok {
		return nil
	}

	data, err := presetFS.ReadFile(path)
	if err != nil {
		return nil
	}

	var p models.Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil
	}

	presetCache[name] = &p
	return &p
}

// ListPresetNames returns the names of all available presets, for CLI help
// text and validation of a --preset flag.
func ListPresetNames() []string {
	names := make([]string, 0, len(presetFiles))
	for name := range presetFiles {
		names = append(names, name)
	}
	return names
}

// MustGetPreset returns a preset or panics; only safe for tests and startup
// code where the preset name has already been validated.
func MustGetPreset(name string) *models.Policy {
	p := GetPreset(name)
	if p == nil {
		panic(fmt.Sprintf("preset %q not found", name))
	}
	return p
}
