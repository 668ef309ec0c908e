package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/policy"
)

// LoadPolicy reads and validates the policy.yaml at path. A missing file
// is not an error: it returns (nil, false, nil), letting callers fall
// back to no policy or a named preset.
func LoadPolicy(path string) (*models.Policy, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mcperr.Unexpected(err, "read policy file %s", path)
	}

	var p models.Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, false, mcperr.User("parse policy file %s: %v", path, err)
	}

	validation := policy.Validate(&p)
	if !validation.Valid {
		return nil, true, mcperr.User("policy file %s is invalid: %v", path, validation.Errors)
	}

	return &p, true, nil
}
