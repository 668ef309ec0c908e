package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mcpshield/mcpshield/internal/config"
	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/orchestrator"
	"github.com/mcpshield/mcpshield/internal/policy"
)

// buildDeps resolves the project config from the current directory and
// wires an orchestrator.Deps rooted at lockfilePath, or the project's
// default lockfile when lockfilePath is empty.
func buildDeps(lockfilePath string, offline bool) (*orchestrator.Deps, error) {
	cfg := config.Load(".")
	path := cfg.LockfilePath
	if lockfilePath != "" {
		path = lockfilePath
	}

	deps, err := orchestrator.NewDeps(path, nil, offline)
	if err != nil {
		return nil, mcperr.Unexpected(err, "initialize workflow dependencies")
	}
	deps.Approver = cfg.Approver
	return deps, nil
}

// resolveActivePolicy picks the effective policy document for a command:
// an explicit --policy file wins, then a named --preset, then the
// project's own policy.yaml, then no policy at all (nil, false).
func resolveActivePolicy(policyPath, preset string) (*models.Policy, bool, error) {
	if policyPath != "" {
		pol, present, err := config.LoadPolicy(policyPath)
		if err != nil {
			return nil, false, err
		}
		return pol, present, nil
	}

	if preset != "" {
		pol := policy.GetPreset(preset)
		if pol == nil {
			return nil, false, mcperr.User("unknown policy preset %q (available: %v)", preset, policy.ListPresetNames())
		}
		return pol, true, nil
	}

	cfg := config.Load(".")
	return config.LoadPolicy(cfg.PolicyPath)
}

// confirmPrompt asks msg on stdin and reports whether the operator answered
// affirmatively. A read error or any answer other than y/yes is a decline.
func confirmPrompt(msg string) bool {
	fmt.Printf("%s [y/N]: ", msg)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
