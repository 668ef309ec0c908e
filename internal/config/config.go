// Package config resolves project-level paths (lockfile, policy) and the
// environment variables spec.md §6 says the core consumes, independent of
// any CLI flag parsing.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/mcpshield/mcpshield/internal/resolver"
)

const (
	// EnvConnectTimeoutMS overrides DownloadConfig.ConnectTimeout.
	EnvConnectTimeoutMS = "MCPSHIELD_CONNECT_TIMEOUT_MS"
	// EnvRequestTimeoutMS overrides DownloadConfig.RequestTimeout.
	EnvRequestTimeoutMS = "MCPSHIELD_REQUEST_TIMEOUT_MS"
	// EnvApprover attributes an identity to policy-override stamping when
	// no --approver flag is given (§4.10's approver fallback chain).
	EnvApprover = "MCPSHIELD_APPROVER"

	// DefaultLockfileName is the project-root lockfile filename.
	DefaultLockfileName = "mcp.lock.json"
	// DefaultPolicyName is the project-root policy filename.
	DefaultPolicyName = "policy.yaml"
)

// Config holds the resolved project paths and network tuning the core
// needs, independent of how a caller obtained them (CLI flags, env, or
// hand-built in tests).
type Config struct {
	LockfilePath string
	PolicyPath   string
	Approver     string
	Download     resolver.DownloadConfig
}

// Load resolves a Config from its current working directory and the
// environment variables named in spec.md §6. projectDir is typically ".".
func Load(projectDir string) Config {
	cfg := Config{
		LockfilePath: joinProject(projectDir, DefaultLockfileName),
		PolicyPath:   joinProject(projectDir, DefaultPolicyName),
		Approver:     os.Getenv(EnvApprover),
		Download:     resolver.DefaultDownloadConfig(),
	}

	if ms, ok := envMillis(EnvConnectTimeoutMS); ok {
		cfg.Download.ConnectTimeout = ms
	}
	if ms, ok := envMillis(EnvRequestTimeoutMS); ok {
		cfg.Download.RequestTimeout = ms
	}

	return cfg
}

func joinProject(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + string(os.PathSeparator) + name
}

// envMillis parses an environment variable as a millisecond duration,
// ignoring it (ok=false) if unset or malformed rather than failing
// startup over a bad override.
func envMillis(name string) (time.Duration, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}
