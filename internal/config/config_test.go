package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaultsToProjectRootFilenames(t *testing.T) {
	cfg := Load(".")
	if cfg.LockfilePath != DefaultLockfileName {
		t.Errorf("LockfilePath = %q, want %q", cfg.LockfilePath, DefaultLockfileName)
	}
	if cfg.PolicyPath != DefaultPolicyName {
		t.Errorf("PolicyPath = %q, want %q", cfg.PolicyPath, DefaultPolicyName)
	}
}

func TestLoadAppliesApproverFromEnv(t *testing.T) {
	t.Setenv(EnvApprover, "jane@example.com")
	cfg := Load(".")
	if cfg.Approver != "jane@example.com" {
		t.Errorf("Approver = %q, want %q", cfg.Approver, "jane@example.com")
	}
}

func TestLoadAppliesTimeoutOverridesFromEnv(t *testing.T) {
	t.Setenv(EnvConnectTimeoutMS, "2500")
	t.Setenv(EnvRequestTimeoutMS, "9000")
	cfg := Load(".")
	if cfg.Download.ConnectTimeout != 2500*time.Millisecond {
		t.Errorf("ConnectTimeout = %v, want 2500ms", cfg.Download.ConnectTimeout)
	}
	if cfg.Download.RequestTimeout != 9000*time.Millisecond {
		t.Errorf("RequestTimeout = %v, want 9000ms", cfg.Download.RequestTimeout)
	}
}

func TestLoadIgnoresMalformedTimeoutOverride(t *testing.T) {
	t.Setenv(EnvConnectTimeoutMS, "not-a-number")
	cfg := Load(".")
	if cfg.Download.ConnectTimeout <= 0 {
		t.Error("expected a positive default ConnectTimeout when the override is malformed")
	}
}

func TestLoadNamespacesLockfilePathUnderProjectDir(t *testing.T) {
	dir := t.TempDir()
	cfg := Load(dir)
	want := dir + string(os.PathSeparator) + DefaultLockfileName
	if cfg.LockfilePath != want {
		t.Errorf("LockfilePath = %q, want %q", cfg.LockfilePath, want)
	}
}
