package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPolicyMissingFileIsNotAnError(t *testing.T) {
	p, present, err := LoadPolicy(filepath.Join(t.TempDir(), "policy.yaml"))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if present {
		t.Error("expected present=false for a missing file")
	}
	if p != nil {
		t.Error("expected a nil policy for a missing file")
	}
}

func TestLoadPolicyParsesWellFormedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := "version: \"1.0\"\nglobal:\n  maxRiskScore: 40\n  denyUnverified: true\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	p, present, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if !present {
		t.Fatal("expected present=true")
	}
	if p.Global == nil || p.Global.MaxRiskScore == nil || *p.Global.MaxRiskScore != 40 {
		t.Errorf("unexpected global policy: %+v", p.Global)
	}
	if !p.Global.DenyUnverified {
		t.Error("expected denyUnverified to be true")
	}
}

func TestLoadPolicyRejectsWrongVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := "version: \"2.0\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	_, _, err := LoadPolicy(path)
	if err == nil {
		t.Fatal("expected an error for a policy document with the wrong version")
	}
}

func TestLoadPolicyRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := "version: [this is not, valid\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	_, _, err := LoadPolicy(path)
	if err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}
