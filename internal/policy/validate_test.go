package policy

import (
	"testing"

	"github.com/mcpshield/mcpshield/internal/models"
)

func TestValidateNilPolicyIsValid(t *testing.T) {
	r := Validate(nil)
	if !r.Valid {
		t.Fatalf("nil policy should be valid, got %+v", r)
	}
}

func TestValidateRejectsWrongVersion(t *testing.T) {
	r := Validate(&models.Policy{Version: "2.0"})
	if r.Valid {
		t.Fatal("expected version mismatch to be invalid")
	}
}

func TestValidateRejectsUnrecognizedSeverity(t *testing.T) {
	r := Validate(&models.Policy{
		Version: "1.0",
		Global:  &models.GlobalPolicy{BlockSeverities: []models.Severity{"extreme"}},
	})
	if r.Valid {
		t.Fatal("expected unrecognized severity to be invalid")
	}
}

func TestValidateRejectsServerPolicyMissingNamespace(t *testing.T) {
	r := Validate(&models.Policy{
		Version: "1.0",
		Servers: []models.ServerPolicy{{Global: &models.GlobalPolicy{}}},
	})
	if r.Valid {
		t.Fatal("expected missing namespace to be invalid")
	}
}

func TestValidateAcceptsWellFormedPolicy(t *testing.T) {
	maxScore := 50
	r := Validate(&models.Policy{
		Version: "1.0",
		Global: &models.GlobalPolicy{
			DenyNamespaces:  []string{"io.github.evil/*"},
			MaxRiskScore:    &maxScore,
			BlockSeverities: []models.Severity{models.SeverityCritical},
		},
		CustomRules: []models.CustomRule{{Name: "r1", Expr: "true"}},
	})
	if !r.Valid {
		t.Fatalf("expected valid policy, got errors %+v", r.Errors)
	}
}
