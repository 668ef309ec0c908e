package policy

import (
	"strings"
	"testing"

	"github.com/mcpshield/mcpshield/internal/models"
)

func intPtr(i int) *int { return &i }

func TestEvaluateAddNoPolicyAllowsEverything(t *testing.T) {
	d := EvaluateAdd(AddInput{Namespace: "io.github.acme/tool"})
	if !d.Allowed || len(d.Reasons) != 0 {
		t.Fatalf("expected unconditional allow, got %+v", d)
	}
}

func TestEvaluateAddDenylistBlocks(t *testing.T) {
	policy := &models.Policy{Version: "1.0", Global: &models.GlobalPolicy{
		DenyNamespaces: []string{"io.github.evil/*"},
	}}
	d := EvaluateAdd(AddInput{Namespace: "io.github.evil/tool", Policy: policy})
	if d.Allowed || d.Reasons[0] != "DENYLIST" {
		t.Fatalf("expected DENYLIST block, got %+v", d)
	}
}

func TestEvaluateAddAllowlistBlocksOutsideSet(t *testing.T) {
	policy := &models.Policy{Version: "1.0", Global: &models.GlobalPolicy{
		AllowNamespaces: []string{"io.github.acme/*"},
	}}
	d := EvaluateAdd(AddInput{Namespace: "io.github.other/tool", Policy: policy})
	if d.Allowed || d.Reasons[0] != "ALLOWLIST" {
		t.Fatalf("expected ALLOWLIST block, got %+v", d)
	}
}

func TestEvaluateScanIgnoresAllowlist(t *testing.T) {
	policy := &models.Policy{Version: "1.0", Global: &models.GlobalPolicy{
		AllowNamespaces: []string{"io.github.acme/*"},
	}}
	d := EvaluateScan(ScanInput{Namespace: "io.github.other/tool", Policy: policy})
	if !d.Allowed {
		t.Fatalf("scan must not apply allowNamespaces, got %+v", d)
	}
}

func TestEvaluateAddDenyUnverified(t *testing.T) {
	policy := &models.Policy{Version: "1.0", Global: &models.GlobalPolicy{DenyUnverified: true}}
	d := EvaluateAdd(AddInput{Namespace: "x", Verified: false, Policy: policy})
	if d.Allowed || d.Reasons[0] != "DENY_UNVERIFIED" {
		t.Fatalf("expected DENY_UNVERIFIED block, got %+v", d)
	}
}

func TestEvaluateAddMaxRiskScore(t *testing.T) {
	policy := &models.Policy{Version: "1.0", Global: &models.GlobalPolicy{MaxRiskScore: intPtr(50)}}
	d := EvaluateAdd(AddInput{Namespace: "x", RiskScore: 51, Policy: policy})
	if d.Allowed || !strings.HasPrefix(d.Reasons[0], "MAX_RISK_SCORE") || !strings.Contains(d.Reasons[0], "51") {
		t.Fatalf("expected MAX_RISK_SCORE block reporting the concrete scores, got %+v", d)
	}

	ok := EvaluateAdd(AddInput{Namespace: "x", RiskScore: 50, Policy: policy})
	if !ok.Allowed {
		t.Fatalf("riskScore == maxRiskScore must not block, got %+v", ok)
	}
}

func TestEvaluateAddBlockSeverity(t *testing.T) {
	policy := &models.Policy{Version: "1.0", Global: &models.GlobalPolicy{
		BlockSeverities: []models.Severity{models.SeverityCritical},
	}}
	d := EvaluateAdd(AddInput{
		Namespace: "x",
		Findings:  []models.Finding{{RuleID: "R1", Severity: models.SeverityCritical}},
		Policy:    policy,
	})
	if d.Allowed || !strings.HasPrefix(d.Reasons[0], "BLOCK_SEVERITY") || !strings.Contains(d.Reasons[0], "R1") {
		t.Fatalf("expected BLOCK_SEVERITY block enumerating the triggering findings, got %+v", d)
	}
}

func TestEvaluateAddRequiresApprovalAdvisory(t *testing.T) {
	policy := &models.Policy{Version: "1.0", Global: &models.GlobalPolicy{
		RequireApprovalFor: []string{"script"},
	}}
	d := EvaluateAdd(AddInput{
		Namespace: "x",
		Findings:  []models.Finding{{RuleID: "R1", Severity: models.SeverityHigh, Category: "Script"}},
		Policy:    policy,
	})
	if !d.Allowed {
		t.Fatalf("requireApprovalFor must be advisory, not blocking: %+v", d)
	}
	if !d.RequiresApproval {
		t.Fatalf("expected RequiresApproval=true")
	}
}

func TestEvaluateOrderDenylistBeforeMaxRiskScore(t *testing.T) {
	policy := &models.Policy{Version: "1.0", Global: &models.GlobalPolicy{
		DenyNamespaces: []string{"io.github.evil/*"},
		MaxRiskScore:   intPtr(0),
	}}
	d := EvaluateAdd(AddInput{Namespace: "io.github.evil/tool", RiskScore: 100, Policy: policy})
	if d.Reasons[0] != "DENYLIST" {
		t.Fatalf("denylist must short-circuit before maxRiskScore is evaluated, got %+v", d)
	}
}

func TestEvaluateCustomRuleAdvisoryOnly(t *testing.T) {
	policy := &models.Policy{Version: "1.0", CustomRules: []models.CustomRule{
		{Name: "no-unverified-high-risk", Expr: `!input.verified && input.riskScore > 80`},
	}}
	d := EvaluateAdd(AddInput{Namespace: "x", Verified: false, RiskScore: 90, Policy: policy})
	if !d.Allowed {
		t.Fatalf("custom rules must never block, got %+v", d)
	}
	if len(d.Custom) != 1 || d.Custom[0].Passed {
		t.Fatalf("expected one failed custom result, got %+v", d.Custom)
	}
}

func TestEvaluateCustomRuleCompileErrorDoesNotPanic(t *testing.T) {
	policy := &models.Policy{Version: "1.0", CustomRules: []models.CustomRule{
		{Name: "broken", Expr: "this is not valid cel("},
	}}
	d := EvaluateAdd(AddInput{Namespace: "x", Policy: policy})
	if !d.Allowed {
		t.Fatalf("a broken custom rule must still be advisory-only, got %+v", d)
	}
	if len(d.Custom) != 1 || d.Custom[0].Passed || d.Custom[0].Message == "" {
		t.Fatalf("expected a failed custom result with a message, got %+v", d.Custom)
	}
}

func TestEvaluateAddServerOverrideTakesPrecedence(t *testing.T) {
	policy := &models.Policy{
		Version: "1.0",
		Global:  &models.GlobalPolicy{MaxRiskScore: intPtr(10)},
		Servers: []models.ServerPolicy{
			{Namespace: "io.github.acme/tool", Global: &models.GlobalPolicy{MaxRiskScore: intPtr(90)}},
		},
	}
	d := EvaluateAdd(AddInput{Namespace: "io.github.acme/tool", RiskScore: 50, Policy: policy})
	if !d.Allowed {
		t.Fatalf("expected server override to raise the cap, got %+v", d)
	}
}
