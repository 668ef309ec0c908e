// Package policy implements the ordered gating rules of spec.md §4.8: a
// fixed-order evaluation of denylist, allowlist, unverified, risk-score and
// severity rules against a declarative policy.yaml document, plus an
// advisory CEL-based extension (see custom.go) for expressions the closed
// rule set can't express.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
)

// AddInput is the evaluation context for an Add workflow decision.
type AddInput struct {
	Namespace string
	Verified  bool
	RiskScore int
	Findings  []models.Finding
	Policy    *models.Policy
}

// ScanInput is the evaluation context for a Scan workflow decision.
type ScanInput struct {
	Namespace string
	Verified  bool
	RiskScore int
	Findings  []models.Finding
	Policy    *models.Policy
}

// Decision is the outcome of evaluating one server against a policy.
type Decision struct {
	Allowed          bool
	Reasons          []string
	RequiresApproval bool
	Custom           []CustomResult
}

// EvaluateAdd applies the §4.8 rule order for an Add decision: denylist,
// allowlist, denyUnverified, maxRiskScore, blockSeverities, then the
// advisory requireApprovalFor check.
func EvaluateAdd(in AddInput) Decision {
	global := effectiveGlobal(in.Policy, in.Namespace)
	if global == nil {
		return Decision{Allowed: true}
	}

	if d, blocked := evaluateDenyAllow(global, in.Namespace, true); blocked {
		return d
	}
	if d, blocked := evaluateCommon(global, in.Verified, in.RiskScore, in.Findings); blocked {
		return d
	}

	decision := Decision{Allowed: true}
	if len(global.RequireApprovalFor) > 0 {
		for _, f := range in.Findings {
			if containsCaseInsensitiveSubstring(global.RequireApprovalFor, f.Category) {
				decision.RequiresApproval = true
				break
			}
		}
	}
	decision.Custom = evaluateCustomRules(in.Policy, buildCELInput(in.Namespace, in.Verified, in.RiskScore, in.Findings))
	return decision
}

// EvaluateScan applies the §4.8 rule order for a Scan decision. Scan never
// consults allowNamespaces or requireApprovalFor — those are Add-only.
func EvaluateScan(in ScanInput) Decision {
	global := effectiveGlobal(in.Policy, in.Namespace)
	if global == nil {
		return Decision{Allowed: true}
	}

	if d, blocked := evaluateDenyAllow(global, in.Namespace, false); blocked {
		return d
	}
	if d, blocked := evaluateCommon(global, in.Verified, in.RiskScore, in.Findings); blocked {
		return d
	}

	decision := Decision{Allowed: true}
	decision.Custom = evaluateCustomRules(in.Policy, buildCELInput(in.Namespace, in.Verified, in.RiskScore, in.Findings))
	return decision
}

// effectiveGlobal resolves the GlobalPolicy in force for namespace: a
// per-server override (models.ServerPolicy) takes precedence over the
// top-level Global block when both name the same namespace.
func effectiveGlobal(policy *models.Policy, namespace string) *models.GlobalPolicy {
	if policy == nil {
		return nil
	}
	for _, sp := range policy.Servers {
		if sp.Namespace == namespace && sp.Global != nil {
			return sp.Global
		}
	}
	return policy.Global
}

func evaluateDenyAllow(global *models.GlobalPolicy, namespace string, isAdd bool) (Decision, bool) {
	if anyGlobMatches(global.DenyNamespaces, namespace) {
		return Decision{Allowed: false, Reasons: []string{string(mcperr.ReasonDenylist)}}, true
	}
	if isAdd && len(global.AllowNamespaces) > 0 && !anyGlobMatches(global.AllowNamespaces, namespace) {
		return Decision{Allowed: false, Reasons: []string{string(mcperr.ReasonAllowlist)}}, true
	}
	return Decision{}, false
}

func evaluateCommon(global *models.GlobalPolicy, verified bool, riskScore int, findings []models.Finding) (Decision, bool) {
	if global.DenyUnverified && !verified {
		return Decision{Allowed: false, Reasons: []string{string(mcperr.ReasonDenyUnverified)}}, true
	}

	maxScore := global.EffectiveMaxRiskScore()
	if riskScore > maxScore {
		reason := fmt.Sprintf("%s: risk score %d exceeds maximum %d", mcperr.ReasonMaxRiskScore, riskScore, maxScore)
		return Decision{Allowed: false, Reasons: []string{reason}}, true
	}

	if len(global.BlockSeverities) > 0 {
		blocked := blockSeveritySet(global.BlockSeverities)
		var hit []string
		for _, f := range findings {
			if blocked[f.Severity] {
				hit = append(hit, f.RuleID)
			}
		}
		if len(hit) > 0 {
			sort.Strings(hit)
			reason := fmt.Sprintf("%s: %s", mcperr.ReasonBlockSeverity, strings.Join(hit, ", "))
			return Decision{Allowed: false, Reasons: []string{reason}}, true
		}
	}

	return Decision{}, false
}

func blockSeveritySet(severities []models.Severity) map[models.Severity]bool {
	set := make(map[models.Severity]bool, len(severities))
	for _, s := range severities {
		set[s] = true
	}
	return set
}
