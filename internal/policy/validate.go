package policy

import (
	"fmt"

	"github.com/mcpshield/mcpshield/internal/models"
)

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks policy against the structural rules of spec.md §4.8/§6:
// version must be the literal "1.0", severities named in blockSeverities
// must be recognized, and every server override must name a namespace.
func Validate(policy *models.Policy) ValidationResult {
	var errs []string

	if policy == nil {
		return ValidationResult{Valid: true}
	}

	if policy.Version != models.PolicyCurrentVersion {
		errs = append(errs, fmt.Sprintf("version must be %q, got %q", models.PolicyCurrentVersion, policy.Version))
	}

	if policy.Global != nil {
		errs = append(errs, validateGlobal(policy.Global, "global")...)
	}

	for i, sp := range policy.Servers {
		if sp.Namespace == "" {
			errs = append(errs, fmt.Sprintf("servers[%d]: namespace is required", i))
		}
		if sp.Global != nil {
			errs = append(errs, validateGlobal(sp.Global, fmt.Sprintf("servers[%d].global", i))...)
		}
	}

	for i, rule := range policy.CustomRules {
		if rule.Name == "" {
			errs = append(errs, fmt.Sprintf("customRules[%d]: name is required", i))
		}
		if rule.Expr == "" {
			errs = append(errs, fmt.Sprintf("customRules[%d]: expr is required", i))
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func validateGlobal(global *models.GlobalPolicy, path string) []string {
	var errs []string
	if global.MaxRiskScore != nil && (*global.MaxRiskScore < 0 || *global.MaxRiskScore > 100) {
		errs = append(errs, fmt.Sprintf("%s.maxRiskScore must be between 0 and 100, got %d", path, *global.MaxRiskScore))
	}
	for _, s := range global.BlockSeverities {
		if !isRecognizedSeverity(s) {
			errs = append(errs, fmt.Sprintf("%s.blockSeverities: unrecognized severity %q", path, s))
		}
	}
	return errs
}

func isRecognizedSeverity(s models.Severity) bool {
	switch s {
	case models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow, models.SeverityInfo:
		return true
	default:
		return false
	}
}
