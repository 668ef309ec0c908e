package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/mcpshield/mcpshield/internal/models"
)

// CustomResult is the outcome of evaluating one CustomRule. A custom rule
// never blocks a decision; it only annotates Reasons with why it didn't
// pass, so a mistyped expression can't take down Add/Scan.
type CustomResult struct {
	Name    string
	Passed  bool
	Message string
}

// celInput is the map exposed to CEL expressions as the `input` variable.
func buildCELInput(namespace string, verified bool, riskScore int, findings []models.Finding) map[string]interface{} {
	findingMaps := make([]interface{}, len(findings))
	for i, f := range findings {
		findingMaps[i] = map[string]interface{}{
			"ruleId":   f.RuleID,
			"severity": string(f.Severity),
			"category": f.Category,
			"message":  f.Message,
		}
	}
	return map[string]interface{}{
		"namespace": namespace,
		"verified":  verified,
		"riskScore": riskScore,
		"findings":  findingMaps,
	}
}

// evaluateCustomRules compiles and runs every policy.CustomRules entry
// against input, advisory-only per SPEC_FULL.md's DOMAIN STACK decision: a
// compile error, runtime error, or non-boolean result is reported as a
// failed CustomResult rather than surfaced as a workflow error.
func evaluateCustomRules(policy *models.Policy, input map[string]interface{}) []CustomResult {
	if policy == nil || len(policy.CustomRules) == 0 {
		return nil
	}

	env, err := cel.NewEnv(cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		results := make([]CustomResult, len(policy.CustomRules))
		for i, rule := range policy.CustomRules {
			results[i] = CustomResult{Name: rule.Name, Passed: false, Message: fmt.Sprintf("cel environment error: %v", err)}
		}
		return results
	}

	results := make([]CustomResult, 0, len(policy.CustomRules))
	for _, rule := range policy.CustomRules {
		results = append(results, evaluateOneCustomRule(env, rule, input))
	}
	return results
}

func evaluateOneCustomRule(env *cel.Env, rule models.CustomRule, input map[string]interface{}) CustomResult {
	ast, issues := env.Compile(rule.Expr)
	if issues != nil && issues.Err() != nil {
		return CustomResult{Name: rule.Name, Passed: false, Message: fmt.Sprintf("compile error: %v", issues.Err())}
	}

	prg, err := env.Program(ast)
	if err != nil {
		return CustomResult{Name: rule.Name, Passed: false, Message: fmt.Sprintf("program error: %v", err)}
	}

	out, _, err := prg.Eval(map[string]interface{}{"input": input})
	if err != nil {
		return CustomResult{Name: rule.Name, Passed: false, Message: fmt.Sprintf("evaluation error: %v", err)}
	}

	passed, ok := out.Value().(bool)
	if !ok {
		return CustomResult{Name: rule.Name, Passed: false, Message: fmt.Sprintf("rule must return a boolean, got %T", out.Value())}
	}
	if passed {
		return CustomResult{Name: rule.Name, Passed: true}
	}
	return CustomResult{Name: rule.Name, Passed: false, Message: fmt.Sprintf("custom rule %q did not pass", rule.Name)}
}
