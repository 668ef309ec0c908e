package models

// PolicyCurrentVersion is the only accepted policy.yaml schema version.
const PolicyCurrentVersion = "1.0"

// GlobalPolicy is the global gating configuration evaluated by
// internal/policy for every Add and Scan.
type GlobalPolicy struct {
	AllowNamespaces    []string   `yaml:"allowNamespaces,omitempty"`
	DenyNamespaces     []string   `yaml:"denyNamespaces,omitempty"`
	DenyUnverified     bool       `yaml:"denyUnverified,omitempty"`
	MaxRiskScore       *int       `yaml:"maxRiskScore,omitempty"`
	BlockSeverities    []Severity `yaml:"blockSeverities,omitempty"`
	RequireApprovalFor []string   `yaml:"requireApprovalFor,omitempty"`
}

// EffectiveMaxRiskScore returns the configured cap, defaulting to 100 when
// absent.
func (g *GlobalPolicy) EffectiveMaxRiskScore() int {
	if g == nil || g.MaxRiskScore == nil {
		return 100
	}
	return *g.MaxRiskScore
}

// CustomRule is a CEL-evaluated policy extension beyond the fixed §4.8 rule
// order (see SPEC_FULL.md DOMAIN STACK). A failing custom rule is always
// advisory — it cannot block, only annotate reasons.
type CustomRule struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// ServerPolicy is a per-namespace override block. The fixed rule order in
// §4.8 currently only consults GlobalPolicy; this keeps policy.yaml
// documents forward-compatible with per-server overrides.
type ServerPolicy struct {
	Namespace string        `yaml:"namespace"`
	Global    *GlobalPolicy `yaml:"global,omitempty"`
}

// Policy is the top-level policy.yaml document.
type Policy struct {
	Version     string         `yaml:"version"`
	Global      *GlobalPolicy  `yaml:"global,omitempty"`
	Servers     []ServerPolicy `yaml:"servers,omitempty"`
	CustomRules []CustomRule   `yaml:"customRules,omitempty"`
}
