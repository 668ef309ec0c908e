package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/mcpshield/mcpshield/internal/models"
)

var (
	colorMalicious  = color.New(color.FgRed, color.Bold)
	colorSuspicious = color.New(color.FgRed)
	colorWarning    = color.New(color.FgYellow)
	colorClean      = color.New(color.FgGreen)
	colorUnknown    = color.New(color.FgWhite)
)

func verdictColor(v models.Verdict) *color.Color {
	switch v {
	case models.VerdictMalicious:
		return colorMalicious
	case models.VerdictSuspicious:
		return colorSuspicious
	case models.VerdictWarning:
		return colorWarning
	case models.VerdictClean:
		return colorClean
	default:
		return colorUnknown
	}
}

func severityColor(s models.Severity) *color.Color {
	switch s {
	case models.SeverityCritical:
		return colorMalicious
	case models.SeverityHigh:
		return colorSuspicious
	case models.SeverityMedium:
		return colorWarning
	default:
		return colorUnknown
	}
}

// FormatScanText renders a ScanSummary as a human-readable terminal report,
// one line per server sorted by namespace, colored by verdict.
func FormatScanText(summary models.ScanSummary) string {
	var sb strings.Builder

	servers := append([]models.ScanServerResult(nil), summary.Servers...)
	sort.Slice(servers, func(i, j int) bool { return servers[i].Namespace < servers[j].Namespace })

	for _, s := range servers {
		label := verdictColor(s.Verdict).Sprintf("%-10s", strings.ToUpper(string(s.Verdict)))
		sb.WriteString(fmt.Sprintf("%s %s (risk=%d)\n", label, s.Namespace, s.RiskScore))
		for _, f := range s.Findings {
			sb.WriteString(fmt.Sprintf("  %s %s: %s\n", severityColor(f.Severity).Sprintf("%-8s", string(f.Severity)), f.RuleID, f.Message))
		}
		if len(s.Errors) > 0 {
			sb.WriteString(fmt.Sprintf("  %s\n", colorSuspicious.Sprintf("errors: %s", strings.Join(s.Errors, ", "))))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("servers: %d  clean=%d warning=%d suspicious=%d malicious=%d unknown=%d\n",
		len(servers), summary.Verdicts.Clean, summary.Verdicts.Warning, summary.Verdicts.Suspicious,
		summary.Verdicts.Malicious, summary.Verdicts.Unknown))

	if summary.Policy.Enforced {
		if summary.Policy.Blocked {
			sb.WriteString(colorMalicious.Sprintf("policy: BLOCKED (%s)\n", strings.Join(summary.Policy.Reasons, "; ")))
		} else {
			sb.WriteString(colorClean.Sprintf("policy: PASS\n"))
		}
	}

	return sb.String()
}

// FormatAddText renders an AddResult as a human-readable terminal report.
func FormatAddText(r models.AddResult) string {
	var sb strings.Builder

	verified := colorClean.Sprintf("verified")
	if !r.Verified {
		verified = colorWarning.Sprintf("unverified")
	}
	sb.WriteString(fmt.Sprintf("%s (%s, risk=%d)\n", r.Namespace, verified, r.RiskScore))

	for _, f := range r.Findings {
		sb.WriteString(fmt.Sprintf("  %s %s: %s\n", severityColor(f.Severity).Sprintf("%-8s", string(f.Severity)), f.RuleID, f.Message))
	}

	if !r.PolicyAllowed {
		sb.WriteString(colorMalicious.Sprintf("policy: BLOCKED (%s)\n", strings.Join(r.Reasons, "; ")))
	} else if r.PolicyOverridden {
		sb.WriteString(colorWarning.Sprintf("policy: overridden (%s)\n", strings.Join(r.Reasons, "; ")))
	} else {
		sb.WriteString(colorClean.Sprintf("policy: PASS\n"))
	}
	if r.RequiresApproval {
		sb.WriteString(colorWarning.Sprintf("requires approval\n"))
	}

	return sb.String()
}

// FormatVerifyText renders a VerifyResult as a human-readable terminal
// report.
func FormatVerifyText(r models.VerifyResult) string {
	var sb strings.Builder

	results := append([]models.VerifyArtifactResult(nil), r.Results...)
	sort.Slice(results, func(i, j int) bool { return results[i].Namespace < results[j].Namespace })

	for _, a := range results {
		var c *color.Color
		switch a.Status {
		case "match":
			c = colorClean
		case "drift":
			c = colorMalicious
		case "offline_miss":
			c = colorWarning
		default:
			c = colorUnknown
		}
		sb.WriteString(fmt.Sprintf("%s %s %s\n", c.Sprintf("%-12s", strings.ToUpper(a.Status)), a.Namespace, a.URL))
		if a.Detail != "" {
			sb.WriteString(fmt.Sprintf("  %s\n", a.Detail))
		}
	}

	if r.Drifted {
		sb.WriteString(colorMalicious.Sprintf("\ndrift detected\n"))
	} else {
		sb.WriteString(colorClean.Sprintf("\nno drift detected\n"))
	}

	return sb.String()
}

// FormatExportText renders an ExportResult as a human-readable terminal
// report.
func FormatExportText(r models.ExportResult) string {
	var sb strings.Builder
	sb.WriteString(colorClean.Sprintf("bundle written: %s\n", r.BundlePath))
	sb.WriteString(fmt.Sprintf("lockfile hash:  %s\n", r.LockfileHash))
	sb.WriteString(fmt.Sprintf("public key:     %s\n", r.PublicKeyPath))
	if r.GeneratedKeys {
		sb.WriteString(colorWarning.Sprintf("a new keypair was generated for this export\n"))
	}
	return sb.String()
}

// FormatDoctorText renders a DoctorResult as a human-readable terminal
// report.
func FormatDoctorText(r models.DoctorResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("cache root:   %s (%d entries)\n", r.CacheRoot, r.CacheEntryCount))

	lockState := colorClean.Sprintf("valid")
	switch {
	case !r.LockfileExists:
		lockState = colorUnknown.Sprintf("absent")
	case !r.LockfileValid:
		lockState = colorMalicious.Sprintf("invalid")
	}
	sb.WriteString(fmt.Sprintf("lockfile:     %s\n", lockState))

	policyState := colorUnknown.Sprintf("absent")
	if r.PolicyPresent {
		policyState = colorClean.Sprintf("valid")
		if !r.PolicyValid {
			policyState = colorMalicious.Sprintf("invalid")
		}
	}
	sb.WriteString(fmt.Sprintf("policy:       %s\n", policyState))

	if len(r.Problems) > 0 {
		sb.WriteString("\nproblems:\n")
		for _, p := range r.Problems {
			sb.WriteString(fmt.Sprintf("  %s %s\n", colorMalicious.Sprintf("-"), p))
		}
	}

	return sb.String()
}
