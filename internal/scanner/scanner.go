// Package scanner implements the static security scanner described in
// spec.md §4.7: typosquat detection, safe extraction, npm manifest/script/
// code-pattern analysis, and dependency vulnerability lookup, combined into
// a risk score and verdict.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/mcpshield/mcpshield/internal/extract"
	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/vuln"
)

// VulnQuerier is the subset of vuln.Client the scanner depends on, so tests
// can substitute a fake.
type VulnQuerier interface {
	BatchQuery(ctx context.Context, queries []vuln.Query) ([]vuln.QueryResult, error)
}

// Options configures one Scan invocation.
type Options struct {
	Offline bool
	Vuln    VulnQuerier
}

// Scan runs the full analysis pipeline over tarballPath for pkg.
func Scan(ctx context.Context, pkg models.Package, tarballPath string, opts Options) (models.ScanResult, error) {
	bareName := barePackageName(pkg.Identifier)

	if pkg.Kind != models.PackageKindNPM {
		findings := []models.Finding{}
		if f := CheckTyposquat(bareName); f != nil {
			findings = append(findings, *f)
		}
		findings = append(findings, models.Finding{
			RuleID:   "SCAN_NOT_IMPLEMENTED",
			Severity: models.SeverityInfo,
			Category: "unsupported",
			Message:  "static scanning is not implemented for this package kind",
		})
		return models.ScanResult{Verdict: models.VerdictUnknown, RiskScore: 0, Findings: findings}, nil
	}

	var findings []models.Finding
	weight := 0

	if f := CheckTyposquat(bareName); f != nil {
		findings = append(findings, *f)
		weight += typosquatWeight(f.Severity)
	}

	tmpDir, err := os.MkdirTemp("", "mcpshield-scan-*")
	if err != nil {
		return models.ScanResult{}, mcperr.Unexpected(err, "create scan temp directory")
	}
	defer os.RemoveAll(tmpDir)

	extractResult, err := extract.TarGz(tarballPath, tmpDir)
	if err != nil {
		if mcperr.KindOf(err) == mcperr.KindPathTraversal {
			findings = append(findings, models.Finding{
				RuleID:   "EXTRACT_PATH_TRAVERSAL",
				Severity: models.SeverityCritical,
				Category: "extraction",
				Message:  "archive contains an entry that escapes the extraction root",
			})
			return models.ScanResult{
				Verdict:   models.VerdictMalicious,
				RiskScore: 100,
				Findings:  sortFindings(findings),
			}, nil
		}
		return models.ScanResult{}, err
	}
	for _, warning := range extractResult.Findings {
		findings = append(findings, warning)
	}

	doc, err := loadPackageJSON(tmpDir)
	if err != nil {
		findings = append(findings, models.Finding{
			RuleID:   "MANIFEST_UNREADABLE",
			Severity: models.SeverityMedium,
			Category: "manifest",
			Message:  err.Error(),
		})
		weight += 10
	} else {
		manifestFindings, manifestWeight := analyzeManifest(doc)
		findings = append(findings, manifestFindings...)
		weight += manifestWeight

		scriptFindings, scriptWeight := analyzeScripts(doc)
		findings = append(findings, scriptFindings...)
		weight += scriptWeight
	}

	codeFindings, codeWeight, err := scanCodePatterns(filepath.Join(tmpDir, "package"))
	if err == nil {
		findings = append(findings, codeFindings...)
		weight += codeWeight
	}

	var depStats *models.DependencyStats
	if !opts.Offline && opts.Vuln != nil && doc.Dependencies != nil {
		depFindings, stats, vulnWeight := lookupDependencyVulns(ctx, doc.Dependencies, opts.Vuln)
		findings = append(findings, depFindings...)
		weight += vulnWeight
		depStats = &stats
	}

	riskScore := weight
	if riskScore > 100 {
		riskScore = 100
	}
	if riskScore < 0 {
		riskScore = 0
	}

	findings = sortFindings(findings)

	return models.ScanResult{
		Verdict:         DeriveVerdict(findings, riskScore),
		RiskScore:       riskScore,
		Findings:        findings,
		DependencyStats: depStats,
	}, nil
}

func typosquatWeight(severity models.Severity) int {
	if severity == models.SeverityHigh {
		return 30
	}
	return 15
}

// lookupDependencyVulns batch-queries direct dependencies only (§4.7 step
// 6 / Non-goals: no transitive resolution), emitting a low-weight finding
// for any spec that doesn't resolve to a concrete version.
func lookupDependencyVulns(ctx context.Context, deps map[string]string, querier VulnQuerier) ([]models.Finding, models.DependencyStats, int) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var findings []models.Finding
	var queries []vuln.Query
	weight := 0

	for _, name := range names {
		spec := deps[name]
		version, ok := concreteVersion(spec)
		if !ok {
			findings = append(findings, models.Finding{
				RuleID:   "DEPENDENCY_UNRESOLVED_VERSION",
				Severity: models.SeverityLow,
				Category: "dependency",
				Message:  "dependency " + name + " has no concrete version to check (" + spec + ")",
				Details:  map[string]interface{}{"dependency": name, "spec": spec},
			})
			weight += 5
			continue
		}
		queries = append(queries, vuln.Query{Package: name, Ecosystem: "npm", Version: version})
	}

	var stats models.DependencyStats
	stats.TotalDependencies = len(deps)

	if len(queries) > 0 {
		results, err := querier.BatchQuery(ctx, queries)
		if err == nil {
			confirmed := confirmAffected(results)
			advisories, aggStats := vuln.Dedup(confirmed)
			stats.Critical = aggStats.Critical
			stats.High = aggStats.High
			stats.Medium = aggStats.Medium
			stats.Low = aggStats.Low
			stats.AdvisoryIDs = aggStats.AdvisoryIDs
			for _, adv := range advisories {
				findings = append(findings, models.Finding{
					RuleID:   "DEPENDENCY_VULNERABLE",
					Severity: adv.Severity,
					Category: "dependency",
					Message:  adv.ID + ": " + adv.Summary,
					Details:  map[string]interface{}{"advisoryId": adv.ID},
				})
			}
		}
	}

	return findings, stats, weight
}

// confirmAffected recomputes each result's affectedness per §4.6/§8: a
// returned advisory only counts if the queried version actually falls
// inside one of its affected version lists or ranges, rather than trusting
// the advisory service's own match.
func confirmAffected(results []vuln.QueryResult) []vuln.QueryResult {
	confirmed := make([]vuln.QueryResult, len(results))
	for i, r := range results {
		kept := make([]vuln.Advisory, 0, len(r.Advisories))
		for _, adv := range r.Advisories {
			if vuln.IsAffected(adv, r.Query.Package, r.Query.Version) {
				kept = append(kept, adv)
			}
		}
		confirmed[i] = vuln.QueryResult{Query: r.Query, Advisories: kept}
	}
	return confirmed
}

// concreteVersion reports whether spec names an exact, checkable version
// rather than a range/tag (e.g. "^1.2.3", "latest").
func concreteVersion(spec string) (string, bool) {
	for _, c := range spec {
		switch c {
		case '^', '~', '*', 'x', 'X', '>', '<', '|', ' ':
			return "", false
		}
	}
	if spec == "" || spec == "latest" {
		return "", false
	}
	return spec, true
}

// DeriveVerdict applies the ordered classification from spec.md §4.7 to a
// set of findings and their aggregate risk score. Exported so callers that
// aggregate findings across multiple artifacts (orchestrator.Scan) classify
// them with the exact same cascade a single-artifact scan uses.
func DeriveVerdict(findings []models.Finding, riskScore int) models.Verdict {
	var criticalCount, highCount, nonInfoCount int
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityCritical:
			criticalCount++
			nonInfoCount++
		case models.SeverityHigh:
			highCount++
			nonInfoCount++
		case models.SeverityMedium, models.SeverityLow:
			nonInfoCount++
		}
	}

	switch {
	case criticalCount > 0:
		return models.VerdictMalicious
	case highCount > 2 || riskScore > 60:
		return models.VerdictSuspicious
	case highCount > 0 || riskScore > 30:
		return models.VerdictWarning
	case len(findings) == 0 && riskScore == 0:
		return models.VerdictClean
	case nonInfoCount > 0:
		return models.VerdictWarning
	default:
		return models.VerdictClean
	}
}

// sortFindings orders findings by (severity-rank, ruleId, message) for
// deterministic output regardless of analysis-stage interleaving.
func sortFindings(findings []models.Finding) []models.Finding {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severity.Rank() != findings[j].Severity.Rank() {
			return findings[i].Severity.Rank() < findings[j].Severity.Rank()
		}
		if findings[i].RuleID != findings[j].RuleID {
			return findings[i].RuleID < findings[j].RuleID
		}
		return findings[i].Message < findings[j].Message
	})
	return findings
}

func barePackageName(identifier string) string {
	name, _ := splitNameVersionLocal(identifier)
	return name
}

// splitNameVersionLocal mirrors resolver.SplitNameVersion without importing
// the resolver package, avoiding a scanner→resolver dependency edge.
func splitNameVersionLocal(identifier string) (string, string) {
	idx := -1
	for i := len(identifier) - 1; i > 0; i-- {
		if identifier[i] == '@' {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return identifier, ""
	}
	return identifier[:idx], identifier[idx+1:]
}
