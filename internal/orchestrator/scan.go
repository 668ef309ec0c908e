package orchestrator

import (
	"context"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/observability/metrics"
	"github.com/mcpshield/mcpshield/internal/policy"
	"github.com/mcpshield/mcpshield/internal/resolver"
	"github.com/mcpshield/mcpshield/internal/scanner"
)

// ScanOptions configures one Scan invocation (spec.md §4.11).
type ScanOptions struct {
	Enforce bool
	Policy  *models.Policy
}

// defaultScanPolicy is substituted when Enforce is set but no policy
// document is present (§4.11 step 2).
func defaultScanPolicy() *models.Policy {
	maxScore := 50
	return &models.Policy{
		Version: "1.0",
		Global: &models.GlobalPolicy{
			MaxRiskScore:    &maxScore,
			BlockSeverities: []models.Severity{models.SeverityCritical},
			DenyUnverified:  false,
		},
	}
}

const maxParallelServers = 8

// Scan re-verifies every pinned server against its artifacts and the
// active policy, per §4.11.
func Scan(ctx context.Context, deps *Deps, opts ScanOptions) (models.ScanSummary, error) {
	ctx = ctxOrBackground(ctx)
	defer metrics.ObserveScanDuration(time.Now())

	if !deps.Lockfile.Exists() {
		return models.ScanSummary{}, mcperr.User("no lockfile present; run add before scan")
	}
	lock, err := deps.Lockfile.Read()
	if err != nil {
		return models.ScanSummary{}, err
	}

	activePolicy := opts.Policy
	if opts.Enforce && activePolicy == nil {
		activePolicy = defaultScanPolicy()
	}

	namespaces := make([]string, 0, len(lock.Servers))
	for ns := range lock.Servers {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	results := make([]models.ScanServerResult, len(namespaces))
	artifactCount := 0
	for _, ns := range namespaces {
		artifactCount += len(lock.Servers[ns].Artifacts)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxParallelServers)
	for i, ns := range namespaces {
		i, ns := i, ns
		entry := lock.Servers[ns]
		group.Go(func() error {
			results[i] = scanServer(gctx, deps, ns, entry, activePolicy)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return models.ScanSummary{}, err
	}

	summary := models.ScanSummary{
		Servers:  results,
		Artifact: artifactCount,
		Verdicts: tallyVerdicts(results),
		Policy:   summarizePolicy(opts.Enforce, results),
	}

	return summary, scanExitError(opts.Enforce, results)
}

// scanServer performs §4.11 steps 3-4 for one server: cache-or-download-or-
// offline-miss each artifact, scan, aggregate, then evaluate policy.
func scanServer(ctx context.Context, deps *Deps, ns string, entry models.LockfileEntry, activePolicy *models.Policy) models.ScanServerResult {
	result := models.ScanServerResult{Namespace: ns, Version: entry.Version}

	var findings []models.Finding
	riskScore := 0
	var errs []string
	offlineMiss := false

	for _, art := range entry.Artifacts {
		path, status, err := materializeArtifact(ctx, deps, art)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if status == artifactStatusOfflineMiss {
			offlineMiss = true
			continue
		}
		if !resolver.Scannable(art.Kind) {
			continue
		}

		pkg := models.Package{Kind: art.Kind, Identifier: art.URL, Version: entry.Version}
		scanRes, err := scanner.Scan(ctx, pkg, path, deps.scannerOptions())
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		findings = append(findings, scanRes.Findings...)
		if scanRes.RiskScore > riskScore {
			riskScore = scanRes.RiskScore
		}
	}

	decision := policy.EvaluateScan(policy.ScanInput{
		Namespace: ns,
		Verified:  entry.Verified,
		RiskScore: riskScore,
		Findings:  findings,
		Policy:    activePolicy,
	})

	result.RiskScore = riskScore
	result.Findings = sortFindings(findings)
	result.Verdict = deriveServerVerdict(findings, riskScore, offlineMiss)
	result.Blocked = !decision.Allowed
	if result.Blocked {
		metrics.RecordPolicyBlock("scan")
	}
	result.Reasons = decision.Reasons
	result.Errors = errs
	if offlineMiss {
		result.Errors = append(result.Errors, "OFFLINE_CACHE_MISS")
	}
	return result
}

const (
	artifactStatusMatch       = "match"
	artifactStatusOfflineMiss = "offline_miss"
)

// materializeArtifact returns a readable local path for art: the cache hit
// if present, else a fresh download (which heals the cache), else an
// offline-miss status when offline and absent.
func materializeArtifact(ctx context.Context, deps *Deps, art models.LockedArtifact) (path string, status string, err error) {
	if cached, ok := deps.Cache.Get(art.Digest); ok {
		return cached, artifactStatusMatch, nil
	}
	if deps.Offline {
		return "", artifactStatusOfflineMiss, nil
	}
	if !resolver.Supported(art.Kind) {
		return "", "", mcperr.User("package kind %q is recorded but not resolved by this pipeline", art.Kind)
	}

	res, err := resolver.ForKind(art.Kind, deps.ResolverOptions)
	if err != nil {
		return "", "", err
	}

	tmpDir, err := os.MkdirTemp("", "mcpshield-scan-*")
	if err != nil {
		return "", "", mcperr.Unexpected(err, "create scan temp directory")
	}
	defer os.RemoveAll(tmpDir)

	downloaded, err := res.Download(ctx, models.Artifact{URL: art.URL, Kind: art.Kind, Integrity: art.Digest}, tmpDir)
	metrics.RecordDownload(string(art.Kind), err)
	if err != nil {
		return "", "", err
	}
	if downloaded.Digest != art.Digest {
		return "", "", mcperr.Integrity("artifact %s digest mismatch: expected %s, got %s", art.URL, art.Digest, downloaded.Digest)
	}

	cachedPath, err := deps.Cache.Put(downloaded.Digest, downloaded.Path)
	if err != nil {
		return "", "", err
	}
	return cachedPath, artifactStatusMatch, nil
}

// sortFindings orders findings by (severity-rank, ruleId, message) for
// deterministic output regardless of per-server scan interleaving (§5).
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

// deriveServerVerdict folds a server's aggregate findings/riskScore into a
// single Verdict using §4.7's exact cascade (scanner.DeriveVerdict),
// reserving VerdictUnknown for servers with an uncovered (offline-miss)
// artifact instead of re-deriving the thresholds here.
func deriveServerVerdict(findings []models.Finding, riskScore int, offlineMiss bool) models.Verdict {
	if offlineMiss && len(findings) == 0 {
		return models.VerdictUnknown
	}
	return scanner.DeriveVerdict(findings, riskScore)
}

func tallyVerdicts(results []models.ScanServerResult) models.VerdictCounts {
	var counts models.VerdictCounts
	for _, r := range results {
		switch r.Verdict {
		case models.VerdictClean:
			counts.Clean++
		case models.VerdictWarning:
			counts.Warning++
		case models.VerdictSuspicious:
			counts.Suspicious++
		case models.VerdictMalicious:
			counts.Malicious++
		default:
			counts.Unknown++
		}
	}
	return counts
}

func summarizePolicy(enforced bool, results []models.ScanServerResult) models.PolicySummary {
	summary := models.PolicySummary{Enforced: enforced}
	for _, r := range results {
		if r.Blocked {
			summary.Blocked = true
			summary.Reasons = append(summary.Reasons, r.Reasons...)
		}
	}
	return summary
}

// scanExitError maps the Scan workflow's outcome to the exit-code contract
// in §4.11's last paragraph: an offline cache miss is a user error, a
// policy block under enforcement or any other per-artifact failure is a
// general failure.
func scanExitError(enforced bool, results []models.ScanServerResult) error {
	for _, r := range results {
		for _, e := range r.Errors {
			if e == "OFFLINE_CACHE_MISS" {
				return mcperr.User("scan artifact(s) for %s are not cached and offline mode is set", r.Namespace)
			}
		}
	}
	for _, r := range results {
		if len(r.Errors) > 0 {
			return mcperr.Unexpected(nil, "scan encountered errors for %s: %v", r.Namespace, r.Errors)
		}
	}
	if enforced {
		for _, r := range results {
			if r.Blocked {
				return mcperr.Policy(mcperr.ReasonPolicy, "scan blocked by policy for %s: %v", r.Namespace, r.Reasons)
			}
		}
	}
	return nil
}
