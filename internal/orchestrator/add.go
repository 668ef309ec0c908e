package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/namespace"
	"github.com/mcpshield/mcpshield/internal/observability/metrics"
	"github.com/mcpshield/mcpshield/internal/policy"
	"github.com/mcpshield/mcpshield/internal/resolver"
	"github.com/mcpshield/mcpshield/internal/scanner"
)

// AddOptions configures one Add invocation (spec.md §4.10).
type AddOptions struct {
	Interactive bool
	ApproveAll  bool
	Policy      *models.Policy
}

// Add runs the full Add workflow: validate → fetch → verify → resolve/
// download/scan every package → gate through policy → pin.
func Add(ctx context.Context, deps *Deps, ns string, opts AddOptions) (models.AddResult, error) {
	ctx = ctxOrBackground(ctx)

	if !namespace.IsValidFormat(ns) {
		return models.AddResult{}, mcperr.User("%q is not a valid namespace", ns)
	}

	record, err := deps.Registry.Fetch(ctx, ns)
	if err != nil {
		return models.AddResult{}, err
	}

	verification := namespace.Verify(ns, record)

	var findings []models.Finding
	var artifacts []models.LockedArtifact
	riskScore := 0

	for _, pkg := range record.Packages {
		if !resolver.Supported(pkg.Kind) {
			continue
		}

		artifact, locked, pkgFindings, pkgRisk, err := resolveDownloadScan(ctx, deps, pkg)
		if err != nil {
			return models.AddResult{}, err
		}
		_ = artifact
		artifacts = append(artifacts, locked)
		findings = append(findings, pkgFindings...)
		if pkgRisk > riskScore {
			riskScore = pkgRisk
		}
	}

	decision := policy.EvaluateAdd(policy.AddInput{
		Namespace: ns,
		Verified:  verification.Verified,
		RiskScore: riskScore,
		Findings:  findings,
		Policy:    opts.Policy,
	})

	overridden := false
	if !decision.Allowed {
		metrics.RecordPolicyBlock("add")
		if !opts.Interactive {
			return models.AddResult{}, mcperr.Policy(reasonCode(decision.Reasons), "add blocked by policy: %v", decision.Reasons)
		}
		if !confirmOverride(deps, ns, decision.Reasons, opts.ApproveAll) {
			return models.AddResult{}, mcperr.User("add aborted: policy override declined for %s", ns)
		}
		overridden = true
	}

	if opts.Interactive && !opts.ApproveAll {
		if deps.Confirm == nil || !deps.Confirm(fmt.Sprintf("add %s to the lockfile?", ns)) {
			return models.AddResult{}, mcperr.User("add aborted: confirmation declined for %s", ns)
		}
	}

	entry := models.LockfileEntry{
		Namespace:          ns,
		Version:            record.Version,
		Repository:         record.RepositoryURL,
		Verified:           verification.Verified,
		VerificationMethod: verification.Method,
		VerifiedOwner:      verification.Owner,
		FetchedAt:          time.Now().UTC(),
		Artifacts:          artifacts,
	}
	if overridden {
		now := time.Now().UTC()
		entry.ApprovedAt = &now
		entry.ApprovedBy = approverIdentity(deps.Approver)
	}

	if err := deps.Lockfile.AddServer(entry); err != nil {
		return models.AddResult{}, err
	}

	return models.AddResult{
		Namespace:        ns,
		Entry:            entry,
		Verified:         verification.Verified,
		RiskScore:        riskScore,
		Findings:         findings,
		PolicyAllowed:    decision.Allowed || overridden,
		PolicyOverridden: overridden,
		RequiresApproval: decision.RequiresApproval,
		Reasons:          decision.Reasons,
	}, nil
}

// resolveDownloadScan resolves pkg to a concrete artifact, downloads it to
// a unique temp directory (always removed on return), puts it in the
// cache, and scans it. Temp files are deleted on every exit path per
// §4.10's last paragraph.
func resolveDownloadScan(ctx context.Context, deps *Deps, pkg models.Package) (models.Artifact, models.LockedArtifact, []models.Finding, int, error) {
	res, err := resolver.ForKind(pkg.Kind, deps.ResolverOptions)
	if err != nil {
		return models.Artifact{}, models.LockedArtifact{}, nil, 0, err
	}

	artifact, err := res.Resolve(ctx, pkg)
	if err != nil {
		return models.Artifact{}, models.LockedArtifact{}, nil, 0, err
	}

	tmpDir, err := os.MkdirTemp("", "mcpshield-add-*")
	if err != nil {
		return models.Artifact{}, models.LockedArtifact{}, nil, 0, mcperr.Unexpected(err, "create add temp directory")
	}
	defer os.RemoveAll(tmpDir)

	downloaded, err := res.Download(ctx, artifact, tmpDir)
	metrics.RecordDownload(string(pkg.Kind), err)
	if err != nil {
		return models.Artifact{}, models.LockedArtifact{}, nil, 0, err
	}

	cachedPath, err := deps.Cache.Put(downloaded.Digest, downloaded.Path)
	if err != nil {
		return models.Artifact{}, models.LockedArtifact{}, nil, 0, err
	}

	locked := models.LockedArtifact{
		Kind:   pkg.Kind,
		URL:    artifact.URL,
		Digest: downloaded.Digest,
		Size:   downloaded.Size,
	}

	if !resolver.Scannable(pkg.Kind) {
		return artifact, locked, nil, 0, nil
	}

	result, err := scanner.Scan(ctx, pkg, cachedPath, deps.scannerOptions())
	if err != nil {
		return models.Artifact{}, models.LockedArtifact{}, nil, 0, err
	}

	return artifact, locked, result.Findings, result.RiskScore, nil
}

func confirmOverride(deps *Deps, ns string, reasons []string, approveAll bool) bool {
	if approveAll {
		return true
	}
	if deps.Confirm == nil {
		return false
	}
	return deps.Confirm(fmt.Sprintf("policy blocked %s (%v) — override?", ns, reasons))
}

func approverIdentity(configured string) string {
	if configured != "" {
		return configured
	}
	if user := os.Getenv("MCPSHIELD_APPROVER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

// reasonCode extracts the leading reason-code token from the first policy
// reason, which may carry additional detail after a colon (e.g.
// "MAX_RISK_SCORE: risk score 90 exceeds maximum 50").
func reasonCode(reasons []string) mcperr.ReasonCode {
	if len(reasons) == 0 {
		return mcperr.ReasonPolicy
	}
	code := reasons[0]
	if idx := strings.Index(code, ":"); idx >= 0 {
		code = code[:idx]
	}
	return mcperr.ReasonCode(code)
}
