// Package orchestrator implements the three top-level workflows of
// spec.md §4.10-§4.12: Add (verify, resolve, scan, gate, pin), Scan
// (re-verify every pinned artifact against policy), and Verify (digest
// drift detection against the cache, never touching the scanner or the
// lockfile).
package orchestrator

import (
	"context"
	"net/http"

	"github.com/mcpshield/mcpshield/internal/cache"
	"github.com/mcpshield/mcpshield/internal/lockfile"
	"github.com/mcpshield/mcpshield/internal/registry"
	"github.com/mcpshield/mcpshield/internal/resolver"
	"github.com/mcpshield/mcpshield/internal/scanner"
	"github.com/mcpshield/mcpshield/internal/vuln"
)

// Deps bundles every external collaborator a workflow needs, so tests can
// substitute fakes/httptest servers without the orchestrator importing
// concrete transports directly.
type Deps struct {
	Registry        *registry.Client
	Cache           *cache.Cache
	Lockfile        *lockfile.Store
	Vuln            scanner.VulnQuerier
	ResolverOptions resolver.Options
	Offline         bool

	// Approver is stamped onto LockfileEntry.ApprovedBy when a policy
	// block is interactively overridden and no more specific identity is
	// available (§6's "attributed approver identity" environment input).
	Approver string

	// Confirm prompts the operator with msg and returns whether they
	// confirmed. nil means non-interactive: any place that would prompt
	// instead fails closed.
	Confirm func(msg string) bool
}

// NewDeps wires the default collaborators for a project rooted at
// lockfilePath, using httpClient for every outbound call (nil picks
// http.DefaultClient's transport via each client's own defaults).
func NewDeps(lockfilePath string, httpClient *http.Client, offline bool) (*Deps, error) {
	c, err := cache.New()
	if err != nil {
		return nil, err
	}

	regOpts := []registry.Option{registry.WithOffline(offline)}
	vulnOpts := []vuln.Option{vuln.WithOffline(offline)}
	if httpClient != nil {
		regOpts = append(regOpts, registry.WithHTTPClient(httpClient))
		vulnOpts = append(vulnOpts, vuln.WithHTTPClient(httpClient))
	}

	return &Deps{
		Registry:        registry.New(regOpts...),
		Cache:           c,
		Lockfile:        lockfile.New(lockfilePath),
		Vuln:            vuln.New(vulnOpts...),
		ResolverOptions: resolver.DefaultOptions(),
		Offline:         offline,
	}, nil
}

// scannerOptions builds the per-workflow scanner.Options, honoring offline
// mode by withholding the vulnerability querier entirely.
func (d *Deps) scannerOptions() scanner.Options {
	if d.Offline {
		return scanner.Options{Offline: true}
	}
	return scanner.Options{Offline: false, Vuln: d.Vuln}
}

// ctxOrBackground is a tiny helper so workflow entry points can accept a
// possibly-nil context the way the teacher's CLI commands do.
func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
