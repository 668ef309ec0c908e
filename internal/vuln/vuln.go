// Package vuln implements the batched vulnerability-advisory client
// described in spec.md §4.6: OSV-shaped version-range queries against an
// external advisory service, rate-limited so a large dependency set can't
// hammer the upstream service.
package vuln

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver"
	"golang.org/x/time/rate"

	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
)

// DefaultBaseURL is the OSV-compatible batch query endpoint.
const DefaultBaseURL = "https://api.osv.dev/v1"

// Query is one (package, ecosystem, version) tuple to check.
type Query struct {
	Package   string
	Ecosystem string
	Version   string
}

// AffectedRange is one event range inside an advisory's affected entry.
type AffectedRange struct {
	Type   string // "SEMVER" | "ECOSYSTEM"
	Events []RangeEvent
}

// RangeEvent is a single introduced/fixed boundary.
type RangeEvent struct {
	Introduced string
	Fixed      string
}

// Advisory is one vulnerability record, normalized from the OSV schema.
type Advisory struct {
	ID       string
	Summary  string
	Severity models.Severity
	CVSS     string
	Affected []struct {
		Package string
		Ranges  []AffectedRange
		Versions []string
	}
}

// QueryResult is one Query's matched advisories, preserving input order.
type QueryResult struct {
	Query    Query
	Advisories []Advisory
}

// Client batch-queries and deduplicates advisories.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	offline bool
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }
func WithBaseURL(base string) Option       { return func(cl *Client) { cl.baseURL = strings.TrimRight(base, "/") } }
func WithOffline(offline bool) Option      { return func(cl *Client) { cl.offline = offline } }

// New constructs a vuln Client, rate-limited to 10 requests/sec by default
// to stay polite to the upstream advisory service during large dependency
// batches.
func New(opts ...Option) *Client {
	cl := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

type osvQueryPayload struct {
	Package struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	} `json:"package"`
	Version string `json:"version"`
}

type osvBatchRequest struct {
	Queries []osvQueryPayload `json:"queries"`
}

type osvEvent struct {
	Introduced string `json:"introduced"`
	Fixed      string `json:"fixed"`
}

type osvRange struct {
	Type   string     `json:"type"`
	Events []osvEvent `json:"events"`
}

type osvAffected struct {
	Package struct {
		Name string `json:"name"`
	} `json:"package"`
	Ranges   []osvRange `json:"ranges"`
	Versions []string   `json:"versions"`
}

type osvSeverityEntry struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

type osvVuln struct {
	ID       string             `json:"id"`
	Summary  string             `json:"summary"`
	Severity []osvSeverityEntry `json:"severity"`
	DatabaseSpecific map[string]interface{} `json:"database_specific"`
	Affected []osvAffected `json:"affected"`
}

type osvBatchResponseEntry struct {
	Vulns []osvVuln `json:"vulns"`
}

type osvBatchResponse struct {
	Results []osvBatchResponseEntry `json:"results"`
}

// BatchQuery queries all of queries in one request, preserving input order
// in the returned slice.
func (c *Client) BatchQuery(ctx context.Context, queries []Query) ([]QueryResult, error) {
	if c.offline {
		return nil, mcperr.Network(0, nil, "vulnerability lookup attempted while offline")
	}
	if len(queries) == 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, mcperr.Unexpected(err, "rate limiter wait")
	}

	req := osvBatchRequest{Queries: make([]osvQueryPayload, len(queries))}
	for i, q := range queries {
		req.Queries[i].Package.Name = q.Package
		req.Queries[i].Package.Ecosystem = q.Ecosystem
		req.Queries[i].Version = q.Version
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, mcperr.Unexpected(err, "encode batch query")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/querybatch", bytes.NewReader(body))
	if err != nil {
		return nil, mcperr.Unexpected(err, "build batch query request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, mcperr.Network(0, err, "vulnerability batch query failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, mcperr.Network(resp.StatusCode, nil, "vulnerability service returned status %d", resp.StatusCode)
	}

	var batch osvBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, mcperr.Unexpected(err, "decode batch query response")
	}

	results := make([]QueryResult, len(queries))
	for i, q := range queries {
		results[i].Query = q
		if i >= len(batch.Results) {
			continue
		}
		for _, v := range batch.Results[i].Vulns {
			results[i].Advisories = append(results[i].Advisories, normalizeAdvisory(v))
		}
	}
	return results, nil
}

func normalizeAdvisory(v osvVuln) Advisory {
	adv := Advisory{ID: v.ID, Summary: v.Summary}

	for _, entry := range v.Severity {
		if strings.Contains(strings.ToUpper(entry.Type), "CVSS") {
			adv.CVSS = entry.Score
			break
		}
	}
	adv.Severity = classifySeverity(adv.CVSS, v.DatabaseSpecific)

	for _, a := range v.Affected {
		var ranges []AffectedRange
		for _, r := range a.Ranges {
			var events []RangeEvent
			var cur RangeEvent
			for _, e := range r.Events {
				if e.Introduced != "" {
					if cur != (RangeEvent{}) {
						events = append(events, cur)
					}
					cur = RangeEvent{Introduced: e.Introduced}
				}
				if e.Fixed != "" {
					cur.Fixed = e.Fixed
				}
			}
			if cur != (RangeEvent{}) {
				events = append(events, cur)
			}
			ranges = append(ranges, AffectedRange{Type: r.Type, Events: events})
		}
		adv.Affected = append(adv.Affected, struct {
			Package string
			Ranges  []AffectedRange
			Versions []string
		}{Package: a.Package.Name, Ranges: ranges, Versions: a.Versions})
	}

	return adv
}

// cvssScorePattern extracts the final /N.N segment of a CVSS v3 vector
// string, e.g. ".../MC:N/MI:N/MA:N/9.8" or the bare score form "CVSS:3.1/...".
var cvssScorePattern = regexp.MustCompile(`/(\d+(?:\.\d+)?)$`)

func classifySeverity(cvssVector string, databaseSpecific map[string]interface{}) models.Severity {
	if score, ok := parseCVSSScore(cvssVector); ok {
		switch {
		case score >= 9.0:
			return models.SeverityCritical
		case score >= 7.0:
			return models.SeverityHigh
		case score >= 4.0:
			return models.SeverityMedium
		default:
			return models.SeverityLow
		}
	}

	if raw, ok := databaseSpecific["severity"]; ok {
		if s, ok := raw.(string); ok {
			switch strings.ToUpper(s) {
			case "CRITICAL":
				return models.SeverityCritical
			case "HIGH":
				return models.SeverityHigh
			case "MODERATE", "MEDIUM":
				return models.SeverityMedium
			case "LOW":
				return models.SeverityLow
			}
		}
	}

	return models.SeverityMedium
}

func parseCVSSScore(vector string) (float64, bool) {
	if vector == "" {
		return 0, false
	}
	m := cvssScorePattern.FindStringSubmatch(vector)
	if m == nil {
		return 0, false
	}
	score, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return score, true
}

// IsAffected reports whether version is affected by adv's affected ranges
// and explicit version lists, for package pkg.
func IsAffected(adv Advisory, pkg string, version string) bool {
	for _, a := range adv.Affected {
		if a.Package != "" && a.Package != pkg {
			continue
		}
		for _, v := range a.Versions {
			if v == version {
				return true
			}
		}
		for _, r := range a.Ranges {
			if rangeAffects(r, version) {
				return true
			}
		}
	}
	return false
}

// rangeAffects walks a range's introduced/fixed events maintaining the most
// recent boundary of each, applying "introduced <= v < fixed" by semver. An
// unparseable version conservatively counts as affected.
func rangeAffects(r AffectedRange, version string) bool {
	parsed, err := semver.NewVersion(version)
	if err != nil {
		return true
	}

	introduced := ""
	fixed := ""
	for _, e := range r.Events {
		if e.Introduced != "" {
			introduced = e.Introduced
			fixed = ""
		}
		if e.Fixed != "" {
			fixed = e.Fixed
		}
	}

	if introduced == "" {
		introduced = "0.0.0"
	}

	introducedV, err := semver.NewVersion(introduced)
	if err != nil {
		return true
	}
	if parsed.Compare(introducedV) < 0 {
		return false
	}

	if fixed == "" {
		return true
	}
	fixedV, err := semver.NewVersion(fixed)
	if err != nil {
		return true
	}
	return parsed.Compare(fixedV) < 0
}

// Dedup merges results across multiple queries into a unique-by-id,
// id-sorted advisory list plus aggregate severity counts.
func Dedup(results []QueryResult) ([]Advisory, models.DependencyStats) {
	seen := make(map[string]Advisory)
	for _, r := range results {
		for _, a := range r.Advisories {
			seen[a.ID] = a
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	advisories := make([]Advisory, 0, len(ids))
	stats := models.DependencyStats{}
	for _, id := range ids {
		adv := seen[id]
		advisories = append(advisories, adv)
		stats.AdvisoryIDs = append(stats.AdvisoryIDs, id)
		switch adv.Severity {
		case models.SeverityCritical:
			stats.Critical++
		case models.SeverityHigh:
			stats.High++
		case models.SeverityMedium:
			stats.Medium++
		case models.SeverityLow, models.SeverityInfo:
			stats.Low++
		}
	}

	return advisories, stats
}
