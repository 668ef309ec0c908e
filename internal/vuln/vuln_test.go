package vuln

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcpshield/mcpshield/internal/models"
)

func TestBatchQueryPreservesOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/querybatch", func(w http.ResponseWriter, r *http.Request) {
		var req osvBatchRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := osvBatchResponse{Results: make([]osvBatchResponseEntry, len(req.Queries))}
		resp.Results[1].Vulns = []osvVuln{{ID: "GHSA-xxxx", Summary: "test"}}
		json.NewEncoder(w).Encode(resp)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(WithBaseURL(server.URL))

	results, err := c.BatchQuery(context.Background(), []Query{
		{Package: "a", Ecosystem: "npm", Version: "1.0.0"},
		{Package: "b", Ecosystem: "npm", Version: "2.0.0"},
	})
	if err != nil {
		t.Fatalf("batch query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if len(results[0].Advisories) != 0 {
		t.Fatalf("expected no advisories for query 0")
	}
	if len(results[1].Advisories) != 1 || results[1].Advisories[0].ID != "GHSA-xxxx" {
		t.Fatalf("expected 1 advisory for query 1, got %+v", results[1].Advisories)
	}
}

func TestClassifySeverityFromCVSSVector(t *testing.T) {
	cases := []struct {
		vector string
		want   models.Severity
	}{
		{"CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H/9.8", models.SeverityCritical},
		{"CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:N/7.5", models.SeverityHigh},
		{"CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:L/I:N/A:N/5.3", models.SeverityMedium},
		{"CVSS:3.1/AV:N/AC:H/PR:N/UI:N/S:U/C:L/I:N/A:N/3.1", models.SeverityLow},
	}
	for _, c := range cases {
		got := classifySeverity(c.vector, nil)
		if got != c.want {
			t.Fatalf("classifySeverity(%q) = %q, want %q", c.vector, got, c.want)
		}
	}
}

func TestClassifySeverityFallsBackToDatabaseSpecific(t *testing.T) {
	got := classifySeverity("", map[string]interface{}{"severity": "HIGH"})
	if got != models.SeverityHigh {
		t.Fatalf("expected HIGH, got %q", got)
	}
}

func TestClassifySeverityDefaultsToMedium(t *testing.T) {
	got := classifySeverity("", nil)
	if got != models.SeverityMedium {
		t.Fatalf("expected medium default, got %q", got)
	}
}

func TestIsAffectedBySemverRange(t *testing.T) {
	adv := Advisory{
		Affected: []struct {
			Package  string
			Ranges   []AffectedRange
			Versions []string
		}{
			{
				Package: "lodash",
				Ranges: []AffectedRange{
					{Type: "SEMVER", Events: []RangeEvent{{Introduced: "0.0.0", Fixed: "4.17.21"}}},
				},
			},
		},
	}

	if !IsAffected(adv, "lodash", "4.17.20") {
		t.Fatalf("expected 4.17.20 to be affected")
	}
	if IsAffected(adv, "lodash", "4.17.21") {
		t.Fatalf("expected 4.17.21 (fixed) to not be affected")
	}
}

func TestIsAffectedUnparseableVersionConservative(t *testing.T) {
	adv := Advisory{
		Affected: []struct {
			Package  string
			Ranges   []AffectedRange
			Versions []string
		}{
			{Package: "weird", Ranges: []AffectedRange{{Type: "SEMVER", Events: []RangeEvent{{Introduced: "0.0.0", Fixed: "2.0.0"}}}}},
		},
	}
	if !IsAffected(adv, "weird", "not-a-version") {
		t.Fatalf("expected unparseable version to be conservatively affected")
	}
}

func TestDedupSortsAndAggregates(t *testing.T) {
	results := []QueryResult{
		{Advisories: []Advisory{{ID: "GHSA-b", Severity: models.SeverityHigh}}},
		{Advisories: []Advisory{{ID: "GHSA-a", Severity: models.SeverityCritical}, {ID: "GHSA-b", Severity: models.SeverityHigh}}},
	}
	advisories, stats := Dedup(results)
	if len(advisories) != 2 {
		t.Fatalf("expected 2 unique advisories, got %d", len(advisories))
	}
	if advisories[0].ID != "GHSA-a" {
		t.Fatalf("expected sorted ids, got %+v", advisories)
	}
	if stats.Critical != 1 || stats.High != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
