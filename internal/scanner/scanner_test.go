package scanner

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/vuln"
)

func writeTestTarball(t *testing.T, files map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("write body: %v", err)
		}
	}
	tw.Close()
	gz.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "package.tgz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write tarball: %v", err)
	}
	return path
}

func TestScanCleanPackage(t *testing.T) {
	tarball := writeTestTarball(t, map[string]string{
		"package/package.json": `{"name":"innocuous-tool","version":"1.0.0","dependencies":{}}`,
		"package/index.js":     `module.exports = function() { return 1; };`,
	})

	result, err := Scan(context.Background(), models.Package{Kind: models.PackageKindNPM, Identifier: "innocuous-tool"}, tarball, Options{Offline: true})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Verdict != models.VerdictClean {
		t.Fatalf("expected clean verdict, got %q (findings=%+v)", result.Verdict, result.Findings)
	}
	if result.RiskScore != 0 {
		t.Fatalf("expected zero risk score, got %d", result.RiskScore)
	}
}

func TestScanTyposquat(t *testing.T) {
	tarball := writeTestTarball(t, map[string]string{
		"package/package.json": `{"name":"expres","version":"1.0.0"}`,
	})

	result, err := Scan(context.Background(), models.Package{Kind: models.PackageKindNPM, Identifier: "expres"}, tarball, Options{Offline: true})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Verdict != models.VerdictWarning {
		t.Fatalf("expected warning verdict for typosquat, got %q", result.Verdict)
	}

	found := false
	for _, f := range result.Findings {
		if f.RuleID == "TYPOSQUAT_CANDIDATE" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a typosquat finding, got %+v", result.Findings)
	}
}

func TestScanMaliciousOnPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	hdr := &tar.Header{Name: "../../evil", Mode: 0o644, Size: 4, Typeflag: tar.TypeReg}
	tw.WriteHeader(hdr)
	tw.Write([]byte("evil"))
	tw.Close()
	gz.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "evil.tgz")
	os.WriteFile(path, buf.Bytes(), 0o644)

	result, err := Scan(context.Background(), models.Package{Kind: models.PackageKindNPM, Identifier: "totally-fine"}, path, Options{Offline: true})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Verdict != models.VerdictMalicious {
		t.Fatalf("expected malicious verdict, got %q", result.Verdict)
	}
	if result.RiskScore != 100 {
		t.Fatalf("expected risk score 100, got %d", result.RiskScore)
	}

	hasTraversalFinding := false
	for _, f := range result.Findings {
		if f.RuleID == "EXTRACT_PATH_TRAVERSAL" {
			hasTraversalFinding = true
		}
	}
	if !hasTraversalFinding {
		t.Fatalf("expected EXTRACT_PATH_TRAVERSAL finding, got %+v", result.Findings)
	}
}

func TestScanScriptDynamicExecution(t *testing.T) {
	tarball := writeTestTarball(t, map[string]string{
		"package/package.json": `{"name":"sneaky-tool","version":"1.0.0","scripts":{"postinstall":"node -e \"eval(process.env.PAYLOAD)\""}}`,
	})

	result, err := Scan(context.Background(), models.Package{Kind: models.PackageKindNPM, Identifier: "sneaky-tool"}, tarball, Options{Offline: true})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Verdict != models.VerdictMalicious {
		t.Fatalf("expected malicious verdict from critical script finding, got %q", result.Verdict)
	}
}

func TestScanNonNPMKindReturnsUnknown(t *testing.T) {
	result, err := Scan(context.Background(), models.Package{Kind: models.PackageKindOCI, Identifier: "some/image"}, "", Options{Offline: true})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Verdict != models.VerdictUnknown {
		t.Fatalf("expected unknown verdict for unsupported kind, got %q", result.Verdict)
	}
}

type fakeVulnQuerier struct {
	results []vuln.QueryResult
}

func (f *fakeVulnQuerier) BatchQuery(ctx context.Context, queries []vuln.Query) ([]vuln.QueryResult, error) {
	return f.results, nil
}

func TestScanDependencyVulnerabilityLookup(t *testing.T) {
	tarball := writeTestTarball(t, map[string]string{
		"package/package.json": `{"name":"has-vuln-dep","version":"1.0.0","dependencies":{"leftpad":"1.0.0"}}`,
	})

	querier := &fakeVulnQuerier{results: []vuln.QueryResult{
		{
			Query: vuln.Query{Package: "leftpad", Ecosystem: "npm", Version: "1.0.0"},
			Advisories: []vuln.Advisory{{
				ID:       "GHSA-test",
				Summary:  "test advisory",
				Severity: models.SeverityHigh,
				Affected: []struct {
					Package  string
					Ranges   []vuln.AffectedRange
					Versions []string
				}{{Package: "leftpad", Versions: []string{"1.0.0"}}},
			}},
		},
	}}

	result, err := Scan(context.Background(), models.Package{Kind: models.PackageKindNPM, Identifier: "has-vuln-dep"}, tarball, Options{Vuln: querier})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.DependencyStats == nil || result.DependencyStats.High != 1 {
		t.Fatalf("expected 1 high-severity dependency finding, got %+v", result.DependencyStats)
	}
}

func TestDeriveVerdictMonotonicity(t *testing.T) {
	base := []models.Finding{{Severity: models.SeverityLow}}
	if DeriveVerdict(base, 10) == models.VerdictMalicious {
		t.Fatalf("low-severity-only findings should not be malicious")
	}
	withCritical := append(base, models.Finding{Severity: models.SeverityCritical})
	if DeriveVerdict(withCritical, 10) != models.VerdictMalicious {
		t.Fatalf("adding a critical finding must force malicious verdict")
	}
}
