package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcpshield/mcpshield/internal/models"
)

// packageJSON is the subset of package.json fields the manifest and script
// analyses need.
type packageJSON struct {
	Name            string            `json:"name"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

var lifecycleHooks = []string{
	"preinstall", "install", "postinstall",
	"preuninstall", "uninstall", "postuninstall",
}

var networkToolSubstrings = []string{"curl", "wget", "fetch"}
var execSubstrings = []string{"eval", "exec"}

const maxDirectDependencies = 50

// loadPackageJSON reads and parses package/package.json from an extracted
// npm tarball root.
func loadPackageJSON(extractedRoot string) (packageJSON, error) {
	path := filepath.Join(extractedRoot, "package", "package.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return packageJSON{}, fmt.Errorf("read package.json: %w", err)
	}
	var doc packageJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return packageJSON{}, fmt.Errorf("parse package.json: %w", err)
	}
	return doc, nil
}

// analyzeManifest implements spec.md §4.7 step 3: dependency count and
// dependency-spec shape checks.
func analyzeManifest(doc packageJSON) ([]models.Finding, int) {
	var findings []models.Finding
	weight := 0

	total := len(doc.Dependencies) + len(doc.DevDependencies) + len(doc.PeerDependencies)
	if total > maxDirectDependencies {
		findings = append(findings, models.Finding{
			RuleID:   "MANIFEST_TOO_MANY_DEPENDENCIES",
			Severity: models.SeverityMedium,
			Category: "manifest",
			Message:  fmt.Sprintf("package declares %d direct/dev/peer dependencies", total),
			Details:  map[string]interface{}{"count": total},
		})
		weight += 10
	}

	allDeps := make(map[string]string, total)
	for name, spec := range doc.Dependencies {
		allDeps[name] = spec
	}
	for name, spec := range doc.DevDependencies {
		allDeps[name] = spec
	}
	for name, spec := range doc.PeerDependencies {
		allDeps[name] = spec
	}

	for name, spec := range allDeps {
		switch {
		case strings.Contains(spec, "git://") || strings.Contains(spec, "git+"):
			findings = append(findings, models.Finding{
				RuleID:   "MANIFEST_GIT_DEPENDENCY",
				Severity: models.SeverityHigh,
				Category: "manifest",
				Message:  fmt.Sprintf("dependency %q resolves via a git URL (%q)", name, spec),
				Details:  map[string]interface{}{"dependency": name, "spec": spec},
			})
			weight += 15
		case strings.HasPrefix(spec, "http://"):
			findings = append(findings, models.Finding{
				RuleID:   "MANIFEST_INSECURE_URL_DEPENDENCY",
				Severity: models.SeverityCritical,
				Category: "manifest",
				Message:  fmt.Sprintf("dependency %q resolves via an insecure http:// URL", name),
				Details:  map[string]interface{}{"dependency": name, "spec": spec},
			})
			weight += 25
		}
	}

	return findings, weight
}

// analyzeScripts implements spec.md §4.7 step 4: lifecycle hook inspection.
func analyzeScripts(doc packageJSON) ([]models.Finding, int) {
	var findings []models.Finding
	weight := 0

	for _, hook := range lifecycleHooks {
		script, ok := doc.Scripts[hook]
		if !ok || script == "" {
			continue
		}
		lower := strings.ToLower(script)

		for _, tool := range networkToolSubstrings {
			if strings.Contains(lower, tool) {
				findings = append(findings, models.Finding{
					RuleID:   "SCRIPT_NETWORK_FETCH",
					Severity: models.SeverityHigh,
					Category: "script",
					Message:  fmt.Sprintf("lifecycle hook %q invokes %q", hook, tool),
					Details:  map[string]interface{}{"hook": hook, "tool": tool},
				})
				weight += 20
				break
			}
		}

		for _, term := range execSubstrings {
			if strings.Contains(lower, term) {
				findings = append(findings, models.Finding{
					RuleID:   "SCRIPT_DYNAMIC_EXECUTION",
					Severity: models.SeverityCritical,
					Category: "script",
					Message:  fmt.Sprintf("lifecycle hook %q contains %q", hook, term),
					Details:  map[string]interface{}{"hook": hook, "term": term},
				})
				weight += 30
				break
			}
		}
	}

	return findings, weight
}
