package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/version"
)

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
const sarifVersion = "2.1.0"

// sarifLog is the top-level SARIF 2.1.0 document.
type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	Level               string            `json:"level"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLocation   `json:"locations"`
	PartialFingerprints map[string]string `json:"partialFingerprints"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

// ToSARIF renders a ScanSummary as a SARIF 2.1.0 log, one result per
// finding across every scanned server. Fingerprints are deterministic:
// a 16-hex digest of (namespace@version, ruleId, message), so the same
// finding reproduces the same fingerprint across runs for deduplication
// by downstream code-scanning tools.
func ToSARIF(summary models.ScanSummary) ([]byte, error) {
	rules := map[string]sarifRule{}
	var results []sarifResult

	servers := append([]models.ScanServerResult(nil), summary.Servers...)
	sort.Slice(servers, func(i, j int) bool { return servers[i].Namespace < servers[j].Namespace })

	for _, server := range servers {
		findings := append([]models.Finding(nil), server.Findings...)
		sort.Slice(findings, func(i, j int) bool {
			if findings[i].RuleID != findings[j].RuleID {
				return findings[i].RuleID < findings[j].RuleID
			}
			return findings[i].Message < findings[j].Message
		})

		subject := server.Namespace + "@" + server.Version

		for _, f := range findings {
			if _, ok := rules[f.RuleID]; !ok {
				rules[f.RuleID] = sarifRule{ID: f.RuleID, Name: f.RuleID}
			}

			results = append(results, sarifResult{
				RuleID:  f.RuleID,
				Level:   sarifLevel(f.Severity),
				Message: sarifMessage{Text: f.Message},
				Locations: []sarifLocation{{
					PhysicalLocation: sarifPhysicalLocation{
						ArtifactLocation: sarifArtifactLocation{URI: subject},
					},
				}},
				PartialFingerprints: map[string]string{
					"mcpshieldFindingHash/v1": fingerprint(subject, f.RuleID, f.Message),
				},
			})
		}
	}

	ruleList := make([]sarifRule, 0, len(rules))
	for _, r := range rules {
		ruleList = append(ruleList, r)
	}
	sort.Slice(ruleList, func(i, j int) bool { return ruleList[i].ID < ruleList[j].ID })

	log := sarifLog{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:    toolName,
				Version: version.BuildVersion(),
				Rules:   ruleList,
			}},
			Results: results,
		}},
	}

	return json.MarshalIndent(log, "", "  ")
}

func sarifLevel(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical, models.SeverityHigh:
		return "error"
	case models.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

// fingerprint returns a stable 16-hex digest identifying one finding
// independent of scan ordering.
func fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
