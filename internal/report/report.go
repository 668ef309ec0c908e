// Package report stamps the common envelope onto workflow results and
// renders them for operators: JSON (the wire shape in internal/models),
// SARIF for code-scanning integrations, and a colored text summary.
package report

import (
	"time"

	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/version"
)

const toolName = "mcpshield"

// Meta builds the ReportMeta envelope every result embeds.
func Meta(command string) models.ReportMeta {
	return models.ReportMeta{
		Tool:        toolName,
		ToolVersion: version.BuildVersion(),
		Command:     command,
		GeneratedAt: time.Now().UTC(),
	}
}

// StampAdd attaches a report envelope to an Add result.
func StampAdd(r models.AddResult, command string) models.AddResult {
	r.Meta = Meta(command)
	return r
}

// StampScan attaches a report envelope to a Scan result.
func StampScan(r models.ScanSummary, command string) models.ScanSummary {
	r.Meta = Meta(command)
	return r
}

// StampVerify attaches a report envelope to a Verify result.
func StampVerify(r models.VerifyResult, command string) models.VerifyResult {
	r.Meta = Meta(command)
	return r
}

// StampValidate attaches a report envelope to a lockfile/policy validation
// result.
func StampValidate(r models.ValidateResult, command string) models.ValidateResult {
	r.Meta = Meta(command)
	return r
}

// StampDoctor attaches a report envelope to a Doctor result.
func StampDoctor(r models.DoctorResult, command string) models.DoctorResult {
	r.Meta = Meta(command)
	return r
}

// StampExport attaches a report envelope to an Export result.
func StampExport(r models.ExportResult, command string) models.ExportResult {
	r.Meta = Meta(command)
	return r
}
