package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpshield/mcpshield/internal/orchestrator"
	"github.com/mcpshield/mcpshield/internal/report"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Re-verify every pinned server against its artifacts and policy",
	Long: `Scan re-downloads or cache-hits each pinned artifact, re-scans it for
risk patterns and vulnerable dependencies, and (with --enforce) exits
non-zero when any server is blocked by the active policy.`,
	RunE: runScan,
}

var (
	scanLockfileFlag string
	scanPolicyFlag   string
	scanPresetFlag   string
	scanEnforceFlag  bool
	scanOfflineFlag  bool
	scanFormatFlag   string
)

func init() {
	scanCmd.Flags().StringVar(&scanLockfileFlag, "lockfile", "", "Path to the lockfile (default: project mcp.lock.json)")
	scanCmd.Flags().StringVar(&scanPolicyFlag, "policy", "", "Path to a policy.yaml file (overrides the project policy)")
	scanCmd.Flags().StringVar(&scanPresetFlag, "preset", "", "Named policy preset (baseline, strict)")
	scanCmd.Flags().BoolVar(&scanEnforceFlag, "enforce", false, "Exit non-zero when the active policy blocks a server")
	scanCmd.Flags().BoolVar(&scanOfflineFlag, "offline", false, "Fail on any artifact not already cached, rather than reach the network")
	scanCmd.Flags().StringVar(&scanFormatFlag, "format", "text", "Output format: text, json, or sarif")
}

// GetScanCmd returns the scan command.
func GetScanCmd() *cobra.Command {
	return scanCmd
}

func runScan(cmd *cobra.Command, args []string) error {
	pol, _, err := resolveActivePolicy(scanPolicyFlag, scanPresetFlag)
	if err != nil {
		return err
	}

	deps, err := buildDeps(scanLockfileFlag, scanOfflineFlag)
	if err != nil {
		return err
	}

	summary, scanErr := orchestrator.Scan(cmd.Context(), deps, orchestrator.ScanOptions{
		Enforce: scanEnforceFlag,
		Policy:  pol,
	})
	summary = report.StampScan(summary, "scan")

	switch scanFormatFlag {
	case "json":
		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	case "sarif":
		out, err := report.ToSARIF(summary)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		fmt.Print(report.FormatScanText(summary))
	}

	return scanErr
}
