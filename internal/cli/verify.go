package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpshield/mcpshield/internal/orchestrator"
	"github.com/mcpshield/mcpshield/internal/report"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every pinned artifact's digest for drift",
	Long: `Verify re-resolves every pinned artifact's current digest (cache-first,
then a fresh download) and compares it against the pinned expectation.
It never rewrites the lockfile and never runs the static scanner.`,
	RunE: runVerify,
}

var (
	verifyLockfileFlag string
	verifyOfflineFlag  bool
	verifyJSONFlag     bool
)

func init() {
	verifyCmd.Flags().StringVar(&verifyLockfileFlag, "lockfile", "", "Path to the lockfile (default: project mcp.lock.json)")
	verifyCmd.Flags().BoolVar(&verifyOfflineFlag, "offline", false, "Fail on any artifact not already cached, rather than reach the network")
	verifyCmd.Flags().BoolVar(&verifyJSONFlag, "json", false, "Emit the result as JSON instead of a text summary")
}

// GetVerifyCmd returns the verify command.
func GetVerifyCmd() *cobra.Command {
	return verifyCmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps(verifyLockfileFlag, verifyOfflineFlag)
	if err != nil {
		return err
	}

	result, verifyErr := orchestrator.Verify(cmd.Context(), deps)
	result = report.StampVerify(result, "verify")

	if verifyJSONFlag {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		fmt.Print(report.FormatVerifyText(result))
	}

	return verifyErr
}
