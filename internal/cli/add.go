package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpshield/mcpshield/internal/orchestrator"
	"github.com/mcpshield/mcpshield/internal/report"
)

var addCmd = &cobra.Command{
	Use:   "add <namespace>",
	Short: "Pin an MCP server's artifacts into the lockfile",
	Long: `Add fetches a server's registry record, verifies ownership of its
declared namespace, resolves and scans each of its artifacts, gates the
result through policy, and pins the outcome into mcp.lock.json.

Example:
  mcpshield add io.github.acme/weather-server`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var (
	addLockfileFlag    string
	addPolicyFlag      string
	addPresetFlag      string
	addInteractiveFlag bool
	addApproveAllFlag  bool
	addOfflineFlag     bool
	addJSONFlag        bool
)

func init() {
	addCmd.Flags().StringVar(&addLockfileFlag, "lockfile", "", "Path to the lockfile (default: project mcp.lock.json)")
	addCmd.Flags().StringVar(&addPolicyFlag, "policy", "", "Path to a policy.yaml file (overrides the project policy)")
	addCmd.Flags().StringVar(&addPresetFlag, "preset", "", "Named policy preset (baseline, strict)")
	addCmd.Flags().BoolVarP(&addInteractiveFlag, "interactive", "i", false, "Prompt for confirmation and allow overriding a policy block")
	addCmd.Flags().BoolVar(&addApproveAllFlag, "approve-all", false, "Automatically approve any policy override (implies --interactive)")
	addCmd.Flags().BoolVar(&addOfflineFlag, "offline", false, "Fail rather than reach the network")
	addCmd.Flags().BoolVar(&addJSONFlag, "json", false, "Emit the result as JSON instead of a text summary")
}

// GetAddCmd returns the add command.
func GetAddCmd() *cobra.Command {
	return addCmd
}

func runAdd(cmd *cobra.Command, args []string) error {
	ns := args[0]

	pol, _, err := resolveActivePolicy(addPolicyFlag, addPresetFlag)
	if err != nil {
		return err
	}

	deps, err := buildDeps(addLockfileFlag, addOfflineFlag)
	if err != nil {
		return err
	}
	if addInteractiveFlag || addApproveAllFlag {
		deps.Confirm = confirmPrompt
	}

	result, err := orchestrator.Add(cmd.Context(), deps, ns, orchestrator.AddOptions{
		Interactive: addInteractiveFlag || addApproveAllFlag,
		ApproveAll:  addApproveAllFlag,
		Policy:      pol,
	})
	if err != nil {
		return err
	}
	result = report.StampAdd(result, "add")

	if addJSONFlag {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Print(report.FormatAddText(result))
	return nil
}
