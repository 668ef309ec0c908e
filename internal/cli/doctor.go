package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpshield/mcpshield/internal/cache"
	"github.com/mcpshield/mcpshield/internal/config"
	"github.com/mcpshield/mcpshield/internal/lockfile"
	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/report"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report a read-only diagnostic snapshot of local state",
	Long: `Doctor inspects the cache, the lockfile, and the policy file without
mutating any of them, and reports what it finds.`,
	RunE: runDoctor,
}

var doctorJSONFlag bool

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSONFlag, "json", false, "Emit the result as JSON instead of a text summary")
}

// GetDoctorCmd returns the doctor command.
func GetDoctorCmd() *cobra.Command {
	return doctorCmd
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg := config.Load(".")

	c, err := cache.New()
	if err != nil {
		return mcperr.Unexpected(err, "open cache")
	}
	store := lockfile.New(cfg.LockfilePath)

	pol, present, policyErr := config.LoadPolicy(cfg.PolicyPath)

	result, err := report.Doctor(c, store, pol, present && policyErr == nil)
	if err != nil {
		return err
	}
	if policyErr != nil {
		// An invalid policy file is itself a doctor finding, not a fatal
		// error — report it alongside whatever else Doctor found rather
		// than aborting the diagnostic.
		result.PolicyPresent = true
		result.PolicyValid = false
		result.Problems = append(result.Problems, fmt.Sprintf("policy: %v", policyErr))
	}
	result = report.StampDoctor(result, "doctor")

	if doctorJSONFlag {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Print(report.FormatDoctorText(result))
	return nil
}
