package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpshield/mcpshield/internal/config"
	"github.com/mcpshield/mcpshield/internal/lockfile"
	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/policy"
	"github.com/mcpshield/mcpshield/internal/report"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a lockfile or a policy document",
}

var validateLockfileCmd = &cobra.Command{
	Use:   "lockfile",
	Short: "Validate mcp.lock.json's structure and invariants",
	RunE:  runValidateLockfile,
}

var validatePolicyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Validate policy.yaml's structure",
	RunE:  runValidatePolicy,
}

var (
	validateLockfileFlag string
	validatePolicyFlag   string
	validateJSONFlag     bool
)

func init() {
	validateLockfileCmd.Flags().StringVar(&validateLockfileFlag, "lockfile", "", "Path to the lockfile (default: project mcp.lock.json)")
	validatePolicyCmd.Flags().StringVar(&validatePolicyFlag, "policy", "", "Path to the policy file (default: project policy.yaml)")
	validateCmd.PersistentFlags().BoolVar(&validateJSONFlag, "json", false, "Emit the result as JSON instead of a text summary")
	validateCmd.AddCommand(validateLockfileCmd)
	validateCmd.AddCommand(validatePolicyCmd)
}

// GetValidateCmd returns the validate command.
func GetValidateCmd() *cobra.Command {
	return validateCmd
}

func runValidateLockfile(cmd *cobra.Command, args []string) error {
	cfg := config.Load(".")
	path := cfg.LockfilePath
	if validateLockfileFlag != "" {
		path = validateLockfileFlag
	}

	store := lockfile.New(path)
	if !store.Exists() {
		return mcperr.NotFound("no lockfile at %s", path)
	}
	lock, err := store.Read()
	if err != nil {
		return err
	}

	validation := lockfile.Validate(lock)
	result := report.StampValidate(models.ValidateResult{Valid: validation.Valid, Errors: validation.Errors}, "validate lockfile")
	return emitValidation(result)
}

func runValidatePolicy(cmd *cobra.Command, args []string) error {
	cfg := config.Load(".")
	path := cfg.PolicyPath
	if validatePolicyFlag != "" {
		path = validatePolicyFlag
	}

	pol, present, err := config.LoadPolicy(path)
	if err != nil {
		return err
	}
	if !present {
		return mcperr.NotFound("no policy file at %s", path)
	}

	validation := policy.Validate(pol)
	result := report.StampValidate(models.ValidateResult{Valid: validation.Valid, Errors: validation.Errors}, "validate policy")
	return emitValidation(result)
}

func emitValidation(result models.ValidateResult) error {
	if validateJSONFlag {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else if result.Valid {
		fmt.Println("valid")
	} else {
		fmt.Println("invalid:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	if !result.Valid {
		return mcperr.User("validation failed")
	}
	return nil
}
