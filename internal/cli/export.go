package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpshield/mcpshield/internal/config"
	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/orchestrator"
	"github.com/mcpshield/mcpshield/internal/report"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Sign the current lockfile and package it into a distributable bundle",
	Long: `Export signs mcp.lock.json with an Ed25519 key (generating a keypair on
first use) and zips it together with its signature, the active policy,
and a manifest into one archive another machine can verify without
re-running add or scan there.`,
	RunE: runExport,
}

var (
	exportLockfileFlag   string
	exportPrivateKeyFlag string
	exportPublicKeyFlag  string
	exportPolicyFlag     string
	exportOutputFlag     string
)

func init() {
	exportCmd.Flags().StringVar(&exportLockfileFlag, "lockfile", "", "Path to the lockfile (default: project mcp.lock.json)")
	exportCmd.Flags().StringVar(&exportPrivateKeyFlag, "private-key", defaultPrivateKeyPath, "Path to the private signing key (generated if absent)")
	exportCmd.Flags().StringVar(&exportPublicKeyFlag, "public-key", defaultPublicKeyPath, "Path to the public key (generated if absent)")
	exportCmd.Flags().StringVar(&exportPolicyFlag, "policy", "", "Path to a policy.yaml file to include in the bundle (default: project policy.yaml, if present)")
	exportCmd.Flags().StringVar(&exportOutputFlag, "output", "mcpshield-bundle.zip", "Path for the output bundle")
}

// GetExportCmd returns the export command.
func GetExportCmd() *cobra.Command {
	return exportCmd
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := config.Load(".")

	lockPath := cfg.LockfilePath
	if exportLockfileFlag != "" {
		lockPath = exportLockfileFlag
	}
	policyPath := exportPolicyFlag
	if policyPath == "" {
		policyPath = cfg.PolicyPath
	}

	deps, err := buildDeps(lockPath, false)
	if err != nil {
		return err
	}

	result, err := orchestrator.Export(deps, orchestrator.ExportOptions{
		PrivateKeyPath: exportPrivateKeyFlag,
		PublicKeyPath:  exportPublicKeyFlag,
		PolicyPath:     policyPath,
		OutputPath:     exportOutputFlag,
	})
	if err != nil {
		return err
	}
	result = report.StampExport(result, "export")

	fmt.Print(report.FormatExportText(result))
	return nil
}

var importVerifyCmd = &cobra.Command{
	Use:   "import-verify",
	Short: "Verify a bundle produced by export",
	Long: `Import-verify checks that a bundle's lockfile matches its accompanying
Ed25519 signature under a trusted public key. It does not install the
bundle's lockfile; adopt it by copying mcp.lock.json out of the bundle
once verification passes.`,
	RunE: runImportVerify,
}

var (
	importVerifyBundleFlag    string
	importVerifyPublicKeyFlag string
)

func init() {
	importVerifyCmd.Flags().StringVar(&importVerifyBundleFlag, "bundle", "", "Path to the bundle to verify")
	importVerifyCmd.Flags().StringVar(&importVerifyPublicKeyFlag, "public-key", defaultPublicKeyPath, "Path to the public key to verify against")
	_ = importVerifyCmd.MarkFlagRequired("bundle")
}

// GetImportVerifyCmd returns the import-verify command.
func GetImportVerifyCmd() *cobra.Command {
	return importVerifyCmd
}

func runImportVerify(cmd *cobra.Command, args []string) error {
	ok, err := orchestrator.ImportVerify(orchestrator.ImportVerifyOptions{
		BundlePath:    importVerifyBundleFlag,
		PublicKeyPath: importVerifyPublicKeyFlag,
	})
	if err != nil {
		return err
	}

	if !ok {
		fmt.Println("signature INVALID")
		return mcperr.Integrity("bundle signature does not verify against %s", importVerifyPublicKeyFlag)
	}

	fmt.Println("signature verified")
	return nil
}
