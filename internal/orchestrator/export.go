package orchestrator

import (
	"os"

	"github.com/mcpshield/mcpshield/internal/bundler"
	"github.com/mcpshield/mcpshield/internal/crypto"
	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
)

// ExportOptions configures one Export invocation: sign the current
// lockfile and zip it, the signature, and (if present) the active policy
// into a bundle a verifier can check without re-running add/scan.
type ExportOptions struct {
	PrivateKeyPath string
	PublicKeyPath  string
	PolicyPath     string
	OutputPath     string
}

const exportReadme = `This bundle contains a signed mcpshield lockfile.

Verify it with:
  mcpshield import-verify --bundle <this file> --public-key <public.key>

Files:
  mcp.lock.json      the pinned server/artifact lockfile
  mcp.lock.json.sig   an Ed25519 signature over the lockfile bytes
  public.key          (if present) the public key the signature verifies against
  policy.yaml         (if present) the policy active when this bundle was exported
  manifest.json       a SHA-256 manifest of every file in this bundle
`

// Export signs the lockfile at deps.Lockfile.Path and writes a bundle zip
// to opts.OutputPath. A keypair is generated at opts.PrivateKeyPath/
// opts.PublicKeyPath if neither already exists.
func Export(deps *Deps, opts ExportOptions) (models.ExportResult, error) {
	if !deps.Lockfile.Exists() {
		return models.ExportResult{}, mcperr.User("no lockfile present; run add before export")
	}

	generatedKeys := false
	if !fileExists(opts.PrivateKeyPath) && !fileExists(opts.PublicKeyPath) {
		if err := crypto.GenerateKeys(opts.PrivateKeyPath, opts.PublicKeyPath); err != nil {
			return models.ExportResult{}, mcperr.Unexpected(err, "generate export keypair")
		}
		generatedKeys = true
	}

	lockBytes, err := os.ReadFile(deps.Lockfile.Path)
	if err != nil {
		return models.ExportResult{}, mcperr.Unexpected(err, "read lockfile %s", deps.Lockfile.Path)
	}

	sig, err := crypto.Sign(lockBytes, opts.PrivateKeyPath)
	if err != nil {
		return models.ExportResult{}, mcperr.Unexpected(err, "sign lockfile")
	}

	sigPath := deps.Lockfile.Path + ".sig"
	sigEnvelope := crypto.WriteSignature(sig, models.LockfileCurrentVersion)
	if err := os.WriteFile(sigPath, sigEnvelope, 0o644); err != nil {
		return models.ExportResult{}, mcperr.Unexpected(err, "write signature file")
	}
	defer os.Remove(sigPath)

	bundleOpts := bundler.BundleOptions{
		LockfilePath:  deps.Lockfile.Path,
		SignaturePath: sigPath,
		PublicKeyPath: opts.PublicKeyPath,
		PolicyPath:    opts.PolicyPath,
		OutputPath:    opts.OutputPath,
	}

	manifest, err := bundler.GenerateManifest(bundleOpts, models.LockfileCurrentVersion)
	if err != nil {
		return models.ExportResult{}, mcperr.Unexpected(err, "generate bundle manifest")
	}

	if err := bundler.CreateBundle(bundleOpts, exportReadme, manifest); err != nil {
		return models.ExportResult{}, mcperr.Unexpected(err, "create bundle")
	}

	return models.ExportResult{
		BundlePath:    opts.OutputPath,
		LockfileHash:  manifest.LockfileHash,
		SignatureHash: manifest.SignatureHash,
		PublicKeyPath: opts.PublicKeyPath,
		GeneratedKeys: generatedKeys,
	}, nil
}

// ImportVerifyOptions configures one ImportVerify invocation.
type ImportVerifyOptions struct {
	BundlePath    string
	PublicKeyPath string
}

// ImportVerify checks that a bundle produced by Export carries a lockfile
// whose bytes match its accompanying signature under the given public key.
// It does not install the bundle's lockfile; callers that want to adopt it
// copy mcp.lock.json out of the bundle themselves once verification passes.
func ImportVerify(opts ImportVerifyOptions) (bool, error) {
	lockBytes, sigBytes, err := bundler.ExtractLockfileAndSignature(opts.BundlePath)
	if err != nil {
		return false, err
	}

	envelope, err := crypto.ReadSignature(sigBytes)
	if err != nil {
		return false, mcperr.User("invalid signature in bundle: %v", err)
	}

	ok, err := crypto.Verify(lockBytes, envelope.Signature, opts.PublicKeyPath)
	if err != nil {
		return false, mcperr.Unexpected(err, "verify bundle signature")
	}
	return ok, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
