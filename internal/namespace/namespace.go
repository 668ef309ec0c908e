// Package namespace implements the identity-verification decision tree
// described in spec.md §4.5: deciding how much to trust a registry's claim
// about who publishes a namespace.
package namespace

import (
	"net/url"
	"strings"

	"github.com/mcpshield/mcpshield/internal/models"
)

// Status classifies the trust level a verified identity carries.
type Status string

const (
	StatusOfficial  Status = "official"
	StatusVerified  Status = "verified"
	StatusCommunity Status = "community"
)

// GitHubIdentity is the owner/repo pair extracted from a GitHub-hosted
// repository URL.
type GitHubIdentity struct {
	Owner string
	Repo  string
}

// NPMIdentity is the package name extracted when a namespace's identity
// maps onto an npm scope.
type NPMIdentity struct {
	Package string
}

// Identity is what extractIdentity derives from a ServerRecord, independent
// of whether it can actually be verified.
type Identity struct {
	Status Status
	GitHub *GitHubIdentity
	NPM    *NPMIdentity
}

// Result is the outcome of verifying a namespace against its ServerRecord.
type Result struct {
	Verified bool
	Method   string
	Owner    string
	Reason   string
	Domain   string
}

// IsValidFormat reports whether name has the reverse-DNS/package shape.
func IsValidFormat(name string) bool {
	return models.IsValidNamespace(name)
}

// ExtractIdentity derives the claimed identity from a server record without
// validating it, for reporting purposes even when verification fails.
func ExtractIdentity(record models.ServerRecord) Identity {
	id := Identity{Status: StatusCommunity}

	switch record.Verification {
	case models.VerificationClaimOfficial:
		id.Status = StatusOfficial
	case models.VerificationClaimVerified:
		id.Status = StatusVerified
	}

	if owner, repo, ok := githubOwnerRepo(record.RepositoryURL); ok {
		id.GitHub = &GitHubIdentity{Owner: owner, Repo: repo}
	}

	if pkg, ok := npmPackage(record); ok {
		id.NPM = &NPMIdentity{Package: pkg}
	}

	return id
}

// Verify applies the ordered decision tree from spec.md §4.5.
func Verify(name string, record models.ServerRecord) Result {
	if !IsValidFormat(name) {
		return Result{Verified: false, Reason: "malformed namespace: does not match reverse-DNS/package shape"}
	}

	if record.Verification == models.VerificationClaimOfficial || record.Verification == models.VerificationClaimVerified {
		return Result{Verified: true, Method: "registry-official", Owner: string(record.Verification)}
	}

	claimedOwner, isGitHubNamespace := githubNamespaceOwner(name)
	if isGitHubNamespace {
		repoOwner, _, ok := githubOwnerRepo(record.RepositoryURL)
		if !ok {
			return Result{Verified: false, Reason: "namespace claims a GitHub identity but the server record has no parseable GitHub repository URL"}
		}
		if strings.EqualFold(claimedOwner, repoOwner) {
			return Result{Verified: true, Method: "github", Owner: repoOwner}
		}
		return Result{Verified: false, Reason: "namespace owner does not match repository owner", Owner: repoOwner}
	}

	if domain, ok := customDomain(name); ok {
		return Result{Verified: false, Reason: "custom-domain namespace verification is a domain challenge, which is not implemented", Domain: domain}
	}

	return Result{Verified: false, Reason: "no verifiable identity claim"}
}

// githubNamespaceOwner reports the owner segment of a namespace shaped like
// "io.github.<owner>/<rest>".
func githubNamespaceOwner(name string) (string, bool) {
	const prefix = "io.github."
	idx := strings.Index(name, "/")
	if idx < 0 {
		return "", false
	}
	host := name[:idx]
	if !strings.HasPrefix(host, prefix) {
		return "", false
	}
	owner := strings.TrimPrefix(host, prefix)
	if owner == "" {
		return "", false
	}
	return owner, true
}

// customDomain reports the reversed-DNS domain segment of a non-GitHub
// namespace, for reporting when its verification can't proceed further.
func customDomain(name string) (string, bool) {
	idx := strings.Index(name, "/")
	if idx < 0 {
		return "", false
	}
	host := name[:idx]
	labels := strings.Split(host, ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return strings.Join(labels, "."), true
}

// githubOwnerRepo parses "<owner>/<repo>" out of a repository URL, tolerating
// a trailing ".git" suffix and the "git@github.com:owner/repo" SSH form.
func githubOwnerRepo(repoURL string) (owner, repo string, ok bool) {
	if repoURL == "" {
		return "", "", false
	}

	trimmed := strings.TrimSuffix(strings.TrimSpace(repoURL), ".git")

	if strings.HasPrefix(trimmed, "git@") {
		rest := strings.TrimPrefix(trimmed, "git@")
		hostAndPath := strings.SplitN(rest, ":", 2)
		if len(hostAndPath) != 2 || !strings.EqualFold(hostAndPath[0], "github.com") {
			return "", "", false
		}
		return splitOwnerRepo(hostAndPath[1])
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	if !strings.EqualFold(u.Host, "github.com") {
		return "", "", false
	}
	return splitOwnerRepo(strings.TrimPrefix(u.Path, "/"))
}

func splitOwnerRepo(path string) (owner, repo string, ok bool) {
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// npmPackage reports the identifier of the first npm package declared on
// the server record, if any.
func npmPackage(record models.ServerRecord) (string, bool) {
	for _, pkg := range record.Packages {
		if pkg.Kind == models.PackageKindNPM {
			return pkg.Identifier, true
		}
	}
	return "", false
}
