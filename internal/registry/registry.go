// Package registry fetches and normalizes ServerRecords from the upstream
// MCP registry, the collaborator that maps a namespace onto its declared
// packages (spec.md §1, §3).
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
)

const DefaultBaseURL = "https://registry.modelcontextprotocol.io"

// Client fetches ServerRecords by namespace.
type Client struct {
	baseURL string
	http    *http.Client
	offline bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests inject a
// transport pointed at an httptest.Server).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithBaseURL overrides the registry's base URL.
func WithBaseURL(base string) Option {
	return func(cl *Client) { cl.baseURL = strings.TrimRight(base, "/") }
}

// WithOffline disables all network entry points; calls return a network
// error immediately.
func WithOffline(offline bool) Option {
	return func(cl *Client) { cl.offline = offline }
}

// New constructs a registry Client.
func New(opts ...Option) *Client {
	cl := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// rawPackage is the loosely-typed package shape the registry actually
// emits, before normalization onto models.PackageKind.
type rawPackage struct {
	Type           string `json:"type"`
	RegistryType   string `json:"registryType"`
	Identifier     string `json:"identifier"`
	Version        string `json:"version"`
	DeclaredDigest string `json:"declaredDigest"`
}

type rawServerRecord struct {
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Version       string       `json:"version"`
	RepositoryURL string       `json:"repositoryUrl"`
	Packages      []rawPackage `json:"packages"`
	Verification  string       `json:"verification"`
}

// normalizeKind maps the registry's free-form type/registryType strings
// onto the closed PackageKind enumeration. Unrecognized kinds are dropped
// rather than propagated, per §9's "dynamic shapes → tagged variants".
func normalizeKind(p rawPackage) (models.PackageKind, bool) {
	token := strings.ToLower(strings.TrimSpace(p.Type))
	if token == "" {
		token = strings.ToLower(strings.TrimSpace(p.RegistryType))
	}
	switch token {
	case "npm":
		return models.PackageKindNPM, true
	case "pypi", "pip":
		return models.PackageKindPyPI, true
	case "oci", "docker":
		return models.PackageKindOCI, true
	case "nuget":
		return models.PackageKindNuGet, true
	case "mcpb":
		return models.PackageKindMCPB, true
	default:
		return "", false
	}
}

func normalizeVerification(v string) models.VerificationClaim {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "official":
		return models.VerificationClaimOfficial
	case "verified":
		return models.VerificationClaimVerified
	default:
		return ""
	}
}

// Fetch retrieves and normalizes the ServerRecord for namespace.
func (c *Client) Fetch(ctx context.Context, namespace string) (models.ServerRecord, error) {
	if c.offline {
		return models.ServerRecord{}, mcperr.Network(0, nil, "registry lookup attempted while offline")
	}

	endpoint := fmt.Sprintf("%s/v0/servers/%s", c.baseURL, url.PathEscape(namespace))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.ServerRecord{}, mcperr.Unexpected(err, "build registry request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.ServerRecord{}, mcperr.Network(0, err, "registry request for %s failed", namespace)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.ServerRecord{}, mcperr.NotFound("no registry entry for namespace %q", namespace)
	}
	if resp.StatusCode != http.StatusOK {
		return models.ServerRecord{}, mcperr.Network(resp.StatusCode, nil, "registry returned status %d for %s", resp.StatusCode, namespace)
	}

	var raw rawServerRecord
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return models.ServerRecord{}, mcperr.Unexpected(err, "decode registry response for %s", namespace)
	}

	record := models.ServerRecord{
		Name:          raw.Name,
		Description:   raw.Description,
		Version:       raw.Version,
		RepositoryURL: raw.RepositoryURL,
		Verification:  normalizeVerification(raw.Verification),
	}

	for _, rp := range raw.Packages {
		kind, ok := normalizeKind(rp)
		if !ok {
			continue
		}
		record.Packages = append(record.Packages, models.Package{
			Kind:           kind,
			Identifier:     rp.Identifier,
			Version:        rp.Version,
			DeclaredDigest: rp.DeclaredDigest,
		})
	}

	return record, nil
}
