package resolver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mcpshield/mcpshield/internal/digest"
	"github.com/mcpshield/mcpshield/internal/mcperr"
)

// DownloadConfig bounds a single artifact download.
type DownloadConfig struct {
	AllowPrivateHosts bool
	MaxRedirects      int
	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration
	MaxSize           int64
	Algo              digest.Algo
}

// DefaultMaxArtifactSize caps a downloaded artifact absent a declared size.
const DefaultMaxArtifactSize = 500 * 1024 * 1024

// DefaultDownloadConfig returns the conservative defaults: HTTPS only,
// private/reserved hosts rejected, 5 redirects, no automatic retries.
func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		MaxRedirects:   5,
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 60 * time.Second,
		MaxSize:        DefaultMaxArtifactSize,
		Algo:           digest.AlgoSHA512,
	}
}

// DownloadResult is what a bounded streaming download produces.
type DownloadResult struct {
	Path   string
	Digest string
	Size   int64
}

// validateURL rejects non-https schemes and, unless explicitly overridden,
// URLs whose hostname is a literal private/reserved IP.
func validateURL(rawURL string, allowPrivate bool) error {
	if rawURL == "" {
		return fmt.Errorf("empty artifact URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed artifact URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("only https:// artifact URLs are allowed, got %q", parsed.Scheme)
	}
	if allowPrivate {
		return nil
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "localhost" {
		return fmt.Errorf("localhost is not allowed as an artifact host")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateOrReservedIP(ip) {
		return fmt.Errorf("private/reserved IP address not allowed: %s", host)
	}
	return nil
}

// isPrivateOrReservedIP reports whether ip falls in a private, loopback,
// link-local, documentation, or otherwise non-routable range.
func isPrivateOrReservedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 0:
			return true
		case ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127: // CGNAT
			return true
		case ip4[0] == 192 && ip4[1] == 0 && ip4[2] == 0: // IETF protocol assignments
			return true
		case ip4[0] == 192 && ip4[1] == 0 && ip4[2] == 2: // TEST-NET-1
			return true
		case ip4[0] == 198 && (ip4[1] == 18 || ip4[1] == 19): // benchmarking
			return true
		case ip4[0] == 198 && ip4[1] == 51 && ip4[2] == 100: // TEST-NET-2
			return true
		case ip4[0] == 203 && ip4[1] == 0 && ip4[2] == 113: // TEST-NET-3
			return true
		case ip4[0] >= 240: // reserved + broadcast
			return true
		}
	}
	return false
}

// safeDialContext resolves the target host itself and refuses to connect if
// DNS resolves to a private/reserved address, closing the TOCTOU gap a bare
// scheme/hostname check leaves open.
func safeDialContext(allowPrivate bool) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if allowPrivate {
		return dialer.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("no addresses found for %s", host)
		}
		for _, ip := range ips {
			if isPrivateOrReservedIP(ip) {
				return nil, fmt.Errorf("DNS for %s resolved to a private/reserved address (%s); connection refused", host, ip)
			}
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
	}
}

func newSecureClient(cfg DownloadConfig) *http.Client {
	redirects := cfg.MaxRedirects
	if redirects == 0 {
		redirects = 5
	}

	return &http.Client{
		Timeout: cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > redirects {
				return fmt.Errorf("too many redirects (%d)", len(via))
			}
			if err := validateURL(req.URL.String(), cfg.AllowPrivateHosts); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
		Transport: &http.Transport{
			DialContext: safeDialContext(cfg.AllowPrivateHosts),
			Proxy:       nil,
		},
	}
}

// downloadStream streams artifactURL to a unique temp file under destDir,
// simultaneously hashing and size-capping the bytes as they arrive. No
// bytes are written past MaxSize, and the result path is only returned on
// full, uninterrupted success; callers are responsible for deleting it.
func downloadStream(ctx context.Context, artifactURL string, destDir string, cfg DownloadConfig) (*DownloadResult, error) {
	if err := validateURL(artifactURL, cfg.AllowPrivateHosts); err != nil {
		return nil, mcperr.Network(0, err, "invalid artifact URL")
	}

	client := newSecureClient(cfg)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return nil, mcperr.Unexpected(err, "build download request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, mcperr.Network(0, err, "download request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, mcperr.Network(resp.StatusCode, nil, "download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, mcperr.Unexpected(err, "create download directory")
	}

	tmp, err := os.CreateTemp(destDir, "mcpshield-artifact-*.tmp")
	if err != nil {
		return nil, mcperr.Unexpected(err, "create temp download file")
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	algo := cfg.Algo
	if algo == "" {
		algo = digest.AlgoSHA512
	}

	cap := cfg.MaxSize
	if cap <= 0 {
		cap = DefaultMaxArtifactSize
	}

	n, sum, err := copyCapped(tmp, resp.Body, cap, algo)
	tmp.Close()
	if err != nil {
		cleanup()
		return nil, err
	}

	return &DownloadResult{Path: tmp.Name(), Digest: sum, Size: n}, nil
}

func removeFile(path string) {
	os.Remove(path)
}

// copyCapped pushes src through a hash and a size counter simultaneously
// while writing to dst, aborting once more than max bytes have arrived.
func copyCapped(dst io.Writer, src io.Reader, max int64, algo digest.Algo) (int64, string, error) {
	h, err := digest.NewHash(algo)
	if err != nil {
		return 0, "", err
	}

	tee := io.TeeReader(src, h)
	limited := io.LimitReader(tee, max+1)

	n, err := io.Copy(dst, limited)
	if err != nil {
		return n, "", mcperr.Network(0, err, "download stream failed")
	}
	if n > max {
		return n, "", mcperr.SizeLimit("download exceeded maximum size of %d bytes", max)
	}

	return n, digest.Format(algo, h.Sum(nil)), nil
}
