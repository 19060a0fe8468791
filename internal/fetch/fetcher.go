package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"lockstep/internal/contenthash"
	"lockstep/internal/fileutil"
	"lockstep/internal/logging"
	"lockstep/internal/services"
	"lockstep/internal/workspace"
)

// Pin identifies the exact binary release the fetcher will accept: declared
// version, expected archive digest, download URL, and the archive member
// holding the binary.
type Pin struct {
	Version    string
	Digest     contenthash.Hash
	URL        string
	BinaryName string
}

// VersionProbe executes a binary and returns its self-reported version.
type VersionProbe func(ctx context.Context, binaryPath string) (string, error)

// Option configures the fetcher.
type Option func(*Fetcher)

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithVersionProbe injects a custom version probe (primarily for tests).
func WithVersionProbe(probe VersionProbe) Option {
	return func(f *Fetcher) {
		if probe != nil {
			f.probe = probe
		}
	}
}

// Fetcher downloads, verifies, and caches pinned helper binaries. Exactly
// one binary occupies the version-qualified cache path per version.
type Fetcher struct {
	binDir  string
	tmpRoot string
	client  *http.Client
	probe   VersionProbe
	logger  *slog.Logger
}

// New constructs a fetcher caching into binDir and staging under tmpRoot.
func New(binDir, tmpRoot string, logger *slog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		binDir:  binDir,
		tmpRoot: tmpRoot,
		client:  &http.Client{Timeout: 10 * time.Minute},
		probe:   execVersionProbe,
		logger:  logging.NewComponentLogger(logger, "fetch"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BinaryPath returns the version-qualified cache path for a pin.
func (f *Fetcher) BinaryPath(pin Pin) string {
	return filepath.Join(f.binDir, pin.BinaryName+"-"+pin.Version)
}

func markerPath(binaryPath string) string {
	return binaryPath + ".ok"
}

// Ensure returns the cached verified binary, fetching it when absent or when
// forceRefresh is set. The digest check happens before the binary is ever
// executed; a mismatch is fatal with nothing cached.
func (f *Fetcher) Ensure(ctx context.Context, pin Pin, forceRefresh bool) (string, error) {
	binaryPath := f.BinaryPath(pin)

	if !forceRefresh {
		if _, err := os.Stat(binaryPath); err == nil {
			if _, err := os.Stat(markerPath(binaryPath)); err == nil {
				f.logger.DebugContext(ctx, "verified binary cached",
					logging.String("path", binaryPath))
				return binaryPath, nil
			}
		}
	}

	ws, err := workspace.Acquire(f.tmpRoot, "fetch-"+pin.BinaryName)
	if err != nil {
		return "", err
	}
	defer ws.Release()

	archivePath := ws.Join("archive")
	if err := f.download(ctx, pin.URL, archivePath); err != nil {
		return "", err
	}

	digest, err := contenthash.DigestFile(archivePath)
	if err != nil {
		return "", fmt.Errorf("digest archive: %w", err)
	}
	if digest != pin.Digest {
		return "", services.Wrap(services.ErrIntegrity, "fetch", pin.BinaryName,
			fmt.Sprintf("archive digest %s does not match pinned %s", digest.Hex(), pin.Digest.Hex()), nil)
	}

	unpackedPath, err := unpackBinary(archivePath, pin.BinaryName, ws.Join("unpacked"))
	if err != nil {
		return "", err
	}

	reported, err := f.probe(ctx, unpackedPath)
	if err != nil {
		return "", services.Wrap(services.ErrVersionMismatch, "fetch", pin.BinaryName,
			"binary failed to report a version", err)
	}
	if strings.TrimSpace(reported) != pin.Version {
		return "", services.Wrap(services.ErrVersionMismatch, "fetch", pin.BinaryName,
			fmt.Sprintf("binary reports %q, pinned %q", strings.TrimSpace(reported), pin.Version), nil)
	}

	if err := os.MkdirAll(f.binDir, 0o755); err != nil {
		return "", fmt.Errorf("create bin dir: %w", err)
	}
	// Drop the marker first so a crash mid-replace reads as unverified.
	if err := os.Remove(markerPath(binaryPath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("clear marker: %w", err)
	}
	if err := installBinary(unpackedPath, binaryPath); err != nil {
		return "", err
	}
	if err := os.WriteFile(markerPath(binaryPath), []byte(pin.Digest.Hex()+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write marker: %w", err)
	}

	f.logger.InfoContext(ctx, "fetched verified binary",
		logging.String("path", binaryPath),
		logging.String("version", pin.Version))
	return binaryPath, nil
}

func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	return out.Close()
}

// installBinary publishes the verified binary under its final name, by
// rename when staging and cache share a filesystem, by full copy otherwise.
func installBinary(src, dst string) error {
	if err := os.Chmod(src, 0o755); err != nil {
		return fmt.Errorf("chmod binary: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := fileutil.CopyFileMode(src, dst, 0o755); err != nil {
		return fmt.Errorf("install binary: %w", err)
	}
	return nil
}

// RenderURL substitutes {platform} and {version} in a URL template.
func RenderURL(template, platform, version string) string {
	url := strings.ReplaceAll(template, "{platform}", platform)
	return strings.ReplaceAll(url, "{version}", version)
}

func execVersionProbe(ctx context.Context, binaryPath string) (string, error) {
	out, err := exec.CommandContext(ctx, binaryPath, "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
