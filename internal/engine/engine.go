// Package engine manages the lifecycle of the fabric-engine analysis
// binary: platform asset resolution, download, extraction, freshness
// tracking and replacement. The engine itself is a black box; this package
// only guarantees a runnable executable on disk.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fabrictools/rulescan/core/errors"
	"github.com/fabrictools/rulescan/internal/config"
	"github.com/fabrictools/rulescan/internal/fileutil"
	"github.com/fabrictools/rulescan/internal/logging"
	"github.com/fabrictools/rulescan/internal/validation"
)

const (
	// executableBase is the engine binary's name without the OS suffix.
	executableBase = "fabric-engine"
	// dataDirName is the auxiliary directory the engine resolves relative
	// to its working directory.
	dataDirName = "enginedata"
	// markerFile stores the last successful install time as epoch
	// milliseconds in text form.
	markerFile = ".lastupdate"
	// manifestFile records what is installed (version, digest, archive).
	manifestFile = "engine.json"

	// defaultFeedBase is the release feed the assets are published under.
	defaultFeedBase = "https://github.com/fabrictools/fabric-engine"

	// maxAcquireAttempts bounds the acquisition retry loop.
	maxAcquireAttempts = 3
)

// Manifest describes an installed engine.
type Manifest struct {
	Version     string    `json:"version"`
	Archive     string    `json:"archive"`
	Blake3      string    `json:"blake3"`
	InstalledAt time.Time `json:"installed_at"`
}

// Status describes the current installation for reporting.
type Status struct {
	Installed bool
	Fresh     bool
	Path      string
	MarkerAge time.Duration
	Manifest  *Manifest
}

// ConsentFunc asks the user to approve the first-ever engine download.
type ConsentFunc func(prompt string) bool

// Manager acquires and maintains the engine installation described by the
// configuration.
type Manager struct {
	cfg     *config.Config
	client  *Client
	consent ConsentFunc

	// feedBase is swappable so tests can point at a local server.
	feedBase string
	// now is swappable for freshness tests.
	now func() time.Time
	// sleep is swappable so retry backoff does not slow tests down.
	sleep func(time.Duration)
}

// NewManager creates a manager for the given configuration. consent may be
// nil, in which case the first download is approved implicitly (used by
// explicit install commands, where invocation is the consent).
func NewManager(cfg *config.Config, consent ConsentFunc) *Manager {
	return &Manager{
		cfg:      cfg,
		client:   NewClient(),
		consent:  consent,
		feedBase: defaultFeedBase,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// ExecutableName returns the engine binary's file name for this OS.
func ExecutableName() string {
	if runtime.GOOS == "windows" {
		return executableBase + ".exe"
	}
	return executableBase
}

// ExecutablePath returns where the engine binary lives inside the install
// directory.
func (m *Manager) ExecutablePath() string {
	return filepath.Join(m.cfg.InstallDir(), ExecutableName())
}

// DataDirPath returns the engine's auxiliary data directory.
func (m *Manager) DataDirPath() string {
	return filepath.Join(m.cfg.InstallDir(), dataDirName)
}

func (m *Manager) markerPath() string {
	return filepath.Join(m.cfg.InstallDir(), markerFile)
}

func (m *Manager) manifestPath() string {
	return filepath.Join(m.cfg.InstallDir(), manifestFile)
}

// platformAsset resolves the release asset name for the current platform.
// Windows assets are zip archives, the rest tar.xz.
func platformAsset() (string, error) {
	arch := runtime.GOARCH
	if arch != "amd64" && arch != "arm64" {
		return "", errors.Wrapf(errors.ErrUnsupportedPlatform, "%s/%s", runtime.GOOS, arch)
	}

	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("%s-windows-%s.zip", executableBase, arch), nil
	case "linux":
		return fmt.Sprintf("%s-linux-%s.tar.xz", executableBase, arch), nil
	case "darwin":
		return fmt.Sprintf("%s-darwin-%s.tar.xz", executableBase, arch), nil
	default:
		return "", errors.Wrapf(errors.ErrUnsupportedPlatform, "%s/%s", runtime.GOOS, arch)
	}
}

// assetURL builds the download URL for the configured version. A malformed
// version has already been downgraded to "latest" by validation.
func (m *Manager) assetURL(asset string) string {
	version := validation.ValidateVersion(m.cfg.Engine.Version)
	if version == validation.VersionLatest {
		return fmt.Sprintf("%s/releases/latest/download/%s", m.feedBase, asset)
	}
	return fmt.Sprintf("%s/releases/download/%s/%s", m.feedBase, version, asset)
}

// IsValid reports whether the installed engine can be used as-is: the
// executable and data directory exist and, when auto-update is on, the
// freshness marker has not aged past the configured interval. An install
// without a marker is valid; a marker that exists but cannot be read as a
// timestamp counts as stale.
func (m *Manager) IsValid() bool {
	if !fileutil.Exists(m.ExecutablePath()) {
		return false
	}
	if !fileutil.DirExists(m.DataDirPath()) {
		return false
	}
	if !m.cfg.Engine.AutoUpdate {
		return true
	}

	age, err := m.markerAge()
	if err != nil {
		return os.IsNotExist(err)
	}
	interval := time.Duration(m.cfg.Engine.UpdateIntervalHours) * time.Hour
	return age < interval
}

// markerAge returns how long ago the freshness marker was written.
func (m *Manager) markerAge() (time.Duration, error) {
	data, err := os.ReadFile(m.markerPath())
	if err != nil {
		return 0, err
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed freshness marker: %w", err)
	}
	return m.now().Sub(time.UnixMilli(ms)), nil
}

func (m *Manager) writeMarker() error {
	ms := strconv.FormatInt(m.now().UnixMilli(), 10)
	return os.WriteFile(m.markerPath(), []byte(ms), 0644)
}

// EnsureAvailable returns the path of a runnable engine executable,
// acquiring one first if the installation is missing or stale.
func (m *Manager) EnsureAvailable(ctx context.Context) (string, error) {
	if _, err := platformAsset(); err != nil {
		return "", err
	}
	if m.IsValid() {
		return m.ExecutablePath(), nil
	}
	return m.Acquire(ctx)
}

// ForceUpdate discards the current installation and acquires a fresh one
// regardless of validity.
func (m *Manager) ForceUpdate(ctx context.Context) (string, error) {
	if _, err := platformAsset(); err != nil {
		return "", err
	}
	return m.Acquire(ctx)
}

// Acquire runs the full acquisition cycle: consent, stale-process kill,
// prior-install removal, download, extraction, verification and freshness
// marker. Transient failures are retried with a linear backoff; the last
// error is returned once the attempts are exhausted.
func (m *Manager) Acquire(ctx context.Context) (string, error) {
	asset, err := platformAsset()
	if err != nil {
		return "", err
	}
	if err := m.checkConsent(); err != nil {
		return "", err
	}

	url := m.assetURL(asset)
	var lastErr error
	for attempt := 1; attempt <= maxAcquireAttempts; attempt++ {
		if attempt > 1 {
			m.sleep(time.Duration(attempt) * time.Second)
		}
		logging.EngineDownload(url, m.cfg.Engine.Version, attempt)

		if err := m.acquireOnce(ctx, url, asset); err != nil {
			lastErr = err
			logging.Warn("engine acquisition attempt failed",
				"attempt", attempt, "error", err)
			continue
		}
		return m.ExecutablePath(), nil
	}
	return "", fmt.Errorf("engine acquisition failed after %d attempts: %w",
		maxAcquireAttempts, lastErr)
}

// acquireOnce performs a single install attempt.
func (m *Manager) acquireOnce(ctx context.Context, url, asset string) error {
	killProcessesByName(ExecutableName())

	installDir := m.cfg.InstallDir()
	if err := os.MkdirAll(installDir, 0755); err != nil {
		return fmt.Errorf("creating install directory: %w", err)
	}
	if err := m.removeInstalled(); err != nil {
		return err
	}

	archivePath := filepath.Join(installDir, asset)
	size, digest, err := m.client.DownloadToFile(ctx, url, archivePath)
	if err != nil {
		return err
	}
	logging.Info("engine archive downloaded",
		"asset", asset, "size", humanize.Bytes(uint64(size)), "blake3", digest)

	if err := extractArchive(archivePath, installDir, ExecutableName(), dataDirName); err != nil {
		os.Remove(archivePath)
		return err
	}
	os.Remove(archivePath)

	if !fileutil.Exists(m.ExecutablePath()) {
		return errors.NewArchive(asset, "archive did not contain the engine executable")
	}

	if err := m.writeManifest(asset, digest); err != nil {
		return err
	}
	if err := m.writeMarker(); err != nil {
		return fmt.Errorf("writing freshness marker: %w", err)
	}

	logging.EngineInstalled(m.cfg.Engine.Version, m.ExecutablePath(), digest)
	return nil
}

// removeInstalled deletes the previous executable, data directory and side
// files so a failed extraction cannot leave a mixed install behind.
func (m *Manager) removeInstalled() error {
	for _, p := range []string{m.ExecutablePath(), m.markerPath(), m.manifestPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", filepath.Base(p), err)
		}
	}
	if err := os.RemoveAll(m.DataDirPath()); err != nil {
		return fmt.Errorf("removing data directory: %w", err)
	}
	return nil
}

func (m *Manager) writeManifest(asset, digest string) error {
	manifest := Manifest{
		Version:     m.cfg.Engine.Version,
		Archive:     asset,
		Blake3:      digest,
		InstalledAt: m.now().UTC(),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return os.WriteFile(m.manifestPath(), data, 0644)
}

// readManifest returns the install manifest, or nil if none exists.
func (m *Manager) readManifest() *Manifest {
	data, err := os.ReadFile(m.manifestPath())
	if err != nil {
		return nil
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil
	}
	return &manifest
}

// checkConsent enforces the one-time download approval. Consent given once
// is persisted; later acquisitions never ask again.
func (m *Manager) checkConsent() error {
	consentPath := m.cfg.ConsentPath()
	if fileutil.Exists(consentPath) {
		return nil
	}

	if m.consent != nil {
		ok := m.consent("rulescan needs to download the fabric-engine binary. Allow?")
		if !ok {
			return errors.ErrConsentDeclined
		}
	}

	if err := os.MkdirAll(filepath.Dir(consentPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	stamp := m.now().UTC().Format(time.RFC3339)
	if err := os.WriteFile(consentPath, []byte(stamp+"\n"), 0644); err != nil {
		return fmt.Errorf("persisting consent: %w", err)
	}
	return nil
}

// CurrentStatus describes the installation for the status command.
func (m *Manager) CurrentStatus() Status {
	st := Status{Path: m.ExecutablePath()}
	if !fileutil.Exists(st.Path) || !fileutil.DirExists(m.DataDirPath()) {
		return st
	}
	st.Installed = true
	st.Manifest = m.readManifest()
	if age, err := m.markerAge(); err == nil {
		st.MarkerAge = age
		interval := time.Duration(m.cfg.Engine.UpdateIntervalHours) * time.Hour
		st.Fresh = age < interval
	}
	return st
}
