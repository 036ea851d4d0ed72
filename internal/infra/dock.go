package infra

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
	"howett.net/plist"

	"github.com/modeshift/modeshift/internal/domain"
)

const (
	dockPlistName = "com.apple.dock.plist"

	// _CFURLStringType 15 means a CFURL-encoded file URL.
	fileURLType = 15
)

// DockSync implements domain.DockSyncer over the Dock's preferences plist.
//
// SetApps replaces the persistent-apps list wholesale and restarts the
// Dock so the change becomes visible. Every other key in the document is
// preserved untouched. Callers must serialize invocations.
type DockSync struct {
	plistPath string
	resolver  domain.AppResolver
	restart   func() error
	logger    *zap.Logger
}

// NewDockSync creates a Dock synchronizer over the user's Dock plist.
func NewDockSync(resolver domain.AppResolver, logger *zap.Logger) *DockSync {
	home, _ := os.UserHomeDir()
	return &DockSync{
		plistPath: filepath.Join(home, "Library", "Preferences", dockPlistName),
		resolver:  resolver,
		restart:   restartDock,
		logger:    logger,
	}
}

// NewDockSyncWithPath creates a Dock synchronizer over a specific plist
// path with a custom restart hook (for testing).
func NewDockSyncWithPath(path string, resolver domain.AppResolver, restart func() error, logger *zap.Logger) *DockSync {
	return &DockSync{
		plistPath: path,
		resolver:  resolver,
		restart:   restart,
		logger:    logger,
	}
}

// SetApps replaces the Dock's pinned apps with one tile per resolvable
// app, in the given order. Apps whose path cannot be resolved are skipped
// with a warning; partial resolution is not a failure. On read or write
// failure the previous document is left untouched and the Dock is not
// restarted.
func (d *DockSync) SetApps(apps []domain.AppIdentity) error {
	data, err := os.ReadFile(d.plistPath)
	if err != nil {
		return fmt.Errorf("failed to read dock plist: %w", err)
	}

	var doc map[string]interface{}
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse dock plist: %w", err)
	}

	tiles := make([]interface{}, 0, len(apps))
	for _, app := range apps {
		path, err := d.resolver.Resolve(app.BundleID)
		if err != nil {
			d.logger.Warn("skipping unresolvable app in dock sync",
				zap.String("bundle_id", app.BundleID),
				zap.Error(err))
			continue
		}
		tiles = append(tiles, appTile(app, path))
	}
	doc["persistent-apps"] = tiles

	out, err := plist.Marshal(doc, plist.BinaryFormat)
	if err != nil {
		return fmt.Errorf("failed to serialize dock plist: %w", err)
	}
	if err := atomicWriteFile(d.plistPath, out); err != nil {
		return fmt.Errorf("failed to write dock plist: %w", err)
	}

	if err := d.restart(); err != nil {
		d.logger.Warn("failed to restart dock", zap.Error(err))
	}
	return nil
}

// Snapshot returns the current raw Dock document bytes.
func (d *DockSync) Snapshot() ([]byte, error) {
	data, err := os.ReadFile(d.plistPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read dock plist: %w", err)
	}
	return data, nil
}

// Restore writes back an exact prior snapshot and restarts the Dock.
func (d *DockSync) Restore(prev []byte) error {
	if err := atomicWriteFile(d.plistPath, prev); err != nil {
		return fmt.Errorf("failed to restore dock plist: %w", err)
	}
	if err := d.restart(); err != nil {
		d.logger.Warn("failed to restart dock", zap.Error(err))
	}
	return nil
}

// appTile builds one persistent-apps entry in the Dock's tile format.
func appTile(app domain.AppIdentity, appPath string) map[string]interface{} {
	fileURL := &url.URL{Scheme: "file", Path: appPath + "/"}
	return map[string]interface{}{
		"tile-type": "file-tile",
		"tile-data": map[string]interface{}{
			"file-data": map[string]interface{}{
				"_CFURLString":     fileURL.String(),
				"_CFURLStringType": fileURLType,
			},
			"bundle-identifier": app.BundleID,
			"file-label":        app.Name,
		},
	}
}

// restartDock kills the Dock process; launchd brings it back with the
// updated preferences.
func restartDock() error {
	return exec.Command("killall", "Dock").Run()
}

// atomicWriteFile writes data via a temp file and rename so the document
// is never observably partial.
func atomicWriteFile(path string, data []byte) error {
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure DockSync implements domain.DockSyncer.
var _ domain.DockSyncer = (*DockSync)(nil)
