// Package infra implements infrastructure concerns (processes, app
// resolution, Dock document, switch history).
package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"
)

// bundleInfo is the subset of an app bundle's Info.plist we care about.
type bundleInfo struct {
	BundleID       string `plist:"CFBundleIdentifier"`
	Name           string `plist:"CFBundleName"`
	DisplayName    string `plist:"CFBundleDisplayName"`
	UIElement      bool   `plist:"LSUIElement"`
	BackgroundOnly bool   `plist:"LSBackgroundOnly"`
}

// displayName returns the best human-readable name for the bundle.
func (b bundleInfo) displayName(appPath string) string {
	if b.DisplayName != "" {
		return b.DisplayName
	}
	if b.Name != "" {
		return b.Name
	}
	return strings.TrimSuffix(filepath.Base(appPath), ".app")
}

// isAgent reports whether the bundle is a background-only agent with no
// user-facing presence.
func (b bundleInfo) isAgent() bool {
	return b.UIElement || b.BackgroundOnly
}

// readBundleInfo parses <app>/Contents/Info.plist. Handles both XML and
// binary plist encodings.
func readBundleInfo(appPath string) (bundleInfo, error) {
	var info bundleInfo

	data, err := os.ReadFile(filepath.Join(appPath, "Contents", "Info.plist"))
	if err != nil {
		return info, fmt.Errorf("failed to read Info.plist for %s: %w", appPath, err)
	}

	if _, err := plist.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("failed to parse Info.plist for %s: %w", appPath, err)
	}
	return info, nil
}

// appBundlePath extracts the .app bundle root from an executable path like
// /Applications/Safari.app/Contents/MacOS/Safari. Returns "" when the
// executable is not inside an app bundle.
func appBundlePath(exePath string) string {
	idx := strings.Index(exePath, ".app/Contents/MacOS/")
	if idx == -1 {
		return ""
	}
	return exePath[:idx+len(".app")]
}
