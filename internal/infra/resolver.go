package infra

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/modeshift/modeshift/internal/domain"
)

// AppPathResolver implements domain.AppResolver. It asks Spotlight first
// (mdfind by bundle identifier) and falls back to scanning the standard
// application directories, matching Info.plist bundle ids
// case-insensitively.
type AppPathResolver struct {
	searchDirs []string
	useMdfind  bool
	logger     *zap.Logger

	mu    sync.Mutex
	cache map[string]string // lowercased bundle id -> .app path
}

// NewAppPathResolver creates a resolver over /Applications and
// ~/Applications.
func NewAppPathResolver(logger *zap.Logger) *AppPathResolver {
	home, _ := os.UserHomeDir()
	return &AppPathResolver{
		searchDirs: []string{
			"/Applications",
			"/System/Applications",
			filepath.Join(home, "Applications"),
		},
		useMdfind: true,
		logger:    logger,
		cache:     make(map[string]string),
	}
}

// NewAppPathResolverWithDirs creates a resolver over specific directories
// with Spotlight disabled (for testing).
func NewAppPathResolverWithDirs(dirs []string, logger *zap.Logger) *AppPathResolver {
	return &AppPathResolver{
		searchDirs: dirs,
		logger:     logger,
		cache:      make(map[string]string),
	}
}

// Resolve returns the .app path for the bundle id.
func (r *AppPathResolver) Resolve(bundleID string) (string, error) {
	key := strings.ToLower(bundleID)

	r.mu.Lock()
	if path, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return path, nil
	}
	r.mu.Unlock()

	path := ""
	if r.useMdfind {
		path = r.resolveViaSpotlight(bundleID)
	}
	if path == "" {
		path = r.resolveViaScan(key)
	}
	if path == "" {
		return "", fmt.Errorf("no installed application for bundle id %q", bundleID)
	}

	r.mu.Lock()
	r.cache[key] = path
	r.mu.Unlock()
	return path, nil
}

// resolveViaSpotlight queries the Spotlight index. The trailing `c` makes
// the comparison case-insensitive.
func (r *AppPathResolver) resolveViaSpotlight(bundleID string) string {
	query := fmt.Sprintf("kMDItemCFBundleIdentifier == %q c", bundleID)
	out, err := exec.Command("mdfind", query).Output()
	if err != nil {
		r.logger.Debug("mdfind failed", zap.Error(err))
		return ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasSuffix(line, ".app") {
			return line
		}
	}
	return ""
}

// resolveViaScan walks the search directories one level deep looking for
// an .app bundle with a matching identifier.
func (r *AppPathResolver) resolveViaScan(key string) string {
	for _, dir := range r.searchDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !strings.HasSuffix(entry.Name(), ".app") {
				continue
			}
			appPath := filepath.Join(dir, entry.Name())
			info, err := readBundleInfo(appPath)
			if err != nil {
				continue
			}
			if strings.ToLower(info.BundleID) == key {
				return appPath
			}
		}
	}
	return ""
}

// Ensure AppPathResolver implements domain.AppResolver.
var _ domain.AppResolver = (*AppPathResolver)(nil)
