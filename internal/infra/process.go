package infra

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/modeshift/modeshift/internal/domain"
)

// MacAppController implements domain.AppController using gopsutil for
// process discovery, AppleScript for polite quits, and `open` for
// launches.
type MacAppController struct {
	logger *zap.Logger

	mu   sync.Mutex
	pids map[string][]int32 // lowercased bundle id -> pids from the last listing
	info map[string]bundleInfo
}

// NewMacAppController creates an app controller for the local machine.
func NewMacAppController(logger *zap.Logger) *MacAppController {
	return &MacAppController{
		logger: logger,
		pids:   make(map[string][]int32),
		info:   make(map[string]bundleInfo),
	}
}

// ListRunning returns the user-facing apps currently running: processes
// whose executable lives inside an .app bundle, excluding this process
// and bundles marked as background-only agents.
func (c *MacAppController) ListRunning(ctx context.Context) ([]domain.AppIdentity, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	ownPID := int32(os.Getpid())
	seen := make(map[string]struct{})
	pids := make(map[string][]int32)
	var apps []domain.AppIdentity

	for _, p := range procs {
		if p.Pid == ownPID {
			continue
		}
		exe, err := p.Exe()
		if err != nil {
			continue // Process may have exited
		}
		bundle := appBundlePath(exe)
		if bundle == "" {
			continue
		}

		info, err := c.bundleInfo(bundle)
		if err != nil || info.BundleID == "" {
			continue
		}
		if info.isAgent() {
			continue
		}

		key := strings.ToLower(info.BundleID)
		pids[key] = append(pids[key], p.Pid)
		if _, dup := seen[key]; dup {
			continue // Helper processes of an app already listed
		}
		seen[key] = struct{}{}
		apps = append(apps, domain.AppIdentity{
			BundleID: info.BundleID,
			Name:     info.displayName(bundle),
		})
	}

	c.mu.Lock()
	c.pids = pids
	c.mu.Unlock()

	return apps, nil
}

// RequestClose asks the app to quit via AppleScript. With force set, its
// processes from the last listing are killed instead, giving the app no
// chance to decline.
func (c *MacAppController) RequestClose(ctx context.Context, app domain.AppIdentity, force bool) (domain.CloseStatus, string) {
	if force {
		return c.forceKill(app)
	}

	script := fmt.Sprintf("tell application id %q to quit", app.BundleID)
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput()
	if err == nil {
		return domain.CloseDone, ""
	}

	msg := strings.TrimSpace(string(out))
	if msg == "" {
		msg = err.Error()
	}
	switch {
	case strings.Contains(msg, "User canceled"):
		// The app put up a save dialog and the user declined.
		return domain.CloseSkipped, "declined to close"
	case strings.Contains(msg, "Application isn't running"),
		strings.Contains(msg, "Can't get application"):
		return domain.CloseNotRunning, ""
	default:
		return domain.CloseFailed, msg
	}
}

// forceKill terminates every pid recorded for the app in the last listing.
func (c *MacAppController) forceKill(app domain.AppIdentity) (domain.CloseStatus, string) {
	c.mu.Lock()
	pids := c.pids[app.Key()]
	c.mu.Unlock()

	if len(pids) == 0 {
		return domain.CloseNotRunning, ""
	}

	var lastErr error
	killed := 0
	for _, pid := range pids {
		p, err := process.NewProcess(pid)
		if err != nil {
			continue // Already gone
		}
		if err := p.Kill(); err != nil {
			lastErr = err
			continue
		}
		killed++
	}

	if killed == 0 && lastErr != nil {
		return domain.CloseFailed, lastErr.Error()
	}
	return domain.CloseDone, ""
}

// RequestLaunch starts the app via `open -b` and waits for the OS to
// confirm the launch.
func (c *MacAppController) RequestLaunch(ctx context.Context, app domain.AppIdentity) (domain.LaunchStatus, string) {
	out, err := exec.CommandContext(ctx, "open", "-b", app.BundleID).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		c.logger.Debug("open failed",
			zap.String("bundle_id", app.BundleID),
			zap.String("output", msg))
		return domain.LaunchFailed, msg
	}
	return domain.LaunchDone, ""
}

// bundleInfo reads and caches Info.plist metadata per bundle path.
func (c *MacAppController) bundleInfo(bundlePath string) (bundleInfo, error) {
	c.mu.Lock()
	if info, ok := c.info[bundlePath]; ok {
		c.mu.Unlock()
		return info, nil
	}
	c.mu.Unlock()

	info, err := readBundleInfo(bundlePath)
	if err != nil {
		return info, err
	}

	c.mu.Lock()
	c.info[bundlePath] = info
	c.mu.Unlock()
	return info, nil
}

// Ensure MacAppController implements domain.AppController.
var _ domain.AppController = (*MacAppController)(nil)
