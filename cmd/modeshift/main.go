// Package main is the CLI entry point for modeshift.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/modeshift/modeshift/internal/config"
	"github.com/modeshift/modeshift/internal/daemon"
	"github.com/modeshift/modeshift/internal/domain"
	"github.com/modeshift/modeshift/internal/infra"
	"github.com/modeshift/modeshift/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "modeshift",
	Short: "Switch between named work modes",
	Long: `modeshift lets you declare named modes - each a set of applications
for a work context - and switch between them. Switching a mode closes
apps outside the desired set and launches the missing ones. A mode can
also mirror its app set into the Dock.`,
	Version: Version,
}

var switchCmd = &cobra.Command{
	Use:   "switch <mode>",
	Short: "Switch to a mode by name or id",
	Long: `Reconciles running applications against the mode's app set plus the
global allow list: apps outside the set are asked to close, missing apps
are launched. Apps that decline to close are skipped, not failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSwitch,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured modes",
	RunE:  runList,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running apps and the last mode switches",
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent mode switches",
	RunE:  runHistory,
}

var watchCmd = &cobra.Command{
	Use:   "watch <mode>",
	Short: "Switch to a mode and keep re-applying it",
	Long: `Switches to the mode, then stays in the foreground re-running the
reconciliation on the configured interval (enableAutoReapply must be set),
so apps opened outside the mode get closed again.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("modeshift %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func dataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "Application Support", "modeshift")
}

// buildCore wires the store, collaborators and engine.
func buildCore(logger *zap.Logger) (*config.Store, *usecase.Reconciler, func(), error) {
	store := config.NewStore(logger)
	if err := store.Load(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	controller := infra.NewMacAppController(logger)
	resolver := infra.NewAppPathResolver(logger)
	dock := infra.NewDockSync(resolver, logger)

	var history domain.SwitchHistory
	cleanup := func() {}
	if key, err := infra.NewFileKeyProvider(dataDir()).EnsureKey(); err == nil {
		if h, err := infra.NewSwitchHistory(dataDir(), key); err == nil {
			history = h
			cleanup = func() { _ = h.Close() }
		} else {
			logger.Warn("switch history unavailable", zap.Error(err))
		}
	} else {
		logger.Warn("history key unavailable", zap.Error(err))
	}

	reconciler := usecase.NewReconciler(store, controller, dock, history, logger)
	return store, reconciler, cleanup, nil
}

// findMode matches a mode by id, or by name case-insensitively.
func findMode(cfg domain.Config, arg string) *domain.Mode {
	if mode := cfg.ModeByID(arg); mode != nil {
		return mode
	}
	for i := range cfg.Modes {
		if strings.EqualFold(cfg.Modes[i].Name, arg) {
			return &cfg.Modes[i]
		}
	}
	return nil
}

func runSwitch(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	store, reconciler, cleanup, err := buildCore(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	mode := findMode(store.Config(), args[0])
	if mode == nil {
		return fmt.Errorf("no mode named %q; run 'modeshift list'", args[0])
	}

	outcome, err := reconciler.Switch(cmd.Context(), mode.ID)
	if err != nil {
		return err
	}

	printOutcome(outcome)
	if !outcome.Success() {
		// Returning the error keeps the deferred cleanup and log sync
		// running; main translates it into the exit code.
		return fmt.Errorf("%d app(s) failed to launch", len(outcome.FailedToOpen))
	}
	return nil
}

func printOutcome(o *domain.Outcome) {
	fmt.Printf("\n=== Switched to %s ===\n", o.ModeName)

	for _, app := range o.Closed {
		fmt.Printf("  closed   %s\n", app.Name)
	}
	for _, s := range o.Skipped {
		fmt.Printf("  skipped  %s (%s)\n", s.App.Name, s.Reason)
	}
	for _, app := range o.Opened {
		fmt.Printf("  opened   %s\n", app.Name)
	}
	for _, f := range o.FailedToOpen {
		fmt.Printf("  FAILED   %s (%s)\n", f.App.Name, f.Reason)
	}
	if o.DockSynced {
		fmt.Println("  dock synchronized")
	}

	if o.Success() {
		fmt.Printf("Done in %dms.\n", o.DurationMs)
	} else {
		fmt.Printf("Finished with %d launch failure(s).\n", len(o.FailedToOpen))
	}
}

func runList(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	store := config.NewStore(logger)
	if err := store.Load(); err != nil {
		return err
	}

	cfg := store.Config()
	fmt.Println("\n=== Modes ===")
	for _, mode := range cfg.Modes {
		dock := ""
		if mode.ManageDock {
			dock = " [dock]"
		}
		fmt.Printf("\n%s%s (%s)\n", mode.Name, dock, mode.ID)
		for _, app := range mode.Apps {
			fmt.Printf("  - %s (%s)\n", app.Name, app.BundleID)
		}
	}

	fmt.Println("\nAlways kept open:")
	for _, app := range cfg.GlobalAllowList {
		fmt.Printf("  - %s (%s)\n", app.Name, app.BundleID)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	controller := infra.NewMacAppController(logger)
	running, err := controller.ListRunning(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("\n%d user-facing apps running:\n", len(running))
	for _, app := range running {
		fmt.Printf("  - %s (%s)\n", app.Name, app.BundleID)
	}

	return showHistory(logger, 5)
}

func runHistory(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()
	return showHistory(logger, 20)
}

func showHistory(logger *zap.Logger, limit int) error {
	key, err := infra.NewFileKeyProvider(dataDir()).EnsureKey()
	if err != nil {
		return fmt.Errorf("history unavailable: %w", err)
	}
	h, err := infra.NewSwitchHistory(dataDir(), key)
	if err != nil {
		return fmt.Errorf("history unavailable: %w", err)
	}
	defer func() { _ = h.Close() }()

	records, err := h.Recent(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("\nNo switches recorded yet.")
		return nil
	}

	fmt.Println("\nRecent switches:")
	for _, rec := range records {
		status := "ok"
		if !rec.Success {
			status = "FAILED"
		}
		fmt.Printf("  %s  %-12s closed=%d opened=%d skipped=%d  %s\n",
			rec.SwitchedAt.Format("2006-01-02 15:04"),
			rec.ModeName, rec.ClosedApps, rec.OpenedApps, rec.Skipped, status)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	store, reconciler, cleanup, err := buildCore(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	mode := findMode(store.Config(), args[0])
	if mode == nil {
		return fmt.Errorf("no mode named %q; run 'modeshift list'", args[0])
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	outcome, err := reconciler.Switch(ctx, mode.ID)
	if err != nil {
		return err
	}
	printOutcome(outcome)

	// Make sure any pending config write survives a Ctrl-C.
	if err := store.Flush(); err != nil {
		logger.Warn("config flush failed", zap.Error(err))
	}

	reapplier := daemon.NewReapplier(store, reconciler, logger)
	if err := reapplier.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func createLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{filepath.Join(os.TempDir(), "modeshift.log")}
	cfg.ErrorOutputPaths = []string{filepath.Join(os.TempDir(), "modeshift.error.log")}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
