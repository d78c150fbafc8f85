// Package main implements the intentd CLI: the poll daemon plus manual
// one-shot, maintenance, and config-checking operations.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/bridge"
	"github.com/fyrsmithlabs/intentd/internal/capture"
	"github.com/fyrsmithlabs/intentd/internal/config"
	"github.com/fyrsmithlabs/intentd/internal/dedup"
	"github.com/fyrsmithlabs/intentd/internal/llm"
	"github.com/fyrsmithlabs/intentd/internal/logging"
	"github.com/fyrsmithlabs/intentd/internal/pipeline"
	"github.com/fyrsmithlabs/intentd/internal/tasklog"
)

var (
	configPath string
	captureURL string

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "intentd",
	Short: "Screen-intent daemon",
	Long: `intentd watches captured screen text for things you personally need to
act on or remember, and delivers them as notifications, reminders, and notes.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&captureURL, "capture-url", "http://localhost:3030/search", "capture service search endpoint")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(doneCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".config", "intentd", "config.json")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the poll loop",
	Long: `Start the daemon: poll the capture service on the configured interval
and run every capture through the full pipeline. The config file is
watched for edits; hot-reloadable sections apply without a restart.

Examples:
  intentd run
  intentd run --config ./config.json --capture-url http://localhost:3030/search`,
	RunE: runDaemon,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run one pass now",
	Long: `Run a single deliberate pass over the most recent captures, the way a
hotkey trigger would: no batching window, permissive classification.

Examples:
  intentd once`,
	RunE: runOnce,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file",
	Long: `Load and validate the config file, printing every issue found. Exits
non-zero when the file is invalid.`,
	RunE: runCheckConfig,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Compact the dedup logs",
	Long: `Drop dedup entries older than the configured lookback window from both
track logs. Pruning is manual; the daemon never rewrites the logs on
its own.`,
	RunE: runPrune,
}

var doneCmd = &cobra.Command{
	Use:   "done <content>",
	Short: "Mark a recorded task complete",
	Args:  cobra.ExactArgs(1),
	RunE:  runDone,
}

func loadStore(log *logging.Logger) (*config.Store, error) {
	store := config.NewStore(configPath, log)
	if _, err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func buildPipeline(store *config.Store, log *logging.Logger) (*pipeline.Pipeline, error) {
	cfg := store.Get()

	local, err := llm.NewLocalClient(cfg.Models.Local)
	if err != nil {
		return nil, fmt.Errorf("local model: %w", err)
	}

	// Always wire the cloud client when one can be built: review is a
	// hot-reloadable section, so enabling it later must find the gate
	// ready rather than wait for a restart.
	var cloud llm.Chat
	if c, err := llm.NewCloudClient(cfg.Models.Cloud); err == nil {
		cloud = c
	} else if cfg.Review.Enabled {
		return nil, fmt.Errorf("cloud model: %w", err)
	} else {
		log.Warn("cloud model unavailable, review cannot be hot-enabled", zap.Error(err))
	}

	audit := capture.NewAuditLog(filepath.Join(cfg.Storage.DataPath(), "capture-audit.jsonl"))

	return pipeline.New(pipeline.Options{
		Config: store,
		Source: capture.NewHTTPSource(captureURL),
		Audit:  audit,
		Local:  local,
		Cloud:  cloud,
		Runner: bridge.NewOSARunner(log),
		Log:    log,
	})
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	store := config.NewStore(configPath, logging.NewNop())
	cfg, err := store.Load()
	if err != nil {
		return err
	}

	log, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	// Rebind the store to the real logger now that config told us how to
	// build one.
	store = config.NewStore(configPath, log)
	if _, err := store.Load(); err != nil {
		return err
	}

	p, err := buildPipeline(store, log)
	if err != nil {
		return err
	}

	if err := store.Start(); err != nil {
		log.Warn("config watcher unavailable, edits need a restart", zap.Error(err))
	} else {
		defer store.Stop()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("signal received, stopping", zap.String("signal", sig.String()))
		p.Stop()
	}()

	log.Info("intentd starting",
		zap.String("version", version),
		zap.String("config", configPath),
		zap.String("capture_url", captureURL))
	return p.Run(ctx)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	log := logging.NewNop()
	store, err := loadStore(log)
	if err != nil {
		return err
	}

	cfg := store.Get()
	plog, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer plog.Sync()

	p, err := buildPipeline(store, plog)
	if err != nil {
		return err
	}

	res, err := p.TriggerOnce(cmd.Context())
	if err != nil {
		return err
	}
	switch {
	case !res.Triggered:
		fmt.Println("nothing to process")
	case res.Intent == nil:
		fmt.Println("no intent delivered")
	default:
		fmt.Printf("content:    %s\n", res.Intent.Content)
		fmt.Printf("actionable: %t\n", res.Intent.Actionable)
		fmt.Printf("noteworthy: %t\n", res.Intent.Noteworthy)
		fmt.Printf("urgent:     %t\n", res.Intent.Urgent)
		if res.Intent.DueTime != "" {
			fmt.Printf("due:        %s\n", res.Intent.DueTime)
		}
	}
	return nil
}

func runCheckConfig(_ *cobra.Command, _ []string) error {
	store := config.NewStore(configPath, logging.NewNop())
	if _, err := store.Load(); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(os.Stderr, "%s is invalid:\n", configPath)
			for _, issue := range verr.Issues {
				fmt.Fprintf(os.Stderr, "  - %s\n", issue)
			}
			return fmt.Errorf("%d issue(s)", len(verr.Issues))
		}
		return err
	}
	fmt.Printf("%s is valid\n", configPath)
	return nil
}

func runPrune(_ *cobra.Command, _ []string) error {
	log := logging.NewNop()
	store, err := loadStore(log)
	if err != nil {
		return err
	}
	cfg := store.Get()

	ds := dedup.NewStore(cfg.Storage.DataPath(), log)
	for _, track := range []dedup.Track{dedup.TrackActionable, dedup.TrackNoteworthy} {
		removed, err := ds.PruneNow(track, cfg.DedupLookback())
		if err != nil {
			return fmt.Errorf("prune %s: %w", track, err)
		}
		fmt.Printf("%s: removed %d entries\n", track, removed)
	}
	return nil
}

func runDone(_ *cobra.Command, args []string) error {
	log := logging.NewNop()
	store, err := loadStore(log)
	if err != nil {
		return err
	}
	cfg := store.Get()

	tl := tasklog.New(cfg.Storage.DataPath(), log)
	ok, err := tl.MarkComplete(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no open task matches %q", args[0])
	}
	fmt.Println("done")
	return nil
}
