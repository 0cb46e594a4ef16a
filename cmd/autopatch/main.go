package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autopatch/internal/asar"
	"autopatch/internal/config"
	"autopatch/internal/pipeline"
	"autopatch/internal/report"
	"autopatch/internal/storage"
	"autopatch/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	rootCmd = &cobra.Command{
		Use:   "autopatch",
		Short: "Discovers, patches, and verifies generated app bundles",
	}

	cfgPath      string
	extractedDir string
	dbPath       string
	verbose      bool

	dryRun       bool
	discoverOnly bool
	noInstall    bool
	asJSON       bool
	limit        int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "autopatch.yaml", "Path to the YAML config")
	rootCmd.PersistentFlags().StringVar(&extractedDir, "extracted-dir", "", "Pre-extracted app directory (skips extraction)")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Run ledger database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show diffs without writing anything")
	runCmd.Flags().BoolVar(&discoverOnly, "discover-only", false, "Stop after discovery and symbol resolution")
	runCmd.Flags().BoolVar(&noInstall, "no-install", false, "Patch and verify but skip repack and install")

	patchCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show diffs without writing anything")
	discoverCmd.Flags().BoolVar(&asJSON, "json", false, "Print discovery as JSON")
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
}

func newLogger() *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Paths.Database = dbPath
	}
	return cfg, nil
}

// buildPipeline wires every component the subcommands share. The ledger is
// optional: a broken database degrades to a warning, never a refusal to patch.
func buildPipeline(log *zap.Logger, withTool bool) (*pipeline.Pipeline, *storage.SQLiteStore, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	var tool *asar.Tool
	if withTool {
		tool = asar.NewTool(cfg, nil, log)
	}

	ledger, err := storage.NewSQLiteStore(cfg.Paths.Database)
	if err != nil {
		log.Warn("run ledger unavailable", zap.Error(err))
		ledger = nil
	}

	p := pipeline.New(cfg, tool, ledger, report.NewPrinter(os.Stdout), log)
	return p, ledger, cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Full sequence: discover, patch, verify, repack, install",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		p, ledger, _, err := buildPipeline(log, true)
		if err != nil {
			return err
		}
		if ledger != nil {
			defer ledger.Close()
		}

		ctx, cancel := signalContext()
		defer cancel()

		return p.Run(ctx, pipeline.Options{
			DryRun:       dryRun,
			DiscoverOnly: discoverOnly,
			SkipInstall:  noInstall,
			ExtractedDir: extractedDir,
		})
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover target files and print the resolved roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		p, ledger, cfg, err := buildPipeline(log, false)
		if err != nil {
			return err
		}
		if ledger != nil {
			defer ledger.Close()
		}

		res, err := p.Resolve(resolveExtracted(cfg))
		if err != nil {
			return err
		}
		if asJSON {
			return report.NewPrinter(os.Stdout).DiscoveryJSON(res.Files)
		}
		report.NewPrinter(os.Stdout).Discovery(res.Files)
		return nil
	},
}

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Apply the patch catalogue to an extracted tree (no repack or install)",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		p, ledger, _, err := buildPipeline(log, false)
		if err != nil {
			return err
		}
		if ledger != nil {
			defer ledger.Close()
		}

		ctx, cancel := signalContext()
		defer cancel()

		return p.Run(ctx, pipeline.Options{
			DryRun:       dryRun,
			SkipInstall:  true,
			ExtractedDir: extractedDir,
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-check every patch and structural invariant against the tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		p, ledger, cfg, err := buildPipeline(log, false)
		if err != nil {
			return err
		}
		if ledger != nil {
			defer ledger.Close()
		}

		rep, err := p.Verify(resolveExtracted(cfg))
		if err != nil {
			return err
		}
		report.NewPrinter(os.Stdout).Verification(rep)
		if !rep.OK() {
			return fmt.Errorf("verification failed: %d checks", rep.Failed)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the extracted tree and re-classify patch state on changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		p, ledger, cfg, err := buildPipeline(log, false)
		if err != nil {
			return err
		}
		if ledger != nil {
			defer ledger.Close()
		}

		ctx, cancel := signalContext()
		defer cancel()

		err = watch.New(cfg, p, os.Stdout, log).Run(ctx, resolveExtracted(cfg))
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent patch runs from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ledger, err := storage.NewSQLiteStore(cfg.Paths.Database)
		if err != nil {
			return err
		}
		defer ledger.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		runs, err := ledger.RecentRuns(ctx, limit)
		if err != nil {
			return err
		}
		for _, r := range runs {
			verdict := "FAILED"
			if r.OK {
				verdict = "ok"
			}
			mode := ""
			if r.DryRun {
				mode = " (dry run)"
			}
			fmt.Printf("#%d  %s  %s%s  %s\n",
				r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), verdict, mode, r.Extracted)
		}
		return nil
	},
}

func resolveExtracted(cfg *config.Config) string {
	if extractedDir != "" {
		return extractedDir
	}
	return cfg.Paths.Extracted
}
