package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pevans/dailybrief/config"
	"github.com/pevans/dailybrief/pipeline"
	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "dev"

// errReported marks an error that has already been logged.
var errReported = errors.New("reported")

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// A missing .env is normal
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	var (
		configPath string
		date       string
	)

	root := &cobra.Command{
		Use:   "dailybrief",
		Short: "Build the daily news digest and its image card",
		Long: `dailybrief finds the day's digest article among the configured accounts,
extracts its news items, stores the record and renders it as a PNG card.
A date that already has both artifacts is skipped.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logOut)
			if err != nil {
				return err
			}
			return a.runDaily(cmd.Context(), date)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", getEnv("DAILYBRIEF_CONFIG", ""),
		"path to configuration file (default "+config.DefaultPath+")")
	root.Flags().StringVarP(&date, "date", "d", "", "target date, YYYY-MM-DD (default today)")

	root.AddCommand(newRenderMissingCmd(&configPath, logOut))
	root.AddCommand(newConfigCmd(&configPath))

	return root
}

// runDaily runs the pipeline for date, or for today when date is empty.
func (a *app) runDaily(ctx context.Context, date string) error {
	defer a.flushMetrics()

	if date == "" {
		date = a.runner.Today()
	}

	result, err := a.runner.Run(ctx, date)
	if err != nil {
		a.log.Error("run failed", "date", date, "kind", pipeline.KindOf(err), "error", err)
		return fmt.Errorf("%w: %w", errReported, err)
	}

	a.log.Info("run finished", "date", date, "status", result.Status, "run_id", result.RunID)
	return nil
}

func newRenderMissingCmd(configPath *string, logOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "render-missing",
		Short: "Render an image for every stored record that has none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logOut)
			if err != nil {
				return err
			}
			defer a.flushMetrics()

			summary, err := a.runner.RenderMissing(cmd.Context())
			if err != nil {
				a.log.Error("render pass failed", "error", err)
				return fmt.Errorf("%w: %w", errReported, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Rendered: %d, failed: %d\n", len(summary.Rendered), len(summary.Failed))
			if len(summary.Failed) > 0 {
				return fmt.Errorf("failed to render %d image(s): %v", len(summary.Failed), summary.Failed)
			}
			return nil
		},
	}
}

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if path == "" {
				path = config.DefaultPath
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote default configuration to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
