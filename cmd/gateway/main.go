package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"hookgate/internal/config"
	"hookgate/internal/constants"
	"hookgate/internal/logger"
	"hookgate/pkg/cel"
	"hookgate/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Webhook ingestion gateway",
		Long:  "Gateway verifies, throttles and deduplicates payment webhooks and queues notifications for confirmed events",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(filtersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
				if configFile == "" {
					earlyLog.Warn("Config file is required. Use --config flag or CONFIG_FILE environment variable")
					return fmt.Errorf("config file is required")
				}
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Warn("Failed to load config: %v", err)
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Warn("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx = logging.WithServiceName(ctx, constants.ServiceName)

			log.InfowCtx(ctx, "Starting webhook gateway")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.Fatalf("Failed to initialize application: %v", err)
			}

			log.InfowCtx(ctx, "Webhook gateway running", "routes", len(cfg.Webhook.Routes))
			if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
				return err
			}
			log.InfowCtx(ctx, "Shutdown complete")
			return nil
		},
	}
}

// filtersCmd validates accept_if expressions given as arguments, or lists examples when there are none.
func filtersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filters [expression...]",
		Short: "Validate accept_if expressions or list examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				names := make([]string, 0, len(cel.FilterExpressionExamples))
				for name := range cel.FilterExpressionExamples {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(out, "%-18s %s\n", name, cel.FilterExpressionExamples[name])
				}
				return nil
			}

			var failed int
			for _, expr := range args {
				if err := cel.ValidateFilterExpression(expr); err != nil {
					failed++
					fmt.Fprintf(out, "invalid  %s: %v\n", expr, err)
					continue
				}
				fmt.Fprintf(out, "ok       %s\n", expr)
			}
			if failed > 0 {
				return fmt.Errorf("%d invalid expression(s)", failed)
			}
			return nil
		},
	}
}
