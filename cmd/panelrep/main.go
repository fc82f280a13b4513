// Command panelrep runs the panel representativeness engine: fetch
// reference series, run the analysis pipeline, or serve the artifacts of
// the latest run.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"panelrep/internal/config"
	"panelrep/internal/infrastructure"
	"panelrep/internal/pipeline"
	"panelrep/internal/refdata"
	"panelrep/internal/transport/httpd"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "panelrep",
		Short:        "Assess how well a provider panel represents the reference economy",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"path to the YAML config file (default panelrep.yaml, then PANELREP_* env)")

	rootCmd.AddCommand(fetchCmd(), runCmd(), serveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFrom(cfgPath)
	}
	return config.Load()
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch reference series and cache them on disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := infrastructure.NewLogger(cfg.Logging)

			var opts []refdata.ClientOption
			if cfg.Reference.BaseURL != "" {
				opts = append(opts, refdata.WithBaseURL(cfg.Reference.BaseURL))
			}
			client := refdata.NewClient(cfg.Reference.APIKey, logger, opts...)

			ids := refdata.DefaultSeriesIDs()
			ids = append(ids, refdata.StateSeriesIDs(cfg.Reference.States)...)
			obs, err := client.FetchSeries(cmd.Context(), ids,
				cfg.Reference.StartYear, cfg.Reference.EndYear)
			if err != nil {
				return fmt.Errorf("fetch reference series: %w", err)
			}

			cache := refdata.NewCache(cfg.Paths.CacheDir, logger)
			if err := cache.Save("reference", obs); err != nil {
				return fmt.Errorf("cache reference series: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cached %d observations to %s\n",
				len(obs), cfg.Paths.CacheDir)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var serveAfter bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full analysis pipeline and write reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := infrastructure.NewLogger(cfg.Logging)
			metrics := infrastructure.NewMetrics()

			shutdown, err := initTracing(cfg)
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			ref, err := loadReference(cfg, logger)
			if err != nil {
				return err
			}

			p := pipeline.New(cfg, logger, metrics)
			res, err := p.Run(cmd.Context(), ref)
			if err != nil {
				return err
			}
			paths, err := p.WriteReports(res)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s complete: %d artifacts, %d warnings\n",
				res.RunID, len(paths), len(res.Warnings))
			for _, w := range res.Warnings {
				fmt.Fprintf(cmd.OutOrStdout(), "  warning: %s\n", w)
			}

			if serveAfter {
				srv := httpd.NewServer(cfg.Server, logger, metrics)
				srv.SetResult(res)
				srv.SetRunner(refreshRunner(cfg, logger, p))
				return srv.ListenAndServe(cmd.Context())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&serveAfter, "serve", false, "serve the artifacts over HTTP after the run")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline, then serve artifacts over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := infrastructure.NewLogger(cfg.Logging)
			metrics := infrastructure.NewMetrics()

			shutdown, err := initTracing(cfg)
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			ref, err := loadReference(cfg, logger)
			if err != nil {
				return err
			}

			p := pipeline.New(cfg, logger, metrics)
			res, err := p.Run(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if _, err := p.WriteReports(res); err != nil {
				return err
			}

			srv := httpd.NewServer(cfg.Server, logger, metrics)
			srv.SetResult(res)
			srv.SetRunner(refreshRunner(cfg, logger, p))
			return srv.ListenAndServe(cmd.Context())
		},
	}
}

// refreshRunner rebuilds the reference from cache, reruns the pipeline,
// and rewrites the report tree for POST /api/v1/refresh.
func refreshRunner(cfg *config.Config, logger *slog.Logger, p *pipeline.Pipeline) func(context.Context) (*pipeline.RunResult, error) {
	return func(ctx context.Context) (*pipeline.RunResult, error) {
		ref, err := loadReference(cfg, logger)
		if err != nil {
			return nil, err
		}
		res, err := p.Run(ctx, ref)
		if err != nil {
			return nil, err
		}
		if _, err := p.WriteReports(res); err != nil {
			return nil, err
		}
		return res, nil
	}
}

// initTracing installs span export. Spans go to stderr only at debug
// level; otherwise the plumbing stays quiet.
func initTracing(cfg *config.Config) (func(context.Context) error, error) {
	sink := io.Discard
	if cfg.Logging.Level == "debug" {
		sink = os.Stderr
	}
	return infrastructure.InitTracing(sink)
}

// loadReference reads the cached observations and assembles the margin
// table and formation series the pipeline benchmarks against.
func loadReference(cfg *config.Config, logger *slog.Logger) (refdata.Reference, error) {
	cache := refdata.NewCache(cfg.Paths.CacheDir, logger)
	obs, ok, err := cache.Load("reference")
	if err != nil {
		return refdata.Reference{}, fmt.Errorf("load reference cache: %w", err)
	}
	if !ok {
		return refdata.Reference{}, fmt.Errorf("no reference cache in %s, run `panelrep fetch` first", cfg.Paths.CacheDir)
	}
	return refdata.Assemble(obs), nil
}
