// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/clickup-tap/internal/client"
	"github.com/pdiddy/clickup-tap/internal/config"
	"github.com/pdiddy/clickup-tap/internal/metrics"
	"github.com/pdiddy/clickup-tap/internal/singer"
	"github.com/pdiddy/clickup-tap/internal/store"
	"github.com/pdiddy/clickup-tap/internal/streams"
	"github.com/pdiddy/clickup-tap/internal/tap"
	"github.com/pdiddy/clickup-tap/pkg/types"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Extract every selected stream and write Singer messages to stdout",
	Long: `Sync walks the stream graph from the team stream down. For each parent
record it fetches the dependent streams with the parent's id, so spaces are
fetched per team, folders and tags per space, tasks per list, and so on.

Use --stream to emit only some streams; their ancestors are still fetched
but not emitted. With --sqlite the latest snapshot of every record is also
upserted into a SQLite database. A failed run leaves the database as it was.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringSlice("stream", nil, "stream to emit (repeatable; default: all)")
	syncCmd.Flags().String("sqlite", "", "also upsert records into this SQLite database")
	syncCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9108)")
	syncCmd.Flags().Int("max-pages", 1000, "page limit per paginated request")

	viper.BindPFlag(config.KeyStreams, syncCmd.Flags().Lookup("stream"))
	viper.BindPFlag(config.KeySQLitePath, syncCmd.Flags().Lookup("sqlite"))
	viper.BindPFlag(config.KeyMetricsAddr, syncCmd.Flags().Lookup("metrics-addr"))
	viper.BindPFlag(config.KeyMaxPages, syncCmd.Flags().Lookup("max-pages"))

	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	if err := config.RequireToken(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := syncRun(ctx, cfg, os.Stdout, nil)

	for _, name := range summary.Streams() {
		slog.Info("stream total", "stream", name, "records", summary.Records[name], "fetches", summary.Fetches[name])
	}
	slog.Info("sync finished", "records", summary.Total(), "elapsed", summary.Elapsed, "ok", runErr == nil)

	if runErr != nil && errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("interrupted: %w", runErr)
	}
	return runErr
}

// syncRun runs the tap with Singer output on stdout and, when cfg names a
// database, a store run that is finished with the tap's outcome. A nil
// httpClient gets the client package default.
func syncRun(ctx context.Context, cfg types.TapConfig, stdout io.Writer, httpClient *http.Client) (tap.Summary, error) {
	g, err := streams.Default()
	if err != nil {
		return tap.Summary{}, err
	}
	sel, err := tap.NewSelection(g, cfg.Streams)
	if err != nil {
		return tap.Summary{}, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				slog.Error("metrics server failed", "err", err)
			}
		}()
	}

	out := singer.NewWriter(stdout)
	var sink tap.Sink = out

	var run *store.Run
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store)
		if err != nil {
			return tap.Summary{}, err
		}
		defer st.Close()

		run, err = st.BeginRun(ctx)
		if err != nil {
			return tap.Summary{}, err
		}
		slog.Info("recording run", "run_id", run.ID, "sqlite", cfg.Store.Path)
		sink = tap.MultiSink{out, run}
	}

	t := &tap.Tap{
		Graph:     g,
		Source:    client.New(cfg.API, httpClient, m),
		Sink:      sink,
		Selection: sel,
		Metrics:   m,
		Logger:    slog.Default(),
	}

	summary, runErr := t.Run(ctx)
	if err := out.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("writing stdout: %w", err)
	}
	if run != nil {
		// Recording the outcome must not be skipped by an interrupted run.
		if err := run.Finish(runErr); err != nil {
			slog.Error("recording run outcome", "run_id", run.ID, "err", err)
			if runErr == nil {
				runErr = err
			}
		}
	}
	return summary, runErr
}
