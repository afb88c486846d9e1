// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/clickup-tap/internal/store"
	"github.com/pdiddy/clickup-tap/pkg/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored records from the SQLite database to YAML or JSON",
	Long: `Export writes the latest stored snapshot of one stream (or all streams)
from a database written by sync --sqlite. Each entry carries the record,
its key, the parent context it was fetched under, and the run that wrote it.`,
	RunE: runExport,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List sync runs recorded in the SQLite database",
	RunE:  runRuns,
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	path, _ := cmd.Flags().GetString("sqlite")
	if path == "" {
		return nil, fmt.Errorf("--sqlite is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return store.Open(types.StoreConfig{Path: path})
}

func runExport(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	stream, _ := cmd.Flags().GetString("stream")
	format, _ := cmd.Flags().GetString("format")

	switch format {
	case "yaml", "":
		return st.ExportYAML(context.Background(), stream, os.Stdout)
	case "json":
		return st.ExportJSON(context.Background(), stream, os.Stdout)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
}

func runRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs(context.Background())
	if err != nil {
		return err
	}
	formatRuns(os.Stdout, runs)
	return nil
}

func formatRuns(w io.Writer, runs []store.RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-20s  %-10s  %-8s  %-10s  %s\n",
		"Run", "Started", "Status", "Records", "Duration", "Error")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, r := range runs {
		dur := ""
		if !r.FinishedAt.IsZero() {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		errText := r.Error
		if len(errText) > 40 {
			errText = errText[:37] + "..."
		}
		fmt.Fprintf(w, "%-36s  %-20s  %-10s  %-8d  %-10s  %s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.Records, dur, errText)
	}

	fmt.Fprintf(w, "\n%d runs\n", len(runs))
}

func init() {
	exportCmd.Flags().String("sqlite", "", "SQLite database written by sync --sqlite")
	exportCmd.Flags().String("stream", "", "stream to export (default: all)")
	exportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	runsCmd.Flags().String("sqlite", "", "SQLite database written by sync --sqlite")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(runsCmd)
}
