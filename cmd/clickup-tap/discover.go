// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/clickup-tap/internal/singer"
	"github.com/pdiddy/clickup-tap/internal/streams"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Print the stream catalog",
	Long: `Discover prints every stream with its key properties, schema, endpoint
template, and parent stream. JSON output includes the full schemas; YAML
output omits them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		g, err := streams.Default()
		if err != nil {
			return err
		}
		cat := singer.BuildCatalog(g)
		switch format {
		case "json", "":
			return cat.WriteJSON(os.Stdout)
		case "yaml":
			return cat.WriteYAML(os.Stdout)
		default:
			return fmt.Errorf("unsupported format %q: use json or yaml", format)
		}
	},
}

var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "Print the stream tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := streams.Default()
		if err != nil {
			return err
		}
		writeTree(os.Stdout, g)
		return nil
	},
}

// writeTree prints one stream per line, indented under its parent.
func writeTree(w io.Writer, g *streams.Graph) {
	g.Walk(func(d *streams.Definition, depth int) {
		fmt.Fprintf(w, "%s%-*s  %s\n", strings.Repeat("  ", depth), 24-2*depth, d.Name(), d.Path())
	})
}

func init() {
	discoverCmd.Flags().String("format", "json", "output format: json or yaml")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(streamsCmd)
}
