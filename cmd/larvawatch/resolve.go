package main

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/example/larvawatch/internal/endpoint"
	"github.com/example/larvawatch/internal/logging"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Look up the device channel endpoints once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			resolver := endpoint.NewResolver(ctx.httpClient(), cfg.Device.BaseURL, cfg.Device.StatsPath,
				logging.WithComponent(ctx.logger, "endpoint"))

			set, err := resolver.Resolve(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(set)
			}
			fmt.Fprintln(out, renderEndpoints(set))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print endpoints as JSON")
	return cmd
}

// renderEndpoints prints one row per channel with the port right-aligned.
func renderEndpoints(set endpoint.Set) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Channel", "Address", "Port", "URL"})
	for _, ch := range []struct {
		name string
		e    endpoint.Endpoint
	}{
		{"video", set.Video},
		{"stats", set.Stats},
		{"notification", set.Notification},
	} {
		tw.AppendRow(table.Row{ch.name, ch.e.Address, ch.e.Port, ch.e.URL})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Port", Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
