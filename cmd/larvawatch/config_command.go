package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/larvawatch/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	var defaults bool
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration as YAML",
		// loaded on demand so --defaults works with a broken config file
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if !defaults {
				loaded, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				cfg = *loaded
			}
			out, err := yaml.Marshal(toYAML(cfg))
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	dump.Flags().BoolVar(&defaults, "defaults", false, "Print built-in defaults instead of the effective configuration")
	configCmd.AddCommand(dump)

	return configCmd
}

// toYAML rebuilds cfg as nested maps keyed like the config file, with
// durations in their string form.
func toYAML(cfg config.Config) map[string]any {
	return map[string]any{
		"device": map[string]any{
			"base_url":       cfg.Device.BaseURL,
			"lookup_timeout": cfg.Device.LookupTimeout.String(),
			"stats_path":     cfg.Device.StatsPath,
			"origin":         cfg.Device.Origin,
			"dial_timeout":   cfg.Device.DialTimeout.String(),
		},
		"channels": map[string]any{
			"notification_reconnect_delay": cfg.Channels.NotificationReconnectDelay.String(),
		},
		"actions": map[string]any{
			"retry_attempts": cfg.Actions.RetryAttempts,
			"retry_delay":    cfg.Actions.RetryDelay.String(),
		},
		"presenter": map[string]any{
			"notification_clear_after": cfg.Presenter.NotificationClearAfter.String(),
			"status_clear_after":       cfg.Presenter.StatusClearAfter.String(),
		},
		"viewer": map[string]any{
			"listen":              cfg.Viewer.Listen,
			"state_push_interval": cfg.Viewer.StatePushInterval.String(),
		},
		"logging": map[string]any{
			"level":      cfg.Logging.Level,
			"format":     cfg.Logging.Format,
			"add_source": cfg.Logging.AddSource,
		},
		"simulator": map[string]any{
			"host":           cfg.Simulator.Host,
			"port":           cfg.Simulator.Port,
			"frame_interval": cfg.Simulator.FrameInterval.String(),
			"stats_interval": cfg.Simulator.StatsInterval.String(),
		},
	}
}
