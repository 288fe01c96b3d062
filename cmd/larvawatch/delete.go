package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/larvawatch/internal/actions"
	"github.com/example/larvawatch/internal/logging"
)

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete stored data on the device",
	}

	client := func() (*actions.Client, error) {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return nil, err
		}
		hc := ctx.httpClient().WithRetries(cfg.Actions.RetryAttempts, cfg.Actions.RetryDelay)
		return actions.NewClient(hc, cfg.Device.BaseURL, logging.WithComponent(ctx.logger, "actions")), nil
	}

	deleteCmd.AddCommand(&cobra.Command{
		Use:   "images",
		Short: "Delete all saved images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			res, err := c.DeleteAllImages(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d images\n", res.TotalImages)
			return nil
		},
	})

	deleteCmd.AddCommand(&cobra.Command{
		Use:   "notifications",
		Short: "Delete all stored notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			res, err := c.DeleteAllNotifications(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d notifications\n", res.DeletedCount)
			return nil
		},
	})

	return deleteCmd
}
