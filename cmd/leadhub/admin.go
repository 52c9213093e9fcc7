package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadhub/leadhub/internal/daemon"
	"github.com/leadhub/leadhub/internal/logging"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the registry tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, cleanup, err := setup(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer cleanup()
			logging.Get().Info().Str("driver", cfg.DatabaseDriver).Msg("registry schema is up to date")
			return nil
		},
	}
}

func newChannelsCmd(g *globalFlags) *cobra.Command {
	channels := &cobra.Command{Use: "channels", Short: "Manage notification channels"}
	channels.AddCommand(&cobra.Command{
		Use:   "test <id>",
		Short: "Send a sample new-lead notification to one channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, cleanup, err := setup(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer cleanup()
			res, err := daemon.New(cfg, st).Dispatcher.SendTestNotification(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res == nil {
				return fmt.Errorf("channel %s not found", args[0])
			}
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("test notification failed: %s", res.Error)
			}
			return nil
		},
	})
	return channels
}

func newWebhooksCmd(g *globalFlags) *cobra.Command {
	webhooks := &cobra.Command{Use: "webhooks", Short: "Manage outbound webhooks"}
	webhooks.AddCommand(&cobra.Command{
		Use:   "test <id>",
		Short: "Deliver a webhook.test envelope to one webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, cleanup, err := setup(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer cleanup()
			att, err := daemon.New(cfg, st).Webhooks.TestWebhook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if att == nil {
				return fmt.Errorf("webhook %s not found", args[0])
			}
			if err := printJSON(cmd, att); err != nil {
				return err
			}
			if !att.Success {
				return fmt.Errorf("test delivery failed: %s", att.Error)
			}
			return nil
		},
	})
	return webhooks
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load configuration and print validation warnings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			warnings := cfg.Validate()
			for _, w := range warnings {
				fmt.Fprintln(cmd.OutOrStdout(), "warning:", w)
			}
			if len(warnings) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
			}
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
