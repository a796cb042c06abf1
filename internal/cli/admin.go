package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/skirmish/internal/admin"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operate a running server",
	}

	cmd.AddCommand(newAdminStatusCmd())
	cmd.AddCommand(newAdminLeaderboardCmd())
	cmd.AddCommand(newAdminMaintenanceCmd())
	cmd.AddCommand(newAdminAccountCmd("kick", "Disconnect an account"))
	cmd.AddCommand(newAdminAccountCmd("ban", "Ban an account and disconnect it"))
	cmd.AddCommand(newAdminAccountCmd("unban", "Lift a ban"))
	cmd.AddCommand(newAdminSetCmd())

	return cmd
}

func newAdminStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status admin.Status
			if err := client.Get(cmd.Context(), "/status", &status); err != nil {
				return err
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(status)
			return nil
		},
	}
}

func newAdminLeaderboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the cached trophy leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var board admin.Leaderboard
			if err := client.Get(cmd.Context(), "/leaderboard", &board); err != nil {
				return err
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(board)
			return nil
		},
	}
}

func newAdminMaintenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "maintenance on|off",
		Short:     "Toggle maintenance mode",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client.Execute(cmd.Context(), "maintenance", args[0])
			if err != nil {
				return err
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(res)
			return nil
		},
	}
}

// newAdminAccountCmd builds a command taking a single account id
func newAdminAccountCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <account-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client.Execute(cmd.Context(), name, args[0])
			if err != nil {
				return err
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(res)
			return nil
		},
	}
}

func newAdminSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <account-id> <field> <value>",
		Short: "Set a field on an account (name, trophies, character)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client.Execute(cmd.Context(), "set", args...)
			if err != nil {
				return err
			}
			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			if cfg.Output == "json" {
				out.Print(res)
				return nil
			}

			var acc admin.AccountView
			if err := json.Unmarshal(res.Data, &acc); err != nil {
				return fmt.Errorf("failed to parse account: %w", err)
			}
			out.Print(res)
			out.Print(acc)
			return nil
		},
	}
}
