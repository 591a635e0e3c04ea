package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agentconsole/internal/gateway"
	"agentconsole/internal/plansync"
	"agentconsole/internal/types"
)

// systemActor is the actor privileged functions run as from the CLI.
var systemActor = types.SystemActor("planctl")

func newRootCmd(wire wireFunc) *cobra.Command {
	var verbose bool
	var be *backend

	rootCmd := &cobra.Command{
		Use:          "planctl",
		Short:        "Operate agent console plans",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			b, err := wire(cmd.Context(), logger)
			if err != nil {
				return err
			}
			be = b
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if be == nil || be.Close == nil {
				return nil
			}
			return be.Close(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level to stderr")

	get := func() *backend { return be }
	rootCmd.AddCommand(
		newMigrateCmd(get),
		newCatalogCmd(get),
		newReconcileCmd(get),
		newSetLimitCmd(get),
		newCreateAdminCmd(get),
		newResyncCmd(get),
		newPurgeSessionsCmd(get),
	)
	return rootCmd
}

func newMigrateCmd(be func() *backend) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := be().Migrate(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return err
		},
	}
}

func newPurgeSessionsCmd(be func() *backend) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-sessions",
		Short: "Delete expired login sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := be()
			n, err := b.PurgeSessions(cmd.Context(), b.Clock.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired sessions\n", n)
			return err
		},
	}
}

func newCatalogCmd(be func() *backend) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the plan catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries := be().Catalog.Tiers()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIER\tNAME\tPRICE\tAGENTS\tTRIAL DAYS")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t$%d.%02d\t%d\t%d\n",
					e.Tier, e.Name, e.MonthlyPriceCents/100, e.MonthlyPriceCents%100, e.AgentLimit, e.TrialDays)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newReconcileCmd(be func() *backend) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile one user's plan and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := be().Sync.Sync(cmd.Context(), userID, plansync.Trigger{Kind: types.TriggerManual})
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Outcome == types.SyncFailed {
				return fmt.Errorf("reconcile of %s failed", userID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSetLimitCmd(be func() *backend) *cobra.Command {
	var (
		userID string
		limit  int
		clear  bool
	)
	cmd := &cobra.Command{
		Use:   "set-limit",
		Short: "Override or clear a user's agent limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload := map[string]any{"user_id": userID, "clear": clear}
			switch {
			case clear && cmd.Flags().Changed("limit"):
				return errors.New("--limit and --clear are mutually exclusive")
			case !clear && !cmd.Flags().Changed("limit"):
				return errors.New("one of --limit or --clear is required")
			case !clear:
				if limit < 0 || limit > types.MaxAdminAgentLimit {
					return fmt.Errorf("--limit must be between 0 and %d", types.MaxAdminAgentLimit)
				}
				payload["limit"] = limit
			}
			return invoke(cmd, be(), gateway.FnSetAgentLimit, payload)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "agent limit override")
	cmd.Flags().BoolVar(&clear, "clear", false, "remove the override and fall back to the plan's limit")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newCreateAdminCmd(be func() *backend) *cobra.Command {
	var email, password, role, groupID string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator, creating the user if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload := map[string]any{"email": email, "role": role}
			if password != "" {
				payload["password"] = password
			}
			if groupID != "" {
				payload["group_id"] = groupID
			}
			return invoke(cmd, be(), gateway.FnCreateAdmin, payload)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "administrator email")
	cmd.Flags().StringVar(&password, "password", "", "password for a newly created user")
	cmd.Flags().StringVar(&role, "role", string(types.AdminRoleMaster), "master or group")
	cmd.Flags().StringVar(&groupID, "group", "", "group ID, required for group administrators")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newResyncCmd(be func() *backend) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Queue a background reconcile for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return invoke(cmd, be(), gateway.FnRequestResync, map[string]any{"user_id": userID})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func invoke(cmd *cobra.Command, be *backend, name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	out, err := be.Gateway.Invoke(cmd.Context(), systemActor, name, raw)
	if err != nil {
		return err
	}
	var pretty any
	if err := json.Unmarshal(out, &pretty); err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), pretty)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
