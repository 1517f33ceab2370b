package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/perculacms/aicore/internal/auth"
	"github.com/perculacms/aicore/internal/ratelimit"
)

func newKeysCmd(c *cli) *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Issue and revoke API keys",
	}
	keys.AddCommand(newKeysCreateCmd(c), newKeysRevokeCmd(c))
	return keys
}

func newKeysCreateCmd(c *cli) *cobra.Command {
	var (
		principal   string
		name        string
		env         string
		expires     string
		rpm         int
		dailyBudget string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for a principal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dur, err := auth.ParseDuration(expires)
			if err != nil {
				return fmt.Errorf("invalid --expires: %w", err)
			}
			raw, err := auth.GenerateKey(env)
			if err != nil {
				return err
			}

			key := auth.NewKey{
				ID:        uuid.NewString(),
				Hash:      auth.HashKey(raw),
				Prefix:    auth.KeyPrefix(raw),
				Principal: principal,
				Name:      name,
				ExpiresAt: time.Now().Add(dur),
			}
			if cmd.Flags().Changed("rpm") {
				if rpm <= 0 {
					return fmt.Errorf("--rpm must be positive")
				}
				key.RPMLimit = &rpm
			}
			if dailyBudget != "" {
				usd, err := decimal.NewFromString(dailyBudget)
				if err != nil || !usd.IsPositive() {
					return fmt.Errorf("--daily-budget must be a positive USD amount")
				}
				micros := ratelimit.ToMicros(usd)
				key.DailySpendLimitMicros = &micros
			}

			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.CreateKey(cmd.Context(), key); err != nil {
				return fmt.Errorf("create key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  Key ID:     %s\n", key.ID)
			fmt.Fprintf(out, "  Key Prefix: %s\n", key.Prefix)
			fmt.Fprintf(out, "  Principal:  %s\n", key.Principal)
			fmt.Fprintf(out, "  Name:       %s\n", key.Name)
			if key.RPMLimit != nil {
				fmt.Fprintf(out, "  RPM Limit:  %d\n", *key.RPMLimit)
			}
			if key.DailySpendLimitMicros != nil {
				fmt.Fprintf(out, "  Daily USD:  %s\n", dailyBudget)
			}
			fmt.Fprintf(out, "  Expires:    %s\n\n", key.ExpiresAt.Format(time.RFC3339))
			fmt.Fprintln(out, "  API Key (shown once, store it now):")
			fmt.Fprintf(out, "  %s\n", raw)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&principal, "principal", "", "CMS user or service the key acts for")
	f.StringVar(&name, "name", "", "human-friendly key name")
	f.StringVar(&env, "env", "prod", "environment label embedded in the key")
	f.StringVar(&expires, "expires", "365d", "expiry duration (e.g. 365d, 720h)")
	f.IntVar(&rpm, "rpm", 0, "requests per minute (default from ratelimit.default_rpm)")
	f.StringVar(&dailyBudget, "daily-budget", "", "daily spend limit in USD")
	cmd.MarkFlagRequired("principal")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newKeysRevokeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.RevokeKey(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("revoke key %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}
}
