package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/perculacms/aicore/internal/agents"
	"github.com/perculacms/aicore/internal/router"
	"github.com/perculacms/aicore/internal/types"
)

const cliPrincipal = "aictl"

func newGenerateCmd(c *cli) *cobra.Command {
	var provider, model, agent string

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Send a single prompt through the router",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := router.ChatParams{ModelID: model, AgentLabel: agent, Principal: cliPrincipal}
			if provider != "" {
				vt, ok := types.ParseVendorType(provider)
				if !ok {
					return fmt.Errorf("unknown provider %q", provider)
				}
				params.VendorType = vt
			}

			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.Router.Generate(cmd.Context(), strings.Join(args, " "), params)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.TrimSpace(resp.Text))
			fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s %s, job %s, cost %s]\n", resp.VendorType, resp.Model, resp.JobID, price(resp.Cost))
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "vendor hint: openai, gemini or claude")
	cmd.Flags().StringVar(&model, "model", "", "model hint (used with --provider)")
	cmd.Flags().StringVar(&agent, "agent", "", "agent label recorded on the job")
	return cmd
}

func newAgentsCmd(c *cli) *cobra.Command {
	agentsCmd := &cobra.Command{
		Use:   "agents",
		Short: "List and run catalog agents",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List agents in the catalog directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := agents.NewCatalog(c.cfg.Agents.Dir, c.logger)
			if err := catalog.Reload(); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tVENDOR\tMODEL\tNAME")
			for _, d := range catalog.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.VendorType, d.Model, d.Name)
			}
			return tw.Flush()
		},
	}

	var (
		input    string
		contexts map[string]string
	)
	run := &cobra.Command{
		Use:   "run <agent-id>",
		Short: "Run an agent on the given input",
		Long: "Run an agent. --input is parsed as JSON when possible and passed as\n" +
			"text otherwise; use --input - to read it from stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				input = string(b)
			}
			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("--input is required")
			}

			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Agents.Run(cmd.Context(), args[0], agents.RunInput{
				Input:     parseInput(input),
				Context:   contexts,
				Principal: cliPrincipal,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.OutputText)
			fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s %s, job %s]\n", res.VendorType, res.Model, res.JobID)
			return nil
		},
	}
	run.Flags().StringVar(&input, "input", "", "agent input (JSON or text, - for stdin)")
	run.Flags().StringToStringVar(&contexts, "context", nil, "context entries as key=value")

	agentsCmd.AddCommand(list, run)
	return agentsCmd
}

// parseInput returns structured JSON input when s is a JSON object or array.
func parseInput(s string) any {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return s
}
