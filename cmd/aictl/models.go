package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/perculacms/aicore/internal/router"
	"github.com/perculacms/aicore/internal/types"
)

func newModelsCmd(c *cli) *cobra.Command {
	models := &cobra.Command{
		Use:   "models",
		Short: "Inspect registered models",
	}

	var (
		all      bool
		provider string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List models in resolution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := router.ModelFilter{}
			if provider != "" {
				vt, ok := types.ParseVendorType(provider)
				if !ok {
					return fmt.Errorf("unknown provider %q", provider)
				}
				filter.VendorType = vt
			}

			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			var rows []types.ResolvedModel
			if all {
				rows, err = st.ListModels(cmd.Context())
			} else {
				rows, err = st.ActiveModels(cmd.Context(), filter)
			}
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROVIDER\tVENDOR\tMODEL\tNAME\tINPUT/1M\tOUTPUT/1M\tACTIVE")
			for _, m := range rows {
				if filter.VendorType != "" && m.Provider.VendorType != filter.VendorType {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
					m.Provider.Name, m.Provider.VendorType, m.Model.ModelID, m.Model.Name,
					price(m.Model.InputPricePerMillion), price(m.Model.OutputPricePerMillion),
					m.Model.Active && m.Provider.Active)
			}
			return tw.Flush()
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include inactive models and providers")
	list.Flags().StringVar(&provider, "provider", "", "only models of this vendor")
	models.AddCommand(list)
	return models
}

func price(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}
