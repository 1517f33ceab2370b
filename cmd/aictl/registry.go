package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perculacms/aicore/internal/config"
	"github.com/perculacms/aicore/internal/store"
)

func newRegistryCmd(c *cli) *cobra.Command {
	reg := &cobra.Command{
		Use:   "registry",
		Short: "Manage the provider and model registry",
	}
	reg.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Create or update providers and models from a YAML file",
		Long: "Import upserts providers by name and models by provider and model id,\n" +
			"so the same file can be applied repeatedly. Credentials may be given as ${VAR}.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rf, err := config.LoadRegistryFile(args[0])
			if err != nil {
				return err
			}

			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := store.ImportRegistry(cmd.Context(), st, rf)
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d providers, %d models\n", res.Providers, res.Models)
			return nil
		},
	})
	return reg
}
