package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"glrssign/internal/document"
)

var (
	seedTenant    string
	seedCreatedBy string
)

var seedTemplatesCmd = &cobra.Command{
	Use:   "seed-templates <dir>",
	Short: "Load YAML template definitions into a tenant",
	Long: `Reads every *.yaml and *.yml file in <dir> as a template definition and
creates or updates the tenant's template of the same name. Updating bumps the
template version; agreements already sent keep their copy of the blocks.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := document.LoadDefinitionDir(args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no template definitions found in %s", args[0])
		}

		db, m, err := openStores()
		if err != nil {
			return err
		}
		defer db.Close()

		tenant, err := resolveTenant(m, seedTenant)
		if err != nil {
			return err
		}
		var createdBy *int
		if seedCreatedBy != "" {
			u, err := m.Users.GetByEmail(seedCreatedBy)
			if err != nil {
				return fmt.Errorf("user %s: %w", seedCreatedBy, err)
			}
			createdBy = &u.ID
		}

		for _, f := range files {
			tpl, created, err := m.Templates.UpsertDefinition(tenant.ID, f.Definition, createdBy)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Path, err)
			}
			verb := "updated"
			if created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %q v%d (%s)\n", verb, tpl.Name, tpl.Version, f.Path)
		}
		return nil
	},
}

func init() {
	seedTemplatesCmd.Flags().StringVar(&seedTenant, "tenant", "", "tenant id or slug")
	seedTemplatesCmd.Flags().StringVar(&seedCreatedBy, "created-by", "", "email of the staff user recorded as author")
	_ = seedTemplatesCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(seedTemplatesCmd)
}
