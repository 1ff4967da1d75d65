package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"glrssign/internal/models"
)

var (
	tenantSlug        string
	tenantDescription string
	tenantTTLDays     int
	grantRole         string
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, m, err := openStores()
		if err != nil {
			return err
		}
		defer db.Close()

		t := &models.Tenant{
			Name:        args[0],
			Slug:        tenantSlug,
			Description: tenantDescription,
			Settings:    models.JSONB{},
			IsActive:    true,
		}
		if tenantTTLDays > 0 {
			t.Settings["agreement_ttl_days"] = tenantTTLDays
		}
		if err := m.Tenants.Create(t); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", t.ID, t.Slug)
		return nil
	},
}

var grantCmd = &cobra.Command{
	Use:   "grant <tenant> <email>",
	Short: "Give a staff user access to a tenant",
	Long: `Adds or reactivates the membership of a staff user. The user must have
signed in at least once so their account exists.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role := models.MembershipRole(grantRole)
		if !role.Valid() {
			return fmt.Errorf("unknown role %q (admin, staff or viewer)", grantRole)
		}

		db, m, err := openStores()
		if err != nil {
			return err
		}
		defer db.Close()

		tenant, err := resolveTenant(m, args[0])
		if err != nil {
			return err
		}
		user, err := m.Users.GetByEmail(args[1])
		if err != nil {
			return fmt.Errorf("user %s: %w", args[1], err)
		}
		membership, err := m.Tenants.AddMember(tenant, user, role)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is %s of %s\n", user.Email, membership.Role, tenant.Slug)
		return nil
	},
}

func init() {
	tenantCreateCmd.Flags().StringVar(&tenantSlug, "slug", "", "URL slug, generated when empty")
	tenantCreateCmd.Flags().StringVar(&tenantDescription, "description", "", "free-form description")
	tenantCreateCmd.Flags().IntVar(&tenantTTLDays, "agreement-ttl-days", 0, "default agreement lifetime, service default when zero")
	tenantCmd.AddCommand(tenantCreateCmd)

	grantCmd.Flags().StringVar(&grantRole, "role", string(models.RoleStaff), "membership role")

	rootCmd.AddCommand(tenantCmd, grantCmd)
}
