// Command glrsctl runs operator tasks against the agreements database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"glrssign/internal/database"
	"glrssign/internal/models"
)

var rootCmd = &cobra.Command{
	Use:          "glrsctl",
	Short:        "Operate the GLRS agreements service",
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openStores connects using DB_STRING and layers the gorm models on top.
func openStores() (database.Service, *models.DB, error) {
	db := database.New()
	m, err := models.NewDB(db.DB())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, m, nil
}

// resolveTenant accepts a tenant id or slug.
func resolveTenant(m *models.DB, ref string) (*models.Tenant, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return m.Tenants.Get(id)
	}
	t, err := m.Tenants.GetBySlug(ref)
	if err != nil {
		return nil, fmt.Errorf("tenant %q: %w", ref, err)
	}
	return t, nil
}
