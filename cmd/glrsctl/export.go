package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"glrssign/internal/config"
	"glrssign/internal/database"
	"glrssign/internal/export"
	"glrssign/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export <agreement-id>",
	Short: "Export a completed agreement's PDF to object storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		s3Service, err := storage.NewS3Service(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		db := database.New()
		defer db.Close()

		a, err := db.GetAgreement(ctx, args[0])
		if err != nil {
			return err
		}
		exporter := export.NewExporter(export.NewHTTPRenderer(cfg.RendererURL, cfg.RendererTimeout), s3Service, db)
		art, err := exporter.Export(ctx, a)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\nsha256 %s\n%d bytes\n", art.Key, art.Hash, art.Size)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
