/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/covidtrack/apiserver/config"
	"github.com/covidtrack/apiserver/internal/db"
	"github.com/covidtrack/apiserver/internal/logging"
	"github.com/covidtrack/apiserver/internal/services"
	"github.com/covidtrack/apiserver/internal/storage"
	"github.com/covidtrack/apiserver/internal/store"
	"github.com/spf13/cobra"
)

// exportCmd writes a snapshot of all observations and per-country stats to
// the configured object store.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export observations and country stats to object storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(serviceName, cfg.LogLevel)
		ctx := cmd.Context()

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		objects, err := storage.NewFromConfig(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure bucket %s: %w", objects.Bucket(), err)
		}

		exporter := services.NewExportService(store.NewObservationRepository(dbConn), objects)
		result, err := exporter.Export(ctx, time.Now())
		if err != nil {
			return err
		}

		logger.Info("export complete",
			"bucket", objects.Bucket(),
			"observations", result.ObservationsKey,
			"stats", result.StatsKey,
			"rows", result.Rows,
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
