package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/config"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/database"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/export"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newExportCommand() *cobra.Command {
	var (
		monthID     string
		layout      string
		outDir      string
		responsible string
	)
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write a month export to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadStorage(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := openDatabase(appConfig, logger)
			if err != nil {
				return err
			}
			defer database.Close(db) //nolint:errcheck

			tireService, err := tires.NewService(tires.ServiceConfig{
				Database:   db,
				Clock:      time.Now,
				IDProvider: tires.NewUUIDProvider(),
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			exporter, err := newExporter(appConfig, tireService, logger, nil)
			if err != nil {
				return err
			}

			if layout == "" {
				layout = appConfig.ExportLayout
			}
			parsedLayout, err := export.ParseLayout(layout)
			if err != nil {
				return err
			}
			id, err := tires.NewMonthID(monthID)
			if err != nil {
				return err
			}
			artifact, err := exporter.Export(cmd.Context(), id, parsedLayout, responsible)
			if err != nil {
				return err
			}

			target := filepath.Join(outDir, artifact.Filename)
			if err := afero.WriteFile(afero.NewOsFs(), target, artifact.Body, 0o644); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%d pneus)\n", target, artifact.TireCount)
			return err
		},
	}
	exportCmd.Flags().StringVar(&monthID, "mes", "", "Month id to export")
	exportCmd.Flags().StringVar(&layout, "layout", "", "Export layout (report, table)")
	exportCmd.Flags().StringVar(&outDir, "out", ".", "Directory the file is written to")
	exportCmd.Flags().StringVar(&responsible, "responsavel", "", "Name printed as the responsible person")
	_ = exportCmd.MarkFlagRequired("mes")
	return exportCmd
}
