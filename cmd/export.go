/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/HSPiira/timeline-sub000/internal/config"
	"github.com/HSPiira/timeline-sub000/internal/database"
	"github.com/HSPiira/timeline-sub000/internal/service"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <tenant-id>",
	Short: "Export a tenant's full ledger",
	Long: `Export all event chains of a tenant to a compressed JSON Lines file.
Events are written per subject in chain order, so the file can be
replayed or re-verified offline.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID := args[0]

		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// 2. 连接数据库
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				sqlDB.Close()
			}
		}()

		// 3. 执行导出
		outputDir, _ := cmd.Flags().GetString("output-dir")
		exportSvc := service.NewExportService(db, outputDir)

		log.Printf("Exporting ledger for tenant %s ...", tenantID)
		path, err := exportSvc.ExportTenant(context.Background(), tenantID)
		if err != nil {
			return fmt.Errorf("failed to export tenant: %w", err)
		}

		log.Printf("Export written to %s", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("config", "", "Config file path (default: config.yaml)")
	exportCmd.Flags().String("output-dir", "./exports", "Directory to write export files to")
}
