/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/HSPiira/timeline-sub000/internal/api"
	"github.com/HSPiira/timeline-sub000/internal/config"
	"github.com/HSPiira/timeline-sub000/internal/container"
	"github.com/HSPiira/timeline-sub000/internal/metrics"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Timeline API server.
The server will listen on the configured host and port,
and provide REST API interfaces for event ingestion, schema
management, workflows and chain verification.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// 2. 初始化日志
		logger, err := api.NewLoggerFromConfig(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		// 3. 初始化容器(数据库、缓存、全部服务)
		ctr, err := container.NewContainer(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		// 4. 启动 WebSocket 事件分发
		go ctr.Hub().Run()

		// 5. 可选的分布式追踪
		if cfg.Tracing.Enabled {
			if err := api.InitTracing("timeline", cfg.Tracing.JaegerEndpoint); err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := api.ShutdownTracing(shutdownCtx); err != nil {
					logger.WithError(err).Warn("failed to shut down tracing")
				}
			}()
		}

		// 6. 配置热更新:运行中只允许调整日志级别
		watcher := config.NewConfigWatcher(cfg, configPath, logger)
		watcher.OnConfigChange(func(updated *config.Config) {
			level, err := logrus.ParseLevel(updated.Log.Level)
			if err != nil {
				logger.WithError(err).Warn("invalid log level in updated config, keeping current")
				return
			}
			logger.SetLevel(level)
			logger.WithField("level", updated.Log.Level).Info("log level updated")
		})
		if err := watcher.Start(); err != nil {
			logger.WithError(err).Warn("config watcher disabled")
		} else {
			defer watcher.Stop()
		}

		// 7. 设置路由
		router := api.SetupRoutes(&api.RouterDeps{
			DB:         ctr.DB(),
			RedisCache: ctr.RedisCache(),
			Validator:  ctr.Validator(),
			Hub:        ctr.Hub(),
			EventSvc:   ctr.EventService(),
			SchemaSvc:  ctr.SchemaService(),
			SubjectSvc: ctr.SubjectService(),
			Engine:     ctr.WorkflowEngine(),
			VerifySvc:  ctr.VerificationService(),
			AuditSvc:   ctr.AuditLogService(),
			StatsSvc:   ctr.StatisticsService(),
			CORS:       &cfg.CORS,
			Server:     &cfg.Server,
			Tracing:    cfg.Tracing.Enabled,
		})

		// 8. 周期性上报数据库连接池指标
		poolCollector := metrics.NewCollector(ctr.DB(), 15*time.Second)
		poolCollector.Start()
		defer poolCollector.Stop()

		// 9. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: router,
		}

		go func() {
			logger.WithField("addr", addr).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Fatal("failed to start server")
			}
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server")

		// 优雅关闭
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(err).Fatal("server forced to shutdown")
		}

		logger.Info("server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("config", "", "Config file path (default: config.yaml)")
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}

// LoadConfig 加载配置
func LoadConfig(configPath string) (*config.Config, error) {
	return config.Load(configPath)
}
