package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/api/handlers"
	"github.com/langchou/overmove/internal/api/locator"
	"github.com/langchou/overmove/internal/config"
	"github.com/langchou/overmove/internal/ingest"
	"github.com/langchou/overmove/internal/repository"
	"github.com/langchou/overmove/internal/service"
	"github.com/langchou/overmove/internal/store"
	"github.com/langchou/overmove/pkg/ws"
)

func serveCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder daemon with its HTTP/WebSocket control surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serve(cfg, logger)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.ServerPort, "port", cfg.ServerPort, "HTTP listen port")
	cmd.Flags().StringVar(&cfg.LocationProviderURL, "location-url", cfg.LocationProviderURL, "WebSocket location feed URL")
	return cmd
}

func serve(cfg *config.Config, logger *zap.Logger) {
	logger.Info("Starting overmove",
		zap.String("port", cfg.ServerPort),
		zap.String("data_dir", cfg.DataDir))

	// 创建 context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New()
	syncer := repository.NewSynchronizer(cfg.DataDir, st, logger)

	// 连接数据库 (可选镜像)
	if cfg.DatabaseURL != "" {
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect database", zap.Error(err))
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}

		mirror := repository.NewMirror(db.Pool, logger)
		syncer.SetReplicator(mirror)
		count, err := mirror.GeolocationCount(ctx)
		if err != nil {
			logger.Warn("Failed to count mirrored geolocations", zap.Error(err))
		}
		logger.Info("Database mirror enabled", zap.Int64("geolocations", count))
	}

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run(ctx)

	opts := []service.Option{service.WithHub(wsHub)}
	if cfg.LocationProviderURL != "" {
		permission, ok := ingest.ParsePermissionState(cfg.LocationPermission)
		if !ok {
			logger.Warn("Unknown location permission, falling back to prompt",
				zap.String("permission", cfg.LocationPermission))
			permission = ingest.PermissionPrompt
		}
		client := locator.NewClient(cfg.LocationProviderURL, permission, logger)
		opts = append(opts, service.WithProvider(client, cfg.WatchRetryInitial, cfg.WatchRetryMax))
	}

	tracker := service.NewTrackerService(logger, st, syncer, opts...)
	if err := tracker.Load(); err != nil {
		logger.Fatal("Failed to load list logs", zap.Error(err))
	}
	tracker.Start(ctx)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handlers.NewHandler(logger, tracker, wsHub).RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	<-ctx.Done()

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// 停止服务，写入剩余变更
	tracker.Stop()

	logger.Info("Server exited")
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
