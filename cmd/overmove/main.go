package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/overmove/internal/config"
	"github.com/langchou/overmove/internal/repository"
	"github.com/langchou/overmove/internal/service"
	"github.com/langchou/overmove/internal/store"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	if err := rootCommand(cfg, logger).Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "overmove",
		Short:        "Record travels as moves built from location samples",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding the list logs")

	root.AddCommand(
		serveCommand(cfg, logger),
		exportCommand(cfg, logger),
		importCommand(cfg, logger),
		migrateCommand(logger),
		statsCommand(cfg, logger),
	)
	return root
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// openTracker 加载列表日志，供离线命令使用
func openTracker(cfg *config.Config, logger *zap.Logger) (*service.TrackerService, error) {
	st := store.New()
	syncer := repository.NewSynchronizer(cfg.DataDir, st, logger)
	tracker := service.NewTrackerService(logger, st, syncer)
	if err := tracker.Load(); err != nil {
		return nil, fmt.Errorf("load data from %s: %w", cfg.DataDir, err)
	}
	return tracker, nil
}
