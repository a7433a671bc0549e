package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/common/logger"
	"github.com/Kaiettt/iot-fall-detection/internal/config"
	"github.com/Kaiettt/iot-fall-detection/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	var logOpts []logger.Option
	if cfg.Log.File != "" {
		logOpts = append(logOpts,
			logger.WithFile(cfg.Log.File),
			logger.WithRotation(cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays),
		)
	}
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "fallwatch", logOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting fallwatch service",
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("timezone", cfg.Timezone),
	)

	svc, err := service.NewFallwatchService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create fallwatch service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Start(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			log.Error("Service error", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping service", zap.Error(err))
	}

	log.Info("Service stopped")
}
