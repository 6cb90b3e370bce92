package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"winequality/config"
	"winequality/db"
	httpapi "winequality/http"
	"winequality/predictor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the prediction form and JSON API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "Listen port (overrides http.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Http.Port = port
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	// Artifacts must load before the listener opens.
	pred, artifact, err := predictor.Load(cfg.Artifacts.ScalerPath, cfg.Artifacts.ModelPath,
		predictor.WithCache(cfg.Predictor.CacheSize))
	if err != nil {
		return fmt.Errorf("load artifacts (run `winequality train` first): %w", err)
	}
	logger.Info("artifacts loaded",
		zap.String("model", artifact.Model.Type()),
		zap.String("scheme", artifact.Scheme.Name()),
		zap.Time("trained_at", artifact.TrainedAt),
	)

	var store httpapi.HistoryStore
	if cfg.Database.Path != "" {
		s, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()
		store = s
		logger.Info("prediction history enabled", zap.String("path", cfg.Database.Path))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = config.Watch(ctx, configPath, func(c *config.Config) {
		if err := logger.SetLevel(c.Log.Level); err != nil {
			logger.Warn("ignoring log level from reloaded config", zap.Error(err))
		}
	}, func(err error) {
		logger.Warn("config reload failed", zap.Error(err))
	})
	if err != nil {
		logger.Warn("config watch disabled", zap.Error(err))
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Port:            cfg.Http.Port,
		Timeout:         cfg.Http.Timeout,
		AllowOutOfRange: cfg.Predictor.AllowOutOfRange,
	}, pred, store, logger.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return server.Stop(context.Background())
}
