// Package http 提供葡萄酒质量预测的HTTP服务
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"winequality/db"
	"winequality/predictor"
	"winequality/wine"
)

// Predictor 预测器接口
type Predictor interface {
	Predict(s wine.Sample) (predictor.Result, error)
	Scheme() wine.Scheme
	ModelType() string
}

// HistoryStore 预测历史存储接口
type HistoryStore interface {
	SavePrediction(rec db.PredictionRecord) (db.PredictionRecord, error)
	RecentPredictions(limit int) ([]db.PredictionRecord, error)
}

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            int
	Timeout         time.Duration
	AllowOutOfRange bool
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:    8080,
		Timeout: 10 * time.Second,
	}
}

// NewServer 创建HTTP服务器，store为nil时禁用预测历史
func NewServer(config ServerConfig, pred Predictor, store HistoryStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultServerConfig().Timeout
	}

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      NewHandler(config, pred, store, logger),
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout + time.Second,
			IdleTimeout:  120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// NewHandler 构建带中间件链的路由，logger为nil时不输出日志
func NewHandler(config ServerConfig, pred Predictor, store HistoryStore, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultServerConfig().Timeout
	}
	mux := http.NewServeMux()
	h := newHandlers(pred, store, logger, config.AllowOutOfRange)
	h.register(mux)

	chain := Chain(
		RecoveryMiddleware(logger),        // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(logger),          // 2. 请求ID与访问日志
		SecurityHeadersMiddleware,         // 3. 安全头中间件
		RequestSizeMiddleware(1<<20),      // 4. 请求体大小限制
		TimeoutMiddleware(config.Timeout), // 5. 超时中间件
	)
	return chain(mux)
}

// Start 启动服务器，阻塞直到调用Stop或监听失败
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
