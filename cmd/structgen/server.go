package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/structgen/api/handlers"
	"github.com/BaSui01/structgen/config"
	"github.com/BaSui01/structgen/internal/cache"
	"github.com/BaSui01/structgen/internal/metrics"
	"github.com/BaSui01/structgen/internal/server"
	"github.com/BaSui01/structgen/internal/telemetry"
	"github.com/BaSui01/structgen/llm"
	"github.com/BaSui01/structgen/llm/circuitbreaker"
	"github.com/BaSui01/structgen/llm/providers/openaicompat"
	"github.com/BaSui01/structgen/structured"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 structgen 的主服务器
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers

	// metricsNamespace 指标命名空间，测试中替换以避免重复注册
	metricsNamespace string

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 生成管线
	provider  llm.Provider
	generator *structured.Generator
	cache     *cache.Manager

	// Handlers
	healthHandler   *handlers.HealthHandler
	generateHandler *handlers.GenerateHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:              cfg,
		logger:           logger,
		telemetry:        otelProviders,
		metricsNamespace: "structgen",
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化依赖并启动所有监听（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector(s.metricsNamespace, s.logger)

	// 2. 初始化生成管线与 Handlers
	if err := s.initHandlers(ctx); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 3. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 4. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		_ = s.httpManager.Shutdown(ctx)
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("cache_enabled", s.cache != nil),
		zap.Bool("telemetry_enabled", s.telemetry.Enabled()),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initHandlers 组装 Provider → Invoker → Generator 并创建 Handlers
func (s *Server) initHandlers(ctx context.Context) error {
	llmCfg := s.cfg.LLM

	base := openaicompat.New(openaicompat.Config{
		ProviderName: llmCfg.Provider,
		APIKey:       llmCfg.APIKey,
		BaseURL:      llmCfg.BaseURL,
		DefaultModel: llmCfg.Model,
		Timeout:      llmCfg.Timeout,
	}, s.logger)
	var p llm.Provider = base
	if cb := llmCfg.CircuitBreaker; cb.Enabled {
		p = circuitbreaker.WrapProvider(p, circuitbreaker.New(circuitbreaker.Config{
			Threshold:        cb.Threshold,
			ResetTimeout:     cb.ResetTimeout,
			HalfOpenMaxCalls: cb.HalfOpenMaxCalls,
		}, s.logger))
	}
	s.provider = metrics.InstrumentProvider(p, s.metricsCollector)

	invoker := structured.NewInvoker(s.provider, llmCfg.JSONMode, llmCfg.Timeout, s.logger)

	opts := []structured.Option{structured.WithRecorder(s.metricsCollector)}
	if s.cfg.Cache.Enabled {
		if err := s.initCache(ctx); err != nil {
			// 缓存是可选加速层，不可用时继续提供服务
			s.logger.Warn("Result cache not available, continuing without cache", zap.Error(err))
		} else {
			opts = append(opts, structured.WithCache(cache.NewResultStore(s.cache, s.logger)))
		}
	}

	s.generator = structured.NewGenerator(structured.Config{
		DefaultModel:     llmCfg.Model,
		MaxTokens:        llmCfg.MaxTokens,
		ContextMaxFields: s.cfg.Generation.ContextMaxFields,
		CacheTTL:         s.cfg.Cache.TTL,
	}, invoker, s.logger, opts...)

	validator, err := handlers.NewRequestValidator()
	if err != nil {
		return err
	}
	s.generateHandler = handlers.NewGenerateHandler(s.generator, validator, s.cfg.Server.CORSAllowedOrigins, s.logger)

	s.healthHandler = handlers.NewHealthHandler(llmCfg.Model, s.generator.ContextMaxFields(), s.logger)
	s.healthHandler.RegisterCheck(handlers.NewProviderCheck(s.provider))
	if s.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewFuncCheck("redis", s.cache.Ping))
	}

	s.logger.Info("Handlers initialized",
		zap.String("provider", base.Name()),
		zap.String("model", llmCfg.Model),
		zap.Int("context_max_fields", s.generator.ContextMaxFields()),
	)
	return nil
}

// initCache 连接 Redis 结果缓存
func (s *Server) initCache(ctx context.Context) error {
	c := s.cfg.Cache
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = c.Addr
	cacheCfg.Password = c.Password
	cacheCfg.DB = c.DB
	cacheCfg.TLS = c.TLS
	if c.TTL > 0 {
		cacheCfg.DefaultTTL = c.TTL
	}
	if c.PoolSize > 0 {
		cacheCfg.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		cacheCfg.MinIdleConns = c.MinIdleConns
	}

	manager, err := cache.NewManager(ctx, cacheCfg, s.logger)
	if err != nil {
		return err
	}
	s.cache = manager
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// skipAuthPaths 探针与版本端点不需要认证
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// routes 注册业务与探针路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 生成端点
	mux.HandleFunc("POST /generate_structured", s.generateHandler.HandleGenerate)
	mux.HandleFunc("POST /generate_structured_stream", s.generateHandler.HandleStream)
	mux.HandleFunc("GET /generate_structured_ws", s.generateHandler.HandleWebSocket)

	return mux
}

// buildHandler 构建中间件链
func (s *Server) buildHandler(rateLimiterCtx context.Context) http.Handler {
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		Metrics(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger))
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		middlewares = append(middlewares,
			APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger))
	}
	if s.cfg.JWT.Enabled() {
		middlewares = append(middlewares, JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger))
	}
	return Chain(s.routes(), middlewares...)
}

// startHTTPServer 启动业务 HTTP 服务器
func (s *Server) startHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	serverConfig := server.Config{
		Addr:            s.cfg.Server.Addr(),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager("api", s.buildHandler(rateLimiterCtx), serverConfig, s.logger)
	return s.httpManager.Start()
}

// startMetricsServer 启动 Metrics 服务器，端口为 0 时跳过
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.MetricsPort)),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager("metrics", mux, serverConfig, s.logger)
	return s.metricsManager.Start()
}

// HTTPAddr 返回业务端口的实际监听地址
func (s *Server) HTTPAddr() string {
	if s.httpManager == nil {
		return ""
	}
	return s.httpManager.Addr()
}

// =============================================================================
// 🛑 运行与关闭
// =============================================================================

// Run 阻塞直到 ctx 取消或任一监听异常退出，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case serveErr = <-s.httpManager.Errors():
	case serveErr = <-s.metricsErrors():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()
	return errors.Join(serveErr, s.Shutdown(shutdownCtx))
}

// metricsErrors Metrics 服务器未启动时返回永不就绪的通道
func (s *Server) metricsErrors() <-chan error {
	if s.metricsManager == nil {
		return nil
	}
	return s.metricsManager.Errors()
}

// Shutdown 并行关闭 HTTP、Metrics 与遥测，最后关闭缓存
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Starting graceful shutdown...")

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.httpManager != nil {
		g.Go(func() error { return s.httpManager.Shutdown(gctx) })
	}
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Shutdown(gctx) })
	}
	if s.telemetry != nil {
		g.Go(func() error { return s.telemetry.Shutdown(gctx) })
	}
	err := g.Wait()

	// 进行中的请求结束后再关闭缓存
	if s.cache != nil {
		if cerr := s.cache.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close cache: %w", cerr))
		}
	}

	if err != nil {
		s.logger.Error("Graceful shutdown finished with errors", zap.Error(err))
		return err
	}
	s.logger.Info("Graceful shutdown completed")
	return nil
}
