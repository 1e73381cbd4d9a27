package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/eric0324/falcon-bridge/internal/api"
	"github.com/eric0324/falcon-bridge/internal/authz"
	"github.com/eric0324/falcon-bridge/internal/bridge"
	"github.com/eric0324/falcon-bridge/internal/chread"
	"github.com/eric0324/falcon-bridge/internal/executor"
	"github.com/eric0324/falcon-bridge/internal/registry"
	"github.com/eric0324/falcon-bridge/internal/resolver"
	"github.com/eric0324/falcon-bridge/internal/session"
	"github.com/eric0324/falcon-bridge/internal/storage"
	"github.com/eric0324/falcon-bridge/internal/store"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("BRIDGE_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("BRIDGE_HTTP_PORT", "8080")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	authCacheTTL := envOrDefaultInt("BRIDGE_AUTH_CACHE_TTL_S", 30)
	ruleCacheTTL := envOrDefaultInt("BRIDGE_RULE_CACHE_TTL_S", 30)
	toolCacheTTL := envOrDefaultInt("BRIDGE_TOOL_CACHE_TTL_S", 60)
	sessionTTL := envOrDefaultInt("BRIDGE_SESSION_TTL_S", 900)
	execTimeoutMs := envOrDefaultInt("BRIDGE_EXEC_TIMEOUT_MS", 10_000)
	sessionSecret := os.Getenv("BRIDGE_SESSION_SECRET")

	logger.Info("starting bridge server",
		zap.String("http_port", httpPort),
		zap.Int("rule_cache_ttl_s", ruleCacheTTL),
		zap.Int("session_ttl_s", sessionTTL),
		zap.Int("exec_timeout_ms", execTimeoutMs),
	)

	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	if sessionSecret == "" {
		logger.Fatal("BRIDGE_SESSION_SECRET is required")
	}

	// Postgres pool
	db, err := sql.Open("pgx", postgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	pgStore := store.NewStore(db)
	logger.Info("postgres connected")

	// Registry, resolver, authorizer
	reg := registry.NewPostgresRegistry(registry.PostgresRegistryConfig{
		DB:      db,
		RuleTTL: time.Duration(ruleCacheTTL) * time.Second,
		ToolTTL: time.Duration(toolCacheTTL) * time.Second,
		Logger:  logger,
	})
	res := resolver.New(reg, reg, logger)
	auth := authz.New(res)

	// Executors by source type
	execTimeout := time.Duration(execTimeoutMs) * time.Millisecond
	sqlExec := executor.NewSQLExecutor(logger)
	restExec := executor.NewRESTExecutor(execTimeout, logger)

	dispatcher := executor.NewDispatcher()
	dispatcher.Register(registry.SourcePostgres, sqlExec)
	dispatcher.Register(registry.SourceRESTAPI, restExec)

	// Decision events: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// ClickHouse reader (for events/analytics HTTP endpoints)
	var chReader *chread.Reader
	if clickhouseDSN != "" {
		chReader, err = chread.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	// Bridge sessions
	issuer, err := session.NewIssuer([]byte(sessionSecret), time.Duration(sessionTTL)*time.Second)
	if err != nil {
		logger.Fatal("failed to create session issuer", zap.Error(err))
	}

	// Bridge message validator + handler
	validator, err := bridge.NewValidator()
	if err != nil {
		logger.Fatal("failed to compile bridge message schema", zap.Error(err))
	}
	bridgeHandler := bridge.NewHandler(auth, reg, dispatcher, writer, validator, logger)

	// HTTP server
	deps := &api.Dependencies{
		Store:      pgStore,
		Registry:   reg,
		Resolver:   res,
		Bridge:     bridgeHandler,
		Sessions:   issuer,
		Reader:     chReader,
		Logger:     logger,
		CacheTTL:   time.Duration(authCacheTTL) * time.Second,
		SessionTTL: time.Duration(sessionTTL) * time.Second,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	sqlExec.Close()

	logger.Info("bridge server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
