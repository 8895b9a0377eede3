package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/querybridge/querybridge/internal/auth"
	"github.com/querybridge/querybridge/internal/catalog"
	"github.com/querybridge/querybridge/internal/executor"
	"github.com/querybridge/querybridge/internal/procrun"
	"github.com/querybridge/querybridge/internal/secrets"
	"github.com/querybridge/querybridge/internal/server"
	"github.com/querybridge/querybridge/internal/telemetry"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("QUERYBRIDGE_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	port := envOrDefault("QUERYBRIDGE_PORT", "8443")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	secretKeyHex := os.Getenv("QUERYBRIDGE_SECRET_KEY")
	authCacheTTL := envOrDefaultInt("QUERYBRIDGE_AUTH_CACHE_TTL_S", 30)
	collectorCacheTTL := envOrDefaultInt("QUERYBRIDGE_COLLECTOR_CACHE_TTL_S", 60)

	logger.Info("starting querybridge server",
		zap.String("port", port),
		zap.Bool("postgres", postgresDSN != ""),
		zap.Bool("clickhouse", clickhouseDSN != ""),
	)

	// Catalog — Postgres if DSN provided, otherwise in-memory (dev mode)
	var store catalog.Store
	if postgresDSN != "" {
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
		store = catalog.NewPostgresStore(catalog.PostgresStoreConfig{
			DB:       db,
			CacheTTL: time.Duration(collectorCacheTTL) * time.Second,
			Logger:   logger,
		})
		logger.Info("postgres catalog connected")
	} else {
		store = catalog.NewMemoryStore()
		logger.Info("no POSTGRES_DSN set, using in-memory catalog")
	}

	// Telemetry — ClickHouse or LogWriter fallback
	var writer telemetry.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := telemetry.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = telemetry.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = telemetry.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Auth — Postgres if DSN provided, otherwise static (dev mode)
	var authenticator auth.Authenticator
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres for auth", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: time.Duration(authCacheTTL) * time.Second,
			FailOpen: true,
			Logger:   logger,
		})
		logger.Info("postgres authenticator connected")
	} else {
		authenticator = auth.NewStaticAuthenticator()
		logger.Info("using static authenticator (no POSTGRES_DSN)")
	}

	// Credential cipher — optional; credential endpoints require it
	var cipher *secrets.Cipher
	if secretKeyHex != "" {
		c, err := secrets.NewCipherFromHex(secretKeyHex)
		if err != nil {
			logger.Fatal("invalid QUERYBRIDGE_SECRET_KEY", zap.Error(err))
		}
		cipher = c
	} else {
		logger.Warn("no QUERYBRIDGE_SECRET_KEY set, credential endpoints disabled")
	}

	// Execution engine
	runner := procrun.NewExecRunner(logger)
	exec := executor.New(store, runner, logger)

	srv := server.New(store, exec, writer, authenticator, cipher, logger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("querybridge server listening", zap.String("addr", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server failed", zap.Error(err))
	}
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
