package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	internalhttp "github.com/smartwatts/device-verification/internal/api/http"
	"github.com/smartwatts/device-verification/internal/api/http/handler"
	"github.com/smartwatts/device-verification/internal/audit"
	"github.com/smartwatts/device-verification/internal/db"
	"github.com/smartwatts/device-verification/internal/record"
	"github.com/smartwatts/device-verification/internal/registry"
	"github.com/smartwatts/device-verification/internal/token"
	"github.com/smartwatts/device-verification/internal/verification"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Device Verification Server", "version", AppVersion)

	var (
		store    record.Store
		sink     audit.Sink
		trail    audit.Reader
		reg      registry.Registry
		approver handler.FirmwareApprover
	)

	if config.Db.Url != "" {
		if err := db.RunMigrations(config.Db.Url, config.Db.Schema); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}

		pool, err := db.InitDB(context.Background(), config.Db.Url, config.Db.Schema)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		store = record.NewPostgresStore(pool)
		pgSink := audit.NewPostgresSink(pool)
		sink, trail = pgSink, pgSink
		pgReg := registry.NewPostgresRegistry(pool)
		reg, approver = pgReg, pgReg
	} else {
		slog.Warn("No database configured, using in-memory stores")
		store = record.NewMemoryStore()
		memSink := audit.NewMemorySink()
		sink, trail = memSink, memSink
		memReg := registry.NewMemoryRegistry()
		reg, approver = memReg, memReg
	}

	for _, checksum := range config.Registry.ApprovedChecksums {
		if err := approver.Approve(context.Background(), checksum); err != nil {
			slog.Error("Failed to seed firmware allow-list", "checksum", checksum, "error", err)
			os.Exit(1)
		}
	}

	if config.Token.Secret == "" {
		slog.Warn("Token signing secret not configured, activation requests will be rejected")
	}

	issuer := token.NewIssuer(config.Token.Secret, config.Token.Issuer)
	service := verification.NewService(store, sink, reg, issuer, config.Verification)

	services := &internalhttp.Services{
		Verification: service,
		Approver:     approver,
		AuditTrail:   trail,
		AdminAPIKey:  config.Http.AdminAPIKey,
		Version:      AppVersion,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}
