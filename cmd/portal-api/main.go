package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"verdant-vault/vault-portal-backend/internal/auth"
	"verdant-vault/vault-portal-backend/internal/config"
	"verdant-vault/vault-portal-backend/internal/ledger"
	"verdant-vault/vault-portal-backend/internal/notifications/websocket"
	"verdant-vault/vault-portal-backend/internal/pinning"
	"verdant-vault/vault-portal-backend/internal/portal"
	"verdant-vault/vault-portal-backend/internal/reconcile"
)

func main() {
	// .env is optional; real deployments set the environment directly
	godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Logging.Level)
	defer logger.Sync()

	// Pin audit storage. The portal stays up without it; uploads just go
	// unaudited.
	var pinRepo pinning.Repository
	if db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{}); err != nil {
		logger.Warn("pin audit database unavailable, uploads will not be recorded", zap.Error(err))
	} else if pinRepo, err = pinning.NewRepository(db); err != nil {
		logger.Warn("pin audit migration failed, uploads will not be recorded", zap.Error(err))
		pinRepo = nil
	}

	// Ledger backend
	if cfg.Ledger.Approver == "" {
		logger.Fatal("ledger approver identity is required (LEDGER_APPROVER)")
	}
	led := ledger.NewMemoryLedger(cfg.Ledger.Approver)

	// Reconciler and event monitor keep the snapshot cache fresh
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconciler := reconcile.NewReconciler(led, logger)
	go reconciler.Run(ctx)

	monitor := reconcile.NewMonitor(led, reconciler, logger)
	monitor.Start()
	defer monitor.Stop()

	// Periodic full resync repairs snapshots left stale by missed events
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Reconcile.SweepSchedule, func() {
		reconciler.Resync(ctx)
	}); err != nil {
		logger.Fatal("invalid resync sweep schedule", zap.String("schedule", cfg.Reconcile.SweepSchedule), zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Upload gateway
	pinner := pinning.NewPinataClient(cfg.Pinning.BaseURL, cfg.Pinning.JWT)
	pins := pinning.NewService(pinner, pinRepo, logger)

	// Portal service and websocket relay
	portalService := portal.NewService(led, reconciler, pins, logger)
	manager := websocket.NewManager(logger)
	defer manager.Stop()
	led.Subscribe("", ledger.EventFilter{}, manager.Relay)

	// Setup Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api/v1", auth.Middleware(cfg.Security.JWTSecret))
	{
		portal.NewHandler(portalService, logger).RegisterRoutes(api)
		pinning.NewHandler(pins, logger).RegisterRoutes(api)
	}

	// Event stream
	router.GET("/ws", auth.Middleware(cfg.Security.JWTSecret), func(c *gin.Context) {
		identity := auth.Identity(c)
		if _, err := manager.HandleConnection(c.Writer, c.Request, identity); err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
		}
	})

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:    cfg.Server.GetServerAddr(),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", cfg.Server.GetServerAddr()))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func buildLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
