package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xelth-com/eckclockgo/internal/config"
	"github.com/xelth-com/eckclockgo/internal/database"
	"github.com/xelth-com/eckclockgo/internal/events"
	"github.com/xelth-com/eckclockgo/internal/handlers"
	"github.com/xelth-com/eckclockgo/internal/lock"
	"github.com/xelth-com/eckclockgo/internal/metrics"
	"github.com/xelth-com/eckclockgo/internal/repository"
	"github.com/xelth-com/eckclockgo/internal/timeclock"
	"github.com/xelth-com/eckclockgo/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	syncCfg := config.LoadSyncConfig()

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// 3. Auto-Migrate Schema
	log.Println("🚀 Synchronizing database schema...")
	if err := db.Migrate(); err != nil {
		log.Printf("⚠️ Migration warning: %v", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// 4. Per-device run lock: advisory locks when several replicas share the database
	var locker lock.Locker = lock.NewLocalLocker()
	var pgLocker *lock.PGAdvisoryLocker
	if cfg.Lock.DSN != "" {
		pgLocker, err = lock.NewPGAdvisoryLocker(rootCtx, cfg.Lock.DSN)
		if err != nil {
			log.Fatalf("Failed to connect lock database: %v", err)
		}
		locker = pgLocker
		log.Println("🔒 Device locks: PostgreSQL advisory locks")
	} else {
		log.Println("🔒 Device locks: in-process")
	}

	// 5. Run events: dashboards over websocket, other services over NATS
	hub := websocket.NewHub()
	go hub.Run(rootCtx)

	notifier := events.Multi{hub}
	var natsPub *events.NATSPublisher
	if cfg.Events.NATSURL != "" {
		natsPub, err = events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.NATSSubject)
		if err != nil {
			log.Printf("⚠️ NATS disabled: %v", err)
		} else {
			notifier = append(notifier, natsPub)
		}
	}

	collector := metrics.New()
	store := repository.NewGormStore(db.DB)
	orch := timeclock.New(timeclock.Deps{
		Store:    store,
		Locker:   locker,
		Notifier: notifier,
		Metrics:  collector,
		Config:   syncCfg,
	})

	// 6. Set up HTTP router
	router := handlers.NewRouter(handlers.Deps{
		Runner:    orch,
		Store:     store,
		Metrics:   collector,
		Hub:       hub,
		JWTSecret: cfg.JWTSecret,
	})
	if cfg.JWTSecret == "" {
		log.Println("⚠️ JWT_SECRET not set: /api/timeclock is unauthenticated")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 eckclock (%s) listening on port %s", cfg.NodeEnv, cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("⚠️  Received signal: %v. Shutting down gracefully...", sig)

	// In-flight runs finish inside Shutdown and still finalize their logs
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	stop()
	if natsPub != nil {
		natsPub.Close()
	}
	if pgLocker != nil {
		pgLocker.Close()
	}

	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
