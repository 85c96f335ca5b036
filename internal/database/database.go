package database

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xelth-com/eckclockgo/internal/config"
	"github.com/xelth-com/eckclockgo/internal/models"
)

const (
	embeddedDataPath = "./db_data"
	embeddedPort     = 5434
	embeddedPassword = "postgres"
)

// DB wraps gorm.DB and owns the embedded server when one was started
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
}

// Embedded mode: localhost with no password means "run our own PostgreSQL"
func wantsEmbedded(cfg config.DatabaseConfig) bool {
	return cfg.Host == "localhost" && cfg.Password == ""
}

// reapStalePostmaster stops a PostgreSQL left running by a crashed process
// and removes its pid file
func reapStalePostmaster() {
	pidFile := filepath.Join(embeddedDataPath, "postmaster.pid")
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	if !scanner.Scan() {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		log.Printf("⚠️  Could not parse PID from postmaster.pid: %v", err)
		return
	}

	// FindProcess always succeeds on Unix; signal 0 probes liveness
	process, err := os.FindProcess(pid)
	if err != nil || process.Signal(syscall.Signal(0)) != nil {
		log.Printf("🧹 Removing stale postmaster.pid (PID %d not running)", pid)
		os.Remove(pidFile)
		return
	}

	log.Printf("⚠️  Orphaned PostgreSQL (PID %d), sending SIGTERM...", pid)
	_ = process.Signal(syscall.SIGTERM)
	for i := 0; i < 10; i++ {
		time.Sleep(500 * time.Millisecond)
		if process.Signal(syscall.Signal(0)) != nil {
			log.Printf("✅ Orphaned PostgreSQL stopped")
			os.Remove(pidFile)
			return
		}
	}

	log.Printf("⚠️  PID %d ignored SIGTERM, killing", pid)
	process.Kill()
	time.Sleep(500 * time.Millisecond)
	os.Remove(pidFile)
}

func portBusy(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func startEmbedded(cfg *config.DatabaseConfig) (*embeddedpostgres.EmbeddedPostgres, error) {
	log.Println("📦 Mode: [Embedded PostgreSQL] - starting local database...")
	reapStalePostmaster()

	for i := 0; i < 6 && portBusy(embeddedPort); i++ {
		time.Sleep(500 * time.Millisecond)
	}
	if portBusy(embeddedPort) {
		return nil, fmt.Errorf("port %d is still in use by another process", embeddedPort)
	}

	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		DataPath(embeddedDataPath).
		Port(uint32(embeddedPort)).
		Database(cfg.Database).
		Username(cfg.Username).
		Password(embeddedPassword))
	if err := pg.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedded database: %w", err)
	}

	cfg.Port = strconv.Itoa(embeddedPort)
	cfg.Password = embeddedPassword
	log.Printf("✅ Embedded PostgreSQL started on port %d", embeddedPort)
	return pg, nil
}

// DSN renders cfg as a libpq keyword/value string
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)
}

// Connect opens PostgreSQL, starting an embedded instance in zero-config setups
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	var embedded *embeddedpostgres.EmbeddedPostgres
	if wantsEmbedded(cfg) {
		var err error
		if embedded, err = startEmbedded(&cfg); err != nil {
			return nil, err
		}
	} else {
		log.Printf("🌐 Mode: [External PostgreSQL] - Connecting to %s:%s", cfg.Host, cfg.Port)
	}

	logLevel := logger.Warn
	if cfg.Alter {
		logLevel = logger.Silent
	}

	db, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
		Logger:  logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Println("✅ Database connection established")
	return &DB{DB: db, embedded: embedded}, nil
}

// Migrate creates or updates the sync tables and their helper indexes
func (db *DB) Migrate() error {
	if err := db.DB.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	// Open-entry lookups scan only rows without a clock_out
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_entry_open
		ON time_clock_entries (employee_id, clock_in DESC) WHERE clock_out IS NULL`).Error
}

// Close shuts the pool and the embedded server, if any
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if db.embedded != nil {
		log.Println("🛑 Stopping Embedded PostgreSQL...")
		if stopErr := db.embedded.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	return err
}
