package database

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/hybrid-bistoon/anbar/internal/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// embeddedPassword is the superuser password of the bundled server. It only
// listens on loopback.
const embeddedPassword = "postgres"

// DB is the SQL handle plus the bundled server, when one was started
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
	log      *zap.Logger
}

// Connect opens PostgreSQL. With a localhost host and no password a bundled
// server is started from cfg.EmbeddedDir first.
func Connect(cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	var embedded *embeddedpostgres.EmbeddedPostgres
	password := cfg.Password

	if cfg.Embedded() {
		var err error
		embedded, err = startEmbedded(cfg, log)
		if err != nil {
			return nil, err
		}
		cfg.Port = strconv.Itoa(int(cfg.EmbeddedPort))
		password = embeddedPassword
	} else {
		log.Info("🌐 Using external PostgreSQL", zap.String("host", cfg.Host), zap.String("port", cfg.Port))
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, password, cfg.Database)

	// SQL echo only while altering the schema
	level := logger.Warn
	if cfg.Alter {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Info("✅ Database connection established", zap.String("database", cfg.Database))
	return &DB{DB: db, embedded: embedded, log: log}, nil
}

// Close closes the pool and stops the bundled server
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if db.embedded != nil {
		db.log.Info("🛑 Stopping embedded PostgreSQL")
		if stopErr := db.embedded.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	return err
}

func startEmbedded(cfg config.DatabaseConfig, log *zap.Logger) (*embeddedpostgres.EmbeddedPostgres, error) {
	log.Info("📦 Starting embedded PostgreSQL",
		zap.String("dir", cfg.EmbeddedDir),
		zap.Uint32("port", cfg.EmbeddedPort),
	)

	reapOrphan(cfg.EmbeddedDir, log)
	if !waitPortFree(cfg.EmbeddedPort, 3*time.Second) {
		return nil, fmt.Errorf("port %d is still in use by another process", cfg.EmbeddedPort)
	}

	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		DataPath(cfg.EmbeddedDir).
		Port(cfg.EmbeddedPort).
		Database(cfg.Database).
		Username(cfg.Username).
		Password(embeddedPassword))
	if err := pg.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedded database: %w", err)
	}
	log.Info("✅ Embedded PostgreSQL started")
	return pg, nil
}

// reapOrphan stops a server left running by a crashed process. The pid is the
// first line of postmaster.pid.
func reapOrphan(dir string, log *zap.Logger) {
	pidFile := filepath.Join(dir, "postmaster.pid")
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return
	}
	first, _, _ := bytes.Cut(data, []byte("\n"))
	pid, err := strconv.Atoi(string(bytes.TrimSpace(first)))
	if err != nil {
		log.Warn("⚠️  Unreadable postmaster.pid", zap.Error(err))
		return
	}

	proc, err := os.FindProcess(pid)
	if err != nil || proc.Signal(syscall.Signal(0)) != nil {
		log.Info("🧹 Removing stale postmaster.pid", zap.Int("pid", pid))
		os.Remove(pidFile)
		return
	}

	log.Warn("⚠️  Stopping orphaned PostgreSQL", zap.Int("pid", pid))
	_ = proc.Signal(syscall.SIGTERM)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(250 * time.Millisecond)
		if proc.Signal(syscall.Signal(0)) != nil {
			os.Remove(pidFile)
			return
		}
	}
	log.Warn("⚠️  Orphan ignored SIGTERM, killing", zap.Int("pid", pid))
	_ = proc.Kill()
	time.Sleep(500 * time.Millisecond)
	os.Remove(pidFile)
}

// waitPortFree polls until nothing accepts on the loopback port
func waitPortFree(port uint32, wait time.Duration) bool {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port)))
	deadline := time.Now().Add(wait)
	for {
		conn, err := net.DialTimeout("tcp", addr, 250*time.Millisecond)
		if err != nil {
			return true
		}
		conn.Close()
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(250 * time.Millisecond)
	}
}
