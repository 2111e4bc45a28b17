package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverSQLite selects the embedded SQLite backend.
	DriverSQLite = "sqlite"
	// DriverMySQL selects a MySQL server.
	DriverMySQL = "mysql"
)

// Config holds database connection settings.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner_id, updated_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, owner_id, created_at, seq)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		is_completed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id, is_completed, created_at)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id VARCHAR(36) PRIMARY KEY,
		owner_id VARCHAR(128) NOT NULL,
		title VARCHAR(255) NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		INDEX idx_conversations_owner (owner_id, updated_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		id VARCHAR(36) NOT NULL UNIQUE,
		conversation_id VARCHAR(36) NOT NULL,
		owner_id VARCHAR(128) NOT NULL,
		role VARCHAR(16) NOT NULL,
		content MEDIUMTEXT NOT NULL,
		created_at BIGINT NOT NULL,
		INDEX idx_messages_conversation (conversation_id, owner_id, created_at, seq),
		CONSTRAINT fk_messages_conversation FOREIGN KEY (conversation_id) REFERENCES conversations(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		owner_id VARCHAR(128) NOT NULL,
		title VARCHAR(80) NOT NULL,
		is_completed TINYINT(1) NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		INDEX idx_tasks_owner (owner_id, is_completed, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Open connects to the configured database and creates missing tables.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	var (
		db     *sql.DB
		schema []string
		err    error
	)

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite, "sqlite3":
		db, err = openSQLite(cfg)
		schema = sqliteSchema
	case DriverMySQL:
		db, err = openMySQL(cfg)
		schema = mysqlSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return &SQLStore{db: db}, nil
}

func openSQLite(cfg Config) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = ":memory:"
	}
	memory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	if !strings.Contains(dsn, "_foreign_keys") && !strings.Contains(dsn, "_fk") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		if dsn == ":memory:" {
			dsn = "file::memory:"
		}
		dsn += sep + "_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Every connection to an in-memory database is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		return db, nil
	}
	applyPool(db, cfg, 1, 1)
	return db, nil
}

func openMySQL(cfg Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mysql DSN is required")
	}

	mcfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql DSN: %w", err)
	}
	mcfg.Loc = time.UTC
	mcfg.MultiStatements = false
	if mcfg.Params == nil {
		mcfg.Params = map[string]string{}
	}
	if _, ok := mcfg.Params["charset"]; !ok {
		mcfg.Params["charset"] = "utf8mb4"
	}

	connector, err := mysql.NewConnector(mcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	applyPool(db, cfg, 20, 10)
	return db, nil
}

func applyPool(db *sql.DB, cfg Config, defaultOpen, defaultIdle int) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(defaultOpen)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(defaultIdle)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}
