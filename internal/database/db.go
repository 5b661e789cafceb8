package database

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	conn   *sql.DB
	dbType string
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

// sqliteOptions keeps writes durable and readers unblocked while the upload
// worker and HTTP handlers share one file.
const sqliteOptions = "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=ON"

func Open(config Config) (*DB, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case "sqlite":
		conn, err = sql.Open("sqlite3", config.SQLitePath+sqliteOptions)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn, dbType: config.Type}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Type() string {
	return db.dbType
}

// Handle is the process-wide store handle: opened lazily exactly once and
// reused everywhere. Concurrent Open calls resolve to the same *DB.
type Handle struct {
	config Config
	once   sync.Once
	db     *DB
	err    error
}

func NewHandle(config Config) *Handle {
	return &Handle{config: config}
}

func (h *Handle) Open() (*DB, error) {
	h.once.Do(func() {
		h.db, h.err = Open(h.config)
	})
	return h.db, h.err
}

func (h *Handle) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}
