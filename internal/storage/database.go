package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"careercoach/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// DB is a database handle that remembers which dialect it speaks.
type DB struct {
	*sql.DB
	Driver string
}

// NormalizeDriver maps accepted aliases onto a driver name.
func NormalizeDriver(dbType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "mysql":
		return DriverMySQL, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", dbType)
	}
}

// Open connects to the database configured for dbType.
func Open(dbType string, cfg *config.Config) (*DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	driver, err := NormalizeDriver(dbType)
	if err != nil {
		return nil, err
	}
	dbCfg, ok := lookupDatabase(cfg, dbType, driver)
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var db *sql.DB
	switch driver {
	case DriverSQLite:
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// one connection: in-memory databases are per connection and
		// the pragma below is per connection too
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case DriverMySQL:
		dsn := dbCfg.DSN
		if dsn == "" {
			// conditional updates rely on matched rather than changed row counts
			params := dbCfg.Params
			for _, p := range []string{"parseTime=true", "clientFoundRows=true"} {
				name := p[:strings.Index(p, "=")]
				if !strings.Contains(params, name) {
					params = strings.TrimPrefix(params+"&"+p, "&")
				}
			}
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case DriverPostgres:
		dsn := dbCfg.DSN
		if dsn == "" {
			port := dbCfg.Port
			if port == 0 {
				port = 5432
			}
			dsn = strings.TrimSpace(fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s %s",
				dbCfg.Host, port, dbCfg.Username, dbCfg.Password, dbCfg.DBName, dbCfg.Params))
		}
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: db, Driver: driver}, nil
}

func lookupDatabase(cfg *config.Config, dbType, driver string) (config.DatabaseConfig, bool) {
	if dbCfg, ok := cfg.Databases[dbType]; ok {
		return dbCfg, true
	}
	for name, dbCfg := range cfg.Databases {
		if normalized, err := NormalizeDriver(name); err == nil && normalized == driver {
			return dbCfg, true
		}
	}
	return config.DatabaseConfig{}, false
}

// Rebind rewrites '?' placeholders into the driver's bind syntax.
func (db *DB) Rebind(query string) string {
	if db.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InsertID runs an INSERT and returns the generated id column.
func (db *DB) InsertID(ctx context.Context, query string, args ...any) (int64, error) {
	if db.Driver == DriverPostgres {
		var id int64
		if err := db.QueryRowContext(ctx, db.Rebind(query)+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Migrate ensures the required tables are present.
func Migrate(db *DB) error {
	var stmts []string
	switch db.Driver {
	case DriverSQLite:
		stmts = sqliteSchema
	case DriverMySQL:
		stmts = mysqlSchema
	case DriverPostgres:
		stmts = postgresSchema
	default:
		return fmt.Errorf("unsupported driver for migration: %s", db.Driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", db.Driver, err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_tokens (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id INTEGER PRIMARY KEY,
		industry TEXT NOT NULL,
		sub_industry TEXT NOT NULL,
		experience INTEGER NOT NULL,
		skills TEXT NOT NULL,
		bio TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		provider TEXT NOT NULL,
		api_key TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE(user_id, provider),
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS video_interviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_token TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		industry TEXT NOT NULL,
		job_role TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		question_count INTEGER NOT NULL,
		time_per_question INTEGER NOT NULL,
		categories TEXT NOT NULL,
		questions TEXT NOT NULL,
		job_description TEXT,
		skills TEXT,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME,
		duration INTEGER,
		overall_score REAL,
		confidence_score REAL,
		clarity_score REAL,
		content_score REAL,
		strengths TEXT,
		improvements TEXT,
		feedback TEXT,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_video_interviews_user ON video_interviews(user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS video_interview_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		interview_id INTEGER NOT NULL,
		question_id TEXT NOT NULL,
		question TEXT NOT NULL,
		category TEXT NOT NULL,
		media_url TEXT NOT NULL,
		transcript TEXT NOT NULL,
		duration INTEGER NOT NULL,
		analysis TEXT,
		recorded_at DATETIME NOT NULL,
		UNIQUE(interview_id, question_id),
		FOREIGN KEY(interview_id) REFERENCES video_interviews(id) ON DELETE CASCADE
	)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		username VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		PRIMARY KEY (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS user_tokens (
		token VARCHAR(255) NOT NULL PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		created_at DATETIME(6) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		INDEX idx_user_tokens_user (user_id),
		CONSTRAINT fk_user_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
		industry VARCHAR(255) NOT NULL,
		sub_industry VARCHAR(255) NOT NULL,
		experience INT NOT NULL,
		skills TEXT NOT NULL,
		bio TEXT NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		CONSTRAINT fk_user_profiles_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		user_id BIGINT UNSIGNED NOT NULL,
		provider VARCHAR(100) NOT NULL,
		api_key TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_user_provider (user_id, provider),
		CONSTRAINT fk_api_keys_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS video_interviews (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		session_token VARCHAR(64) NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		industry VARCHAR(255) NOT NULL,
		job_role VARCHAR(255) NOT NULL,
		difficulty VARCHAR(50) NOT NULL,
		question_count INT NOT NULL,
		time_per_question INT NOT NULL,
		categories TEXT NOT NULL,
		questions MEDIUMTEXT NOT NULL,
		job_description TEXT NULL,
		skills TEXT NULL,
		status VARCHAR(50) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		completed_at DATETIME(6) NULL,
		duration INT NULL,
		overall_score DOUBLE NULL,
		confidence_score DOUBLE NULL,
		clarity_score DOUBLE NULL,
		content_score DOUBLE NULL,
		strengths TEXT NULL,
		improvements TEXT NULL,
		feedback MEDIUMTEXT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_video_interviews_token (session_token),
		INDEX idx_video_interviews_user (user_id, created_at),
		CONSTRAINT fk_video_interviews_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS video_interview_responses (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		interview_id BIGINT UNSIGNED NOT NULL,
		question_id VARCHAR(191) NOT NULL,
		question TEXT NOT NULL,
		category VARCHAR(50) NOT NULL,
		media_url TEXT NOT NULL,
		transcript MEDIUMTEXT NOT NULL,
		duration INT NOT NULL,
		analysis MEDIUMTEXT NULL,
		recorded_at DATETIME(6) NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_response_question (interview_id, question_id),
		CONSTRAINT fk_responses_interview FOREIGN KEY (interview_id) REFERENCES video_interviews(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_tokens (
		token TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		industry TEXT NOT NULL,
		sub_industry TEXT NOT NULL,
		experience INTEGER NOT NULL,
		skills TEXT NOT NULL,
		bio TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		provider TEXT NOT NULL,
		api_key TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(user_id, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS video_interviews (
		id BIGSERIAL PRIMARY KEY,
		session_token TEXT NOT NULL UNIQUE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		industry TEXT NOT NULL,
		job_role TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		question_count INTEGER NOT NULL,
		time_per_question INTEGER NOT NULL,
		categories TEXT NOT NULL,
		questions TEXT NOT NULL,
		job_description TEXT,
		skills TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		duration INTEGER,
		overall_score DOUBLE PRECISION,
		confidence_score DOUBLE PRECISION,
		clarity_score DOUBLE PRECISION,
		content_score DOUBLE PRECISION,
		strengths TEXT,
		improvements TEXT,
		feedback TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_video_interviews_user ON video_interviews(user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS video_interview_responses (
		id BIGSERIAL PRIMARY KEY,
		interview_id BIGINT NOT NULL REFERENCES video_interviews(id) ON DELETE CASCADE,
		question_id TEXT NOT NULL,
		question TEXT NOT NULL,
		category TEXT NOT NULL,
		media_url TEXT NOT NULL,
		transcript TEXT NOT NULL,
		duration INTEGER NOT NULL,
		analysis TEXT,
		recorded_at TIMESTAMPTZ NOT NULL,
		UNIQUE(interview_id, question_id)
	)`,
}
