package storage

import (
	"context"
	"testing"
	"time"

	"careercoach/internal/config"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openMemory(t)
	defer db.Close()
	if err := Migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{Driver: DriverPostgres}
	got := pg.Rebind(`SELECT a FROM t WHERE x = ? AND y = ?`)
	if got != `SELECT a FROM t WHERE x = $1 AND y = $2` {
		t.Fatalf("unexpected rebind: %s", got)
	}
	lite := &DB{Driver: DriverSQLite}
	if q := lite.Rebind(`x = ?`); q != `x = ?` {
		t.Fatalf("sqlite query should be untouched: %s", q)
	}
}

func TestNormalizeDriver(t *testing.T) {
	for in, want := range map[string]string{"sqlite": DriverSQLite, "MySQL": DriverMySQL, "postgresql": DriverPostgres} {
		got, err := NormalizeDriver(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeDriver(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := NormalizeDriver("oracle"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestOpenFindsAliasedConfig(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite": {DSN: ":memory:"}}}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if db.Driver != DriverSQLite {
		t.Fatalf("unexpected driver %s", db.Driver)
	}
}

func TestInsertIDAndCascade(t *testing.T) {
	db := openMemory(t)
	defer db.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	userID, err := db.InsertID(ctx, `INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`, "ann", "", now)
	if err != nil || userID <= 0 {
		t.Fatalf("insert user: id=%d err=%v", userID, err)
	}
	interviewID, err := db.InsertID(ctx,
		`INSERT INTO video_interviews (session_token, user_id, industry, job_role, difficulty, question_count, time_per_question, categories, questions, status, created_at, updated_at)
		 VALUES (?, ?, 'tech', 'dev', 'beginner', 3, 60, '[]', '[]', 'in_progress', ?, ?)`,
		"tok", userID, now, now)
	if err != nil {
		t.Fatalf("insert interview: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO video_interview_responses (interview_id, question_id, question, category, media_url, transcript, duration, recorded_at)
		VALUES (?, 'q1', 'Q', 'behavioral', '', '', 10, ?)`, interviewID, now); err != nil {
		t.Fatalf("insert response: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO video_interview_responses (interview_id, question_id, question, category, media_url, transcript, duration, recorded_at)
		VALUES (?, 'q1', 'Q', 'behavioral', '', '', 10, ?)`, interviewID, now); err == nil {
		t.Fatalf("expected unique violation for duplicate question response")
	}

	if _, err := db.Exec(`DELETE FROM users WHERE id = ?`, userID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM video_interview_responses`).Scan(&count); err != nil {
		t.Fatalf("count responses: %v", err)
	}
	if count != 0 {
		t.Fatalf("responses not cascaded, %d left", count)
	}
}
