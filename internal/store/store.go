package store

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the on-device SQLite database holding cached surveys,
// collected responses, and the sync log. All mutating operations are
// single transactions, so a killed process never leaves a table
// half-written.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "fieldsync.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode so a crash mid-write rolls back cleanly.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Surveys ---

// ReplaceSurveys swaps the entire cached survey set in a single
// transaction. A concurrent reader never observes a mix of the old and
// new sets, and a crash mid-replace leaves the previous set intact.
func (s *Store) ReplaceSurveys(surveys []Survey) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM surveys`); err != nil {
		return fmt.Errorf("clearing surveys: %w", err)
	}

	for _, sv := range surveys {
		questions, err := json.Marshal(sv.Questions)
		if err != nil {
			return fmt.Errorf("encoding questions for survey %s: %w", sv.ID, err)
		}
		_, err = tx.Exec(`
			INSERT INTO surveys (id, title, description, questions, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sv.ID, sv.Title, sv.Description, string(questions), sv.Status,
			sv.CreatedAt.UTC().Format(time.RFC3339), sv.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting survey %s: %w", sv.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing survey replace: %w", err)
	}
	return nil
}

// Surveys returns all cached surveys ordered by title.
func (s *Store) Surveys() ([]Survey, error) {
	rows, err := s.db.Query(`
		SELECT id, title, description, questions, status, created_at, updated_at
		FROM surveys ORDER BY title ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Survey
	for rows.Next() {
		sv, err := scanSurvey(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, sv)
	}
	return results, rows.Err()
}

// Survey returns the cached survey with the given id, or ErrNotFound.
func (s *Store) Survey(id string) (Survey, error) {
	row := s.db.QueryRow(`
		SELECT id, title, description, questions, status, created_at, updated_at
		FROM surveys WHERE id = ?`, id)
	sv, err := scanSurvey(row.Scan)
	if err == sql.ErrNoRows {
		return Survey{}, ErrNotFound
	}
	if err != nil {
		return Survey{}, err
	}
	return sv, nil
}

func scanSurvey(scan func(...any) error) (Survey, error) {
	var sv Survey
	var questions, createdAt, updatedAt string
	if err := scan(&sv.ID, &sv.Title, &sv.Description, &questions, &sv.Status, &createdAt, &updatedAt); err != nil {
		return Survey{}, err
	}
	if err := json.Unmarshal([]byte(questions), &sv.Questions); err != nil {
		return Survey{}, fmt.Errorf("decoding questions for survey %s: %w", sv.ID, err)
	}
	var err error
	if sv.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Survey{}, fmt.Errorf("parsing created_at for survey %s: %w", sv.ID, err)
	}
	if sv.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Survey{}, fmt.Errorf("parsing updated_at for survey %s: %w", sv.ID, err)
	}
	return sv, nil
}

// --- Responses ---

// AddResponse persists a collected response with synced=false. This is
// the one write whose failure must reach the caller: a dropped response
// is lost field data.
func (s *Store) AddResponse(r Response) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("encoding answers for response %s: %w", r.ID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO survey_responses (id, survey_id, answers, completion_time, created_at, synced)
		VALUES (?, ?, ?, ?, ?, 0)`,
		r.ID, r.SurveyID, string(answers), r.CompletionTime,
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting response %s: %w", r.ID, err)
	}
	return nil
}

// PendingResponses returns all unsynced responses, oldest first.
// Response ids start with the creation unix-milli, so the id tie-break
// keeps sub-second submissions in creation order too.
func (s *Store) PendingResponses() ([]Response, error) {
	rows, err := s.db.Query(`
		SELECT id, survey_id, answers, completion_time, created_at, synced
		FROM survey_responses WHERE synced = 0
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Response
	for rows.Next() {
		var r Response
		var answers, createdAt string
		if err := rows.Scan(&r.ID, &r.SurveyID, &answers, &r.CompletionTime, &createdAt, &r.Synced); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
			return nil, fmt.Errorf("decoding answers for response %s: %w", r.ID, err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for response %s: %w", r.ID, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// PendingCount returns the number of unsynced responses.
func (s *Store) PendingCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM survey_responses WHERE synced = 0`).Scan(&n)
	return n, err
}

// MarkResponsesSynced flips synced to true for the given ids. Unknown
// and already-synced ids are silently ignored, so re-marking after a
// crashed cycle is a no-op. Returns the number of rows that changed.
func (s *Store) MarkResponsesSynced(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat(",?", len(ids)-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := s.db.Exec(`UPDATE survey_responses SET synced = 1 WHERE synced = 0 AND id IN (?`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("marking responses synced: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// --- Sync log ---

// RecordSync overwrites the single latest-sync row with the given
// timestamp and status.
func (s *Store) RecordSync(at time.Time, status string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning sync log transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sync_log`); err != nil {
		return fmt.Errorf("clearing sync log: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO sync_log (last_sync_time, status) VALUES (?, ?)`,
		at.UTC().Format(time.RFC3339), status); err != nil {
		return fmt.Errorf("inserting sync log entry: %w", err)
	}

	return tx.Commit()
}

// LastSync returns the most recent sync record, or ErrNotFound if no
// sync has completed yet.
func (s *Store) LastSync() (SyncRecord, error) {
	var at, status string
	err := s.db.QueryRow(`SELECT last_sync_time, status FROM sync_log ORDER BY id DESC LIMIT 1`).Scan(&at, &status)
	if err == sql.ErrNoRows {
		return SyncRecord{}, ErrNotFound
	}
	if err != nil {
		return SyncRecord{}, err
	}

	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return SyncRecord{}, fmt.Errorf("parsing last_sync_time: %w", err)
	}
	return SyncRecord{At: t, Status: status}, nil
}

// ClearAll wipes surveys, responses, and the sync log in one
// transaction. Used only on logout.
func (s *Store) ClearAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning wipe transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"survey_responses", "surveys", "sync_log"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	return tx.Commit()
}
