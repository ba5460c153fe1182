// Package journal keeps a local record of every log re-uploaded to a bug,
// so a later run can warn before attaching duplicates.
package journal

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal wraps a SQLite database of past uploads. All operations are
// best-effort from the pipeline's point of view: a broken journal never
// stops an upload.
type Journal struct {
	db *sql.DB
}

// Entry is one recorded upload.
type Entry struct {
	ID               string
	Bug              string
	SourceAttachment int
	FileName         string
	NewAttachment    int
	UploadedAt       time.Time
}

// DefaultDir returns the journal location, honoring XDG_DATA_HOME.
func DefaultDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "bzlogs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "bzlogs")
}

// Open opens (or creates) the journal database in dataDir and applies any
// pending migrations. Pass ":memory:" for an in-memory database (tests).
func Open(dataDir string) (*Journal, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "journal.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging journal: %w", err)
	}

	// Single connection avoids "database is locked" errors.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores one successful upload. A missing ID or timestamp is filled
// in.
func (j *Journal) Record(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.UploadedAt.IsZero() {
		e.UploadedAt = time.Now().UTC()
	}
	_, err := j.db.Exec(`INSERT INTO uploads
		(id, bug, source_attachment, file_name, new_attachment, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Bug, e.SourceAttachment, e.FileName, e.NewAttachment,
		e.UploadedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording upload: %w", err)
	}
	return nil
}

// History returns past uploads for a bug's source attachment, oldest first.
func (j *Journal) History(bug string, sourceAttachment int) ([]Entry, error) {
	rows, err := j.db.Query(`SELECT id, bug, source_attachment, file_name, new_attachment, uploaded_at
		FROM uploads WHERE bug = ? AND source_attachment = ?
		ORDER BY uploaded_at`, bug, sourceAttachment)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var uploadedAt string
		if err := rows.Scan(&e.ID, &e.Bug, &e.SourceAttachment, &e.FileName, &e.NewAttachment, &uploadedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if ts, perr := time.Parse(time.RFC3339, uploadedAt); perr == nil {
			e.UploadedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AppliedMigrations returns the applied schema versions in order.
func (j *Journal) AppliedMigrations() ([]int, error) {
	rows, err := j.db.Query("SELECT version FROM schema_version ORDER BY version")
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

// migrate applies embedded SQL migration files that haven't run yet.
func (j *Journal) migrate() error {
	if _, err := j.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, k int) bool {
		return entries[i].Name() < entries[k].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := j.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := j.db.Begin()
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
