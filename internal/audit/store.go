// Package audit persists tool calls, command decisions and elicitation
// outcomes to SQLite and prunes old rows on a schedule.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"toolbox/internal/domain"
)

// timeLayout sorts lexically in chronological order for UTC values.
const timeLayout = "2006-01-02 15:04:05.000000"

const defaultQueryLimit = 50

// Store implements domain.AuditLogger on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.AuditLogger = (*Store)(nil)

// Open creates the database directory if needed, opens dbPath in WAL mode
// and applies pending migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// LogAudit inserts one row. A zero CreatedAt is stamped with the current time.
func (s *Store) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	at := entry.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (invocation_id, action, tool_name, command, result, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.InvocationID, entry.Action, entry.ToolName, entry.Command, entry.Result, entry.Details,
		at.UTC().Format(timeLayout),
	)
	return err
}

// Query filters Recent. Zero values match everything.
type Query struct {
	Limit        int
	Action       string
	ToolName     string
	InvocationID string
}

// Recent returns matching entries, newest first.
func (s *Store) Recent(ctx context.Context, q Query) ([]domain.AuditEntry, error) {
	if q.Limit <= 0 {
		q.Limit = defaultQueryLimit
	}
	var where []string
	var args []any
	if q.Action != "" {
		where = append(where, "action = ?")
		args = append(args, q.Action)
	}
	if q.ToolName != "" {
		where = append(where, "tool_name = ?")
		args = append(args, q.ToolName)
	}
	if q.InvocationID != "" {
		where = append(where, "invocation_id = ?")
		args = append(args, q.InvocationID)
	}

	query := `SELECT id, COALESCE(invocation_id, ''), action, COALESCE(tool_name, ''), COALESCE(command, ''),
		COALESCE(result, ''), COALESCE(details, ''), created_at FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var created string
		if err := rows.Scan(&e.ID, &e.InvocationID, &e.Action, &e.ToolName, &e.Command, &e.Result, &e.Details, &created); err != nil {
			return nil, err
		}
		if t, err := time.Parse(timeLayout, created); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries created before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&n)
	return n, err
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
