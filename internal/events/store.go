package events

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	_ "modernc.org/sqlite"
)

// Store is a sqlite audit log of session events.
type Store struct {
	db        *sql.DB
	retention time.Duration
	logger    *Logger.Logger
	now       func() time.Time
}

// OpenStore opens (or creates) the log at path and prunes entries older
// than retentionDays. Zero retention keeps everything.
func OpenStore(ctx context.Context, path string, retentionDays int, logger *Logger.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create event store dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer keeps sqlite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{
		db:        db,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if n, err := s.Prune(ctx); err != nil {
		logger.Warnf("event store prune failed: %v", err)
	} else if n > 0 {
		logger.Infof("event store pruned %d old events", n)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS session_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    user_id TEXT,
    platform TEXT,
    reason TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, id);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init event store schema: %w", err)
	}
	return nil
}

// Publish implements Sink.
func (s *Store) Publish(ctx context.Context, ev Event) error {
	at := ev.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_events(session_id, event_type, user_id, platform, reason, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		ev.SessionID, string(ev.Type), ev.UserID, ev.Platform, ev.Reason, at.UnixMilli())
	return err
}

// List returns up to limit events of a session, oldest first.
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, user_id, platform, reason, created_at
		 FROM session_events WHERE session_id = ? ORDER BY id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev      Event
			typ     string
			created int64
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &typ, &ev.UserID, &ev.Platform, &ev.Reason, &created); err != nil {
			return nil, err
		}
		ev.Type = Type(typ)
		ev.At = time.UnixMilli(created).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Prune deletes events older than the retention window.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
