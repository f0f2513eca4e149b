package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations. Methods accept
// context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// Cursor returns the persisted last-processed update ID. The second
	// return value is false when no run has ever persisted a cursor.
	Cursor(ctx context.Context) (int64, bool, error)

	// SetCursor durably persists the last-processed update ID.
	SetCursor(ctx context.Context, updateID int64) error

	// RecordArchive inserts one archive ledger row.
	RecordArchive(ctx context.Context, record *ArchiveRecord) error

	// RecentArchives retrieves the most recent 'limit' ledger rows,
	// newest first.
	RecentArchives(ctx context.Context, limit int) ([]ArchiveRecord, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Cursor returns the persisted last-processed update ID.
func (s *sqlxStore) Cursor(ctx context.Context) (int64, bool, error) {
	if ctx.Err() != nil {
		return 0, false, ctx.Err()
	}

	var updateID int64
	query := `SELECT last_update_id FROM cursor WHERE id = 1`

	err := s.db.GetContext(ctx, &updateID, query)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First-ever run: no cursor has been persisted yet.
		s.logger.DebugContext(ctx, "No persisted cursor found")
		return 0, false, nil

	case err != nil:
		s.logger.ErrorContext(ctx, "Error reading cursor", "error", err)
		return 0, false, fmt.Errorf("failed to read cursor: %w", err)
	}

	s.logger.DebugContext(ctx, "Loaded persisted cursor", "last_update_id", updateID)
	return updateID, true, nil
}

// SetCursor durably persists the last-processed update ID. The cursor is
// a single row; an upsert keeps it that way.
func (s *sqlxStore) SetCursor(ctx context.Context, updateID int64) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	query := `
        INSERT INTO cursor (id, last_update_id, updated_at)
        VALUES (1, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            last_update_id = excluded.last_update_id,
            updated_at = excluded.updated_at;
    `

	if _, err := s.db.ExecContext(ctx, query, updateID, time.Now().UTC()); err != nil {
		s.logger.ErrorContext(ctx, "Error persisting cursor", "last_update_id", updateID, "error", err)
		return fmt.Errorf("failed to persist cursor %d: %w", updateID, err)
	}

	s.logger.DebugContext(ctx, "Cursor persisted", "last_update_id", updateID)
	return nil
}

// RecordArchive inserts one archive ledger row.
func (s *sqlxStore) RecordArchive(ctx context.Context, record *ArchiveRecord) error {
	if record == nil {
		return fmt.Errorf("cannot record nil archive record")
	}
	if record.Filename == "" {
		return fmt.Errorf("archive record must have a non-empty filename")
	}
	if record.Outcome == "" {
		return fmt.Errorf("archive record must have a non-empty outcome")
	}

	record.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO archives (update_id, chat_id, filename, media_kind, outcome, size_bytes, created_at)
        VALUES (:update_id, :chat_id, :filename, :media_kind, :outcome, :size_bytes, :created_at);
    `

	result, err := s.db.NamedExecContext(ctx, query, record)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error recording archive outcome",
			"update_id", record.UpdateID, "filename", record.Filename, "error", err)
		return fmt.Errorf("failed to record archive outcome for %q: %w", record.Filename, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		record.ID = uint(id)
	}

	s.logger.DebugContext(ctx, "Archive outcome recorded",
		"update_id", record.UpdateID, "filename", record.Filename, "outcome", record.Outcome)
	return nil
}

// RecentArchives retrieves the most recent 'limit' ledger rows, newest first.
func (s *sqlxStore) RecentArchives(ctx context.Context, limit int) ([]ArchiveRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var records []ArchiveRecord
	query := `
        SELECT id, update_id, chat_id, filename, media_kind, outcome, size_bytes, created_at
        FROM archives
        ORDER BY id DESC
        LIMIT ?;
    `

	if err := s.db.SelectContext(ctx, &records, query, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching recent archives", "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to fetch recent archives: %w", err)
	}

	return records, nil
}
