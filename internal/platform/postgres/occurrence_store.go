package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/facilitydesk/taskdispatch/internal/platform/logger"
	"github.com/facilitydesk/taskdispatch/internal/store"
	"github.com/google/uuid"
)

// PostgresOccurrenceStore implements the store.OccurrenceStore interface
// using a PostgreSQL database as the storage backend.
type PostgresOccurrenceStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresOccurrenceStore creates a new PostgreSQL implementation of the OccurrenceStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresOccurrenceStore(db store.DBTX, logger *slog.Logger) *PostgresOccurrenceStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresOccurrenceStore{
		db:     db,
		logger: logger.With(slog.String("component", "occurrence_store")),
	}
}

// Ensure PostgresOccurrenceStore implements store.OccurrenceStore interface
var _ store.OccurrenceStore = (*PostgresOccurrenceStore)(nil)

const listOccurrencesQuery = `
		SELECT id, task_id, title, description, start_date, start_time, status,
		       is_recurring, recipient_id, sent_at, created_at, updated_at
		FROM task_occurrences
		WHERE start_date >= $1
		ORDER BY start_date ASC, start_time ASC NULLS FIRST, id ASC
	`

// ListOccurrences implements store.OccurrenceStore.ListOccurrences
func (s *PostgresOccurrenceStore) ListOccurrences(ctx context.Context, from time.Time) ([]domain.Occurrence, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	fromDate := domain.CalendarDate(from)
	rows, err := s.db.QueryContext(ctx, listOccurrencesQuery, fromDate)
	if err != nil {
		log.Error("failed to query occurrences",
			slog.String("error", err.Error()),
			slog.String("from", fromDate.Format(domain.DateLayout)))
		return nil, store.NewStoreError("occurrence", "list", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var occurrences []domain.Occurrence
	for rows.Next() {
		var (
			o           domain.Occurrence
			description sql.NullString
			startTime   sql.NullString
			status      string
			recipientID uuid.NullUUID
			sentAt      sql.NullTime
		)
		if err := rows.Scan(
			&o.ID,
			&o.TaskID,
			&o.Title,
			&description,
			&o.StartDate,
			&startTime,
			&status,
			&o.IsRecurring,
			&recipientID,
			&sentAt,
			&o.CreatedAt,
			&o.UpdatedAt,
		); err != nil {
			log.Error("failed to scan occurrence row", slog.String("error", err.Error()))
			return nil, store.NewStoreError("occurrence", "list", "scan failed", err)
		}

		o.Description = description.String
		o.StartTime = startTime.String
		o.StartDate = domain.CalendarDate(o.StartDate)
		o.Status = domain.OccurrenceStatus(status)
		if recipientID.Valid {
			id := recipientID.UUID
			o.RecipientID = &id
		}
		if sentAt.Valid {
			at := sentAt.Time
			o.SentAt = &at
		}
		occurrences = append(occurrences, o)
	}
	if err := rows.Err(); err != nil {
		log.Error("failed to iterate occurrence rows", slog.String("error", err.Error()))
		return nil, store.NewStoreError("occurrence", "list", "iteration failed", err)
	}

	log.Debug("occurrences listed",
		slog.Int("count", len(occurrences)),
		slog.String("from", fromDate.Format(domain.DateLayout)))
	return occurrences, nil
}

const updateOccurrenceStatusQuery = `
		UPDATE task_occurrences
		SET status = $1, sent_at = COALESCE($2, sent_at), updated_at = $3
		WHERE id = $4 AND status = $5
	`

const occurrenceStatusQuery = `SELECT status FROM task_occurrences WHERE id = $1`

// UpdateStatus implements store.OccurrenceStore.UpdateStatus
func (s *PostgresOccurrenceStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.OccurrenceStatus,
	at time.Time,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !to.Valid() {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrInvalidStatus)
	}

	var sentAt sql.NullTime
	if to == domain.StatusSent {
		sentAt = sql.NullTime{Time: at.UTC(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, updateOccurrenceStatusQuery,
		string(to), sentAt, at.UTC(), id, string(from))
	if err != nil {
		log.Error("failed to update occurrence status",
			slog.String("error", err.Error()),
			slog.String("occurrence_id", id.String()),
			slog.String("to", string(to)))
		return store.NewStoreError("occurrence", "update_status", "update failed", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("occurrence", "update_status", "rows affected unavailable", err)
	}
	if affected > 0 {
		log.Debug("occurrence status updated",
			slog.String("occurrence_id", id.String()),
			slog.String("from", string(from)),
			slog.String("to", string(to)))
		return nil
	}

	// Nothing changed: tell "missing" apart from "moved on".
	var current string
	err = s.db.QueryRowContext(ctx, occurrenceStatusQuery, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrOccurrenceNotFound
	}
	if err != nil {
		return store.NewStoreError("occurrence", "update_status", "status lookup failed", MapError(err))
	}

	log.Warn("occurrence status changed concurrently",
		slog.String("occurrence_id", id.String()),
		slog.String("expected", string(from)),
		slog.String("actual", current))
	return fmt.Errorf("%w: occurrence %s is %s, expected %s", store.ErrStatusConflict, id, current, from)
}
