package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/facilitydesk/taskdispatch/internal/platform/logger"
	"github.com/facilitydesk/taskdispatch/internal/store"
)

// PostgresRecipientStore implements the store.RecipientStore interface
// using a PostgreSQL database as the storage backend.
type PostgresRecipientStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresRecipientStore creates a new PostgreSQL implementation of the RecipientStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresRecipientStore(db store.DBTX, logger *slog.Logger) *PostgresRecipientStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresRecipientStore{
		db:     db,
		logger: logger.With(slog.String("component", "recipient_store")),
	}
}

// Ensure PostgresRecipientStore implements store.RecipientStore interface
var _ store.RecipientStore = (*PostgresRecipientStore)(nil)

const listRecipientsQuery = `
		SELECT id, name, contact, language
		FROM recipients
		ORDER BY name ASC, id ASC
	`

// ListRecipients implements store.RecipientStore.ListRecipients
func (s *PostgresRecipientStore) ListRecipients(ctx context.Context) ([]domain.Recipient, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, listRecipientsQuery)
	if err != nil {
		log.Error("failed to query recipients", slog.String("error", err.Error()))
		return nil, store.NewStoreError("recipient", "list", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var recipients []domain.Recipient
	for rows.Next() {
		var (
			r        domain.Recipient
			contact  sql.NullString
			language sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &contact, &language); err != nil {
			log.Error("failed to scan recipient row", slog.String("error", err.Error()))
			return nil, store.NewStoreError("recipient", "list", "scan failed", err)
		}
		r.Contact = contact.String
		r.Language = language.String
		recipients = append(recipients, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("recipient", "list", "iteration failed", err)
	}

	log.Debug("recipients listed", slog.Int("count", len(recipients)))
	return recipients, nil
}
