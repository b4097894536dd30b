package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hl7-interop-bridge/internal/domain"
	"hl7-interop-bridge/internal/messagelog"
	"hl7-interop-bridge/internal/storage/postgres"
)

// MessageLogRepository persists message log entries, satisfying
// internal/messagelog's Repository interface.
type MessageLogRepository struct {
	db *postgres.Client
}

// NewMessageLogRepository builds a MessageLogRepository over db.
func NewMessageLogRepository(db *postgres.Client) *MessageLogRepository {
	return &MessageLogRepository{db: db}
}

func (r *MessageLogRepository) FindByControlID(ctx context.Context, controlID string) (*domain.MessageLogEntry, error) {
	row := r.db.QueryRow(ctx, messageLogQueries.FindByControlID, controlID)
	entry, err := scanMessageLogEntry(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: finding log entry by control id: %w", err)
	}
	return entry, nil
}

func (r *MessageLogRepository) Insert(ctx context.Context, entry *domain.MessageLogEntry) error {
	diagnostics, err := json.Marshal(entry.Diagnostics)
	if err != nil {
		return fmt.Errorf("repository: encoding diagnostics: %w", err)
	}
	err = r.db.Exec(ctx, messageLogQueries.Insert,
		entry.ID, entry.ControlID, entry.Trigger, string(entry.Direction), entry.CorrelationID,
		entry.Raw, entry.Timestamp, string(entry.Status), diagnostics, entry.EndpointID)
	if err != nil {
		return fmt.Errorf("repository: inserting log entry: %w", err)
	}
	return nil
}

func (r *MessageLogRepository) UpdateStatus(ctx context.Context, id string, status domain.LogStatus, diagnostics []domain.Diagnostic) error {
	encoded, err := json.Marshal(diagnostics)
	if err != nil {
		return fmt.Errorf("repository: encoding diagnostics: %w", err)
	}
	var returnedID string
	err = r.db.QueryRow(ctx, messageLogQueries.UpdateStatus, id, string(status), encoded).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("repository: updating log entry status: %w", messagelog.ErrAlreadyResolved)
	}
	if err != nil {
		return fmt.Errorf("repository: updating log entry status: %w", err)
	}
	return nil
}

func scanMessageLogEntry(row pgx.Row) (*domain.MessageLogEntry, error) {
	var e domain.MessageLogEntry
	var direction, status string
	var diagnostics []byte
	if err := row.Scan(&e.ID, &e.ControlID, &e.Trigger, &direction, &e.CorrelationID,
		&e.Raw, &e.Timestamp, &status, &diagnostics, &e.EndpointID); err != nil {
		return nil, err
	}
	e.Direction = domain.Direction(direction)
	e.Status = domain.LogStatus(status)
	if err := json.Unmarshal(diagnostics, &e.Diagnostics); err != nil {
		return nil, fmt.Errorf("repository: decoding diagnostics: %w", err)
	}
	return &e, nil
}
