// Package messagelog implements the append-only log and correlator:
// recording inbound/outbound wire events, enforcing global control-id
// uniqueness, and gating the pending->success|error transition to happen
// exactly once.
package messagelog

import (
	"context"
	"errors"
	"fmt"

	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
)

// ErrAlreadyResolved is returned by Repository.UpdateStatus when the
// target entry is no longer pending. Logger.Resolve treats it as a
// programming error, not a recoverable condition.
var ErrAlreadyResolved = errors.New("messagelog: entry already resolved")

// Repository persists message log entries.
type Repository interface {
	FindByControlID(ctx context.Context, controlID string) (*domain.MessageLogEntry, error)
	Insert(ctx context.Context, entry *domain.MessageLogEntry) error
	// UpdateStatus transitions id from pending to status, returning
	// ErrAlreadyResolved if id is not currently pending.
	UpdateStatus(ctx context.Context, id string, status domain.LogStatus, diagnostics []domain.Diagnostic) error
}

// Logger implements append + correlate + single-transition semantics.
type Logger struct {
	repo        Repository
	idGenerator func() string
}

// New builds a Logger over repo.
func New(repo Repository, idGenerator func() string) *Logger {
	return &Logger{repo: repo, idGenerator: idGenerator}
}

// Append records a new log entry at receipt/emission time. For inbound entries,
// the correlation id is the message's own control id (it correlates the later
// ACK back to this request); for outbound entries, callers pass the control id
// of the request this message answers, or "" when none applies. Append rejects
// a duplicate inbound control id with DUPLICATE_CONTROL_ID.
func (l *Logger) Append(ctx context.Context, entry *domain.MessageLogEntry) error {
	if entry.Direction == domain.DirectionInbound {
		existing, err := l.repo.FindByControlID(ctx, entry.ControlID)
		if err != nil {
			return fmt.Errorf("messagelog: checking control-id uniqueness: %w", err)
		}
		if existing != nil {
			return coreerrors.New(coreerrors.KindDuplicateControlID, "duplicate inbound control id",
				map[string]any{"control_id": entry.ControlID})
		}
		if entry.CorrelationID == "" {
			entry.CorrelationID = entry.ControlID
		}
	}

	if entry.ID == "" {
		entry.ID = l.idGenerator()
	}
	if entry.Status == "" {
		entry.Status = domain.LogPending
	}

	if err := l.repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("messagelog: inserting entry: %w", err)
	}
	return nil
}

// Resolve transitions a pending entry to success or error exactly once.
func (l *Logger) Resolve(ctx context.Context, id string, status domain.LogStatus, diagnostics []domain.Diagnostic) error {
	if status != domain.LogSuccess && status != domain.LogError {
		panic(fmt.Sprintf("messagelog: Resolve called with non-terminal status %q", status))
	}
	err := l.repo.UpdateStatus(ctx, id, status, diagnostics)
	if errors.Is(err, ErrAlreadyResolved) {
		panic(fmt.Sprintf("messagelog: entry %s resolved twice", id))
	}
	if err != nil {
		return fmt.Errorf("messagelog: resolving entry %s: %w", id, err)
	}
	return nil
}

// Correlate finds the log entry an inbound control id identifies, used to
// pair an outbound ACK back to its originating request.
func (l *Logger) Correlate(ctx context.Context, controlID string) (*domain.MessageLogEntry, error) {
	entry, err := l.repo.FindByControlID(ctx, controlID)
	if err != nil {
		return nil, fmt.Errorf("messagelog: correlating control id %s: %w", controlID, err)
	}
	return entry, nil
}
