package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hl7-interop-bridge/internal/domain"
	"hl7-interop-bridge/internal/storage/postgres"
)

// MovementRepository persists movements, satisfying internal/inbound's
// MovementRepository interface and internal/scenario's MovementSource
// interface (MovementsByDossier) so the same adapter backs both the live
// pipeline and scenario capture.
type MovementRepository struct {
	db *postgres.Client
}

// NewMovementRepository builds a MovementRepository over db.
func NewMovementRepository(db *postgres.Client) *MovementRepository {
	return &MovementRepository{db: db}
}

func (r *MovementRepository) Create(ctx context.Context, m *domain.Movement) error {
	medicalUF, careUF, location, priorLocation, err := marshalMovementJSON(m)
	if err != nil {
		return err
	}
	err = r.db.Exec(ctx, movementQueries.Insert,
		m.ID, m.VenueID, m.SequenceNumber, m.Timestamp, m.Trigger, string(m.Action),
		m.Historic, m.OriginalTrigger, medicalUF, careUF, string(m.Nature), location,
		priorLocation, m.CancelsMovementID, m.Cancelled, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: creating movement: %w", err)
	}
	return nil
}

// MovementsByDossier loads every movement recorded against dossierID's
// venues, chronologically ordered, for scenario capture.
func (r *MovementRepository) MovementsByDossier(ctx context.Context, dossierID string) ([]*domain.Movement, error) {
	rows, err := r.db.Query(ctx, movementQueries.ListByDossier, dossierID)
	if err != nil {
		return nil, fmt.Errorf("repository: listing movements by dossier: %w", err)
	}
	defer rows.Close()

	var out []*domain.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: scanning movement: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: iterating movements: %w", err)
	}
	return out, nil
}

// LastNonCancelled returns the most recent non-cancelled movement recorded
// against venueID, or nil if none exists. internal/inbound's statemachine
// preconditions for A11/A12 key on this movement's trigger.
func (r *MovementRepository) LastNonCancelled(ctx context.Context, venueID string) (*domain.Movement, error) {
	row := r.db.QueryRow(ctx, movementQueries.LastNonCancelled, venueID)
	m, err := scanMovement(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: finding last non-cancelled movement: %w", err)
	}
	return m, nil
}

func scanMovement(row rowScanner) (*domain.Movement, error) {
	var m domain.Movement
	var action, nature string
	var medicalUF, careUF, location, priorLocation []byte
	if err := row.Scan(&m.ID, &m.VenueID, &m.SequenceNumber, &m.Timestamp, &m.Trigger,
		&action, &m.Historic, &m.OriginalTrigger, &medicalUF, &careUF, &nature,
		&location, &priorLocation, &m.CancelsMovementID, &m.Cancelled, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Action = domain.MovementAction(action)
	m.Nature = domain.Nature(nature)
	if err := json.Unmarshal(medicalUF, &m.MedicalUF); err != nil {
		return nil, fmt.Errorf("decoding medical uf: %w", err)
	}
	if err := json.Unmarshal(careUF, &m.CareUF); err != nil {
		return nil, fmt.Errorf("decoding care uf: %w", err)
	}
	if err := json.Unmarshal(location, &m.Location); err != nil {
		return nil, fmt.Errorf("decoding location: %w", err)
	}
	if err := json.Unmarshal(priorLocation, &m.PriorLocation); err != nil {
		return nil, fmt.Errorf("decoding prior location: %w", err)
	}
	return &m, nil
}

func marshalMovementJSON(m *domain.Movement) (medicalUF, careUF, location, priorLocation []byte, err error) {
	if medicalUF, err = json.Marshal(m.MedicalUF); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: encoding medical uf: %w", err)
	}
	if careUF, err = json.Marshal(m.CareUF); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: encoding care uf: %w", err)
	}
	if location, err = json.Marshal(m.Location); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: encoding location: %w", err)
	}
	if priorLocation, err = json.Marshal(m.PriorLocation); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: encoding prior location: %w", err)
	}
	return medicalUF, careUF, location, priorLocation, nil
}
