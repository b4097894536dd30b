package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hl7-interop-bridge/internal/domain"
	"hl7-interop-bridge/internal/storage/postgres"
)

// VenueRepository persists venues, satisfying internal/inbound's
// VenueRepository interface.
type VenueRepository struct {
	db *postgres.Client
}

// NewVenueRepository builds a VenueRepository over db.
func NewVenueRepository(db *postgres.Client) *VenueRepository {
	return &VenueRepository{db: db}
}

func (r *VenueRepository) FindBySequence(ctx context.Context, juridicalEntityID, sequenceNumber string) (*domain.Venue, error) {
	row := r.db.QueryRow(ctx, venueQueries.FindBySequence, juridicalEntityID, sequenceNumber)
	v, err := scanVenue(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: finding venue by sequence: %w", err)
	}
	return v, nil
}

func (r *VenueRepository) Create(ctx context.Context, v *domain.Venue) error {
	location, movementIDs, err := marshalVenueJSON(v)
	if err != nil {
		return err
	}
	err = r.db.Exec(ctx, venueQueries.Insert,
		v.ID, v.DossierID, v.SequenceNumber, v.Start, v.End, string(v.Status),
		location, movementIDs, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: creating venue: %w", err)
	}
	return nil
}

func (r *VenueRepository) Update(ctx context.Context, v *domain.Venue) error {
	location, movementIDs, err := marshalVenueJSON(v)
	if err != nil {
		return err
	}
	err = r.db.Exec(ctx, venueQueries.Update, v.ID, v.End, string(v.Status), location, movementIDs, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: updating venue: %w", err)
	}
	return nil
}

func marshalVenueJSON(v *domain.Venue) (location, movementIDs []byte, err error) {
	if location, err = json.Marshal(v.CurrentLocation); err != nil {
		return nil, nil, fmt.Errorf("repository: encoding current location: %w", err)
	}
	if movementIDs, err = json.Marshal(v.MovementIDs); err != nil {
		return nil, nil, fmt.Errorf("repository: encoding movement ids: %w", err)
	}
	return location, movementIDs, nil
}

func scanVenue(row pgx.Row) (*domain.Venue, error) {
	var v domain.Venue
	var status string
	var location, movementIDs []byte
	if err := row.Scan(&v.ID, &v.DossierID, &v.SequenceNumber, &v.Start, &v.End,
		&status, &location, &movementIDs, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.Status = domain.VenueStatus(status)
	if err := json.Unmarshal(location, &v.CurrentLocation); err != nil {
		return nil, fmt.Errorf("repository: decoding current location: %w", err)
	}
	if err := json.Unmarshal(movementIDs, &v.MovementIDs); err != nil {
		return nil, fmt.Errorf("repository: decoding movement ids: %w", err)
	}
	return &v, nil
}
