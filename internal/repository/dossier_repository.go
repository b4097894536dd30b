package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hl7-interop-bridge/internal/domain"
	"hl7-interop-bridge/internal/storage/postgres"
)

// DossierRepository persists dossiers, satisfying internal/inbound's
// DossierRepository interface.
type DossierRepository struct {
	db *postgres.Client
}

// NewDossierRepository builds a DossierRepository over db.
func NewDossierRepository(db *postgres.Client) *DossierRepository {
	return &DossierRepository{db: db}
}

func (r *DossierRepository) FindBySequence(ctx context.Context, juridicalEntityID, sequenceNumber string) (*domain.Dossier, error) {
	row := r.db.QueryRow(ctx, dossierQueries.FindBySequence, juridicalEntityID, sequenceNumber)
	d, err := scanDossier(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: finding dossier by sequence: %w", err)
	}
	return d, nil
}

func (r *DossierRepository) Create(ctx context.Context, d *domain.Dossier) error {
	venueIDs, err := json.Marshal(d.VenueIDs)
	if err != nil {
		return fmt.Errorf("repository: encoding venue ids: %w", err)
	}
	err = r.db.Exec(ctx, dossierQueries.Insert,
		d.ID, d.PatientID, d.JuridicalEntityID, d.SequenceNumber, d.AdmitTime,
		string(d.Type), d.MedicalUFCode, d.HousingUFCode, d.CareUFCode, venueIDs,
		d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: creating dossier: %w", err)
	}
	return nil
}

func (r *DossierRepository) Update(ctx context.Context, d *domain.Dossier) error {
	venueIDs, err := json.Marshal(d.VenueIDs)
	if err != nil {
		return fmt.Errorf("repository: encoding venue ids: %w", err)
	}
	err = r.db.Exec(ctx, dossierQueries.Update, d.ID, d.MedicalUFCode, d.HousingUFCode, d.CareUFCode, venueIDs, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: updating dossier: %w", err)
	}
	return nil
}

func scanDossier(row pgx.Row) (*domain.Dossier, error) {
	var d domain.Dossier
	var typ string
	var venueIDs []byte
	if err := row.Scan(&d.ID, &d.PatientID, &d.JuridicalEntityID, &d.SequenceNumber, &d.AdmitTime,
		&typ, &d.MedicalUFCode, &d.HousingUFCode, &d.CareUFCode, &venueIDs, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Type = domain.DossierType(typ)
	if err := json.Unmarshal(venueIDs, &d.VenueIDs); err != nil {
		return nil, fmt.Errorf("repository: decoding venue ids: %w", err)
	}
	return &d, nil
}
