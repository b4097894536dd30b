package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hl7-interop-bridge/internal/domain"
	"hl7-interop-bridge/internal/storage/postgres"
)

// PatientRepository persists patients, satisfying internal/inbound's
// PatientRepository interface.
type PatientRepository struct {
	db *postgres.Client
}

// NewPatientRepository builds a PatientRepository over db.
func NewPatientRepository(db *postgres.Client) *PatientRepository {
	return &PatientRepository{db: db}
}

func (r *PatientRepository) FindByExternalID(ctx context.Context, namespaceID, value string) (*domain.Patient, error) {
	filter, err := json.Marshal([]domain.ExternalIdentifier{{Namespace: namespaceID, Value: value}})
	if err != nil {
		return nil, fmt.Errorf("repository: encoding external id filter: %w", err)
	}

	row := r.db.QueryRow(ctx, patientQueries.FindByExternalID, filter)
	p, err := scanPatient(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: finding patient by external id: %w", err)
	}
	return p, nil
}

func (r *PatientRepository) Create(ctx context.Context, p *domain.Patient) error {
	givenNames, birthPlace, nationalID, externalIDs, err := marshalPatientJSON(p)
	if err != nil {
		return err
	}
	err = r.db.Exec(ctx, patientQueries.Insert,
		p.ID, p.FamilyName, givenNames, p.BirthDate, string(p.Sex), birthPlace,
		nationalID, string(p.IdentityReliability), externalIDs, p.MergedInto,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: creating patient: %w", err)
	}
	return nil
}

func (r *PatientRepository) Update(ctx context.Context, p *domain.Patient) error {
	givenNames, birthPlace, nationalID, externalIDs, err := marshalPatientJSON(p)
	if err != nil {
		return err
	}
	err = r.db.Exec(ctx, patientQueries.Update,
		p.ID, p.FamilyName, givenNames, p.BirthDate, string(p.Sex), birthPlace,
		nationalID, string(p.IdentityReliability), externalIDs, p.MergedInto, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: updating patient: %w", err)
	}
	return nil
}

func marshalPatientJSON(p *domain.Patient) (givenNames, birthPlace, nationalID, externalIDs []byte, err error) {
	if givenNames, err = json.Marshal(p.GivenNames); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: encoding given names: %w", err)
	}
	if birthPlace, err = json.Marshal(p.BirthPlace); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: encoding birth place: %w", err)
	}
	if nationalID, err = json.Marshal(p.NationalID); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: encoding national id: %w", err)
	}
	if externalIDs, err = json.Marshal(p.ExternalIDs); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: encoding external ids: %w", err)
	}
	return givenNames, birthPlace, nationalID, externalIDs, nil
}

func scanPatient(row pgx.Row) (*domain.Patient, error) {
	var p domain.Patient
	var sex, reliability string
	var givenNames, birthPlace, nationalID, externalIDs []byte

	if err := row.Scan(&p.ID, &p.FamilyName, &givenNames, &p.BirthDate, &sex, &birthPlace,
		&nationalID, &reliability, &externalIDs, &p.MergedInto, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Sex = domain.AdministrativeSex(sex)
	p.IdentityReliability = domain.IdentityReliability(reliability)
	if err := json.Unmarshal(givenNames, &p.GivenNames); err != nil {
		return nil, fmt.Errorf("repository: decoding given names: %w", err)
	}
	if err := json.Unmarshal(birthPlace, &p.BirthPlace); err != nil {
		return nil, fmt.Errorf("repository: decoding birth place: %w", err)
	}
	if len(nationalID) > 0 && string(nationalID) != "null" {
		p.NationalID = &domain.NationalIdentifier{}
		if err := json.Unmarshal(nationalID, p.NationalID); err != nil {
			return nil, fmt.Errorf("repository: decoding national id: %w", err)
		}
	}
	if err := json.Unmarshal(externalIDs, &p.ExternalIDs); err != nil {
		return nil, fmt.Errorf("repository: decoding external ids: %w", err)
	}
	return &p, nil
}
