package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"hl7-interop-bridge/internal/domain"
	"hl7-interop-bridge/internal/storage/postgres"
)

// EndpointRepository persists transport endpoints, shared across the
// inbound pipeline, the outbound generator, and the scenario engine.
type EndpointRepository struct {
	db *postgres.Client
}

// NewEndpointRepository builds an EndpointRepository over db.
func NewEndpointRepository(db *postgres.Client) *EndpointRepository {
	return &EndpointRepository{db: db}
}

func (r *EndpointRepository) FindByID(ctx context.Context, id string) (*domain.Endpoint, error) {
	row := r.db.QueryRow(ctx, endpointQueries.FindByID, id)
	e, err := scanEndpoint(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: finding endpoint by id: %w", err)
	}
	return e, nil
}

func (r *EndpointRepository) Save(ctx context.Context, e *domain.Endpoint) error {
	pollSeconds := int(e.PollInterval / time.Second)
	err := r.db.Exec(ctx, endpointQueries.Insert,
		e.ID, string(e.Type), e.Host, e.Port, e.InboxPath, e.OutboxPath, e.FileGlob,
		pollSeconds, e.TLSCABundle, e.ForcedIdentifierSystem, e.ForcedIdentifierOID,
		e.OwningEntityID, e.ReceivingApplication, e.ReceivingFacility, e.FHIRBaseURL)
	if err != nil {
		return fmt.Errorf("repository: saving endpoint: %w", err)
	}
	return nil
}

func scanEndpoint(row pgx.Row) (*domain.Endpoint, error) {
	var e domain.Endpoint
	var typ string
	var pollSeconds int
	if err := row.Scan(&e.ID, &typ, &e.Host, &e.Port, &e.InboxPath, &e.OutboxPath, &e.FileGlob,
		&pollSeconds, &e.TLSCABundle, &e.ForcedIdentifierSystem, &e.ForcedIdentifierOID,
		&e.OwningEntityID, &e.ReceivingApplication, &e.ReceivingFacility, &e.FHIRBaseURL); err != nil {
		return nil, err
	}
	e.Type = domain.EndpointType(typ)
	e.PollInterval = time.Duration(pollSeconds) * time.Second
	return &e, nil
}
