package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hl7-interop-bridge/internal/domain"
	"hl7-interop-bridge/internal/storage/postgres"
)

// NamespaceRepository resolves and tracks identifier namespaces,
// satisfying internal/inbound's NamespaceRepository, internal/identifier's
// Repository, and internal/scenario's NamespaceProvider interfaces.
type NamespaceRepository struct {
	db *postgres.Client
}

// NewNamespaceRepository builds a NamespaceRepository over db.
func NewNamespaceRepository(db *postgres.Client) *NamespaceRepository {
	return &NamespaceRepository{db: db}
}

// Find resolves the namespace for idType scoped to juridicalEntityID,
// falling back to the global namespace (owning_entity_id = '') when no
// entity-scoped one exists.
func (r *NamespaceRepository) Find(ctx context.Context, idType domain.IdentifierType, juridicalEntityID string) (*domain.IdentifierNamespace, error) {
	row := r.db.QueryRow(ctx, namespaceQueries.Find, string(idType), juridicalEntityID)
	var ns domain.IdentifierNamespace
	var typ, mode string
	if err := row.Scan(&ns.ID, &ns.SystemURI, &ns.OID, &typ, &ns.OwningEntityID, &mode,
		&ns.PrefixPattern, &ns.RangeMin, &ns.RangeMax); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("repository: no namespace configured for type %s", idType)
		}
		return nil, fmt.Errorf("repository: finding namespace: %w", err)
	}
	ns.Type = domain.IdentifierType(typ)
	ns.Mode = domain.GenerationMode(mode)
	return &ns, nil
}

// IsAssigned reports whether value has already been handed out in namespaceID.
func (r *NamespaceRepository) IsAssigned(ctx context.Context, namespaceID, value string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, namespaceQueries.IsAssigned, namespaceID, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("repository: checking assignment: %w", err)
	}
	return exists, nil
}

// Assign records that value has been handed out in namespaceID.
func (r *NamespaceRepository) Assign(ctx context.Context, namespaceID, value string) error {
	if err := r.db.Exec(ctx, namespaceQueries.Assign, namespaceID, value); err != nil {
		return fmt.Errorf("repository: recording assignment: %w", err)
	}
	return nil
}

// CountAssigned returns the number of values handed out in namespaceID, for
// capacity estimation.
func (r *NamespaceRepository) CountAssigned(ctx context.Context, namespaceID string) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, namespaceQueries.CountAssigned, namespaceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: counting assignments: %w", err)
	}
	return count, nil
}
