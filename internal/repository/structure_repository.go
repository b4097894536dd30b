package repository

import (
	"context"
	"fmt"

	"hl7-interop-bridge/internal/domain"
	"hl7-interop-bridge/internal/storage/postgres"
)

// StructureRepository persists structure nodes, satisfying
// internal/structure's Repository interface.
type StructureRepository struct {
	db *postgres.Client
}

// NewStructureRepository builds a StructureRepository over db.
func NewStructureRepository(db *postgres.Client) *StructureRepository {
	return &StructureRepository{db: db}
}

func (r *StructureRepository) FindByCode(ctx context.Context, code string, kind domain.StructureKind, juridicalEntityID string) ([]*domain.StructureNode, error) {
	rows, err := r.db.Query(ctx, structureQueries.FindByCode, code, string(kind), juridicalEntityID)
	if err != nil {
		return nil, fmt.Errorf("repository: finding structure nodes by code: %w", err)
	}
	defer rows.Close()

	var out []*domain.StructureNode
	for rows.Next() {
		node, err := scanStructureNode(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: scanning structure node: %w", err)
		}
		out = append(out, node)
	}
	return out, rows.Err()
}

func (r *StructureRepository) FindByID(ctx context.Context, id string) (*domain.StructureNode, error) {
	row := r.db.QueryRow(ctx, structureQueries.FindByID, id)
	var n domain.StructureNode
	var kind string
	if err := row.Scan(&n.ID, &kind, &n.Code, &n.Label, &n.ParentID, &n.JuridicalEntityID, &n.FINESS, &n.Virtual); err != nil {
		return nil, fmt.Errorf("repository: finding structure node by id: %w", err)
	}
	n.Kind = domain.StructureKind(kind)
	return &n, nil
}

func (r *StructureRepository) Create(ctx context.Context, node *domain.StructureNode) error {
	err := r.db.Exec(ctx, structureQueries.Insert,
		node.ID, string(node.Kind), node.Code, node.Label, node.ParentID,
		node.JuridicalEntityID, node.FINESS, node.Virtual)
	if err != nil {
		return fmt.Errorf("repository: creating structure node: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStructureNode(row rowScanner) (*domain.StructureNode, error) {
	var n domain.StructureNode
	var kind string
	if err := row.Scan(&n.ID, &kind, &n.Code, &n.Label, &n.ParentID, &n.JuridicalEntityID, &n.FINESS, &n.Virtual); err != nil {
		return nil, err
	}
	n.Kind = domain.StructureKind(kind)
	return &n, nil
}
