// Package structure implements the structure resolver of the design: resolving
// a unit code to its node under a juridical entity, with an opt-in auto-create-
// uf policy that synthesizes a virtual parent chain for codes first seen on the
// wire.
package structure

import (
	"context"
	"fmt"

	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
)

// Repository persists structure nodes, scoped per juridical entity.
type Repository interface {
	FindByCode(ctx context.Context, code string, kind domain.StructureKind, juridicalEntityID string) ([]*domain.StructureNode, error)
	FindByID(ctx context.Context, id string) (*domain.StructureNode, error)
	Create(ctx context.Context, node *domain.StructureNode) error
}

// Resolver implements resolve(code, expected_kind, juridical_entity).
type Resolver struct {
	repo          Repository
	autoCreateUF  bool
	idGenerator   func() string
}

// New builds a Resolver. autoCreateUF mirrors the per-entity policy flag;
// it defaults to disabled and is threaded in from config (PAM_AUTO_CREATE_UF).
func New(repo Repository, autoCreateUF bool, idGenerator func() string) *Resolver {
	return &Resolver{repo: repo, autoCreateUF: autoCreateUF, idGenerator: idGenerator}
}

// Resolve finds the node for code under juridicalEntityID with kind
// expectedKind, auto-creating a virtual chain when the policy allows it.
func (r *Resolver) Resolve(ctx context.Context, code string, expectedKind domain.StructureKind, juridicalEntityID string) (*domain.StructureNode, error) {
	matches, err := r.repo.FindByCode(ctx, code, expectedKind, juridicalEntityID)
	if err != nil {
		return nil, fmt.Errorf("structure: looking up %q: %w", code, err)
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		if !r.autoCreateUF {
			return nil, coreerrors.New(coreerrors.KindUFUnknown, "unit code not found and auto-create-uf is disabled",
				map[string]any{"code": code, "kind": string(expectedKind)})
		}
		return r.createVirtualChain(ctx, code, expectedKind, juridicalEntityID)
	default:
		return nil, coreerrors.New(coreerrors.KindStructureAmbiguity, "multiple structure nodes match code",
			map[string]any{"code": code, "kind": string(expectedKind), "count": len(matches)})
	}
}

// createVirtualChain synthesizes code's node plus any missing ancestors
// between it and the juridical entity, each marked virtual. Ancestor nodes use
// a deterministic synthesized code so repeated resolutions under the same
// entity converge on the same virtual parent instead of duplicating it, keeping
// them replaceable without duplication by an authoritative MFN^M05 import.
func (r *Resolver) createVirtualChain(ctx context.Context, code string, kind domain.StructureKind, juridicalEntityID string) (*domain.StructureNode, error) {
	parentID, err := r.ensureVirtualAncestor(ctx, kind, juridicalEntityID)
	if err != nil {
		return nil, err
	}

	node := &domain.StructureNode{
		ID:                r.idGenerator(),
		Kind:              kind,
		Code:              code,
		Label:             code,
		ParentID:          parentID,
		JuridicalEntityID: juridicalEntityID,
		Virtual:           true,
	}
	if err := r.repo.Create(ctx, node); err != nil {
		return nil, fmt.Errorf("structure: creating virtual node for %q: %w", code, err)
	}
	return node, nil
}

// ensureVirtualAncestor returns the id of kind's parent node under
// juridicalEntityID, creating it (and its own ancestors, recursively) as a
// virtual placeholder if absent. Returns "" when kind has no parent kind
// (the juridical entity itself is the root).
func (r *Resolver) ensureVirtualAncestor(ctx context.Context, kind domain.StructureKind, juridicalEntityID string) (string, error) {
	parentKind, hasParent := domain.ParentKind(kind)
	if !hasParent {
		return "", nil
	}

	virtualCode := fmt.Sprintf("VIRTUAL-%s-%s", parentKind, juridicalEntityID)
	existing, err := r.repo.FindByCode(ctx, virtualCode, parentKind, juridicalEntityID)
	if err != nil {
		return "", fmt.Errorf("structure: looking up virtual ancestor %q: %w", virtualCode, err)
	}
	if len(existing) == 1 {
		return existing[0].ID, nil
	}

	grandparentID, err := r.ensureVirtualAncestor(ctx, parentKind, juridicalEntityID)
	if err != nil {
		return "", err
	}

	node := &domain.StructureNode{
		ID:                r.idGenerator(),
		Kind:              parentKind,
		Code:              virtualCode,
		Label:             virtualCode,
		ParentID:          grandparentID,
		JuridicalEntityID: juridicalEntityID,
		Virtual:           true,
	}
	if err := r.repo.Create(ctx, node); err != nil {
		return "", fmt.Errorf("structure: creating virtual ancestor %q: %w", virtualCode, err)
	}
	return node.ID, nil
}
