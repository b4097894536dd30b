package structure

import (
	"context"
	"fmt"
	"testing"

	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
)

type fakeRepo struct {
	nodes  []*domain.StructureNode
	nextID int
}

func (f *fakeRepo) FindByCode(_ context.Context, code string, kind domain.StructureKind, juridicalEntityID string) ([]*domain.StructureNode, error) {
	var out []*domain.StructureNode
	for _, n := range f.nodes {
		if n.Code == code && n.Kind == kind && n.JuridicalEntityID == juridicalEntityID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindByID(_ context.Context, id string) (*domain.StructureNode, error) {
	for _, n := range f.nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) Create(_ context.Context, node *domain.StructureNode) error {
	f.nodes = append(f.nodes, node)
	return nil
}

func (f *fakeRepo) genID() string {
	f.nextID++
	return fmt.Sprintf("node-%d", f.nextID)
}

func TestResolveReturnsExistingNode(t *testing.T) {
	repo := &fakeRepo{}
	existing := &domain.StructureNode{ID: "n1", Code: "CARD", Kind: domain.KindService, JuridicalEntityID: "je1"}
	repo.nodes = append(repo.nodes, existing)

	r := New(repo, false, repo.genID)
	node, err := r.Resolve(context.Background(), "CARD", domain.KindService, "je1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.ID != "n1" {
		t.Fatalf("expected existing node returned, got %s", node.ID)
	}
}

func TestResolveUnknownCodeRejectedWhenAutoCreateDisabled(t *testing.T) {
	repo := &fakeRepo{}
	r := New(repo, false, repo.genID)

	_, err := r.Resolve(context.Background(), "UNKNOWN", domain.KindFunctionalUnit, "je1")
	if err == nil {
		t.Fatal("expected error for unknown code with auto-create disabled")
	}
	if !coreerrors.Is(err, coreerrors.KindUFUnknown) {
		t.Fatalf("expected UF_UNKNOWN, got %v", err)
	}
}

func TestResolveAutoCreatesVirtualChain(t *testing.T) {
	repo := &fakeRepo{}
	r := New(repo, true, repo.genID)

	node, err := r.Resolve(context.Background(), "CARDIO01", domain.KindFunctionalUnit, "je1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !node.Virtual {
		t.Fatal("expected auto-created node to be marked virtual")
	}
	if node.ParentID == "" {
		t.Fatal("expected auto-created node to have a virtual parent")
	}

	parent, _ := repo.FindByID(context.Background(), node.ParentID)
	if parent == nil || !parent.Virtual || parent.Kind != domain.KindService {
		t.Fatalf("expected virtual SERVICE parent, got %+v", parent)
	}
	grandparent, _ := repo.FindByID(context.Background(), parent.ParentID)
	if grandparent == nil || !grandparent.Virtual || grandparent.Kind != domain.KindPole {
		t.Fatalf("expected virtual POLE grandparent, got %+v", grandparent)
	}
}

func TestResolveReusesVirtualAncestorAcrossCalls(t *testing.T) {
	repo := &fakeRepo{}
	r := New(repo, true, repo.genID)

	n1, err := r.Resolve(context.Background(), "UF-A", domain.KindFunctionalUnit, "je1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n2, err := r.Resolve(context.Background(), "UF-B", domain.KindFunctionalUnit, "je1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n1.ParentID != n2.ParentID {
		t.Fatalf("expected both units to share the same synthesized virtual parent chain, got %s vs %s", n1.ParentID, n2.ParentID)
	}
}

func TestResolveAmbiguityError(t *testing.T) {
	repo := &fakeRepo{}
	repo.nodes = append(repo.nodes,
		&domain.StructureNode{ID: "a", Code: "DUP", Kind: domain.KindService, JuridicalEntityID: "je1"},
		&domain.StructureNode{ID: "b", Code: "DUP", Kind: domain.KindService, JuridicalEntityID: "je1"},
	)
	r := New(repo, false, repo.genID)

	_, err := r.Resolve(context.Background(), "DUP", domain.KindService, "je1")
	if !coreerrors.Is(err, coreerrors.KindStructureAmbiguity) {
		t.Fatalf("expected STRUCTURE_AMBIGUITY, got %v", err)
	}
}
