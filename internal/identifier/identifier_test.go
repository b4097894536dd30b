package identifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
)

// fakeLocker grants a lock immediately unless the same key is already held,
// in which case it refuses without waiting.
type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (f *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, false, nil
	}
	f.held[key] = true
	release := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}
	return release, true, nil
}

type fakeRepo struct {
	mu       sync.Mutex
	assigned map[string]map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{assigned: map[string]map[string]bool{}}
}

func (f *fakeRepo) IsAssigned(_ context.Context, namespaceID, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assigned[namespaceID][value], nil
}

func (f *fakeRepo) Assign(_ context.Context, namespaceID, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assigned[namespaceID] == nil {
		f.assigned[namespaceID] = map[string]bool{}
	}
	f.assigned[namespaceID][value] = true
	return nil
}

func (f *fakeRepo) CountAssigned(_ context.Context, namespaceID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.assigned[namespaceID])), nil
}

func TestAllocateFixedPrefixPattern(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, newFakeLocker())

	ns := &domain.IdentifierNamespace{
		ID:            "ipp-main",
		Type:          domain.IdentifierIPP,
		Mode:          domain.GenerationFixedPrefix,
		PrefixPattern: "9...",
	}

	value, err := svc.Allocate(context.Background(), ns, "")
	require.NoError(t, err)
	assert.Len(t, value, 4)
	assert.Equal(t, byte('9'), value[0])

	assigned, err := repo.IsAssigned(context.Background(), ns.ID, value)
	require.NoError(t, err)
	assert.True(t, assigned)
}

func TestAllocateNumericRange(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, newFakeLocker())

	ns := &domain.IdentifierNamespace{
		ID:       "vn-main",
		Type:     domain.IdentifierVN,
		Mode:     domain.GenerationNumericRange,
		RangeMin: 1000,
		RangeMax: 1002,
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		v, err := svc.Allocate(context.Background(), ns, "")
		require.NoError(t, err)
		seen[v] = true
	}
	assert.Len(t, seen, 3, "expected all three values in the tiny range to be exhausted without collision")

	_, err := svc.Allocate(context.Background(), ns, "")
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindIdentifierExhausted))
}

func TestValidateChecksShapeAndAssignment(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, newFakeLocker())

	ns := &domain.IdentifierNamespace{
		ID:            "ipp-main",
		Mode:          domain.GenerationFixedPrefix,
		PrefixPattern: "9..",
	}

	ok, err := svc.Validate(context.Background(), ns, "abc")
	require.NoError(t, err)
	assert.False(t, ok, "wrong shape must fail validation before touching the store")

	value, err := svc.Allocate(context.Background(), ns, "")
	require.NoError(t, err)

	ok, err = svc.Validate(context.Background(), ns, value)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEstimateAvailable(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, newFakeLocker())

	ns := &domain.IdentifierNamespace{
		ID:       "vn-main",
		Mode:     domain.GenerationNumericRange,
		RangeMin: 1,
		RangeMax: 10,
	}

	remaining, err := svc.EstimateAvailable(context.Background(), ns)
	require.NoError(t, err)
	assert.Equal(t, int64(10), remaining)

	_, err = svc.Allocate(context.Background(), ns, "")
	require.NoError(t, err)

	remaining, err = svc.EstimateAvailable(context.Background(), ns)
	require.NoError(t, err)
	assert.Equal(t, int64(9), remaining)
}

func TestAllocateRejectsExternalMode(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, newFakeLocker())

	ns := &domain.IdentifierNamespace{ID: "ins-main", Mode: domain.GenerationExternal}
	_, err := svc.Allocate(context.Background(), ns, "")
	require.Error(t, err, "INS values are never generated, only accepted from the wire")
}
