// Package identifier implements the namespace service of the design:
// allocation, validation and capacity estimation for IPP/NDA/VN/MVT values,
// generalizing the reference implementation's PatientCodeGeneratorService (a
// single-format "{ETAB}-{YYYY}-{NNN}-{LLL}" counter) into a service that honors
// a namespace's own generation mode and prefix pattern.
package identifier

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
)

const (
	maxAllocationAttempts = 100
	allocationLockTTL     = 5 * time.Second
)

// Locker acquires the per-(namespace,type) exclusive lock the design requires
// around allocation. *redis/Client satisfies this; tests can supply an in-
// process fake.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Repository persists which values have been handed out per namespace, so
// the allocator's collision check survives process restarts.
type Repository interface {
	IsAssigned(ctx context.Context, namespaceID, value string) (bool, error)
	Assign(ctx context.Context, namespaceID, value string) error
	CountAssigned(ctx context.Context, namespaceID string) (int64, error)
}

// Service implements allocate/validate/estimate_available.
type Service struct {
	repo  Repository
	locks Locker
}

// New builds an identifier Service over the given repository and the
// distributed lock client used to make allocation atomic across
// concurrent runs.
func New(repo Repository, locks Locker) *Service {
	return &Service{repo: repo, locks: locks}
}

// Allocate mints a fresh, unassigned value for namespace, retrying on
// collision up to maxAllocationAttempts before failing with
// IdentifierPoolExhausted. overridePattern, when non-empty, replaces the
// namespace's own PrefixPattern for this call only (used by C10 scenario runs
// that want a distinguishable prefix, e.g. "--ipp-prefix").
func (s *Service) Allocate(ctx context.Context, ns *domain.IdentifierNamespace, overridePattern string) (string, error) {
	if ns.Mode == domain.GenerationExternal {
		return "", coreerrors.New(coreerrors.KindIdentifierCollision,
			"external-mode namespaces do not generate values; they are accepted from the wire", map[string]any{"namespace": ns.ID})
	}

	lockKey := fmt.Sprintf("interop:identifier-lock:%s:%s", ns.ID, ns.Type)
	release, ok, err := s.locks.Lock(ctx, lockKey, allocationLockTTL)
	if err != nil {
		return "", fmt.Errorf("identifier: acquiring allocation lock: %w", err)
	}
	if !ok {
		return "", coreerrors.New(coreerrors.KindConcurrentMod, "allocation lock already held", map[string]any{"namespace": ns.ID})
	}
	defer release()

	pattern := ns.PrefixPattern
	if overridePattern != "" {
		pattern = overridePattern
	}

	for attempt := 0; attempt < maxAllocationAttempts; attempt++ {
		candidate, err := generateCandidate(ns.Mode, pattern, ns.RangeMin, ns.RangeMax)
		if err != nil {
			return "", err
		}
		taken, err := s.repo.IsAssigned(ctx, ns.ID, candidate)
		if err != nil {
			return "", fmt.Errorf("identifier: checking assignment: %w", err)
		}
		if taken {
			continue
		}
		if err := s.repo.Assign(ctx, ns.ID, candidate); err != nil {
			return "", fmt.Errorf("identifier: persisting assignment: %w", err)
		}
		return candidate, nil
	}

	return "", coreerrors.New(coreerrors.KindIdentifierExhausted, "no unassigned value found within attempt budget",
		map[string]any{"namespace": ns.ID, "attempts": maxAllocationAttempts})
}

// Validate reports whether value is a syntactically plausible member of
// namespace and is already on record as assigned.
func (s *Service) Validate(ctx context.Context, ns *domain.IdentifierNamespace, value string) (bool, error) {
	if !matchesShape(ns.Mode, ns.PrefixPattern, ns.RangeMin, ns.RangeMax, value) {
		return false, nil
	}
	return s.repo.IsAssigned(ctx, ns.ID, value)
}

// EstimateAvailable reports how many more values namespace can mint before
// exhaustion.
func (s *Service) EstimateAvailable(ctx context.Context, ns *domain.IdentifierNamespace) (int64, error) {
	capacity, err := totalCapacity(ns.Mode, ns.PrefixPattern, ns.RangeMin, ns.RangeMax)
	if err != nil {
		return 0, err
	}
	used, err := s.repo.CountAssigned(ctx, ns.ID)
	if err != nil {
		return 0, fmt.Errorf("identifier: counting assigned values: %w", err)
	}
	remaining := capacity - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func generateCandidate(mode domain.GenerationMode, pattern string, min, max int64) (string, error) {
	switch mode {
	case domain.GenerationFixedPrefix:
		return generateFromPattern(pattern)
	case domain.GenerationNumericRange:
		return generateFromRange(min, max)
	default:
		return "", coreerrors.New(coreerrors.KindIdentifierCollision, "unsupported generation mode", map[string]any{"mode": string(mode)})
	}
}

// generateFromPattern implements the design fixed-prefix algorithm: literal
// prefix, then k random decimal digits where k is the count of trailing dots
// (e.g. "9..." => "9" followed by 3 random digits).
func generateFromPattern(pattern string) (string, error) {
	prefix := strings.TrimRight(pattern, ".")
	digitCount := len(pattern) - len(prefix)
	if digitCount == 0 {
		return prefix, nil
	}
	var b strings.Builder
	b.WriteString(prefix)
	for i := 0; i < digitCount; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("identifier: generating random digit: %w", err)
		}
		b.WriteString(d.String())
	}
	return b.String(), nil
}

// generateFromRange implements the design range algorithm: a uniform random
// integer in [min, max].
func generateFromRange(min, max int64) (string, error) {
	if max < min {
		return "", coreerrors.New(coreerrors.KindIdentifierCollision, "invalid range: max < min", map[string]any{"min": min, "max": max})
	}
	span := max - min + 1
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", fmt.Errorf("identifier: generating random range value: %w", err)
	}
	return fmt.Sprintf("%d", min+n.Int64()), nil
}

func totalCapacity(mode domain.GenerationMode, pattern string, min, max int64) (int64, error) {
	switch mode {
	case domain.GenerationFixedPrefix:
		prefix := strings.TrimRight(pattern, ".")
		digitCount := int64(len(pattern) - len(prefix))
		capacity := int64(1)
		for i := int64(0); i < digitCount; i++ {
			capacity *= 10
		}
		return capacity, nil
	case domain.GenerationNumericRange:
		if max < min {
			return 0, coreerrors.New(coreerrors.KindIdentifierCollision, "invalid range: max < min", map[string]any{"min": min, "max": max})
		}
		return max - min + 1, nil
	default:
		return 0, coreerrors.New(coreerrors.KindIdentifierCollision, "unsupported generation mode", map[string]any{"mode": string(mode)})
	}
}

func matchesShape(mode domain.GenerationMode, pattern string, min, max int64, value string) bool {
	switch mode {
	case domain.GenerationFixedPrefix:
		prefix := strings.TrimRight(pattern, ".")
		digitCount := len(pattern) - len(prefix)
		if !strings.HasPrefix(value, prefix) {
			return false
		}
		rest := value[len(prefix):]
		if len(rest) != digitCount {
			return false
		}
		for _, c := range rest {
			if c < '0' || c > '9' {
				return false
			}
		}
		return true
	case domain.GenerationNumericRange:
		var n int64
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
			return false
		}
		return n >= min && n <= max
	default:
		return true
	}
}
