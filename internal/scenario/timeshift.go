package scenario

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"hl7-interop-bridge/internal/domain"
)

// Schedule computes the wall-clock send time for every step of template,
// honoring its TimeConfig: the anchor mode fixes the first step's time
// (sliding: now plus an offset; fixed: a configured timestamp; none: the
// step's own captured SnapshotAt), PreserveIntervals decides whether
// inter-step deltas survive or collapse to the anchor, and per-step jitter
// is applied independently afterward.
func Schedule(template *domain.ScenarioTemplate, now time.Time) ([]time.Time, error) {
	cfg := template.TimeConfig
	times := make([]time.Time, len(template.Steps))
	if len(template.Steps) == 0 {
		return times, nil
	}

	var anchor time.Time
	switch cfg.AnchorMode {
	case domain.AnchorFixed:
		anchor = cfg.FixedStart
	case domain.AnchorNone:
		anchor = template.Steps[0].SnapshotAt
	default:
		anchor = now.AddDate(0, 0, cfg.SlidingOffsetDays)
	}

	collapsed := cfg.AnchorMode != domain.AnchorNone && !cfg.PreserveIntervals
	current := anchor
	for i, step := range template.Steps {
		switch {
		case i == 0:
			current = anchor
		case cfg.AnchorMode == domain.AnchorNone:
			current = step.SnapshotAt
		case cfg.PreserveIntervals:
			current = current.Add(step.DelayFromPrevious)
		default:
			current = anchor
		}

		jittered, err := applyJitter(current, cfg.JitterMinMinutes, cfg.JitterMaxMinutes)
		if err != nil {
			return nil, fmt.Errorf("scenario: jittering step %d: %w", step.OrderIndex, err)
		}
		if i > 0 && (jittered.Before(times[i-1]) || (!collapsed && jittered.Equal(times[i-1]))) {
			jittered = times[i-1].Add(time.Second)
		}
		times[i] = jittered
	}
	return times, nil
}

// applyJitter nudges t by a uniform random offset in [min, max] minutes,
// independently per call. A zero range is a no-op.
func applyJitter(t time.Time, min, max int) (time.Time, error) {
	if min == 0 && max == 0 {
		return t, nil
	}
	if max < min {
		max = min
	}
	span := int64(max-min) + 1
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return t, err
	}
	minutes := int64(min) + n.Int64()
	return t.Add(time.Duration(minutes) * time.Minute), nil
}
