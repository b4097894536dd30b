package scenario

import (
	"testing"
	"time"

	"hl7-interop-bridge/internal/domain"
)

func stepsWithDelays(delays ...time.Duration) []domain.ScenarioTemplateStep {
	steps := make([]domain.ScenarioTemplateStep, len(delays))
	for i, d := range delays {
		steps[i] = domain.ScenarioTemplateStep{OrderIndex: i, DelayFromPrevious: d}
	}
	return steps
}

func TestScheduleSlidingPreservesIntervals(t *testing.T) {
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	template := &domain.ScenarioTemplate{
		TimeConfig: domain.TimeConfig{AnchorMode: domain.AnchorSliding, SlidingOffsetDays: 1, PreserveIntervals: true},
		Steps:      stepsWithDelays(0, 2*time.Hour, 3*time.Hour),
	}

	times, err := Schedule(template, now)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	expectedFirst := now.AddDate(0, 0, 1)
	if !times[0].Equal(expectedFirst) {
		t.Errorf("first step = %v, want %v", times[0], expectedFirst)
	}
	if !times[1].Equal(expectedFirst.Add(2 * time.Hour)) {
		t.Errorf("second step = %v, want +2h", times[1])
	}
	if !times[2].Equal(expectedFirst.Add(5 * time.Hour)) {
		t.Errorf("third step = %v, want +5h", times[2])
	}
}

func TestScheduleCollapsesIntervalsWhenNotPreserved(t *testing.T) {
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	template := &domain.ScenarioTemplate{
		TimeConfig: domain.TimeConfig{AnchorMode: domain.AnchorFixed, FixedStart: now, PreserveIntervals: false},
		Steps:      stepsWithDelays(0, 2*time.Hour, 3*time.Hour),
	}

	times, err := Schedule(template, now)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	for i, ti := range times {
		if !ti.Equal(now) {
			t.Errorf("step %d = %v, want anchor %v", i, ti, now)
		}
	}
}

func TestScheduleNoneUsesSnapshotTimestamps(t *testing.T) {
	snap0 := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	snap1 := time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC)
	template := &domain.ScenarioTemplate{
		TimeConfig: domain.TimeConfig{AnchorMode: domain.AnchorNone},
		Steps: []domain.ScenarioTemplateStep{
			{OrderIndex: 0, SnapshotAt: snap0},
			{OrderIndex: 1, SnapshotAt: snap1},
		},
	}

	times, err := Schedule(template, time.Now())
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !times[0].Equal(snap0) || !times[1].Equal(snap1) {
		t.Errorf("got %v, want snapshot timestamps [%v %v]", times, snap0, snap1)
	}
}

func TestScheduleAppliesJitterWithinBounds(t *testing.T) {
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	template := &domain.ScenarioTemplate{
		TimeConfig: domain.TimeConfig{AnchorMode: domain.AnchorFixed, FixedStart: now, JitterMinMinutes: 1, JitterMaxMinutes: 5},
		Steps:      stepsWithDelays(0),
	}

	times, err := Schedule(template, now)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	delta := times[0].Sub(now)
	if delta < time.Minute || delta > 5*time.Minute {
		t.Errorf("jittered delta = %v, want [1m, 5m]", delta)
	}
}

func TestScheduleClampsOutOfOrderNegativeJitter(t *testing.T) {
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	template := &domain.ScenarioTemplate{
		TimeConfig: domain.TimeConfig{
			AnchorMode:        domain.AnchorSliding,
			PreserveIntervals: true,
			JitterMinMinutes:  -10,
			JitterMaxMinutes:  -9,
		},
		Steps: stepsWithDelays(0, time.Minute, time.Minute),
	}

	times, err := Schedule(template, now)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			t.Errorf("step %d (%v) did not stay after step %d (%v)", i, times[i], i-1, times[i-1])
		}
	}
}
