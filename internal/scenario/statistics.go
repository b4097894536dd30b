package scenario

import (
	"context"
	"time"

	"hl7-interop-bridge/internal/domain"
)

// RunReader loads completed scenario runs for statistics aggregation.
type RunReader interface {
	RunsInWindow(ctx context.Context, templateKey string, since, until time.Time) ([]*domain.ScenarioRun, error)
}

// Stats aggregates over a set of runs; nothing here is persisted, it is
// recomputed from the run log on every query.
type Stats struct {
	Count            int
	SuccessRate      float64
	ACKCodeCounts    map[string]int
	MeanDurationSecs float64
}

// Statistician computes run aggregations on demand.
type Statistician struct {
	Runs RunReader
}

// NewStatistician builds a Statistician over reader.
func NewStatistician(reader RunReader) *Statistician {
	return &Statistician{Runs: reader}
}

// Summarize aggregates every completed run of templateKey started within
// [since, until): count, success rate, ACK-code (or error-kind) distribution
// across all steps, and mean run duration.
func (s *Statistician) Summarize(ctx context.Context, templateKey string, since, until time.Time) (Stats, error) {
	runs, err := s.Runs.RunsInWindow(ctx, templateKey, since, until)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ACKCodeCounts: make(map[string]int)}
	if len(runs) == 0 {
		return stats, nil
	}

	stats.Count = len(runs)
	var successRuns int
	var totalDuration time.Duration
	for _, run := range runs {
		if run.AggregateStatus == domain.RunSuccess {
			successRuns++
		}
		if run.FinishedAt != nil {
			totalDuration += run.FinishedAt.Sub(run.StartedAt)
		}
		for _, step := range run.StepResults {
			code := step.Message
			if code == "" {
				code = step.ErrorKind
			}
			if code != "" {
				stats.ACKCodeCounts[code]++
			}
		}
	}

	stats.SuccessRate = float64(successRuns) / float64(stats.Count)
	stats.MeanDurationSecs = totalDuration.Seconds() / float64(stats.Count)
	return stats, nil
}
