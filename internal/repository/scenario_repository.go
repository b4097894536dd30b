package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"hl7-interop-bridge/internal/domain"
	"hl7-interop-bridge/internal/storage/postgres"
)

// ScenarioTemplateRepository persists scenario templates, satisfying
// internal/scenario's TemplateRepository interface.
type ScenarioTemplateRepository struct {
	db *postgres.Client
}

// NewScenarioTemplateRepository builds a ScenarioTemplateRepository over db.
func NewScenarioTemplateRepository(db *postgres.Client) *ScenarioTemplateRepository {
	return &ScenarioTemplateRepository{db: db}
}

func (r *ScenarioTemplateRepository) FindByKey(ctx context.Context, key string) (*domain.ScenarioTemplate, error) {
	row := r.db.QueryRow(ctx, scenarioTemplateQueries.FindByKey, key)
	t, err := scanScenarioTemplate(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: finding scenario template by key: %w", err)
	}
	return t, nil
}

func (r *ScenarioTemplateRepository) Save(ctx context.Context, t *domain.ScenarioTemplate) error {
	tags, protocols, timeConfig, steps, err := marshalTemplateJSON(t)
	if err != nil {
		return err
	}
	err = r.db.Exec(ctx, scenarioTemplateQueries.Upsert,
		t.ID, t.Key, t.Name, t.Description, t.Category, tags, protocols, timeConfig, steps, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: saving scenario template: %w", err)
	}
	return nil
}

func marshalTemplateJSON(t *domain.ScenarioTemplate) (tags, protocols, timeConfig, steps []byte, err error) {
	if tags, err = json.Marshal(t.Tags); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: encoding tags: %w", err)
	}
	if protocols, err = json.Marshal(t.Protocols); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: encoding protocols: %w", err)
	}
	if timeConfig, err = json.Marshal(t.TimeConfig); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: encoding time config: %w", err)
	}
	if steps, err = json.Marshal(t.Steps); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: encoding steps: %w", err)
	}
	return tags, protocols, timeConfig, steps, nil
}

func scanScenarioTemplate(row pgx.Row) (*domain.ScenarioTemplate, error) {
	var t domain.ScenarioTemplate
	var tags, protocols, timeConfig, steps []byte
	if err := row.Scan(&t.ID, &t.Key, &t.Name, &t.Description, &t.Category, &tags,
		&protocols, &timeConfig, &steps, &t.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &t.Tags); err != nil {
		return nil, fmt.Errorf("repository: decoding tags: %w", err)
	}
	if err := json.Unmarshal(protocols, &t.Protocols); err != nil {
		return nil, fmt.Errorf("repository: decoding protocols: %w", err)
	}
	if err := json.Unmarshal(timeConfig, &t.TimeConfig); err != nil {
		return nil, fmt.Errorf("repository: decoding time config: %w", err)
	}
	if err := json.Unmarshal(steps, &t.Steps); err != nil {
		return nil, fmt.Errorf("repository: decoding steps: %w", err)
	}
	return &t, nil
}

// ScenarioRunRepository persists scenario run progress, satisfying
// internal/scenario's RunLog interface (incremental step recording) and its
// RunReader interface (statistics aggregation over completed runs). Each
// RecordStep call upserts the entire run row with its latest StepResults
// slice, since the replayer always passes the run with every result
// recorded so far.
type ScenarioRunRepository struct {
	db *postgres.Client
}

// NewScenarioRunRepository builds a ScenarioRunRepository over db.
func NewScenarioRunRepository(db *postgres.Client) *ScenarioRunRepository {
	return &ScenarioRunRepository{db: db}
}

func (r *ScenarioRunRepository) RecordStep(ctx context.Context, run *domain.ScenarioRun, result domain.RunStepResult) error {
	stepResults, err := json.Marshal(run.StepResults)
	if err != nil {
		return fmt.Errorf("repository: encoding step results: %w", err)
	}
	err = r.db.Exec(ctx, scenarioRunQueries.RecordStep,
		run.ID, run.TemplateKey, run.EndpointID, string(run.Protocol), run.JuridicalEntityID,
		run.IPPPrefixOverride, run.NDAPrefixOverride, run.GeneratedIPP, run.GeneratedNDA,
		run.GeneratedVN, run.StartedAt, run.FinishedAt, stepResults, string(run.AggregateStatus),
		run.DryRun, run.StopOnError, run.Cancelled)
	if err != nil {
		return fmt.Errorf("repository: recording run step: %w", err)
	}
	return nil
}

func (r *ScenarioRunRepository) RunsInWindow(ctx context.Context, templateKey string, since, until time.Time) ([]*domain.ScenarioRun, error) {
	rows, err := r.db.Query(ctx, scenarioRunQueries.RunsInWindow, templateKey, since, until)
	if err != nil {
		return nil, fmt.Errorf("repository: listing runs in window: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScenarioRun
	for rows.Next() {
		run, err := scanScenarioRun(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: scanning scenario run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: iterating scenario runs: %w", err)
	}
	return out, nil
}

func scanScenarioRun(row rowScanner) (*domain.ScenarioRun, error) {
	var run domain.ScenarioRun
	var protocol, aggregateStatus string
	var stepResults []byte
	if err := row.Scan(&run.ID, &run.TemplateKey, &run.EndpointID, &protocol, &run.JuridicalEntityID,
		&run.IPPPrefixOverride, &run.NDAPrefixOverride, &run.GeneratedIPP, &run.GeneratedNDA,
		&run.GeneratedVN, &run.StartedAt, &run.FinishedAt, &stepResults, &aggregateStatus,
		&run.DryRun, &run.StopOnError, &run.Cancelled); err != nil {
		return nil, err
	}
	run.Protocol = domain.Protocol(protocol)
	run.AggregateStatus = domain.RunStatus(aggregateStatus)
	if err := json.Unmarshal(stepResults, &run.StepResults); err != nil {
		return nil, fmt.Errorf("repository: decoding step results: %w", err)
	}
	return &run, nil
}
