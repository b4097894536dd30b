package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
)

type templateDoc struct {
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	Protocol    string     `json:"protocol"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	TimeConfig  *timeDoc   `json:"time_config,omitempty"`
	Steps       []stepDoc  `json:"steps"`
}

type timeDoc struct {
	AnchorMode        string    `json:"anchor_mode"`
	SlidingOffsetDays int       `json:"sliding_offset_days,omitempty"`
	FixedStart        time.Time `json:"fixed_start,omitempty"`
	PreserveIntervals bool      `json:"preserve_intervals"`
	JitterMinMinutes  int       `json:"jitter_min_minutes,omitempty"`
	JitterMaxMinutes  int       `json:"jitter_max_minutes,omitempty"`
}

type stepDoc struct {
	OrderIndex   int             `json:"order_index"`
	MessageType  string          `json:"message_type"`
	Format       string          `json:"format"`
	DelaySeconds int             `json:"delay_seconds"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// ExportTemplate serializes template to the scenario import/export JSON
// format: a flat document with a steps array, decoupled from the internal
// ScenarioTemplate/ScenarioTemplateStep representation.
func ExportTemplate(t *domain.ScenarioTemplate) ([]byte, error) {
	doc := templateDoc{
		Key:         t.Key,
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		Tags:        t.Tags,
		Steps:       make([]stepDoc, len(t.Steps)),
	}
	if len(t.Protocols) > 0 {
		doc.Protocol = string(t.Protocols[0])
	}
	doc.TimeConfig = &timeDoc{
		AnchorMode:        string(t.TimeConfig.AnchorMode),
		SlidingOffsetDays: t.TimeConfig.SlidingOffsetDays,
		FixedStart:        t.TimeConfig.FixedStart,
		PreserveIntervals: t.TimeConfig.PreserveIntervals,
		JitterMinMinutes:  t.TimeConfig.JitterMinMinutes,
		JitterMaxMinutes:  t.TimeConfig.JitterMaxMinutes,
	}
	for i, step := range t.Steps {
		payload, _ := json.Marshal(step.PayloadSnapshot)
		doc.Steps[i] = stepDoc{
			OrderIndex:   step.OrderIndex,
			MessageType:  "ADT^" + step.Trigger,
			Format:       string(step.DefaultProtocol),
			DelaySeconds: int(step.DelayFromPrevious.Seconds()),
			Payload:      payload,
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ImportOptions controls how ImportTemplate handles a key collision.
type ImportOptions struct {
	OverrideKey string // when set, replaces the document's own key
}

// ImportTemplate parses the scenario import/export JSON format into a
// ScenarioTemplate and saves it via repo, atomically: either the whole
// template is saved or none of it is. A duplicate key fails unless
// opts.OverrideKey supplies a fresh one.
func ImportTemplate(ctx context.Context, repo TemplateRepository, raw []byte, opts ImportOptions, idGenerator func() string, now time.Time) (*domain.ScenarioTemplate, error) {
	var doc templateDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("scenario: parsing import document: %w", err)
	}
	if doc.Key == "" || doc.Name == "" || doc.Protocol == "" || len(doc.Steps) == 0 {
		return nil, coreerrors.New(coreerrors.KindMissingRequired, "import document missing a required field", map[string]any{"key": doc.Key})
	}

	key := doc.Key
	if opts.OverrideKey != "" {
		key = opts.OverrideKey
	}

	if existing, err := repo.FindByKey(ctx, key); err == nil && existing != nil {
		return nil, coreerrors.New(coreerrors.KindIdentifierCollision, "a template with this key already exists", map[string]any{"key": key})
	}

	steps := make([]domain.ScenarioTemplateStep, len(doc.Steps))
	for i, s := range doc.Steps {
		var payload domain.StepPayload
		if len(s.Payload) > 0 {
			if err := json.Unmarshal(s.Payload, &payload); err != nil {
				return nil, fmt.Errorf("scenario: parsing step %d payload: %w", s.OrderIndex, err)
			}
		}
		steps[i] = domain.ScenarioTemplateStep{
			ID:                idGenerator(),
			OrderIndex:        s.OrderIndex,
			Trigger:           triggerFromMessageType(s.MessageType),
			DelayFromPrevious: time.Duration(s.DelaySeconds) * time.Second,
			PayloadSnapshot:   payload,
			DefaultProtocol:   domain.Protocol(s.Format),
		}
	}

	timeConfig := domain.TimeConfig{PreserveIntervals: true}
	if doc.TimeConfig != nil {
		timeConfig = domain.TimeConfig{
			AnchorMode:        domain.TimeAnchorMode(doc.TimeConfig.AnchorMode),
			SlidingOffsetDays: doc.TimeConfig.SlidingOffsetDays,
			FixedStart:        doc.TimeConfig.FixedStart,
			PreserveIntervals: doc.TimeConfig.PreserveIntervals,
			JitterMinMinutes:  doc.TimeConfig.JitterMinMinutes,
			JitterMaxMinutes:  doc.TimeConfig.JitterMaxMinutes,
		}
	}

	template := &domain.ScenarioTemplate{
		ID:          idGenerator(),
		Key:         key,
		Name:        doc.Name,
		Description: doc.Description,
		Category:    doc.Category,
		Tags:        doc.Tags,
		Protocols:   []domain.Protocol{domain.Protocol(doc.Protocol)},
		TimeConfig:  timeConfig,
		Steps:       steps,
		CreatedAt:   now,
	}

	if err := repo.Save(ctx, template); err != nil {
		return nil, fmt.Errorf("scenario: saving imported template: %w", err)
	}
	return template, nil
}

func triggerFromMessageType(messageType string) string {
	for i := len(messageType) - 1; i >= 0; i-- {
		if messageType[i] == '^' {
			return messageType[i+1:]
		}
	}
	return messageType
}
