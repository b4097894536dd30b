// Package scenario implements the template / scenario engine: capturing a
// dossier's movement history into a reusable ScenarioTemplate, materializing
// a template into concrete wire messages for a juridical entity, shifting
// timestamps for replay, and driving a timed replay against an endpoint.
package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
	"hl7-interop-bridge/internal/vocabulary"
)

// MovementSource supplies a dossier's movement history in no particular
// order; Capture sorts it chronologically.
type MovementSource interface {
	MovementsByDossier(ctx context.Context, dossierID string) ([]*domain.Movement, error)
}

// TemplateRepository persists scenario templates, keyed by their unique key.
type TemplateRepository interface {
	FindByKey(ctx context.Context, key string) (*domain.ScenarioTemplate, error)
	Save(ctx context.Context, t *domain.ScenarioTemplate) error
}

// Capturer builds ScenarioTemplates from real dossier history.
type Capturer struct {
	Movements   MovementSource
	Templates   TemplateRepository
	Vocabulary  *vocabulary.Registry
	IDGenerator func() string
	NowFunc     func() time.Time
}

// NewCapturer builds a Capturer over the given collaborators.
func NewCapturer(movements MovementSource, templates TemplateRepository, registry *vocabulary.Registry, idGenerator func() string, nowFunc func() time.Time) *Capturer {
	return &Capturer{Movements: movements, Templates: templates, Vocabulary: registry, IDGenerator: idGenerator, NowFunc: nowFunc}
}

// Capture snapshots dossierID's movement history into a new ScenarioTemplate
// named templateName. The template carries no foreign key back to the
// dossier: deleting the dossier afterward must not affect it.
func (c *Capturer) Capture(ctx context.Context, dossierID string, templateName string) (*domain.ScenarioTemplate, error) {
	movements, err := c.Movements.MovementsByDossier(ctx, dossierID)
	if err != nil {
		return nil, fmt.Errorf("scenario: loading dossier movements: %w", err)
	}
	if len(movements) == 0 {
		return nil, coreerrors.New(coreerrors.KindCaptureEmptyDossier,
			"dossier has no movements to capture", map[string]any{"dossier_id": dossierID})
	}

	sort.Slice(movements, func(i, j int) bool { return movements[i].Timestamp.Before(movements[j].Timestamp) })

	steps := make([]domain.ScenarioTemplateStep, 0, len(movements))
	var previous time.Time
	for i, m := range movements {
		semanticCode, role := c.inferSemantic(m)
		var delay time.Duration
		if i > 0 {
			delay = m.Timestamp.Sub(previous)
		}
		steps = append(steps, domain.ScenarioTemplateStep{
			ID:                c.IDGenerator(),
			OrderIndex:        i,
			SemanticEventCode: semanticCode,
			Trigger:           strings.TrimPrefix(m.Trigger, "ADT^"),
			Narrative:         narrativeFor(m),
			Role:              role,
			DelayFromPrevious: delay,
			SnapshotAt:        m.Timestamp,
			PayloadSnapshot: domain.StepPayload{
				MovementType: string(m.Action),
				ServiceCode:  m.Location.ServiceCode,
				MedicalUF:    m.MedicalUF,
				CareUF:       m.CareUF,
				Nature:       m.Nature,
				RawSnapshot:  narrativeFor(m),
			},
			DefaultProtocol: domain.ProtocolHL7v2,
		})
		previous = m.Timestamp
	}

	now := c.NowFunc()
	template := &domain.ScenarioTemplate{
		ID:          c.IDGenerator(),
		Key:         fmt.Sprintf("captured.dossier_%s_%d", dossierID, now.Unix()),
		Name:        templateName,
		Description: fmt.Sprintf("captured from dossier %s", dossierID),
		Category:    "captured",
		Tags:        []string{"captured", "real-data", fmt.Sprintf("dossier-%s", dossierID)},
		Protocols:   []domain.Protocol{domain.ProtocolHL7v2, domain.ProtocolFHIR},
		TimeConfig: domain.TimeConfig{
			AnchorMode:        domain.AnchorSliding,
			PreserveIntervals: true,
		},
		Steps:     steps,
		CreatedAt: now,
	}

	if err := c.Templates.Save(ctx, template); err != nil {
		return nil, fmt.Errorf("scenario: saving captured template: %w", err)
	}
	return template, nil
}

// inferSemantic derives a step's semantic event code and message role from
// the movement's own recorded trigger, falling back to action-based
// inference when the trigger is not in the registry (e.g. movements
// imported from a system with a different vocabulary).
func (c *Capturer) inferSemantic(m *domain.Movement) (string, domain.MessageRole) {
	if c.Vocabulary != nil {
		if entry, ok := c.Vocabulary.Lookup(strings.TrimPrefix(m.Trigger, "ADT^")); ok {
			return entry.SemanticCode, entry.Role
		}
	}
	switch m.Action {
	case domain.ActionInsert:
		return "UNKNOWN_INSERT", domain.RoleAdmission
	case domain.ActionCancel:
		return "UNKNOWN_CANCEL", domain.RoleUpdate
	default:
		return "UNKNOWN_UPDATE", domain.RoleUpdate
	}
}

func narrativeFor(m *domain.Movement) string {
	return fmt.Sprintf("action=%s service=%s medicalUF=%s careUF=%s nature=%s",
		m.Action, m.Location.String(), m.MedicalUF.Code, m.CareUF.Code, m.Nature)
}
