package scenario

import (
	"context"
	"fmt"
	"time"

	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
	"hl7-interop-bridge/internal/outbound"
)

// NamespaceProvider resolves the identifier namespace a juridical entity
// uses for a given identifier type.
type NamespaceProvider interface {
	Find(ctx context.Context, idType domain.IdentifierType, juridicalEntityID string) (*domain.IdentifierNamespace, error)
}

// Allocator mints a fresh value from a namespace; *identifier.Service
// satisfies this.
type Allocator interface {
	Allocate(ctx context.Context, ns *domain.IdentifierNamespace, overridePattern string) (string, error)
}

// MaterializeOptions tunes identifier reuse for a single materialization.
type MaterializeOptions struct {
	ReuseIPP          string // when set, skip allocation and use this IPP
	ReuseNDA          string
	ReuseVN           string
	IPPPrefixOverride string
	NDAPrefixOverride string
	VNPrefixOverride  string
}

// RenderedMessage is one wire message produced for a template step.
type RenderedMessage struct {
	StepOrderIndex int
	Trigger        string
	Protocol       domain.Protocol
	Bytes          []byte
	ScheduledAt    time.Time
}

// MaterializeResult is the full output of materializing a template: the
// ordered wire messages plus the identifiers minted for the run.
type MaterializeResult struct {
	Messages []RenderedMessage
	IPP      string
	NDA      string
	VN       string
}

// Materializer turns a ScenarioTemplate into concrete wire messages for a
// juridical entity, minting one IPP/NDA/VN for the whole sequence and one
// movement per step.
type Materializer struct {
	Namespaces         NamespaceProvider
	Identifiers        Allocator
	IDGenerator        func() string
	Sender             outbound.JuridicalEntity
	FallbackAuthority  string
}

// NewMaterializer builds a Materializer over the given collaborators.
func NewMaterializer(namespaces NamespaceProvider, identifiers Allocator, idGenerator func() string, sender outbound.JuridicalEntity, fallbackAuthority string) *Materializer {
	return &Materializer{
		Namespaces:        namespaces,
		Identifiers:       identifiers,
		IDGenerator:       idGenerator,
		Sender:            sender,
		FallbackAuthority: fallbackAuthority,
	}
}

// Materialize renders template into an ordered list of wire messages for
// protocol, scheduled at the wall-clock times schedule gives (one per
// step, same length and order as template.Steps — see Schedule).
func (m *Materializer) Materialize(ctx context.Context, template *domain.ScenarioTemplate, schedule []time.Time, protocol domain.Protocol, juridicalEntityID string, endpoint *domain.Endpoint, opts MaterializeOptions) (*MaterializeResult, error) {
	if len(schedule) != len(template.Steps) {
		return nil, fmt.Errorf("scenario: schedule length %d does not match step count %d", len(schedule), len(template.Steps))
	}

	ipp, err := m.resolveIdentifier(ctx, domain.IdentifierIPP, juridicalEntityID, opts.ReuseIPP, opts.IPPPrefixOverride)
	if err != nil {
		return nil, err
	}
	nda, err := m.resolveIdentifier(ctx, domain.IdentifierNDA, juridicalEntityID, opts.ReuseNDA, opts.NDAPrefixOverride)
	if err != nil {
		return nil, err
	}
	vn, err := m.resolveIdentifier(ctx, domain.IdentifierVN, juridicalEntityID, opts.ReuseVN, opts.VNPrefixOverride)
	if err != nil {
		return nil, err
	}

	patient := &domain.Patient{
		ID: m.IDGenerator(),
		ExternalIDs: []domain.ExternalIdentifier{
			{Namespace: string(domain.IdentifierIPP), Value: ipp},
			{Namespace: string(domain.IdentifierNDA), Value: nda},
		},
	}
	dossier := &domain.Dossier{
		ID:                m.IDGenerator(),
		PatientID:         patient.ID,
		JuridicalEntityID: juridicalEntityID,
		SequenceNumber:    nda,
		Type:              domain.DossierHospitalise,
	}
	venue := &domain.Venue{
		ID:             m.IDGenerator(),
		DossierID:      dossier.ID,
		SequenceNumber: vn,
		Status:         domain.VenueActive,
	}

	messages := make([]RenderedMessage, 0, len(template.Steps))
	for i, step := range template.Steps {
		venue.CurrentLocation = domain.Location{ServiceCode: step.PayloadSnapshot.ServiceCode}
		movement := &domain.Movement{
			ID:             m.IDGenerator(),
			VenueID:        venue.ID,
			SequenceNumber: m.IDGenerator(),
			Timestamp:      schedule[i],
			Trigger:        "ADT^" + step.Trigger,
			Action:         actionFromMovementType(step.PayloadSnapshot.MovementType),
			MedicalUF:      step.PayloadSnapshot.MedicalUF,
			CareUF:         step.PayloadSnapshot.CareUF,
			Nature:         step.PayloadSnapshot.Nature,
			Location:       venue.CurrentLocation,
		}

		canonical := outbound.Canonical{Patient: patient, Dossier: dossier, Venue: venue, Movement: movement}
		rendered := RenderedMessage{StepOrderIndex: step.OrderIndex, Trigger: step.Trigger, Protocol: protocol, ScheduledAt: schedule[i]}

		switch protocol {
		case domain.ProtocolFHIR:
			bytes, err := outbound.GenerateFHIR(canonical, endpoint, m.FallbackAuthority)
			if err != nil {
				return nil, fmt.Errorf("scenario: rendering FHIR bundle for step %d: %w", step.OrderIndex, err)
			}
			rendered.Bytes = bytes
		default:
			rendered.Bytes = outbound.GenerateHL7(canonical, step.Trigger, endpoint, m.Sender, m.FallbackAuthority)
		}

		messages = append(messages, rendered)
	}

	return &MaterializeResult{Messages: messages, IPP: ipp, NDA: nda, VN: vn}, nil
}

func (m *Materializer) resolveIdentifier(ctx context.Context, idType domain.IdentifierType, juridicalEntityID, reuse, prefixOverride string) (string, error) {
	if reuse != "" {
		return reuse, nil
	}
	ns, err := m.Namespaces.Find(ctx, idType, juridicalEntityID)
	if err != nil {
		return "", fmt.Errorf("scenario: resolving %s namespace: %w", idType, err)
	}
	if ns == nil {
		return "", coreerrors.New(coreerrors.KindIdentifierCollision, "no namespace configured for identifier type", map[string]any{"type": string(idType), "juridical_entity_id": juridicalEntityID})
	}
	return m.Identifiers.Allocate(ctx, ns, prefixOverride)
}

func actionFromMovementType(movementType string) domain.MovementAction {
	switch domain.MovementAction(movementType) {
	case domain.ActionUpdate:
		return domain.ActionUpdate
	case domain.ActionCancel:
		return domain.ActionCancel
	default:
		return domain.ActionInsert
	}
}
