// Package inbound implements the five-step inbound pipeline: parse,
// validate, resolve canonical entities, apply the venue transition, and
// acknowledge.
package inbound

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hl7-interop-bridge/internal/codec"
	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
	"hl7-interop-bridge/internal/identifier"
	"hl7-interop-bridge/internal/messagelog"
	"hl7-interop-bridge/internal/statemachine"
	"hl7-interop-bridge/internal/structure"
	"hl7-interop-bridge/internal/validator"
	"hl7-interop-bridge/internal/vocabulary"
)

// PatientRepository persists patient identities.
type PatientRepository interface {
	FindByExternalID(ctx context.Context, namespaceID, value string) (*domain.Patient, error)
	Create(ctx context.Context, p *domain.Patient) error
	Update(ctx context.Context, p *domain.Patient) error
}

// DossierRepository persists admission folders.
type DossierRepository interface {
	FindBySequence(ctx context.Context, juridicalEntityID, sequenceNumber string) (*domain.Dossier, error)
	Create(ctx context.Context, d *domain.Dossier) error
	Update(ctx context.Context, d *domain.Dossier) error
}

// VenueRepository persists care episodes.
type VenueRepository interface {
	FindBySequence(ctx context.Context, juridicalEntityID, sequenceNumber string) (*domain.Venue, error)
	Create(ctx context.Context, v *domain.Venue) error
	Update(ctx context.Context, v *domain.Venue) error
}

// MovementRepository persists derived movements and looks up a venue's most
// recent non-cancelled one, which the A11/A12 preconditions need alongside
// venue status (spec: A11 requires the last movement to be A01, A12 the
// last to be A02 — venue status alone can't distinguish "just admitted"
// from "admitted, then transferred").
type MovementRepository interface {
	Create(ctx context.Context, m *domain.Movement) error
	LastNonCancelled(ctx context.Context, venueID string) (*domain.Movement, error)
}

// NamespaceRepository resolves the identifier namespace backing a given
// identifier type for a juridical entity.
type NamespaceRepository interface {
	Find(ctx context.Context, idType domain.IdentifierType, juridicalEntityID string) (*domain.IdentifierNamespace, error)
}

// TxRunner scopes a sequence of repository writes to a single database
// transaction: every repository call made through the ctx fn receives is
// committed or rolled back together. *postgres.TransactionManager satisfies
// this structurally.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// passthroughTx runs fn directly against the given ctx with no transaction
// boundary, the default when a Pipeline is built without a TxRunner (unit
// tests against in-memory fakes have no database transaction to join).
type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// creatableTriggers are the triggers allowed to create a patient/dossier/
// venue when no matching record exists yet.
var creatableTriggers = map[string]bool{"A01": true, "A04": true, "A05": true, "A28": true}

// Pipeline wires together the validator, resolvers, state machine, and log
// into the five-step inbound sequence.
type Pipeline struct {
	Structure        *structure.Resolver
	Identifiers      *identifier.Service
	Vocabulary       *vocabulary.Registry
	Log              *messagelog.Logger
	Patients         PatientRepository
	Dossiers         DossierRepository
	Venues           VenueRepository
	Movements        MovementRepository
	Namespaces       NamespaceRepository
	Tx               TxRunner
	IDGenerator      func() string
	StrictPAMFR      bool
	RelaxTransitions bool
	SendingApp       string
	SendingFacility  string

	locks *venueLocks
}

// New builds a Pipeline ready to process inbound wire messages.
func New(p Pipeline) *Pipeline {
	p.locks = newVenueLocks()
	if p.Tx == nil {
		p.Tx = passthroughTx{}
	}
	return &p
}

// Process runs the five inbound steps over one decoded-from-wire message
// and returns the ACK bytes to send back on the same connection. Process
// itself never returns an error for business-rule rejections — those
// become an ACK AE; the returned error is reserved for pipeline-internal
// failures (log/repository I/O) the caller should treat as a transport
// fault, not a rejection to acknowledge.
func (p *Pipeline) Process(ctx context.Context, raw []byte, endpoint *domain.Endpoint) ([]byte, error) {
	msg, parseErr := codec.ParseMessage(raw)

	controlID, trigger := extractHeader(msg, raw)
	if parseErr != nil && controlID == "" {
		controlID = p.IDGenerator()
	}
	entry := &domain.MessageLogEntry{
		ControlID:  controlID,
		Trigger:    trigger,
		Direction:  domain.DirectionInbound,
		Raw:        raw,
		Timestamp:  time.Now(),
		EndpointID: endpoint.ID,
	}
	if err := p.Log.Append(ctx, entry); err != nil {
		if coreerrors.Is(err, coreerrors.KindDuplicateControlID) {
			return p.ackError(ctx, "", controlID, []domain.Diagnostic{{
				Code: "DUPLICATE_CONTROL_ID", Severity: domain.SeverityError, Text: "control id already seen",
			}}), nil
		}
		return nil, fmt.Errorf("inbound: appending log entry: %w", err)
	}

	if parseErr != nil {
		diags := []domain.Diagnostic{{Code: "FRAMING_ERROR", Severity: domain.SeverityError, Text: parseErr.Error()}}
		return p.ackError(ctx, entry.ID, controlID, diags), nil
	}

	if _, _, _, ok := p.Vocabulary.ResolveTrigger(trigger); !ok {
		diags := []domain.Diagnostic{{Code: "INVALID_TRIGGER", Severity: domain.SeverityError, Segment: "MSH", Field: 9, Text: "unrecognized trigger " + trigger}}
		return p.ackError(ctx, entry.ID, controlID, diags), nil
	}

	diags := validator.Validate(msg, trigger, p.StrictPAMFR)
	if validator.HasErrors(diags) {
		return p.ackError(ctx, entry.ID, controlID, diags), nil
	}

	if err := p.resolveAndApply(ctx, msg, trigger, endpoint); err != nil {
		var coreDiags []domain.Diagnostic
		if ce, ok := err.(*coreerrors.CoreError); ok {
			coreDiags = []domain.Diagnostic{{Code: string(ce.Kind), Severity: domain.SeverityError, Text: ce.Message}}
		} else {
			return nil, fmt.Errorf("inbound: resolving/applying: %w", err)
		}
		return p.ackError(ctx, entry.ID, controlID, append(diags, coreDiags...)), nil
	}

	if err := p.Log.Resolve(ctx, entry.ID, domain.LogSuccess, diags); err != nil {
		return nil, fmt.Errorf("inbound: resolving log entry to success: %w", err)
	}
	return buildAA(controlID, p.SendingApp, p.SendingFacility), nil
}

func (p *Pipeline) ackError(ctx context.Context, logEntryID, controlID string, diags []domain.Diagnostic) []byte {
	if logEntryID != "" {
		_ = p.Log.Resolve(ctx, logEntryID, domain.LogError, diags)
	}
	return buildAE(controlID, diags, p.SendingApp, p.SendingFacility)
}

// resolveAndApply implements steps 3-5: resolve canonical entities, apply
// the venue transition under the venue lock, and persist the derived
// movement. The whole sequence of repository writes runs inside a single
// database transaction, so a failure partway through (e.g. the movement
// insert) leaves no partially-applied patient/dossier/venue state behind
// for this message.
func (p *Pipeline) resolveAndApply(ctx context.Context, msg *codec.Message, trigger string, endpoint *domain.Endpoint) error {
	return p.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		juridicalEntityID := endpoint.OwningEntityID

		patient, err := p.resolvePatient(ctx, msg, trigger, juridicalEntityID)
		if err != nil {
			return err
		}

		if statemachine.IsIdentityOnly(trigger) {
			return p.Patients.Update(ctx, patient)
		}

		venue, err := p.resolveVenue(ctx, msg, trigger, juridicalEntityID, nil)
		if err != nil {
			return err
		}

		// A known venue needs no PID-18 to be found again (the admit may have
		// left the NDA to the allocator); the dossier is only resolved when
		// the wire carries PID-18 or a new venue has to be attached to one.
		var dossier *domain.Dossier
		if venue == nil || pidNDA(msg) != "" {
			dossier, err = p.resolveDossier(ctx, msg, trigger, juridicalEntityID, patient)
			if err != nil {
				return err
			}
		}

		if err := p.resolveStructureUnits(ctx, msg, juridicalEntityID); err != nil {
			return err
		}

		var lockKey string
		if venue != nil {
			lockKey = venue.ID
		} else {
			lockKey = dossier.SequenceNumber
		}
		release := p.locks.Lock(lockKey)
		defer release()

		lastMovement, err := p.lastMovementForVenue(ctx, venue)
		if err != nil {
			return err
		}
		transition, err := statemachine.Apply(trigger, venue, lastMovement, p.RelaxTransitions)
		if err != nil {
			return err
		}

		isNewVenue := venue == nil
		if isNewVenue {
			vn, err := p.allocateValue(ctx, domain.IdentifierVN, juridicalEntityID, msg.Segment("PV1").FieldRaw(19))
			if err != nil {
				return err
			}
			venue = &domain.Venue{
				ID:             p.IDGenerator(),
				DossierID:      dossier.ID,
				SequenceNumber: vn,
				Start:          time.Now(),
			}
		}
		venue.Status = transition.ToStatus
		venue.CurrentLocation = locationFromPV1(msg)

		if isNewVenue {
			if err := p.Venues.Create(ctx, venue); err != nil {
				return fmt.Errorf("inbound: creating venue: %w", err)
			}
		} else {
			if err := p.Venues.Update(ctx, venue); err != nil {
				return fmt.Errorf("inbound: updating venue: %w", err)
			}
		}

		movement := movementFromMessage(msg, venue.ID)
		movement.ID = p.IDGenerator()
		movement.Trigger = "ADT^" + trigger
		if err := p.Movements.Create(ctx, movement); err != nil {
			return fmt.Errorf("inbound: recording movement: %w", err)
		}
		return nil
	})
}

// lastMovementForVenue returns the last non-cancelled movement recorded
// against venue, or nil for a new venue with no history yet. Statemachine
// rules keyed on "the last non-cancelled trigger" (A11, A12) use this
// instead of venue status alone.
func (p *Pipeline) lastMovementForVenue(ctx context.Context, venue *domain.Venue) (*domain.Movement, error) {
	if venue == nil {
		return nil, nil
	}
	m, err := p.Movements.LastNonCancelled(ctx, venue.ID)
	if err != nil {
		return nil, fmt.Errorf("inbound: finding last movement: %w", err)
	}
	return m, nil
}

func (p *Pipeline) resolvePatient(ctx context.Context, msg *codec.Message, trigger, juridicalEntityID string) (*domain.Patient, error) {
	ns, err := p.Namespaces.Find(ctx, domain.IdentifierIPP, juridicalEntityID)
	if err != nil {
		return nil, fmt.Errorf("inbound: finding IPP namespace: %w", err)
	}

	ipp := pidIPP(msg)
	if ipp == "" {
		return nil, coreerrors.New(coreerrors.KindMissingRequired, "PID-3 carries no usable identifier", nil)
	}

	patient, err := p.Patients.FindByExternalID(ctx, ns.ID, ipp)
	if err != nil {
		return nil, fmt.Errorf("inbound: looking up patient: %w", err)
	}
	if patient != nil {
		applyPIDDemographics(patient, msg)
		return patient, nil
	}

	if !creatableTriggers[trigger] {
		return nil, coreerrors.New(coreerrors.KindPatientNotFound, "no patient matches the supplied identifier", map[string]any{"ipp": ipp})
	}

	patient = &domain.Patient{ID: p.IDGenerator(), CreatedAt: time.Now()}
	applyPIDDemographics(patient, msg)
	patient.ExternalIDs = append(patient.ExternalIDs, domain.ExternalIdentifier{Namespace: ns.ID, Value: ipp})
	if err := p.Patients.Create(ctx, patient); err != nil {
		return nil, fmt.Errorf("inbound: creating patient: %w", err)
	}
	return patient, nil
}

func (p *Pipeline) resolveDossier(ctx context.Context, msg *codec.Message, trigger, juridicalEntityID string, patient *domain.Patient) (*domain.Dossier, error) {
	nda := pidNDA(msg)
	if nda != "" {
		dossier, err := p.Dossiers.FindBySequence(ctx, juridicalEntityID, nda)
		if err != nil {
			return nil, fmt.Errorf("inbound: looking up dossier: %w", err)
		}
		if dossier != nil {
			return dossier, nil
		}
	}

	if !creatableTriggers[trigger] {
		return nil, coreerrors.New(coreerrors.KindPatientNotFound, "no dossier matches the supplied identifier", map[string]any{"nda": nda})
	}

	if nda == "" {
		var err error
		nda, err = p.allocateValue(ctx, domain.IdentifierNDA, juridicalEntityID, "")
		if err != nil {
			return nil, err
		}
	}
	dossier := &domain.Dossier{
		ID:                p.IDGenerator(),
		PatientID:         patient.ID,
		JuridicalEntityID: juridicalEntityID,
		SequenceNumber:    nda,
		AdmitTime:         time.Now(),
		Type:              dossierTypeForTrigger(trigger),
	}
	if err := p.Dossiers.Create(ctx, dossier); err != nil {
		return nil, fmt.Errorf("inbound: creating dossier: %w", err)
	}
	return dossier, nil
}

func (p *Pipeline) resolveVenue(ctx context.Context, msg *codec.Message, trigger, juridicalEntityID string, dossier *domain.Dossier) (*domain.Venue, error) {
	vn := pv1VN(msg)
	if vn == "" {
		return nil, nil
	}
	venue, err := p.Venues.FindBySequence(ctx, juridicalEntityID, vn)
	if err != nil {
		return nil, fmt.Errorf("inbound: looking up venue: %w", err)
	}
	return venue, nil
}

// resolveStructureUnits ensures the ZBE medical/care unit codes resolve to
// known structure nodes (auto-creating a virtual chain when the policy
// allows it), rejecting the message otherwise. The movement itself still
// carries the wire's own code/label pair, not the resolved node id: the
// structure tree is a validation and auto-provisioning side effect, not
// the source of truth for what ships on the wire.
func (p *Pipeline) resolveStructureUnits(ctx context.Context, msg *codec.Message, juridicalEntityID string) error {
	zbe := msg.Segment("ZBE")
	if zbe == nil {
		return nil
	}
	if medicalCode := zbe.Field(7).Get(1).Get(10).Get(1); medicalCode != "" {
		if _, err := p.Structure.Resolve(ctx, medicalCode, domain.KindFunctionalUnit, juridicalEntityID); err != nil {
			return err
		}
	}
	if careCode := zbe.Field(8).Get(1).Get(10).Get(1); careCode != "" {
		if _, err := p.Structure.Resolve(ctx, careCode, domain.KindFunctionalUnit, juridicalEntityID); err != nil {
			return err
		}
	}
	return nil
}

// allocateValue mints a fresh value via the identifier service unless the
// wire already supplied one (external-system-assigned identifiers are
// accepted as-is, not regenerated).
func (p *Pipeline) allocateValue(ctx context.Context, idType domain.IdentifierType, juridicalEntityID, wireValue string) (string, error) {
	if wireValue != "" {
		return wireValue, nil
	}
	ns, err := p.Namespaces.Find(ctx, idType, juridicalEntityID)
	if err != nil {
		return "", fmt.Errorf("inbound: finding %s namespace: %w", idType, err)
	}
	return p.Identifiers.Allocate(ctx, ns, "")
}

func dossierTypeForTrigger(trigger string) domain.DossierType {
	if trigger == "A04" {
		return domain.DossierAmbulatoire
	}
	return domain.DossierHospitalise
}

func movementFromMessage(msg *codec.Message, venueID string) *domain.Movement {
	zbe := msg.Segment("ZBE")
	m := &domain.Movement{
		VenueID:   venueID,
		Timestamp: time.Now(),
		Action:    domain.ActionInsert,
		CreatedAt: time.Now(),
	}
	if zbe != nil {
		m.SequenceNumber = zbe.FieldRaw(1)
		if action := domain.MovementAction(zbe.FieldRaw(4)); action != "" {
			m.Action = action
		}
		m.Historic = zbe.FieldRaw(5) == "Y"
		m.OriginalTrigger = zbe.FieldRaw(6)
		m.MedicalUF = functionalUnitFromXON(zbe.Field(7))
		m.CareUF = functionalUnitFromXON(zbe.Field(8))
		m.Nature = domain.Nature(zbe.FieldRaw(9))
	}
	m.PriorLocation = priorLocationFromPV1(msg)
	return m
}

func functionalUnitFromXON(f codec.Field) domain.FunctionalUnit {
	rep := f.Get(1)
	return domain.FunctionalUnit{Label: rep.Get(1).Get(1), Code: rep.Get(10).Get(1)}
}

func pidIPP(msg *codec.Message) string {
	pid := msg.Segment("PID")
	if pid == nil {
		return ""
	}
	return pid.Field(3).Get(1).Get(1).Get(1)
}

func pidNDA(msg *codec.Message) string {
	pid := msg.Segment("PID")
	if pid == nil {
		return ""
	}
	return pid.Field(18).Get(1).Get(1).Get(1)
}

func pv1VN(msg *codec.Message) string {
	pv1 := msg.Segment("PV1")
	if pv1 == nil {
		return ""
	}
	return pv1.Field(19).Get(1).Get(1).Get(1)
}

func applyPIDDemographics(patient *domain.Patient, msg *codec.Message) {
	pid := msg.Segment("PID")
	if pid == nil {
		return
	}
	name := pid.Field(5).Get(1)
	if family := name.Get(1).Get(1); family != "" {
		patient.FamilyName = family
	}
	if given := name.Get(2).Get(1); given != "" {
		patient.GivenNames = []string{given}
	}
	if dob := pid.FieldRaw(7); dob != "" {
		if t, err := time.Parse("20060102", dob); err == nil {
			patient.BirthDate = t
		}
	}
	switch pid.FieldRaw(8) {
	case "M":
		patient.Sex = domain.SexMale
	case "F":
		patient.Sex = domain.SexFemale
	case "O":
		patient.Sex = domain.SexOther
	default:
		patient.Sex = domain.SexUnknown
	}
	patient.UpdatedAt = time.Now()
}

func locationFromPV1(msg *codec.Message) domain.Location {
	pv1 := msg.Segment("PV1")
	if pv1 == nil {
		return domain.Location{}
	}
	return locationFromComposite(pv1.Field(3))
}

func priorLocationFromPV1(msg *codec.Message) domain.Location {
	pv1 := msg.Segment("PV1")
	if pv1 == nil {
		return domain.Location{}
	}
	return locationFromComposite(pv1.Field(6))
}

func locationFromComposite(f codec.Field) domain.Location {
	rep := f.Get(1)
	return domain.Location{
		ServiceCode: rep.Get(1).Get(1),
		UnitCode:    rep.Get(2).Get(1),
		RoomCode:    rep.Get(3).Get(1),
	}
}

// extractHeader returns (controlID, trigger) from a successfully parsed
// message, or attempts a tolerant best-effort extraction straight from the
// raw bytes when parsing failed, falling back to empty values when nothing is
// recoverable (Process then synthesizes a control id so a log entry and ACK
// can still be produced).
func extractHeader(msg *codec.Message, raw []byte) (controlID, trigger string) {
	if msg != nil {
		msh := msg.Segment("MSH")
		if msh != nil {
			return msh.FieldRaw(10), msh.Field(9).Get(1).Get(2).Get(1)
		}
	}
	return tolerantExtract(raw)
}

// tolerantExtract does a best-effort split of the raw bytes looking for an
// MSH line, independent of codec.ParseMessage (which has already failed),
// so a framing-error ACK can still echo the sender's control id when it is
// syntactically recoverable.
func tolerantExtract(raw []byte) (controlID, trigger string) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")
	for _, line := range strings.Split(text, "\r") {
		if !strings.HasPrefix(line, "MSH") || len(line) < 4 {
			continue
		}
		sep := string(line[3])
		fields := strings.Split(line, sep)
		if len(fields) > 9 {
			trigger = strings.TrimPrefix(fields[8], "ADT^")
		}
		if len(fields) > 10 {
			controlID = fields[9]
		}
		return controlID, trigger
	}
	return "", ""
}
