package inbound

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"hl7-interop-bridge/internal/codec"
	"hl7-interop-bridge/internal/domain"
	"hl7-interop-bridge/internal/identifier"
	"hl7-interop-bridge/internal/messagelog"
	"hl7-interop-bridge/internal/structure"
	"hl7-interop-bridge/internal/vocabulary"
)

type fakeIDRepo struct{ assigned map[string]bool }

func newFakeIDRepo() *fakeIDRepo { return &fakeIDRepo{assigned: map[string]bool{}} }
func (f *fakeIDRepo) IsAssigned(_ context.Context, ns, value string) (bool, error) {
	return f.assigned[ns+"/"+value], nil
}
func (f *fakeIDRepo) Assign(_ context.Context, ns, value string) error {
	f.assigned[ns+"/"+value] = true
	return nil
}
func (f *fakeIDRepo) CountAssigned(_ context.Context, ns string) (int64, error) {
	n := int64(0)
	for k := range f.assigned {
		if strings.HasPrefix(k, ns+"/") {
			n++
		}
	}
	return n, nil
}

type fakeLocker struct{}

func (fakeLocker) Lock(_ context.Context, _ string, _ time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

type fakeStructureRepo struct{ nodes []*domain.StructureNode }

func (f *fakeStructureRepo) FindByCode(_ context.Context, code string, kind domain.StructureKind, entity string) ([]*domain.StructureNode, error) {
	var out []*domain.StructureNode
	for _, n := range f.nodes {
		if n.Code == code && n.Kind == kind && n.JuridicalEntityID == entity {
			out = append(out, n)
		}
	}
	return out, nil
}
func (f *fakeStructureRepo) FindByID(_ context.Context, id string) (*domain.StructureNode, error) {
	for _, n := range f.nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, nil
}
func (f *fakeStructureRepo) Create(_ context.Context, n *domain.StructureNode) error {
	f.nodes = append(f.nodes, n)
	return nil
}

type fakeLogRepo struct {
	byControlID map[string]*domain.MessageLogEntry
	byID        map[string]*domain.MessageLogEntry
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{byControlID: map[string]*domain.MessageLogEntry{}, byID: map[string]*domain.MessageLogEntry{}}
}
func (f *fakeLogRepo) FindByControlID(_ context.Context, controlID string) (*domain.MessageLogEntry, error) {
	return f.byControlID[controlID], nil
}
func (f *fakeLogRepo) Insert(_ context.Context, e *domain.MessageLogEntry) error {
	f.byID[e.ID] = e
	if e.Direction == domain.DirectionInbound {
		f.byControlID[e.ControlID] = e
	}
	return nil
}
func (f *fakeLogRepo) UpdateStatus(_ context.Context, id string, status domain.LogStatus, diags []domain.Diagnostic) error {
	e, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("no such entry")
	}
	if e.Status != domain.LogPending {
		return messagelog.ErrAlreadyResolved
	}
	e.Status = status
	e.Diagnostics = diags
	return nil
}

type fakePatientRepo struct {
	byExternal map[string]*domain.Patient
}

func newFakePatientRepo() *fakePatientRepo { return &fakePatientRepo{byExternal: map[string]*domain.Patient{}} }
func (f *fakePatientRepo) FindByExternalID(_ context.Context, ns, value string) (*domain.Patient, error) {
	return f.byExternal[ns+"/"+value], nil
}
func (f *fakePatientRepo) Create(_ context.Context, p *domain.Patient) error {
	for _, id := range p.ExternalIDs {
		f.byExternal[id.Namespace+"/"+id.Value] = p
	}
	return nil
}
func (f *fakePatientRepo) Update(_ context.Context, p *domain.Patient) error { return nil }

type fakeDossierRepo struct{ bySeq map[string]*domain.Dossier }

func newFakeDossierRepo() *fakeDossierRepo { return &fakeDossierRepo{bySeq: map[string]*domain.Dossier{}} }
func (f *fakeDossierRepo) FindBySequence(_ context.Context, entity, seq string) (*domain.Dossier, error) {
	return f.bySeq[entity+"/"+seq], nil
}
func (f *fakeDossierRepo) Create(_ context.Context, d *domain.Dossier) error {
	f.bySeq[d.JuridicalEntityID+"/"+d.SequenceNumber] = d
	return nil
}
func (f *fakeDossierRepo) Update(_ context.Context, d *domain.Dossier) error { return nil }

type fakeVenueRepo struct{ bySeq map[string]*domain.Venue }

func newFakeVenueRepo() *fakeVenueRepo { return &fakeVenueRepo{bySeq: map[string]*domain.Venue{}} }
func (f *fakeVenueRepo) FindBySequence(_ context.Context, entity, seq string) (*domain.Venue, error) {
	return f.bySeq[entity+"/"+seq], nil
}
func (f *fakeVenueRepo) Create(_ context.Context, v *domain.Venue) error {
	f.bySeq["ENTITY1/"+v.SequenceNumber] = v
	return nil
}
func (f *fakeVenueRepo) Update(_ context.Context, v *domain.Venue) error {
	f.bySeq["ENTITY1/"+v.SequenceNumber] = v
	return nil
}

type fakeMovementRepo struct{ created []*domain.Movement }

func (f *fakeMovementRepo) Create(_ context.Context, m *domain.Movement) error {
	f.created = append(f.created, m)
	return nil
}

func (f *fakeMovementRepo) LastNonCancelled(_ context.Context, venueID string) (*domain.Movement, error) {
	for i := len(f.created) - 1; i >= 0; i-- {
		if f.created[i].VenueID == venueID && !f.created[i].Cancelled {
			return f.created[i], nil
		}
	}
	return nil, nil
}

type fakeNamespaceRepo struct{ byType map[domain.IdentifierType]*domain.IdentifierNamespace }

func (f *fakeNamespaceRepo) Find(_ context.Context, t domain.IdentifierType, _ string) (*domain.IdentifierNamespace, error) {
	return f.byType[t], nil
}

func newIDGen() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeVenueRepo, *fakeMovementRepo, *fakePatientRepo) {
	t.Helper()
	namespaces := &fakeNamespaceRepo{byType: map[domain.IdentifierType]*domain.IdentifierNamespace{
		domain.IdentifierIPP: {ID: "ns-ipp", Type: domain.IdentifierIPP, Mode: domain.GenerationFixedPrefix, PrefixPattern: "9..."},
		domain.IdentifierNDA: {ID: "ns-nda", Type: domain.IdentifierNDA, Mode: domain.GenerationFixedPrefix, PrefixPattern: "N..."},
		domain.IdentifierVN:  {ID: "ns-vn", Type: domain.IdentifierVN, Mode: domain.GenerationFixedPrefix, PrefixPattern: "V..."},
	}}
	venues := newFakeVenueRepo()
	movements := &fakeMovementRepo{}
	patients := newFakePatientRepo()

	p := New(Pipeline{
		Structure:   structure.New(&fakeStructureRepo{}, true, newIDGen()),
		Identifiers: identifier.New(newFakeIDRepo(), fakeLocker{}),
		Vocabulary:  vocabulary.New(),
		Log:         messagelog.New(newFakeLogRepo(), newIDGen()),
		Patients:    patients,
		Dossiers:    newFakeDossierRepo(),
		Venues:      venues,
		Movements:   movements,
		Namespaces:  namespaces,
		IDGenerator: newIDGen(),
		SendingApp:  "CORE",
	})
	return p, venues, movements, patients
}

const sampleA01 = "MSH|^~\\&|HIS|FAC|CORE|CORE|20260802103000||ADT^A01|CTL0001|P|2.5\r" +
	"EVN|A01|20260802103000\r" +
	"PID|1||9001^^^HOSPITAL^PI||MARTIN^Claire||19800501|F\r" +
	"PV1|1|I|CARD^101^1||||||||||||||||V0001^^^HOSPITAL^VN\r" +
	"ZBE|MVT0001|20260802103000||INSERT|N||CARDIOLOGIE^^^^^^^^^CARD01||S\r"

func TestProcessA01AdmitsNewPatientDossierVenue(t *testing.T) {
	p, venues, movements, patients := newTestPipeline(t)
	endpoint := &domain.Endpoint{ID: "ep-1", OwningEntityID: "ENTITY1"}

	ack, err := p.Process(context.Background(), []byte(sampleA01), endpoint)
	if err != nil {
		t.Fatalf("unexpected pipeline error: %v", err)
	}
	ackMsg, parseErr := codec.ParseMessage(ack)
	if parseErr != nil {
		t.Fatalf("ACK failed to parse: %v", parseErr)
	}
	msa := ackMsg.Segment("MSA")
	if msa == nil || msa.FieldRaw(1) != "AA" {
		t.Fatalf("expected AA ack, got %s", string(ack))
	}
	if msa.FieldRaw(2) != "CTL0001" {
		t.Fatalf("expected control id echoed, got %s", msa.FieldRaw(2))
	}

	if len(venues.bySeq) != 1 {
		t.Fatalf("expected one venue created, got %d", len(venues.bySeq))
	}
	for _, v := range venues.bySeq {
		if v.Status != domain.VenueActive {
			t.Fatalf("expected ACTIVE venue, got %s", v.Status)
		}
	}
	if len(movements.created) != 1 {
		t.Fatalf("expected one movement recorded, got %d", len(movements.created))
	}
	if _, ok := patients.byExternal["ns-ipp/9001"]; !ok {
		t.Fatal("expected patient registered under the IPP namespace")
	}
}

func TestProcessRejectsFramingErrorWithAE(t *testing.T) {
	p, _, _, _ := newTestPipeline(t)
	endpoint := &domain.Endpoint{ID: "ep-1", OwningEntityID: "ENTITY1"}

	ack, err := p.Process(context.Background(), []byte("not an hl7 message"), endpoint)
	if err != nil {
		t.Fatalf("unexpected pipeline error: %v", err)
	}
	ackMsg, parseErr := codec.ParseMessage(ack)
	if parseErr != nil {
		t.Fatalf("ACK failed to parse: %v", parseErr)
	}
	msa := ackMsg.Segment("MSA")
	if msa.FieldRaw(1) != "AE" {
		t.Fatalf("expected AE ack for a framing error, got %s", string(ack))
	}
}

func TestProcessRejectsDuplicateControlID(t *testing.T) {
	p, _, _, _ := newTestPipeline(t)
	endpoint := &domain.Endpoint{ID: "ep-1", OwningEntityID: "ENTITY1"}

	if _, err := p.Process(context.Background(), []byte(sampleA01), endpoint); err != nil {
		t.Fatalf("unexpected error on first delivery: %v", err)
	}
	ack, err := p.Process(context.Background(), []byte(sampleA01), endpoint)
	if err != nil {
		t.Fatalf("unexpected error on duplicate delivery: %v", err)
	}
	ackMsg, _ := codec.ParseMessage(ack)
	if ackMsg.Segment("MSA").FieldRaw(1) != "AE" {
		t.Fatalf("expected AE for duplicate control id, got %s", string(ack))
	}
}

func TestProcessRejectsValidationErrorsWithAE(t *testing.T) {
	p, _, _, _ := newTestPipeline(t)
	endpoint := &domain.Endpoint{ID: "ep-1", OwningEntityID: "ENTITY1"}

	broken := strings.Replace(sampleA01, "CTL0001", "CTL0002", 1)
	broken = strings.Replace(broken, "PID|1||9001^^^HOSPITAL^PI||MARTIN^Claire||19800501|F", "PID|1||9001^^^HOSPITAL^PI||||19800501|F", 1)

	ack, err := p.Process(context.Background(), []byte(broken), endpoint)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ackMsg, _ := codec.ParseMessage(ack)
	if ackMsg.Segment("MSA").FieldRaw(1) != "AE" {
		t.Fatalf("expected AE for missing mandatory PID-5, got %s", string(ack))
	}
}

func TestProcessTransfersExistingVenueOnA02(t *testing.T) {
	p, venues, _, _ := newTestPipeline(t)
	endpoint := &domain.Endpoint{ID: "ep-1", OwningEntityID: "ENTITY1"}

	if _, err := p.Process(context.Background(), []byte(sampleA01), endpoint); err != nil {
		t.Fatalf("unexpected error admitting: %v", err)
	}

	a02 := strings.Replace(sampleA01, "ADT^A01", "ADT^A02", 1)
	a02 = strings.Replace(a02, "CTL0001", "CTL0003", 1)
	a02 = strings.Replace(a02, "PV1|1|I|CARD^101^1||||||||||||||||V0001^^^HOSPITAL^VN",
		"PV1|1|I|SURG^201^2|||CARD^101^1|||||||||||||V0001^^^HOSPITAL^VN", 1)

	ack, err := p.Process(context.Background(), []byte(a02), endpoint)
	if err != nil {
		t.Fatalf("unexpected error transferring: %v", err)
	}
	ackMsg, _ := codec.ParseMessage(ack)
	if ackMsg.Segment("MSA").FieldRaw(1) != "AA" {
		t.Fatalf("expected AA on transfer, got %s", string(ack))
	}

	v := venues.bySeq["ENTITY1/V0001"]
	if v == nil {
		t.Fatal("expected venue V0001 to exist")
	}
	if v.CurrentLocation.ServiceCode != "SURG" {
		t.Fatalf("expected location updated to SURG, got %+v", v.CurrentLocation)
	}
}

func TestProcessAcceptsA11RightAfterA01(t *testing.T) {
	p, venues, _, _ := newTestPipeline(t)
	endpoint := &domain.Endpoint{ID: "ep-1", OwningEntityID: "ENTITY1"}

	if _, err := p.Process(context.Background(), []byte(sampleA01), endpoint); err != nil {
		t.Fatalf("unexpected error admitting: %v", err)
	}

	a11 := strings.Replace(sampleA01, "ADT^A01", "ADT^A11", 1)
	a11 = strings.Replace(a11, "CTL0001", "CTL0004", 1)

	ack, err := p.Process(context.Background(), []byte(a11), endpoint)
	if err != nil {
		t.Fatalf("unexpected error cancelling admit: %v", err)
	}
	ackMsg, _ := codec.ParseMessage(ack)
	if ackMsg.Segment("MSA").FieldRaw(1) != "AA" {
		t.Fatalf("expected AA cancelling an admit whose last movement was A01, got %s", string(ack))
	}
	v := venues.bySeq["ENTITY1/V0001"]
	if v.Status != domain.VenueCancelled {
		t.Fatalf("expected CANCELLED venue, got %s", v.Status)
	}
}

func TestProcessRejectsA11AfterInterveningTransfer(t *testing.T) {
	p, venues, _, _ := newTestPipeline(t)
	endpoint := &domain.Endpoint{ID: "ep-1", OwningEntityID: "ENTITY1"}

	if _, err := p.Process(context.Background(), []byte(sampleA01), endpoint); err != nil {
		t.Fatalf("unexpected error admitting: %v", err)
	}

	a02 := strings.Replace(sampleA01, "ADT^A01", "ADT^A02", 1)
	a02 = strings.Replace(a02, "CTL0001", "CTL0005", 1)
	a02 = strings.Replace(a02, "PV1|1|I|CARD^101^1||||||||||||||||V0001^^^HOSPITAL^VN",
		"PV1|1|I|SURG^201^2|||CARD^101^1|||||||||||||V0001^^^HOSPITAL^VN", 1)
	if _, err := p.Process(context.Background(), []byte(a02), endpoint); err != nil {
		t.Fatalf("unexpected error transferring: %v", err)
	}

	a11 := strings.Replace(sampleA01, "ADT^A01", "ADT^A11", 1)
	a11 = strings.Replace(a11, "CTL0001", "CTL0006", 1)

	ack, err := p.Process(context.Background(), []byte(a11), endpoint)
	if err != nil {
		t.Fatalf("unexpected pipeline error: %v", err)
	}
	ackMsg, _ := codec.ParseMessage(ack)
	if ackMsg.Segment("MSA").FieldRaw(1) != "AE" {
		t.Fatalf("expected AE cancelling an admit whose last movement was A02, got %s", string(ack))
	}
	v := venues.bySeq["ENTITY1/V0001"]
	if v.Status == domain.VenueCancelled {
		t.Fatal("venue must not be cancelled when A11 is rejected")
	}
}

func TestProcessRejectsA12WithoutPriorTransfer(t *testing.T) {
	p, venues, _, _ := newTestPipeline(t)
	endpoint := &domain.Endpoint{ID: "ep-1", OwningEntityID: "ENTITY1"}

	if _, err := p.Process(context.Background(), []byte(sampleA01), endpoint); err != nil {
		t.Fatalf("unexpected error admitting: %v", err)
	}

	a12 := strings.Replace(sampleA01, "ADT^A01", "ADT^A12", 1)
	a12 = strings.Replace(a12, "CTL0001", "CTL0007", 1)

	ack, err := p.Process(context.Background(), []byte(a12), endpoint)
	if err != nil {
		t.Fatalf("unexpected pipeline error: %v", err)
	}
	ackMsg, _ := codec.ParseMessage(ack)
	if ackMsg.Segment("MSA").FieldRaw(1) != "AE" {
		t.Fatalf("expected AE cancelling a transfer with no prior A02, got %s", string(ack))
	}
	v := venues.bySeq["ENTITY1/V0001"]
	if v.Status != domain.VenueActive {
		t.Fatalf("venue status must be unchanged (ACTIVE), got %s", v.Status)
	}
}
