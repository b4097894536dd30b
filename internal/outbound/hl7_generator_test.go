package outbound

import (
	"strings"
	"testing"
	"time"

	"hl7-interop-bridge/internal/codec"
	"hl7-interop-bridge/internal/domain"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 2, 10, 30, 0, 0, time.UTC)
}

func sampleCanonical() Canonical {
	return Canonical{
		Patient: &domain.Patient{
			ID:         "pat-1",
			FamilyName: "MARTIN",
			GivenNames: []string{"Claire"},
			BirthDate:  time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC),
			Sex:        domain.SexFemale,
			ExternalIDs: []domain.ExternalIdentifier{
				{Namespace: string(domain.IdentifierIPP), Value: "IPP00123"},
			},
		},
		Dossier: &domain.Dossier{
			ID:                "dos-1",
			JuridicalEntityID: "ENTITY1",
			Type:              domain.DossierHospitalise,
		},
		Venue: &domain.Venue{
			ID:              "venue-1",
			SequenceNumber:  "VN00001",
			Status:          domain.VenueActive,
			CurrentLocation: domain.Location{ServiceCode: "CARD", UnitCode: "101"},
		},
		Movement: &domain.Movement{
			ID:             "mvt-1",
			SequenceNumber: "MVT0001",
			Timestamp:      fixedNow(),
			Action:         domain.ActionInsert,
			MedicalUF:      domain.FunctionalUnit{Code: "CARD01", Label: "CARDIOLOGIE"},
			Nature:         domain.NatureS,
		},
	}
}

func withFixedNow(t *testing.T) {
	t.Helper()
	orig := NowFunc
	NowFunc = fixedNow
	t.Cleanup(func() { NowFunc = orig })
}

func TestGenerateHL7BuildsMSHWithEndpointReceivingFields(t *testing.T) {
	withFixedNow(t)
	endpoint := &domain.Endpoint{ReceivingApplication: "DEST_APP", ReceivingFacility: "DEST_FAC"}
	sender := JuridicalEntity{Code: "SRC_APP", FINESS: "750000001"}

	raw := GenerateHL7(sampleCanonical(), "A01", endpoint, sender, "1.2.3.SYSTEM")
	msg, err := codec.ParseMessage(raw)
	if err != nil {
		t.Fatalf("generated message failed to parse: %v", err)
	}
	msh := msg.Segment("MSH")
	if msh == nil {
		t.Fatal("expected MSH segment")
	}
	if got := msh.FieldRaw(3); got != "SRC_APP" {
		t.Fatalf("MSH-3 = %q, want SRC_APP", got)
	}
	if got := msh.FieldRaw(5); got != "DEST_APP" {
		t.Fatalf("MSH-5 = %q, want DEST_APP", got)
	}
	if got := msh.FieldRaw(6); got != "DEST_FAC" {
		t.Fatalf("MSH-6 = %q, want DEST_FAC", got)
	}
	mt := msh.Field(9).Get(1)
	if got := mt.Get(1).Get(1) + "^" + mt.Get(2).Get(1); got != "ADT^A01" {
		t.Fatalf("MSH-9 = %q, want ADT^A01", got)
	}
}

func TestGenerateHL7HonorsEndpointIdentifierOverride(t *testing.T) {
	withFixedNow(t)
	endpoint := &domain.Endpoint{ForcedIdentifierOID: "2.16.250.1.999"}
	sender := JuridicalEntity{Code: "SRC", FINESS: "750000001"}

	raw := GenerateHL7(sampleCanonical(), "A01", endpoint, sender, "1.2.3.SYSTEM")
	msg, _ := codec.ParseMessage(raw)

	pid := msg.Segment("PID")
	cx := pid.FieldRaw(3)
	if !strings.Contains(string(raw), "2.16.250.1.999") {
		t.Fatalf("expected overridden OID in output, got %q", string(raw))
	}
	if cx == "" {
		t.Fatal("expected PID-3 to carry the patient identifier")
	}
}

func TestGenerateHL7PV1CarriesPriorLocationOnA02(t *testing.T) {
	withFixedNow(t)
	canonical := sampleCanonical()
	canonical.Movement.PriorLocation = domain.Location{ServiceCode: "SURG", UnitCode: "201"}

	raw := GenerateHL7(canonical, "A02", &domain.Endpoint{}, JuridicalEntity{Code: "SRC"}, "1.2.3")
	msg, _ := codec.ParseMessage(raw)
	pv1 := msg.Segment("PV1")
	if got := pv1.FieldRaw(6); got != "SURG/201" {
		t.Fatalf("PV1-6 = %q, want SURG/201", got)
	}
}

func TestGenerateHL7ZBECarriesMovementFields(t *testing.T) {
	withFixedNow(t)
	raw := GenerateHL7(sampleCanonical(), "A01", &domain.Endpoint{}, JuridicalEntity{Code: "SRC"}, "1.2.3")
	msg, _ := codec.ParseMessage(raw)
	zbe := msg.Segment("ZBE")
	if zbe == nil {
		t.Fatal("expected ZBE segment")
	}
	if got := zbe.FieldRaw(1); got != "MVT0001" {
		t.Fatalf("ZBE-1 = %q, want MVT0001", got)
	}
	if got := zbe.FieldRaw(4); got != "INSERT" {
		t.Fatalf("ZBE-4 = %q, want INSERT", got)
	}
	if got := zbe.Field(7).Get(1).Get(10).Get(1); got != "CARD01" {
		t.Fatalf("ZBE-7 component 10 = %q, want CARD01", got)
	}
	if got := zbe.FieldRaw(9); got != "S" {
		t.Fatalf("ZBE-9 = %q, want S", got)
	}
}

func TestGenerateHL7ZBECarriesOriginalTriggerOnUpdate(t *testing.T) {
	withFixedNow(t)
	canonical := sampleCanonical()
	canonical.Movement.Action = domain.ActionUpdate
	canonical.Movement.OriginalTrigger = "A01"

	raw := GenerateHL7(canonical, "A08", &domain.Endpoint{}, JuridicalEntity{Code: "SRC"}, "1.2.3")
	msg, _ := codec.ParseMessage(raw)
	zbe := msg.Segment("ZBE")
	if got := zbe.FieldRaw(6); got != "A01" {
		t.Fatalf("ZBE-6 = %q, want A01", got)
	}
}
