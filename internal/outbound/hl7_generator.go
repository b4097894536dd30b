// Package outbound renders canonical patient-administrative entities back
// to wire form, as HL7 v2 PAM messages or FHIR R4 resources, honoring
// per-endpoint identifier overrides.
package outbound

import (
	"time"

	"github.com/google/uuid"

	"hl7-interop-bridge/internal/codec"
	"hl7-interop-bridge/internal/domain"
)

// Canonical bundles the entities one outbound message renders from.
type Canonical struct {
	Patient  *domain.Patient
	Dossier  *domain.Dossier
	Venue    *domain.Venue
	Movement *domain.Movement
}

// JuridicalEntity carries the sending application/facility identity used
// to populate MSH-3/MSH-4 on outbound messages.
type JuridicalEntity struct {
	Code  string
	FINESS string
}

// NowFunc is overridable in tests; defaults to time.Now.
var NowFunc = time.Now

// GenerateHL7 renders canonical into an HL7 v2 PAM message for trigger,
// honoring the endpoint's receiving application/facility and identifier
// override.
func GenerateHL7(canonical Canonical, trigger string, endpoint *domain.Endpoint, sender JuridicalEntity, assigningAuthority string) []byte {
	now := NowFunc()
	controlID := uuid.NewString()
	authority := resolveAuthority(endpoint, assigningAuthority)

	msg := &codec.Message{Delimiters: codec.CanonicalDelimiters}

	msh := &codec.Segment{ID: "MSH"}
	msh.Fields = make([]codec.Field, 13)
	msh.Fields[1] = codec.Field{codec.Repetition{codec.Component{"|"}}}
	msh.Fields[2] = codec.Field{codec.Repetition{codec.Component{"^~\\&"}}}
	msh.Fields[3] = codec.NewField(sender.Code)
	msh.Fields[4] = codec.NewField(sender.FINESS)
	msh.Fields[5] = codec.NewField(endpoint.ReceivingApplication)
	msh.Fields[6] = codec.NewField(endpoint.ReceivingFacility)
	msh.Fields[7] = codec.NewField(formatHL7Timestamp(now))
	msh.Fields[9] = codec.NewField("ADT^" + trigger)
	msh.Fields[10] = codec.NewField(controlID)
	msh.Fields[11] = codec.NewField("P")
	msh.Fields[12] = codec.NewField("2.5")
	msg.Segments = append(msg.Segments, msh)

	evn := &codec.Segment{ID: "EVN", Fields: make([]codec.Field, 3)}
	evn.Fields[1] = codec.NewField(trigger)
	evn.Fields[2] = codec.NewField(formatHL7Timestamp(eventTime(canonical, now)))
	msg.Segments = append(msg.Segments, evn)

	msg.Segments = append(msg.Segments, buildPID(canonical, authority))

	if pv1 := buildPV1(canonical, trigger, authority); pv1 != nil {
		msg.Segments = append(msg.Segments, pv1)
	}

	msg.Segments = append(msg.Segments, buildZBE(canonical))

	return codec.SerializeMessage(msg)
}

// resolveAuthority implements the endpoint-level CX override: the forced
// OID (fallback to forced system) replaces the namespace's own assigning
// authority for every CX composite in the message.
func resolveAuthority(endpoint *domain.Endpoint, fallback string) string {
	if endpoint != nil {
		if override, ok := endpoint.IdentifierOverride(); ok {
			return override
		}
	}
	return fallback
}

func eventTime(c Canonical, fallback time.Time) time.Time {
	if c.Movement != nil && !c.Movement.Timestamp.IsZero() {
		return c.Movement.Timestamp
	}
	return fallback
}

func buildPID(c Canonical, authority string) *codec.Segment {
	pid := &codec.Segment{ID: "PID", Fields: make([]codec.Field, 19)}
	pid.Fields[1] = codec.NewField("1")

	if c.Patient != nil {
		if ipp, ok := c.Patient.PrimaryExternalID(string(domain.IdentifierIPP)); ok {
			pid.Fields[3] = codec.NewCXField(ipp.Value, authority, domain.IdentifierIPP.HL7TypeCode())
		}
		pid.Fields[5] = codec.Field{codec.Repetition{
			codec.Component{c.Patient.FamilyName},
			codec.Component{firstOrEmpty(c.Patient.GivenNames)},
		}}
		if !c.Patient.BirthDate.IsZero() {
			pid.Fields[7] = codec.NewField(c.Patient.BirthDate.Format("20060102"))
		}
		pid.Fields[8] = codec.NewField(sexCode(c.Patient.Sex))
	}

	if c.Dossier != nil {
		if nda, ok := patientNDA(c); ok {
			pid.Fields[18] = codec.NewCXField(nda, authority, domain.IdentifierNDA.HL7TypeCode())
		}
	}

	return pid
}

func patientNDA(c Canonical) (string, bool) {
	if c.Patient == nil {
		return "", false
	}
	id, ok := c.Patient.PrimaryExternalID(string(domain.IdentifierNDA))
	return id.Value, ok
}

func buildPV1(c Canonical, trigger string, authority string) *codec.Segment {
	if c.Venue == nil {
		return nil
	}
	pv1 := &codec.Segment{ID: "PV1", Fields: make([]codec.Field, 20)}
	pv1.Fields[1] = codec.NewField("1")
	pv1.Fields[2] = codec.NewField(patientClass(c.Dossier))
	pv1.Fields[3] = codec.NewField(c.Venue.CurrentLocation.String())

	if trigger == "A02" && c.Movement != nil {
		pv1.Fields[6] = codec.NewField(c.Movement.PriorLocation.String())
	}

	if vn, ok := patientVN(c); ok {
		pv1.Fields[19] = codec.NewCXField(vn, authority, domain.IdentifierVN.HL7TypeCode())
	}
	return pv1
}

func patientVN(c Canonical) (string, bool) {
	if c.Venue == nil {
		return "", false
	}
	return c.Venue.SequenceNumber, c.Venue.SequenceNumber != ""
}

func patientClass(d *domain.Dossier) string {
	if d == nil {
		return ""
	}
	switch d.Type {
	case domain.DossierHospitalise:
		return "I"
	case domain.DossierUrgences:
		return "E"
	case domain.DossierAmbulatoire:
		return "O"
	default:
		return "O"
	}
}

func buildZBE(c Canonical) *codec.Segment {
	zbe := &codec.Segment{ID: "ZBE", Fields: make([]codec.Field, 10)}
	if c.Movement == nil {
		return zbe
	}
	m := c.Movement
	zbe.Fields[1] = codec.NewField(m.SequenceNumber)
	zbe.Fields[2] = codec.NewField(formatHL7Timestamp(m.Timestamp))
	zbe.Fields[4] = codec.NewField(string(m.Action))
	zbe.Fields[5] = codec.NewField(historicFlag(m.Historic))
	if m.Action == domain.ActionUpdate || m.Action == domain.ActionCancel {
		zbe.Fields[6] = codec.NewField(m.OriginalTrigger)
	}
	zbe.Fields[7] = codec.NewXONField(m.MedicalUF.Label, m.MedicalUF.Code)
	if m.CareUF.Code != "" {
		zbe.Fields[8] = codec.NewXONField(m.CareUF.Label, m.CareUF.Code)
	}
	zbe.Fields[9] = codec.NewField(string(m.Nature))
	return zbe
}

func historicFlag(historic bool) string {
	if historic {
		return "Y"
	}
	return "N"
}

func sexCode(s domain.AdministrativeSex) string {
	switch s {
	case domain.SexMale:
		return "M"
	case domain.SexFemale:
		return "F"
	case domain.SexOther:
		return "O"
	default:
		return "U"
	}
}

func firstOrEmpty(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func formatHL7Timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("20060102150405")
}
