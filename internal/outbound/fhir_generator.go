package outbound

import (
	"fmt"

	"hl7-interop-bridge/internal/codec"
	"hl7-interop-bridge/internal/domain"
)

// GenerateFHIR renders canonical into a FHIR R4 transaction Bundle carrying
// Patient, Organization, Location, and Encounter resources, with the
// patient's identifier system taken from the endpoint's override when
// configured.
func GenerateFHIR(canonical Canonical, endpoint *domain.Endpoint, fallbackSystem string) ([]byte, error) {
	system := resolveAuthority(endpoint, fallbackSystem)
	bundle := codec.NewTransactionBundle()

	if canonical.Patient != nil {
		bundle.AddEntry("Patient", patientResource(canonical.Patient, system))
	}
	if canonical.Dossier != nil {
		bundle.AddEntry("Organization", organizationResource(canonical.Dossier))
	}
	if canonical.Venue != nil {
		bundle.AddEntry("Location", locationResource(canonical.Venue))
		bundle.AddEntry("Encounter", encounterResource(canonical))
	}

	return codec.EncodeBundle(bundle)
}

func patientResource(p *domain.Patient, system string) *codec.Resource {
	extra := map[string]any{
		"name": []map[string]any{{
			"family": p.FamilyName,
			"given":  p.GivenNames,
		}},
		"gender": fhirGender(p.Sex),
	}
	if !p.BirthDate.IsZero() {
		extra["birthDate"] = p.BirthDate.Format("2006-01-02")
	}
	if ipp, ok := p.PrimaryExternalID(string(domain.IdentifierIPP)); ok {
		extra["identifier"] = []map[string]any{{
			"system": system,
			"value":  ipp.Value,
		}}
	}
	return &codec.Resource{ResourceType: "Patient", ID: p.ID, Extra: extra}
}

func fhirGender(s domain.AdministrativeSex) string {
	switch s {
	case domain.SexMale:
		return "male"
	case domain.SexFemale:
		return "female"
	case domain.SexOther:
		return "other"
	default:
		return "unknown"
	}
}

func organizationResource(d *domain.Dossier) *codec.Resource {
	return &codec.Resource{
		ResourceType: "Organization",
		ID:           d.JuridicalEntityID,
		Extra: map[string]any{
			"identifier": []map[string]any{{"value": d.JuridicalEntityID}},
		},
	}
}

func locationResource(v *domain.Venue) *codec.Resource {
	return &codec.Resource{
		ResourceType: "Location",
		ID:           v.ID,
		Extra: map[string]any{
			"name":   v.CurrentLocation.String(),
			"status": "active",
		},
	}
}

func encounterResource(c Canonical) *codec.Resource {
	v := c.Venue
	extra := map[string]any{
		"status": encounterStatus(v.Status),
		"class": map[string]any{
			"code": patientClass(c.Dossier),
		},
		"location": []map[string]any{{
			"location": map[string]any{"reference": fmt.Sprintf("Location/%s", v.ID)},
		}},
	}
	if c.Patient != nil {
		extra["subject"] = map[string]any{"reference": fmt.Sprintf("Patient/%s", c.Patient.ID)}
	}
	if vn, ok := patientVN(c); ok {
		extra["identifier"] = []map[string]any{{"value": vn}}
	}
	return &codec.Resource{ResourceType: "Encounter", ID: v.ID, Extra: extra}
}

func encounterStatus(s domain.VenueStatus) string {
	switch s {
	case domain.VenuePreAdmitted:
		return "planned"
	case domain.VenueActive:
		return "in-progress"
	case domain.VenueOnLeave:
		return "onleave"
	case domain.VenueDischarged:
		return "finished"
	case domain.VenueCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
