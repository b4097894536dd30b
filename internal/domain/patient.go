// Package domain holds the canonical entities of the design: the hospital
// patient-administrative life-cycle bound to an organizational hierarchy.
package domain

import "time"

// AdministrativeSex enumerates the patient's administrative sex.
type AdministrativeSex string

const (
	SexMale    AdministrativeSex = "male"
	SexFemale  AdministrativeSex = "female"
	SexOther   AdministrativeSex = "other"
	SexUnknown AdministrativeSex = "unknown"
)

// NationalIDType enumerates the French national health identifier types.
type NationalIDType string

const (
	NationalIDNIR  NationalIDType = "NIR"
	NationalIDINSC NationalIDType = "INS-C"
)

// IdentityReliability enumerates the INS identity-trust status.
type IdentityReliability string

const (
	ReliabilityValidated  IdentityReliability = "VALI"
	ReliabilityQualified  IdentityReliability = "QUAL"
	ReliabilityProvisoire IdentityReliability = "PROV"
	ReliabilityEmpty      IdentityReliability = "VIDE"
	ReliabilityDoubtful   IdentityReliability = "DOUTE"
	ReliabilityDoubled    IdentityReliability = "DOUB"
)

// BirthPlace is a free-text place of birth with an optional INSEE code.
type BirthPlace struct {
	Label      string
	INSEECode  string
	Country    string
}

// NationalIdentifier is the patient's national health identifier (NIR or
// INS-C), tagged with registry status.
type NationalIdentifier struct {
	Type          NationalIDType
	Value         string
	InRegistry    bool
	LastQueryDate *time.Time
}

// ExternalIdentifier is a (namespace, value) pair owned by a Patient, e.g.
// an IPP minted under a given juridical entity's namespace.
type ExternalIdentifier struct {
	Namespace string
	Value     string
}

// Patient is the stable identity of a person.
type Patient struct {
	ID                  string
	FamilyName          string
	GivenNames          []string
	BirthDate           time.Time
	Sex                 AdministrativeSex
	BirthPlace          BirthPlace
	NationalID          *NationalIdentifier
	IdentityReliability IdentityReliability
	ExternalIDs         []ExternalIdentifier
	MergedInto          string // non-empty once absorbed by another patient (A40)
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PrimaryExternalID returns the patient's unique identifier for the given
// namespace, enforcing the "exactly one primary identifier per
// (patient, namespace-type)" invariant from the design at the read side; the
// write side enforces it in the repository layer.
func (p *Patient) PrimaryExternalID(namespace string) (ExternalIdentifier, bool) {
	for _, id := range p.ExternalIDs {
		if id.Namespace == namespace {
			return id, true
		}
	}
	return ExternalIdentifier{}, false
}

// IsMerged reports whether this patient record has been absorbed into
// another (the design A40).
func (p *Patient) IsMerged() bool {
	return p.MergedInto != ""
}
