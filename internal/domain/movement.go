package domain

import "time"

// MovementAction enumerates the ZBE-4 action codes.
type MovementAction string

const (
	ActionInsert MovementAction = "INSERT"
	ActionUpdate MovementAction = "UPDATE"
	ActionCancel MovementAction = "CANCEL"
)

// Nature enumerates the legal ZBE-9 nature codes.
type Nature string

const (
	NatureS  Nature = "S"  // hospitalisation entry
	NatureH  Nature = "H"
	NatureM  Nature = "M"  // mutation
	NatureL  Nature = "L"
	NatureD  Nature = "D"  // discharge
	NatureSM Nature = "SM"
)

// LegalNatures is the set a ZBE-9 value must belong to.
var LegalNatures = map[Nature]bool{
	NatureS: true, NatureH: true, NatureM: true,
	NatureL: true, NatureD: true, NatureSM: true,
}

// FunctionalUnit is a (code, label) pair carried on a Movement, wire-encoded
// as an XON composite.
type FunctionalUnit struct {
	Code  string
	Label string
}

// Movement is a single administrative event on a Venue.
type Movement struct {
	ID                 string
	VenueID            string
	SequenceNumber     string // ZBE-1, repeatable per venue
	Timestamp          time.Time
	Trigger            string // e.g. "ADT^A01"
	Action             MovementAction
	Historic           bool
	OriginalTrigger    string // required when Action in {UPDATE, CANCEL}
	MedicalUF          FunctionalUnit
	CareUF              FunctionalUnit
	Nature             Nature
	Location           Location
	PriorLocation      Location // PV1-6 on A02 transfers
	CancelsMovementID  string   // back-pointer, CANCEL only; never ownership
	Cancelled          bool
	CreatedAt          time.Time
}

// IsCancellable reports whether this movement may still be referenced by a
// CANCEL action.
func (m *Movement) IsCancellable() bool {
	return !m.Cancelled
}
