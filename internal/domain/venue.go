package domain

import (
	"fmt"
	"time"
)

// VenueStatus enumerates the operational status of an encounter.
type VenueStatus string

const (
	VenuePreAdmitted VenueStatus = "PRE_ADMITTED"
	VenueActive      VenueStatus = "ACTIVE"
	VenueOnLeave     VenueStatus = "ON_LEAVE"
	VenueDischarged  VenueStatus = "DISCHARGED"
	VenueCancelled   VenueStatus = "CANCELLED"
)

// Location identifies a leaf of the structure hierarchy by its component
// codes (service/unit/room/bed or similar), formatted "A/B/C" on the wire
// per the concrete scenarios in the design.
type Location struct {
	ServiceCode string
	UnitCode    string
	RoomCode    string
	BedCode     string
}

// String renders the slash-joined location used in PV1-3/PV1-6 round-trips
// and in the concrete end-to-end scenarios of the design.
func (l Location) String() string {
	parts := []string{}
	for _, p := range []string{l.ServiceCode, l.UnitCode, l.RoomCode, l.BedCode} {
		if p == "" {
			break
		}
		parts = append(parts, p)
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}

func (l Location) IsZero() bool {
	return l.ServiceCode == "" && l.UnitCode == "" && l.RoomCode == "" && l.BedCode == ""
}

// Venue is a contiguous episode of care.
type Venue struct {
	ID               string
	DossierID        string
	SequenceNumber   string // unique per juridical entity (VN)
	Start            time.Time
	End              *time.Time
	Status           VenueStatus
	CurrentLocation  Location
	MovementIDs      []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidateInvariants checks the "end >= start when set" invariant from
// the design.
func (v *Venue) ValidateInvariants() error {
	if v.End != nil && v.End.Before(v.Start) {
		return fmt.Errorf("venue %s: end %s precedes start %s", v.ID, v.End, v.Start)
	}
	return nil
}
