// Package statemachine implements the movement state machine: the
// trigger x current-status transition table gating venue mutation, plus
// the identity-only triggers that bypass it entirely and the
// PAM_RELAX_TRANSITIONS escape hatch.
package statemachine

import (
	"strings"

	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
)

// identityOnlyTriggers are patient-level triggers with no venue effect
// (the design, supplemented with A47 from original_source/'s
// validate_transition).
var identityOnlyTriggers = map[string]bool{
	"A28": true,
	"A31": true,
	"A40": true,
	"A47": true,
}

// IsIdentityOnly reports whether trigger bypasses venue-level validation
// entirely.
func IsIdentityOnly(trigger string) bool {
	return identityOnlyTriggers[trigger]
}

// Action describes what the state machine did to a venue for a given
// trigger.
type Action string

const (
	ActionCreateOrStayPreAdmitted Action = "CREATE_OR_STAY_PRE_ADMITTED"
	ActionAdmit                   Action = "ADMIT"
	ActionTransfer                Action = "TRANSFER"
	ActionDischarge               Action = "DISCHARGE"
	ActionCancelAdmit             Action = "CANCEL_ADMIT"
	ActionCancelTransfer          Action = "CANCEL_TRANSFER"
	ActionCancelDischarge         Action = "CANCEL_DISCHARGE"
	ActionTypeChange              Action = "TYPE_CHANGE"
	ActionDemographicUpdateOnly   Action = "DEMOGRAPHIC_UPDATE_ONLY"
)

// transitionRule describes one row of the transition table: the set of venue
// statuses (or "none") the trigger accepts, the resulting status, and the
// action to take. An empty acceptedFrom + acceptsNone=true means the trigger is
// valid when no venue exists yet. requiredLastTrigger, when set, additionally
// requires the venue's last non-cancelled movement to carry that trigger —
// venue status alone conflates "admitted" with "admitted, later transferred".
type transitionRule struct {
	trigger             string
	acceptsNone         bool
	acceptedFrom        []domain.VenueStatus
	resultStatus        domain.VenueStatus // "" = unchanged
	action              Action
	requiredLastTrigger string
}

var rules = []transitionRule{
	{trigger: "A05", acceptsNone: true, acceptedFrom: []domain.VenueStatus{domain.VenuePreAdmitted}, resultStatus: domain.VenuePreAdmitted, action: ActionCreateOrStayPreAdmitted},
	{trigger: "A01", acceptsNone: true, acceptedFrom: []domain.VenueStatus{domain.VenuePreAdmitted}, resultStatus: domain.VenueActive, action: ActionAdmit},
	{trigger: "A02", acceptedFrom: []domain.VenueStatus{domain.VenueActive}, resultStatus: domain.VenueActive, action: ActionTransfer},
	{trigger: "A03", acceptedFrom: []domain.VenueStatus{domain.VenueActive, domain.VenueOnLeave}, resultStatus: domain.VenueDischarged, action: ActionDischarge},
	{trigger: "A11", acceptedFrom: []domain.VenueStatus{domain.VenueActive}, resultStatus: domain.VenueCancelled, action: ActionCancelAdmit, requiredLastTrigger: "A01"},
	{trigger: "A12", acceptedFrom: []domain.VenueStatus{domain.VenueActive}, resultStatus: domain.VenueActive, action: ActionCancelTransfer, requiredLastTrigger: "A02"},
	{trigger: "A13", acceptedFrom: []domain.VenueStatus{domain.VenueDischarged}, resultStatus: domain.VenueActive, action: ActionCancelDischarge},
	{trigger: "A06", acceptedFrom: []domain.VenueStatus{domain.VenueActive, domain.VenuePreAdmitted, domain.VenueOnLeave}, action: ActionTypeChange},
	{trigger: "A07", acceptedFrom: []domain.VenueStatus{domain.VenueActive, domain.VenuePreAdmitted, domain.VenueOnLeave}, action: ActionTypeChange},
	{trigger: "A08", acceptedFrom: []domain.VenueStatus{domain.VenuePreAdmitted, domain.VenueActive, domain.VenueOnLeave, domain.VenueDischarged, domain.VenueCancelled}, acceptsNone: true, action: ActionDemographicUpdateOnly},
}

func findRule(trigger string) (transitionRule, bool) {
	for _, r := range rules {
		if r.trigger == trigger {
			return r, true
		}
	}
	return transitionRule{}, false
}

// Transition is the result of successfully applying a trigger.
type Transition struct {
	Action       Action
	FromStatus   domain.VenueStatus
	ToStatus     domain.VenueStatus // equals FromStatus when the action does not change status
	A11CancelsA01 bool
}

// Apply evaluates trigger against the venue's current status (nil venue =
// "none") and, for triggers whose rule names a requiredLastTrigger (A11,
// A12), against lastMovement's trigger, returning the resulting Transition
// or a CoreError of kind INVALID_TRANSITION when a precondition fails.
// lastMovement is the venue's last non-cancelled movement, or nil when none
// exists yet; it may be nil for triggers with no requiredLastTrigger.
// relaxTransitions, when true, accepts any (trigger, status) pair without
// consulting the table (PAM_RELAX_TRANSITIONS, supplemented from
// original_source/).
func Apply(trigger string, venue *domain.Venue, lastMovement *domain.Movement, relaxTransitions bool) (Transition, error) {
	var from domain.VenueStatus
	hasVenue := venue != nil
	if hasVenue {
		from = venue.Status
	}

	if relaxTransitions {
		rule, ok := findRule(trigger)
		to := from
		action := ActionDemographicUpdateOnly
		if ok {
			action = rule.action
			if rule.resultStatus != "" {
				to = rule.resultStatus
			}
		}
		return Transition{Action: action, FromStatus: from, ToStatus: to}, nil
	}

	rule, ok := findRule(trigger)
	if !ok {
		return Transition{}, coreerrors.New(coreerrors.KindInvalidTransition, "unknown trigger for venue transition",
			map[string]any{"trigger": trigger})
	}

	if !hasVenue {
		if !rule.acceptsNone {
			return Transition{}, rejectTransition(trigger, "", "no venue exists")
		}
	} else if !statusIn(from, rule.acceptedFrom) {
		return Transition{}, rejectTransition(trigger, from, "precondition not satisfied for current venue status")
	}

	if rule.requiredLastTrigger != "" && lastMovementTrigger(lastMovement) != rule.requiredLastTrigger {
		return Transition{}, rejectTransition(trigger, from, "last movement was not "+rule.requiredLastTrigger)
	}

	to := from
	if rule.resultStatus != "" {
		to = rule.resultStatus
	}
	return Transition{Action: rule.action, FromStatus: from, ToStatus: to, A11CancelsA01: trigger == "A11"}, nil
}

// lastMovementTrigger extracts the bare trigger code ("A01") from a
// movement's wire trigger ("ADT^A01"), or "" when m is nil.
func lastMovementTrigger(m *domain.Movement) string {
	if m == nil {
		return ""
	}
	return strings.TrimPrefix(m.Trigger, "ADT^")
}

func statusIn(status domain.VenueStatus, set []domain.VenueStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func rejectTransition(trigger string, from domain.VenueStatus, reason string) error {
	return coreerrors.New(coreerrors.KindInvalidTransition, "state transition rejected", map[string]any{
		"trigger":     trigger,
		"from_status": string(from),
		"reason":      reason,
	})
}
