// Package vocabulary implements the registry of the design: bidirectional
// mapping between semantic event codes used by scenario templates and the wire-
// level HL7 v2 ADT triggers, plus trigger→default-nature derivation. It is
// initialized once per process and is read-mostly, grounding the "registry"
// shape the reference implementation uses for its own read-mostly vocabulary
// lookups (internal/modules/tir reference tables, dropped here as out-of-scope
// but matched in spirit).
package vocabulary

import "hl7-interop-bridge/internal/domain"

// Entry is one row of the bidirectional mapping: a semantic event code
// paired with its wire trigger, message role, and default nature.
type Entry struct {
	SemanticCode  string
	Trigger       string
	Role          domain.MessageRole
	DefaultNature domain.Nature
	HasNature     bool
}

// Registry holds the bidirectional mapping, built once at construction.
type Registry struct {
	bySemantic map[string]Entry
	byTrigger  map[string]Entry
}

var defaultEntries = []Entry{
	{SemanticCode: "PRE_ADMISSION", Trigger: "A05", Role: domain.RoleAdmission, DefaultNature: domain.NatureS, HasNature: true},
	{SemanticCode: "ADMISSION_CONFIRMED", Trigger: "A01", Role: domain.RoleAdmission, DefaultNature: domain.NatureS, HasNature: true},
	{SemanticCode: "TRANSFER", Trigger: "A02", Role: domain.RoleTransfer, DefaultNature: domain.NatureM, HasNature: true},
	{SemanticCode: "DISCHARGE", Trigger: "A03", Role: domain.RoleDischarge, DefaultNature: domain.NatureD, HasNature: true},
	{SemanticCode: "OUTPATIENT_REGISTRATION", Trigger: "A04", Role: domain.RoleAdmission, DefaultNature: domain.NatureS, HasNature: true},
	{SemanticCode: "TYPE_CHANGE_INBOUND", Trigger: "A06", Role: domain.RoleUpdate, DefaultNature: domain.NatureM, HasNature: true},
	{SemanticCode: "TYPE_CHANGE_OUTBOUND", Trigger: "A07", Role: domain.RoleUpdate, DefaultNature: domain.NatureM, HasNature: true},
	{SemanticCode: "DEMOGRAPHIC_UPDATE", Trigger: "A08", Role: domain.RoleUpdate, HasNature: false},
	{SemanticCode: "CANCEL_ADMISSION", Trigger: "A11", Role: domain.RoleUpdate, DefaultNature: domain.NatureS, HasNature: true},
	{SemanticCode: "CANCEL_TRANSFER", Trigger: "A12", Role: domain.RoleUpdate, HasNature: false},
	{SemanticCode: "CANCEL_DISCHARGE", Trigger: "A13", Role: domain.RoleUpdate, DefaultNature: domain.NatureS, HasNature: true},
	{SemanticCode: "PATIENT_UPDATE", Trigger: "A28", Role: domain.RoleLifecycle, HasNature: false},
	{SemanticCode: "PATIENT_MERGE_NOTICE", Trigger: "A31", Role: domain.RoleLifecycle, HasNature: false},
	{SemanticCode: "PATIENT_MERGE", Trigger: "A40", Role: domain.RoleLifecycle, HasNature: false},
	{SemanticCode: "PATIENT_IDENTITY_UPDATE", Trigger: "A47", Role: domain.RoleLifecycle, HasNature: false},
}

// New builds the registry from the design's fixed mapping table.
func New() *Registry {
	r := &Registry{
		bySemantic: make(map[string]Entry, len(defaultEntries)),
		byTrigger:  make(map[string]Entry, len(defaultEntries)),
	}
	for _, e := range defaultEntries {
		r.bySemantic[e.SemanticCode] = e
		r.byTrigger[e.Trigger] = e
	}
	return r
}

// ResolveSemantic returns the (trigger, role) pair for a semantic event
// code.
func (r *Registry) ResolveSemantic(semanticCode string) (trigger string, role domain.MessageRole, ok bool) {
	e, ok := r.bySemantic[semanticCode]
	if !ok {
		return "", "", false
	}
	return e.Trigger, e.Role, true
}

// ResolveTrigger returns the (semantic code, default nature) pair for a
// wire trigger.
func (r *Registry) ResolveTrigger(trigger string) (semanticCode string, nature domain.Nature, hasNature bool, ok bool) {
	e, ok := r.byTrigger[trigger]
	if !ok {
		return "", "", false, false
	}
	return e.SemanticCode, e.DefaultNature, e.HasNature, true
}

// DefaultNature returns the default nature for trigger, and whether the
// trigger carries a nature at all (A28/A31/A40/A47 are lifecycle-only and
// carry none).
func (r *Registry) DefaultNature(trigger string) (domain.Nature, bool) {
	e, ok := r.byTrigger[trigger]
	if !ok || !e.HasNature {
		return "", false
	}
	return e.DefaultNature, true
}

// Lookup returns the full registry entry for a wire trigger, including its
// message role, for callers that need more than ResolveTrigger's tuple.
func (r *Registry) Lookup(trigger string) (Entry, bool) {
	e, ok := r.byTrigger[trigger]
	return e, ok
}

// IsLegalNature reports whether n is one of the legal natures {S, H, M, L,
// D, SM} the design names, so ZBE-9 overrides can be validated.
func IsLegalNature(n domain.Nature) bool {
	return domain.LegalNatures[n]
}
