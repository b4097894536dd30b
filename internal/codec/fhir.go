package codec

import "encoding/json"

// FHIR bundles are parsed into a typed tree with unknown elements preserved
// on round-trip, using the standard library's json package — no library in the
// retrieved pack offers a lighter-weight FHIR R4 codec than the stdlib
// encoder/decoder pair (gofhir-validator in the other_examples/ reference
// material only validates profiles, it does not encode/decode); this is the one
// ambient concern in this package grounded on the standard library rather than
// a pack dependency (see DESIGN.md).

// Resource is a generic FHIR resource: known top-level fields are typed,
// everything else round-trips through Extra.
type Resource struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id,omitempty"`
	Extra        map[string]any `json:"-"`
}

// MarshalJSON merges the typed fields with Extra so unannotated elements
// survive a parse/serialize round-trip.
func (r Resource) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range r.Extra {
		out[k] = v
	}
	out["resourceType"] = r.ResourceType
	if r.ID != "" {
		out["id"] = r.ID
	}
	return json.Marshal(out)
}

// UnmarshalJSON captures every element into Extra, then lifts the known
// top-level fields out.
func (r *Resource) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Extra = raw
	if rt, ok := raw["resourceType"].(string); ok {
		r.ResourceType = rt
	}
	if id, ok := raw["id"].(string); ok {
		r.ID = id
	}
	return nil
}

// BundleEntry wraps one resource in a transaction Bundle.
type BundleEntry struct {
	FullURL  string    `json:"fullUrl,omitempty"`
	Resource *Resource `json:"resource"`
	Request  *BundleEntryRequest `json:"request,omitempty"`
}

// BundleEntryRequest carries the transaction verb for the entry.
type BundleEntryRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// Bundle is a FHIR R4 transaction bundle.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Entry        []BundleEntry `json:"entry"`
}

// NewTransactionBundle builds an empty transaction Bundle ready to have
// entries appended.
func NewTransactionBundle() *Bundle {
	return &Bundle{ResourceType: "Bundle", Type: "transaction"}
}

// AddEntry appends a POST entry for the given resource.
func (b *Bundle) AddEntry(resourceType string, res *Resource) {
	b.Entry = append(b.Entry, BundleEntry{
		Resource: res,
		Request:  &BundleEntryRequest{Method: "POST", URL: resourceType},
	})
}

// EncodeBundle serializes a Bundle to JSON bytes.
func EncodeBundle(b *Bundle) ([]byte, error) {
	return json.Marshal(b)
}

// DecodeBundle parses JSON bytes into a Bundle, preserving unknown resource
// elements via Resource.Extra.
func DecodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
