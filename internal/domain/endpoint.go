package domain

import "time"

// EndpointType enumerates the transport manager's endpoint kinds.
type EndpointType string

const (
	EndpointMLLPListener EndpointType = "MLLP-listener"
	EndpointMLLPSender   EndpointType = "MLLP-sender"
	EndpointFileInbox    EndpointType = "file-inbox"
	EndpointFileOutbox   EndpointType = "file-outbox"
	EndpointFHIRClient   EndpointType = "FHIR-client"
)

// Endpoint is a configured transport target or listener.
type Endpoint struct {
	ID                     string
	Type                   EndpointType
	Host                   string
	Port                   int
	InboxPath              string
	OutboxPath             string
	FileGlob               string
	PollInterval           time.Duration
	TLSCABundle            string
	ForcedIdentifierSystem string
	ForcedIdentifierOID    string
	OwningEntityID         string
	ReceivingApplication   string
	ReceivingFacility      string
	FHIRBaseURL            string
}

// IdentifierOverride returns the endpoint-level CX assigning-authority
// override, if configured.
func (e *Endpoint) IdentifierOverride() (string, bool) {
	if e.ForcedIdentifierOID != "" {
		return e.ForcedIdentifierOID, true
	}
	if e.ForcedIdentifierSystem != "" {
		return e.ForcedIdentifierSystem, true
	}
	return "", false
}
