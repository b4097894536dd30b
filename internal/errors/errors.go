// Package errors defines the core's error taxonomy, a single tagged type
// modeled on the reference implementation's services.ServiceError{Type,
// Message, Details} pattern rather than ad hoc fmt.Errorf strings at the
// boundaries that feed ACKs and diagnostics.
package errors

import "fmt"

// Kind enumerates the error kinds named in the design (not Go type names).
type Kind string

const (
	KindFramingError       Kind = "FRAMING_ERROR"
	KindInvalidMSH         Kind = "INVALID_MSH"
	KindEncodingFallback   Kind = "ENCODING_FALLBACK"
	KindInvalidTrigger     Kind = "INVALID_TRIGGER"
	KindMissingRequired    Kind = "MISSING_REQUIRED_FIELD"
	KindUFUnknown          Kind = "UF_UNKNOWN"
	KindPatientNotFound    Kind = "PATIENT_NOT_FOUND"
	KindVenueNotFound      Kind = "VENUE_NOT_FOUND"
	KindStructureAmbiguity Kind = "STRUCTURE_AMBIGUITY"
	KindInvalidTransition  Kind = "INVALID_TRANSITION"
	KindDuplicateControlID Kind = "DUPLICATE_CONTROL_ID"
	KindConcurrentMod      Kind = "CONCURRENT_MODIFICATION"
	KindIdentifierCollision Kind = "IDENTIFIER_COLLISION"
	KindIdentifierExhausted Kind = "IDENTIFIER_POOL_EXHAUSTED"
	KindINSFormatInvalid   Kind = "INS_FORMAT_INVALID"
	KindConnectionRefused  Kind = "CONNECTION_REFUSED"
	KindReadTimeout        Kind = "READ_TIMEOUT"
	KindACKRejected        Kind = "ACK_REJECTED"
	KindACKError           Kind = "ACK_ERROR"
	KindHTTPError          Kind = "HTTP_ERROR"
	KindTemplateNotFound   Kind = "TEMPLATE_NOT_FOUND"
	KindCaptureEmptyDossier Kind = "CAPTURE_EMPTY_DOSSIER"
	KindRunCancelled       Kind = "RUN_CANCELLED"
)

// CoreError is the core's single error type: a tagged kind plus a
// human-readable message and structured details for ACK/diagnostic
// rendering.
type CoreError struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds a CoreError with optional details.
func New(kind Kind, message string, details map[string]any) *CoreError {
	if details == nil {
		details = map[string]any{}
	}
	return &CoreError{Kind: kind, Message: message, Details: details}
}

// Is reports whether err is a *CoreError of the given kind, for use with
// errors.As-style call sites that only care about classification.
func Is(err error, kind Kind) bool {
	ce, ok := err.(*CoreError)
	return ok && ce.Kind == kind
}
