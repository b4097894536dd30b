// Package validator implements the PAM validator of the design: segment and ZBE
// field rules producing a diagnostic list, plus the per-entity strict-mode
// policy (reject ADT^A08, upgrade missing ZBE-6 to error).
package validator

import (
	"strconv"

	"hl7-interop-bridge/internal/codec"
	"hl7-interop-bridge/internal/domain"
)

// legalNatures mirrors vocabulary.IsLegalNature without importing the
// vocabulary package, keeping the validator a leaf the vocabulary registry
// itself does not need to depend on.
var legalNatures = map[string]bool{"S": true, "H": true, "M": true, "L": true, "D": true, "SM": true}

var legalActions = map[string]bool{"INSERT": true, "UPDATE": true, "CANCEL": true}

// Validate runs the PAM segment and ZBE field rules of the design over a parsed
// message for the given trigger (e.g. "A01"), honoring the per-entity strict-
// mode flag.
func Validate(msg *codec.Message, trigger string, strictPAMFR bool) []domain.Diagnostic {
	var diags []domain.Diagnostic

	if strictPAMFR && trigger == "A08" {
		diags = append(diags, domain.Diagnostic{
			Code: "STRICT_A08_FORBIDDEN", Severity: domain.SeverityError,
			Segment: "MSH", Field: 9, Text: "strict PAM FR forbids A08",
		})
	}

	diags = append(diags, validateMSH(msg)...)
	diags = append(diags, validatePID(msg)...)
	diags = append(diags, validatePV1(msg, trigger)...)
	diags = append(diags, validateEVN(msg)...)
	diags = append(diags, validateZBE(msg, strictPAMFR)...)

	return diags
}

func validateMSH(msg *codec.Message) []domain.Diagnostic {
	msh := msg.Segment("MSH")
	var diags []domain.Diagnostic
	if msh == nil {
		diags = append(diags, domain.Diagnostic{Code: "MSH_MISSING", Severity: domain.SeverityError, Segment: "MSH", Text: "MSH segment missing"})
		return diags
	}
	for _, n := range []int{3, 4, 5, 6, 7, 9, 10} {
		if msh.FieldRaw(n) == "" {
			diags = append(diags, domain.Diagnostic{
				Code: mshFieldCode(n), Severity: domain.SeverityError, Segment: "MSH", Field: n,
				Text: "mandatory MSH field is missing",
			})
		}
	}
	return diags
}

func validatePID(msg *codec.Message) []domain.Diagnostic {
	pid := msg.Segment("PID")
	var diags []domain.Diagnostic
	if pid == nil {
		diags = append(diags, domain.Diagnostic{Code: "PID_MISSING", Severity: domain.SeverityError, Segment: "PID", Text: "PID segment missing"})
		return diags
	}
	for _, n := range []int{3, 5, 7, 8} {
		if pid.FieldRaw(n) == "" {
			diags = append(diags, domain.Diagnostic{
				Code: pidFieldCode(n), Severity: domain.SeverityError, Segment: "PID", Field: n,
				Text: "mandatory PID field is missing",
			})
		}
	}
	return diags
}

func validatePV1(msg *codec.Message, trigger string) []domain.Diagnostic {
	pv1 := msg.Segment("PV1")
	var diags []domain.Diagnostic
	if pv1 == nil {
		diags = append(diags, domain.Diagnostic{Code: "PV1_MISSING", Severity: domain.SeverityError, Segment: "PV1", Text: "PV1 segment missing"})
		return diags
	}
	if pv1.FieldRaw(2) == "" {
		diags = append(diags, domain.Diagnostic{Code: "PV1_2_MISSING", Severity: domain.SeverityError, Segment: "PV1", Field: 2, Text: "patient class (PV1-2) is missing"})
	}
	if pv1.FieldRaw(19) == "" {
		diags = append(diags, domain.Diagnostic{Code: "PV1_19_MISSING", Severity: domain.SeverityError, Segment: "PV1", Field: 19, Text: "visit number (PV1-19) is missing"})
	}
	if trigger == "A02" && pv1.FieldRaw(6) == "" {
		diags = append(diags, domain.Diagnostic{Code: "PV1_6_MISSING", Severity: domain.SeverityError, Segment: "PV1", Field: 6, Text: "prior location (PV1-6) is mandatory on A02"})
	}
	return diags
}

func validateEVN(msg *codec.Message) []domain.Diagnostic {
	evn := msg.Segment("EVN")
	var diags []domain.Diagnostic
	if evn == nil || evn.FieldRaw(2) == "" {
		diags = append(diags, domain.Diagnostic{Code: "EVN2_MISSING", Severity: domain.SeverityWarning, Segment: "EVN", Field: 2, Text: "event timestamp (EVN-2) is missing"})
	}
	return diags
}

func validateZBE(msg *codec.Message, strictPAMFR bool) []domain.Diagnostic {
	var diags []domain.Diagnostic
	zbe := msg.Segment("ZBE")
	if zbe == nil {
		diags = append(diags, domain.Diagnostic{Code: "ZBE_MISSING", Severity: domain.SeverityError, Segment: "ZBE", Text: "ZBE segment missing"})
		return diags
	}

	if zbe.FieldRaw(1) == "" {
		diags = append(diags, domain.Diagnostic{Code: "ZBE1_MISSING", Severity: domain.SeverityError, Segment: "ZBE", Field: 1, Text: "ZBE-1 movement identifier is required"})
	}
	if zbe.FieldRaw(2) == "" {
		diags = append(diags, domain.Diagnostic{Code: "ZBE2_MISSING", Severity: domain.SeverityError, Segment: "ZBE", Field: 2, Text: "ZBE-2 event timestamp is required"})
	}

	action := zbe.FieldRaw(4)
	if !legalActions[action] {
		diags = append(diags, domain.Diagnostic{Code: "ZBE4_ACTION_INVALID", Severity: domain.SeverityWarning, Segment: "ZBE", Field: 4, Text: "ZBE-4 action invalid, falling back to INSERT"})
	}

	historic := zbe.FieldRaw(5)
	if historic != "Y" && historic != "N" {
		diags = append(diags, domain.Diagnostic{Code: "ZBE5_MISSING", Severity: domain.SeverityWarning, Segment: "ZBE", Field: 5, Text: "ZBE-5 historic flag invalid, falling back to N"})
	}

	needsOriginalTrigger := action == "UPDATE" || action == "CANCEL"
	if needsOriginalTrigger && zbe.FieldRaw(6) == "" {
		severity := domain.SeverityWarning
		if strictPAMFR {
			severity = domain.SeverityError
		}
		diags = append(diags, domain.Diagnostic{Code: "ZBE6_REQUIRED", Severity: severity, Segment: "ZBE", Field: 6, Text: "ZBE-6 original trigger required on UPDATE/CANCEL"})
	}

	if zbe.Field(7).Get(1).Get(10).Get(1) == "" {
		diags = append(diags, domain.Diagnostic{Code: "ZBE7_CODE_MISSING", Severity: domain.SeverityError, Segment: "ZBE", Field: 7, Text: "ZBE-7 medical unit code (component 10) is mandatory"})
	}

	if zbe.FieldRaw(8) == "" {
		diags = append(diags, domain.Diagnostic{Code: "ZBE8_MISSING", Severity: domain.SeverityWarning, Segment: "ZBE", Field: 8, Text: "ZBE-8 care unit absent"})
	}

	nature := zbe.FieldRaw(9)
	if nature != "" && !legalNatures[nature] {
		diags = append(diags, domain.Diagnostic{Code: "ZBE9_INVALID", Severity: domain.SeverityWarning, Segment: "ZBE", Field: 9, Text: "ZBE-9 nature invalid, falling back to trigger default"})
	}

	return diags
}

// HasErrors reports whether diags contains any error-severity entry.
func HasErrors(diags []domain.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == domain.SeverityError {
			return true
		}
	}
	return false
}

func mshFieldCode(n int) string { return fieldCode("MSH", n) }
func pidFieldCode(n int) string { return fieldCode("PID", n) }

func fieldCode(segment string, n int) string {
	return segment + "_" + strconv.Itoa(n) + "_MISSING"
}
