package scenario

import (
	"context"
	"strings"
	"testing"
	"time"

	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
)

func TestExportThenImportRoundTrips(t *testing.T) {
	base := time.Date(2026, 8, 2, 8, 0, 0, 0, time.UTC)
	original := &domain.ScenarioTemplate{
		Key:       "k1",
		Name:      "admission then discharge",
		Protocols: []domain.Protocol{domain.ProtocolHL7v2},
		TimeConfig: domain.TimeConfig{AnchorMode: domain.AnchorSliding, PreserveIntervals: true},
		Steps: []domain.ScenarioTemplateStep{
			{OrderIndex: 0, Trigger: "A01", DelayFromPrevious: 0, DefaultProtocol: domain.ProtocolHL7v2,
				PayloadSnapshot: domain.StepPayload{ServiceCode: "CARD", MedicalUF: domain.FunctionalUnit{Code: "CARD01", Label: "CARDIOLOGIE"}}},
			{OrderIndex: 1, Trigger: "A03", DelayFromPrevious: 3 * time.Hour, DefaultProtocol: domain.ProtocolHL7v2},
		},
		CreatedAt: base,
	}

	raw, err := ExportTemplate(original)
	if err != nil {
		t.Fatalf("ExportTemplate: %v", err)
	}
	if !strings.Contains(string(raw), `"order_index"`) || !strings.Contains(string(raw), `"delay_seconds"`) {
		t.Fatalf("export missing expected keys: %s", raw)
	}

	repo := newFakeTemplateRepo()
	imported, err := ImportTemplate(context.Background(), repo, raw, ImportOptions{}, newIDGen("id"), base)
	if err != nil {
		t.Fatalf("ImportTemplate: %v", err)
	}
	if imported.Key != original.Key || imported.Name != original.Name {
		t.Fatalf("round-trip mismatch: %+v", imported)
	}
	if len(imported.Steps) != 2 || imported.Steps[1].DelayFromPrevious != 3*time.Hour {
		t.Fatalf("step delays not preserved: %+v", imported.Steps)
	}
}

func TestImportRejectsDuplicateKeyWithoutOverride(t *testing.T) {
	repo := newFakeTemplateRepo()
	repo.byKey["dup"] = &domain.ScenarioTemplate{Key: "dup"}

	raw := []byte(`{"key":"dup","name":"n","protocol":"HL7v2","steps":[{"order_index":0,"message_type":"ADT^A01","delay_seconds":0}]}`)
	_, err := ImportTemplate(context.Background(), repo, raw, ImportOptions{}, newIDGen("id"), time.Now())
	if !coreerrors.Is(err, coreerrors.KindIdentifierCollision) {
		t.Fatalf("expected collision error, got %v", err)
	}

	imported, err := ImportTemplate(context.Background(), repo, raw, ImportOptions{OverrideKey: "dup-2"}, newIDGen("id"), time.Now())
	if err != nil {
		t.Fatalf("ImportTemplate with override: %v", err)
	}
	if imported.Key != "dup-2" {
		t.Fatalf("override key not applied: %q", imported.Key)
	}
}

func TestImportRejectsMissingRequiredFields(t *testing.T) {
	repo := newFakeTemplateRepo()
	raw := []byte(`{"name":"n","protocol":"HL7v2","steps":[]}`)
	_, err := ImportTemplate(context.Background(), repo, raw, ImportOptions{}, newIDGen("id"), time.Now())
	if !coreerrors.Is(err, coreerrors.KindMissingRequired) {
		t.Fatalf("expected MISSING_REQUIRED_FIELD, got %v", err)
	}
}
