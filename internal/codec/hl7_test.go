package codec

import (
	"strings"
	"testing"
)

const sampleADT = "MSH|^~\\&|SENDER|FAC|RECEIVER|FAC2|20260101120000||ADT^A01|CTL0001|P|2.5\r" +
	"PID|1||IPP0001^^^HOSPITAL^PI||DOE^JOHN\r" +
	"ZBE|MVT0001|20260101120000||INSERT|N||S\r"

func TestParseMessageDelimitersAndSegments(t *testing.T) {
	msg, err := ParseMessage([]byte(sampleADT))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Delimiters != CanonicalDelimiters {
		t.Fatalf("expected canonical delimiters, got %+v", msg.Delimiters)
	}
	if len(msg.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(msg.Segments))
	}

	msh := msg.Segment("MSH")
	if msh == nil {
		t.Fatal("expected MSH segment")
	}
	if got := msh.FieldRaw(9); got != "ADT" {
		t.Fatalf("MSH-9 component1 raw mismatch: got %q", got)
	}
	if got := msh.Field(9).Get(1).Get(2).Get(1); got != "A01" {
		t.Fatalf("MSH-9.2 mismatch: got %q", got)
	}
	if got := msh.FieldRaw(10); got != "CTL0001" {
		t.Fatalf("MSH-10 mismatch: got %q", got)
	}

	pid := msg.Segment("PID")
	if pid == nil {
		t.Fatal("expected PID segment")
	}
	if got := pid.Field(3).Get(1).Get(1).Get(1); got != "IPP0001" {
		t.Fatalf("PID-3.1 mismatch: got %q", got)
	}
	if got := pid.Field(3).Get(1).Get(4).Get(1); got != "HOSPITAL" {
		t.Fatalf("PID-3.4 mismatch: got %q", got)
	}
}

func TestParseMessageRejectsMissingMSH(t *testing.T) {
	_, err := ParseMessage([]byte("PID|1||X\r"))
	if err == nil {
		t.Fatal("expected error for message missing MSH")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	msg, err := ParseMessage([]byte(sampleADT))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	out := SerializeMessage(msg)
	reparsed, err := ParseMessage(out)
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if len(reparsed.Segments) != len(msg.Segments) {
		t.Fatalf("segment count mismatch after round-trip")
	}
	if reparsed.Segment("PID").FieldRaw(3) != "IPP0001" {
		t.Fatalf("PID-3 lost across round-trip: %q", reparsed.Segment("PID").FieldRaw(3))
	}
}

func TestNewCXField(t *testing.T) {
	f := NewCXField("IPP0042", "HOSPITAL", "PI")
	if got := f.Get(1).Get(1).Get(1); got != "IPP0042" {
		t.Fatalf("CX component1 mismatch: got %q", got)
	}
	if got := f.Get(1).Get(4).Get(1); got != "HOSPITAL" {
		t.Fatalf("CX component4 mismatch: got %q", got)
	}
	if got := f.Get(1).Get(5).Get(1); got != "PI" {
		t.Fatalf("CX component5 mismatch: got %q", got)
	}
}

func TestNewXONField(t *testing.T) {
	f := NewXONField("Cardiology Unit", "CARDIO01")
	rep := f.Get(1)
	if got := rep.Get(1).Get(1); got != "Cardiology Unit" {
		t.Fatalf("XON label mismatch: got %q", got)
	}
	if got := rep.Get(10).Get(1); got != "CARDIO01" {
		t.Fatalf("XON code mismatch: got %q", got)
	}
}

func TestDecodeBytesLatin1Fallback(t *testing.T) {
	// 0xE9 is 'é' in Latin-1 but invalid standalone UTF-8.
	raw := []byte{'D', 'O', 'E', 0xE9}
	decoded := decodeBytes(raw)
	if !strings.HasPrefix(decoded, "DOE") {
		t.Fatalf("expected decode to never fail and retain ASCII prefix, got %q", decoded)
	}
}

func TestSerializeFieldWithSubcomponents(t *testing.T) {
	field := Field{Repetition{Component{"A", "B"}, Component{"C"}}}
	got := serializeField(field, CanonicalDelimiters)
	want := "A&B^C"
	if got != want {
		t.Fatalf("serializeField mismatch: got %q want %q", got, want)
	}
}
