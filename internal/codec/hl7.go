package codec

import (
	"strings"
	"unicode/utf8"

	coreerrors "hl7-interop-bridge/internal/errors"
)

// Delimiters holds the HL7 v2 delimiter quartet read from MSH-1/MSH-2
// . The canonical outbound quartet is "|^~\&".
type Delimiters struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	Subcomponent byte
}

// CanonicalDelimiters is the outbound delimiter quartet mandated for
// generated messages.
var CanonicalDelimiters = Delimiters{
	Field: '|', Component: '^', Repetition: '~', Escape: '\\', Subcomponent: '&',
}

// Component is an ordered list of subcomponent text values, 1-based via
// Get/Set helpers (component 1 is index 0).
type Component []string

func (c Component) Get(n int) string {
	if n < 1 || n > len(c) {
		return ""
	}
	return c[n-1]
}

// Repetition is an ordered list of components.
type Repetition []Component

func (r Repetition) Get(n int) Component {
	if n < 1 || n > len(r) {
		return nil
	}
	return r[n-1]
}

// Field is an ordered list of repetitions (usually exactly one).
type Field []Repetition

func (f Field) Get(n int) Repetition {
	if n < 1 || n > len(f) {
		return nil
	}
	return f[n-1]
}

// Raw returns component 1, subcomponent 1 of repetition 1: the common case
// of a simple unstructured field value.
func (f Field) Raw() string {
	if len(f) == 0 || len(f[0]) == 0 || len(f[0][0]) == 0 {
		return ""
	}
	return f[0][0][0]
}

// Segment is one parsed HL7 segment, preserving 1-based field indices (0 is
// the segment id itself).
type Segment struct {
	ID     string
	Fields []Field // Fields[0] is unused filler so Fields[n] == field n
}

// Field returns field n (1-based), or an empty Field if absent.
func (s *Segment) Field(n int) Field {
	if n < 0 || n >= len(s.Fields) {
		return nil
	}
	return s.Fields[n]
}

// FieldRaw is shorthand for Field(n).Raw().
func (s *Segment) FieldRaw(n int) string {
	return s.Field(n).Raw()
}

// Message is a parsed HL7 v2 message: an ordered segment list plus the
// delimiters that were in effect.
type Message struct {
	Delimiters Delimiters
	Segments   []*Segment
}

// Segment returns the first segment with the given id, or nil.
func (m *Message) Segment(id string) *Segment {
	for _, s := range m.Segments {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// AllSegments returns every segment with the given id, in document order
// (e.g. repeated DG1/AL1 segments).
func (m *Message) AllSegments(id string) []*Segment {
	var out []*Segment
	for _, s := range m.Segments {
		if s.ID == id {
			out = append(out, s)
		}
	}
	return out
}

// decodeBytes applies the UTF-8-first, Latin-1-fallback decode policy of
// the design: "never fail at decode stage".
func decodeBytes(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return b.String()
}

// ParseMessage parses a raw HL7 v2 message
func ParseMessage(raw []byte) (*Message, error) {
	text := decodeBytes(raw)
	text = strings.ReplaceAll(text, "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")
	lines := strings.Split(text, "\r")

	var segLines []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		segLines = append(segLines, l)
	}
	if len(segLines) == 0 {
		return nil, coreerrors.New(coreerrors.KindInvalidMSH, "empty message", nil)
	}
	if !strings.HasPrefix(segLines[0], "MSH") {
		return nil, coreerrors.New(coreerrors.KindInvalidMSH, "message does not start with MSH segment", nil)
	}
	if len(segLines[0]) < 8 {
		return nil, coreerrors.New(coreerrors.KindInvalidMSH, "MSH segment too short to carry delimiters", nil)
	}

	delims := Delimiters{
		Field:        segLines[0][3],
		Component:    segLines[0][4],
		Repetition:   segLines[0][5],
		Escape:       segLines[0][6],
		Subcomponent: segLines[0][7],
	}

	msg := &Message{Delimiters: delims}
	for _, line := range segLines {
		seg, err := parseSegment(line, delims)
		if err != nil {
			return nil, err
		}
		msg.Segments = append(msg.Segments, seg)
	}
	return msg, nil
}

func parseSegment(line string, d Delimiters) (*Segment, error) {
	fieldSep := string(d.Field)
	rawFields := strings.Split(line, fieldSep)
	if len(rawFields) == 0 {
		return nil, coreerrors.New(coreerrors.KindInvalidMSH, "segment has no fields", nil)
	}
	id := rawFields[0]
	seg := &Segment{ID: id}

	// MSH is special: field 1 IS the field separator character and field 2
	// is the four-character delimiter block, neither of which is a
	// "between separators" rawFields entry the way every later field is.
	// rawFields[1] (the text between the 1st and 2nd separators) carries
	// MSH-2's content, and rawFields[k] for k>=2 carries MSH-(k+1)'s
	// content, so every field from MSH-3 onward is shifted by one
	// relative to a non-MSH segment.
	if id == "MSH" {
		seg.Fields = make([]Field, len(rawFields)+1)
		if len(rawFields) > 1 {
			seg.Fields[1] = Field{Repetition{Component{fieldSep}}}
			seg.Fields[2] = Field{Repetition{Component{rawFields[1]}}}
		}
		for k := 2; k < len(rawFields); k++ {
			seg.Fields[k+1] = parseField(rawFields[k], d)
		}
		return seg, nil
	}

	seg.Fields = make([]Field, len(rawFields))
	for i := 1; i < len(rawFields); i++ {
		seg.Fields[i] = parseField(rawFields[i], d)
	}
	return seg, nil
}

func parseField(raw string, d Delimiters) Field {
	reps := strings.Split(raw, string(d.Repetition))
	field := make(Field, len(reps))
	for i, rep := range reps {
		comps := strings.Split(rep, string(d.Component))
		repetition := make(Repetition, len(comps))
		for j, comp := range comps {
			subs := strings.Split(comp, string(d.Subcomponent))
			repetition[j] = Component(subs)
		}
		field[i] = repetition
	}
	return field
}

// SerializeMessage renders a Message back to wire bytes using the
// message's own delimiters, or the canonical quartet when none are set.
func SerializeMessage(msg *Message) []byte {
	d := msg.Delimiters
	if d == (Delimiters{}) {
		d = CanonicalDelimiters
	}
	var b strings.Builder
	for i, seg := range msg.Segments {
		if i > 0 {
			b.WriteByte(carriageReturn)
		}
		b.WriteString(serializeSegment(seg, d))
	}
	return []byte(b.String())
}

func serializeSegment(seg *Segment, d Delimiters) string {
	if seg.ID == "MSH" {
		var b strings.Builder
		b.WriteString("MSH")
		b.WriteByte(d.Field)
		if len(seg.Fields) > 2 {
			b.WriteString(seg.Fields[2].Raw())
		}
		for i := 3; i < len(seg.Fields); i++ {
			b.WriteByte(d.Field)
			b.WriteString(serializeField(seg.Fields[i], d))
		}
		return b.String()
	}

	parts := make([]string, len(seg.Fields))
	parts[0] = seg.ID
	for i := 1; i < len(seg.Fields); i++ {
		parts[i] = serializeField(seg.Fields[i], d)
	}
	return strings.Join(parts, string(d.Field))
}

func serializeField(f Field, d Delimiters) string {
	reps := make([]string, len(f))
	for i, rep := range f {
		comps := make([]string, len(rep))
		for j, comp := range rep {
			comps[j] = strings.Join(comp, string(d.Subcomponent))
		}
		reps[i] = strings.Join(comps, string(d.Component))
	}
	return strings.Join(reps, string(d.Repetition))
}

// NewField builds a single-repetition, single-component field from plain
// text — the common case when the generator writes a simple value.
func NewField(value string) Field {
	return Field{Repetition{Component{value}}}
}

// NewCXField builds an HL7 CX composite field: value^^^assigningAuthority^typeCode.
func NewCXField(value, assigningAuthority, typeCode string) Field {
	return Field{Repetition{Component{value}, Component{""}, Component{""}, Component{assigningAuthority}, Component{typeCode}}}
}

// NewXONField builds an HL7 XON composite field for functional units: the
// label occupies component 1, the code occupies component 10
// (the design ZBE-7: "component 10 (code) mandatory").
func NewXONField(label, code string) Field {
	comps := make([]Component, 10)
	for i := range comps {
		comps[i] = Component{""}
	}
	comps[0] = Component{label}
	comps[9] = Component{code}
	return Field{Repetition(comps)}
}
