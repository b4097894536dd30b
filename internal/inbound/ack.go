package inbound

import (
	"hl7-interop-bridge/internal/codec"
	"hl7-interop-bridge/internal/domain"
)

// buildACK renders an MSA-carrying ACK message answering controlID:
// ackCode AA on success, AE with the rejection diagnostics otherwise.
func buildACK(controlID string, ackCode string, diags []domain.Diagnostic, sendingApp, sendingFacility string) []byte {
	msg := &codec.Message{Delimiters: codec.CanonicalDelimiters}

	msh := &codec.Segment{ID: "MSH", Fields: make([]codec.Field, 13)}
	msh.Fields[1] = codec.Field{codec.Repetition{codec.Component{"|"}}}
	msh.Fields[2] = codec.Field{codec.Repetition{codec.Component{"^~\\&"}}}
	msh.Fields[3] = codec.NewField(sendingApp)
	msh.Fields[4] = codec.NewField(sendingFacility)
	msh.Fields[9] = codec.NewField("ACK")
	msh.Fields[10] = codec.NewField(controlID + "-ACK")
	msh.Fields[11] = codec.NewField("P")
	msh.Fields[12] = codec.NewField("2.5")
	msg.Segments = append(msg.Segments, msh)

	msa := &codec.Segment{ID: "MSA", Fields: make([]codec.Field, 3)}
	msa.Fields[1] = codec.NewField(ackCode)
	msa.Fields[2] = codec.NewField(controlID)
	msg.Segments = append(msg.Segments, msa)

	for _, d := range diags {
		err := &codec.Segment{ID: "ERR", Fields: make([]codec.Field, 4)}
		err.Fields[1] = codec.NewField(d.Segment)
		err.Fields[2] = codec.NewField(d.Code)
		err.Fields[3] = codec.NewField(d.Text)
		msg.Segments = append(msg.Segments, err)
	}

	return codec.SerializeMessage(msg)
}

func buildAA(controlID, sendingApp, sendingFacility string) []byte {
	return buildACK(controlID, "AA", nil, sendingApp, sendingFacility)
}

func buildAE(controlID string, diags []domain.Diagnostic, sendingApp, sendingFacility string) []byte {
	return buildACK(controlID, "AE", diags, sendingApp, sendingFacility)
}
