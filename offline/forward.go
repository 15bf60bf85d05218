package offline

import (
	"github.com/vearne/tcpcopy/capture"
	"github.com/vearne/tcpcopy/packet"
)

// DirectForwarder hands records straight to the sink, skipping the shaping
// pipeline
type DirectForwarder struct {
	sink capture.PacketSink
}

func NewDirectForwarder(sink capture.PacketSink) *DirectForwarder {
	return &DirectForwarder{sink: sink}
}

func (f *DirectForwarder) Forward(data []byte) error {
	p, err := parseRecord(data)
	if err != nil {
		return err
	}
	f.sink.ProcessPacket(p.Clone())
	return nil
}

// ShapingForwarder runs records through the same pipeline as live capture
type ShapingForwarder struct {
	pipeline *capture.Pipeline
}

func NewShapingForwarder(pl *capture.Pipeline) *ShapingForwarder {
	return &ShapingForwarder{pipeline: pl}
}

func (f *ShapingForwarder) Forward(data []byte) error {
	p, err := parseRecord(data)
	if err != nil {
		return err
	}
	return f.pipeline.Process(p.Clone())
}

// parseRecord drops ethernet padding behind the IP datagram
func parseRecord(data []byte) (*packet.Packet, error) {
	p, err := packet.Parse(data)
	if err != nil {
		return nil, err
	}
	if total := int(p.TotalLen()); total >= p.HeadLen() && total < len(data) {
		return packet.Parse(data[:total])
	}
	return p, nil
}
