package plugin

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/vearne/tcpcopy/packet"
)

// StdOutput prints a summary of every packet instead of sending it.
// It is meant for dry runs.
type StdOutput struct {
	w io.Writer
}

func NewStdOutput() *StdOutput {
	return &StdOutput{w: os.Stderr}
}

// NewWriterOutput prints to w
func NewWriterOutput(w io.Writer) *StdOutput {
	return &StdOutput{w: w}
}

func (o *StdOutput) Close() error {
	return nil
}

func (o *StdOutput) Send(p *packet.Packet) error {
	pkt := gopacket.NewPacket(p.Bytes(), layers.LayerTypeIPv4, gopacket.NoCopy)
	ip, _ := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	tcp, _ := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if ip == nil || tcp == nil {
		return fmt.Errorf("decode %v: %v", p, pkt.ErrorLayer())
	}
	_, err := fmt.Fprintf(o.w, "%v:%d -> %v:%d id:%d seq:%d ack:%d flags:%v len:%d\n",
		ip.SrcIP, tcp.SrcPort, ip.DstIP, tcp.DstPort, ip.Id, tcp.Seq, tcp.Ack,
		flagStr(tcp), len(tcp.Payload))
	return err
}

func flagStr(tcp *layers.TCP) string {
	tmpList := make([]string, 0)
	for _, f := range []struct {
		set  bool
		name string
	}{
		{tcp.FIN, "FIN"}, {tcp.SYN, "SYN"}, {tcp.RST, "RST"},
		{tcp.PSH, "PSH"}, {tcp.ACK, "ACK"}, {tcp.URG, "URG"},
	} {
		if f.set {
			tmpList = append(tmpList, f.name)
		}
	}
	return strings.Join(tmpList, "|")
}
