package offline

import (
	"bytes"
	"compress/gzip"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type forwarded struct {
	data []byte
	wall time.Time
}

type recorder struct {
	clock *fakeClock
	items []forwarded
	err   error
}

func (r *recorder) Forward(data []byte) error {
	if r.err != nil {
		return r.err
	}
	var wall time.Time
	if r.clock != nil {
		wall = r.clock.now
	}
	r.items = append(r.items, forwarded{data: append([]byte(nil), data...), wall: wall})
	return nil
}

func ipBytes(t *testing.T, sport uint16, payload int) []byte {
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(192, 168, 1, 5), DstIP: net.IPv4(192, 168, 1, 1)}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: 80, ACK: true}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		ip, tcp, gopacket.Payload(make([]byte, payload)))
	assert.Nil(t, err)
	return buf.Bytes()
}

func ethFrame(t *testing.T, etherType layers.EthernetType, body []byte) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: etherType,
	}
	buf := gopacket.NewSerializeBuffer()
	assert.Nil(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(body)))
	return buf.Bytes()
}

func vlanFrame(t *testing.T, body []byte) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeDot1Q,
	}
	vlan := &layers.Dot1Q{VLANIdentifier: 7, Type: layers.EthernetTypeIPv4}
	buf := gopacket.NewSerializeBuffer()
	assert.Nil(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, vlan, gopacket.Payload(body)))
	return buf.Bytes()
}

type rec struct {
	offset time.Duration
	frame  []byte
	length int // wire length, 0 means len(frame)
}

func writePcap(t *testing.T, lt layers.LinkType, recs []rec) *bytes.Buffer {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	assert.Nil(t, w.WriteFileHeader(65536, lt))
	for _, r := range recs {
		ci := gopacket.CaptureInfo{
			Timestamp:     t0.Add(r.offset),
			CaptureLength: len(r.frame),
			Length:        len(r.frame),
		}
		if r.length > 0 {
			ci.Length = r.length
		}
		assert.Nil(t, w.WritePacket(ci, r.frame))
	}
	return &buf
}

func newController(t *testing.T, buf *bytes.Buffer, fwd Forwarder, speed float64, clock *fakeClock) *Controller {
	src, lt, err := NewReader(buf)
	assert.Nil(t, err)
	c, err := NewController(src, lt, fwd, speed)
	assert.Nil(t, err)
	c.SetNow(clock.Now)
	return c
}

func TestPacing(t *testing.T) {
	offsets := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond, time.Second}
	recs := make([]rec, 0, len(offsets))
	for i, off := range offsets {
		recs = append(recs, rec{offset: off, frame: ethFrame(t, layers.EthernetTypeIPv4, ipBytes(t, uint16(1000+i), 20))})
	}

	clock := &fakeClock{now: time.Unix(5000, 0)}
	base := clock.now
	fwd := &recorder{clock: clock}
	c := newController(t, writePcap(t, layers.LinkTypeEthernet, recs), fwd, 1, clock)

	assert.Equal(t, 1, c.Step())
	assert.Equal(t, Stats{Read: 2, Forwarded: 1}, c.Stats())

	// nothing is due yet
	clock.now = base.Add(50 * time.Millisecond)
	assert.Equal(t, 0, c.Step())

	clock.now = base.Add(150 * time.Millisecond)
	assert.Equal(t, 1, c.Step())
	assert.False(t, c.Done())

	clock.now = base.Add(2 * time.Second)
	assert.Equal(t, 2, c.Step())
	assert.True(t, c.Done())
	assert.Equal(t, Stats{Read: 4, Forwarded: 4}, c.Stats())

	// never ahead of the recorded cadence
	assert.Len(t, fwd.items, 4)
	for i, item := range fwd.items {
		assert.LessOrEqual(t, int64(offsets[i]), int64(item.wall.Sub(base)))
		// link header stripped
		assert.Equal(t, ipBytes(t, uint16(1000+i), 20), item.data)
	}

	// finished replay stays finished
	assert.Equal(t, 0, c.Step())

	clk := c.Clock()
	assert.Equal(t, t0, clk.FirstRecord)
	assert.Equal(t, t0.Add(time.Second), clk.LatestRecord)
	assert.Equal(t, base, clk.BaseWall)
}

func TestPacingSpeed(t *testing.T) {
	recs := []rec{
		{offset: 0, frame: ethFrame(t, layers.EthernetTypeIPv4, ipBytes(t, 1, 0))},
		{offset: time.Second, frame: ethFrame(t, layers.EthernetTypeIPv4, ipBytes(t, 2, 0))},
	}
	clock := &fakeClock{now: time.Unix(5000, 0)}
	base := clock.now
	fwd := &recorder{}
	c := newController(t, writePcap(t, layers.LinkTypeEthernet, recs), fwd, 2, clock)

	assert.Equal(t, 1, c.Step())
	clock.now = base.Add(400 * time.Millisecond)
	assert.Equal(t, 0, c.Step())
	clock.now = base.Add(500 * time.Millisecond)
	assert.Equal(t, 1, c.Step())
}

func TestLatestRecordMonotonic(t *testing.T) {
	recs := []rec{
		{offset: 0, frame: ethFrame(t, layers.EthernetTypeIPv4, ipBytes(t, 1, 0))},
		{offset: 300 * time.Millisecond, frame: ethFrame(t, layers.EthernetTypeIPv4, ipBytes(t, 2, 0))},
		{offset: 100 * time.Millisecond, frame: ethFrame(t, layers.EthernetTypeIPv4, ipBytes(t, 3, 0))},
	}
	clock := &fakeClock{now: time.Unix(5000, 0)}
	c := newController(t, writePcap(t, layers.LinkTypeEthernet, recs), &recorder{}, 1, clock)
	c.Start()

	clock.now = clock.now.Add(time.Second)
	assert.Equal(t, 3, c.Step())
	assert.Equal(t, t0.Add(300*time.Millisecond), c.Clock().LatestRecord)
}

func TestDropRecords(t *testing.T) {
	ip := ipBytes(t, 1, 10)
	recs := []rec{
		// truncated
		{frame: ethFrame(t, layers.EthernetTypeIPv4, ip), length: 1500},
		// arp is not handled
		{frame: ethFrame(t, layers.EthernetTypeARP, make([]byte, 28))},
		{frame: vlanFrame(t, ip)},
		{frame: ethFrame(t, layers.EthernetTypeIPv4, ip)},
	}
	clock := &fakeClock{now: time.Unix(5000, 0)}
	fwd := &recorder{}
	c := newController(t, writePcap(t, layers.LinkTypeEthernet, recs), fwd, 1, clock)

	assert.Equal(t, 2, c.Step())
	assert.Equal(t, Stats{Read: 4, Forwarded: 2, Dropped: 2}, c.Stats())
	for _, item := range fwd.items {
		assert.Equal(t, ip, item.data[:len(ip)])
	}
}

func TestForwardErrorDrops(t *testing.T) {
	recs := []rec{{frame: ethFrame(t, layers.EthernetTypeIPv4, ipBytes(t, 1, 0))}}
	clock := &fakeClock{now: time.Unix(5000, 0)}
	c := newController(t, writePcap(t, layers.LinkTypeEthernet, recs),
		&recorder{err: errors.New("bad")}, 1, clock)
	assert.Equal(t, 0, c.Step())
	assert.Equal(t, int64(1), c.Stats().Dropped)
}

func TestNetworkPayload(t *testing.T) {
	ip := ipBytes(t, 1, 0)
	cases := []struct {
		name string
		lt   layers.LinkType
		data []byte
		l2   int
		err  error
	}{
		{"ethernet", layers.LinkTypeEthernet, ethFrame(t, layers.EthernetTypeIPv4, ip), 14, nil},
		{"vlan", layers.LinkTypeEthernet, vlanFrame(t, ip), 18, nil},
		{"ipv6", layers.LinkTypeEthernet, ethFrame(t, layers.EthernetTypeIPv6, ip), 0, ErrUnsupportedFrame},
		{"short", layers.LinkTypeEthernet, make([]byte, 10), 0, ErrShortFrame},
		{"header only", layers.LinkTypeEthernet, ethFrame(t, layers.EthernetTypeIPv4, nil)[:14], 0, ErrShortFrame},
		{"sll", layers.LinkTypeLinuxSLL, append(make([]byte, 16), ip...), 16, nil},
		{"null", layers.LinkTypeNull, append(make([]byte, 4), ip...), 4, nil},
		{"loop", layers.LinkTypeLoop, append(make([]byte, 4), ip...), 4, nil},
		{"raw", layers.LinkTypeRaw, ip, 0, nil},
		{"wifi", layers.LinkTypeIEEE802_11, ip, 0, ErrUnsupportedLinkType},
	}
	for _, c := range cases {
		out, err := NetworkPayload(c.lt, c.data)
		if c.err != nil {
			assert.True(t, errors.Is(err, c.err), c.name)
			continue
		}
		assert.Nil(t, err, c.name)
		assert.Equal(t, c.data[c.l2:], out, c.name)
	}
}

func TestUnsupportedLinkType(t *testing.T) {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	assert.Nil(t, w.WriteFileHeader(65536, layers.LinkTypeIEEE802_11))
	src, lt, err := NewReader(&buf)
	assert.Nil(t, err)
	_, err = NewController(src, lt, &recorder{}, 1)
	assert.True(t, errors.Is(err, ErrUnsupportedLinkType))
}

func TestPcapng(t *testing.T) {
	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeEthernet)
	assert.Nil(t, err)
	frame := ethFrame(t, layers.EthernetTypeIPv4, ipBytes(t, 1, 5))
	err = w.WritePacket(gopacket.CaptureInfo{
		Timestamp: t0, CaptureLength: len(frame), Length: len(frame), InterfaceIndex: 0,
	}, frame)
	assert.Nil(t, err)
	assert.Nil(t, w.Flush())

	clock := &fakeClock{now: time.Unix(5000, 0)}
	fwd := &recorder{}
	c := newController(t, &buf, fwd, 1, clock)
	assert.Equal(t, 1, c.Step())
	assert.True(t, c.Step() == 0 && c.Done())
}

func TestOpen(t *testing.T) {
	frame := ethFrame(t, layers.EthernetTypeIPv4, ipBytes(t, 1, 5))
	data := writePcap(t, layers.LinkTypeEthernet, []rec{{frame: frame}, {frame: frame}}).Bytes()

	dir := t.TempDir()
	plain := filepath.Join(dir, "capture.pcap")
	assert.Nil(t, os.WriteFile(plain, data, 0644))

	var gzBuf bytes.Buffer
	gz := gzip.NewWriter(&gzBuf)
	_, err := gz.Write(data)
	assert.Nil(t, err)
	assert.Nil(t, gz.Close())
	compressed := filepath.Join(dir, "capture.pcap.gz")
	assert.Nil(t, os.WriteFile(compressed, gzBuf.Bytes(), 0644))

	for _, path := range []string{plain, compressed} {
		fwd := &recorder{}
		c, err := Open(path, fwd, 1)
		assert.Nil(t, err, path)
		assert.Equal(t, 2, c.Step())
		assert.True(t, c.Done())
		assert.Nil(t, c.Close())
	}

	_, err = Open(filepath.Join(dir, "missing.pcap"), &recorder{}, 1)
	assert.Error(t, err)

	bogus := filepath.Join(dir, "bogus.pcap")
	assert.Nil(t, os.WriteFile(bogus, []byte("not a capture file"), 0644))
	_, err = Open(bogus, &recorder{}, 1)
	assert.Error(t, err)
}
