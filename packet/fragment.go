package packet

import (
	"errors"
	"fmt"
)

// ErrMTUTooSmall means the MTU leaves no room for payload after the headers
var ErrMTUTooSmall = errors.New("mtu smaller than headers")

// FragmentPlan describes how one datagram is split. It is derived on demand
// and never stored.
type FragmentPlan struct {
	HeadLen    int
	ContentLen int
	MaxPayload int
	Count      int
}

// PayloadLen returns the payload length of fragment i
func (fp FragmentPlan) PayloadLen(i int) int {
	if i == fp.Count-1 {
		return fp.ContentLen - (fp.Count-1)*fp.MaxPayload
	}
	return fp.MaxPayload
}

type Fragmenter struct {
	mtu int
}

func NewFragmenter(mtu int) *Fragmenter {
	return &Fragmenter{mtu: mtu}
}

func (f *Fragmenter) MTU() int {
	return f.mtu
}

// Plan computes the split of p for the configured MTU
func (f *Fragmenter) Plan(p *Packet) (FragmentPlan, error) {
	var plan FragmentPlan
	if err := p.CheckLength(); err != nil {
		return plan, err
	}
	plan.HeadLen = p.HeadLen()
	plan.ContentLen = int(p.TotalLen()) - plan.HeadLen
	plan.MaxPayload = f.mtu - plan.HeadLen
	if plan.MaxPayload <= 0 {
		return plan, fmt.Errorf("%w: mtu %d, headers %d", ErrMTUTooSmall, f.mtu, plan.HeadLen)
	}
	plan.Count = (plan.ContentLen + plan.MaxPayload - 1) / plan.MaxPayload
	if plan.Count == 0 {
		plan.Count = 1
	}
	return plan, nil
}

// Fragment emits p unchanged when it fits the MTU, otherwise one freshly
// allocated packet per fragment in payload order. Sequence numbers advance by
// the payload carried so far and identifiers by one per fragment. Checksums
// are left to the sink.
func (f *Fragmenter) Fragment(p *Packet, emit func(*Packet)) error {
	if err := p.CheckLength(); err != nil {
		return err
	}
	if p.Len() <= f.mtu {
		emit(p)
		return nil
	}

	plan, err := f.Plan(p)
	if err != nil {
		return err
	}

	head := p.data[:plan.HeadLen]
	payload := p.Payload()
	seq := p.Seq()
	id := p.ID()
	offset := 0
	for i := 0; i < plan.Count; i++ {
		n := plan.PayloadLen(i)
		buf := make([]byte, plan.HeadLen+n)
		copy(buf, head)
		copy(buf[plan.HeadLen:], payload[offset:offset+n])

		frag := &Packet{data: buf, ihl: p.ihl, thl: p.thl, more: i < plan.Count-1}
		frag.SetTotalLen(uint16(plan.HeadLen + n))
		frag.SetSeq(seq + uint32(offset))
		frag.SetID(id + uint16(i))
		emit(frag)

		offset += n
	}
	return nil
}
