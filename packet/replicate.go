package packet

// PortDeriver maps an original source port plus a shift onto a replica port
type PortDeriver func(orig, addition uint16) uint16

// ReplicaDescriptor identifies one synthetic copy of a stream.
// Index 0 is the original and never has a descriptor.
type ReplicaDescriptor struct {
	Index    int
	Addition uint16
	Port     uint16
}

// Addition returns the port shift of replica i (i >= 1)
func Addition(i int, base uint16) uint16 {
	return uint16(((i<<1)-1)<<5) + base
}

// Replicator fans a packet out into replicaNum streams that differ only in
// their TCP source port.
type Replicator struct {
	replicaNum int
	base       uint16
	derive     PortDeriver
}

func NewReplicator(replicaNum int, base uint16, derive PortDeriver) *Replicator {
	return &Replicator{replicaNum: replicaNum, base: base, derive: derive}
}

// Descriptors lists replicas 1..replicaNum-1 for the given source port
func (r *Replicator) Descriptors(srcPort uint16) []ReplicaDescriptor {
	if r.replicaNum <= 1 {
		return nil
	}
	result := make([]ReplicaDescriptor, 0, r.replicaNum-1)
	for i := 1; i < r.replicaNum; i++ {
		add := Addition(i, r.base)
		result = append(result, ReplicaDescriptor{
			Index:    i,
			Addition: add,
			Port:     r.derive(srcPort, add),
		})
	}
	return result
}

// Replicate emits the original once, unmodified, followed by one copy per
// replica. Copies are taken before anything is emitted, so the sink may
// mutate what it receives.
func (r *Replicator) Replicate(p *Packet, emit func(*Packet)) {
	descs := r.Descriptors(p.SrcPort())
	copies := make([]*Packet, len(descs))
	for i, d := range descs {
		c := p.Clone()
		c.SetSrcPort(d.Port)
		copies[i] = c
	}

	emit(p)
	for _, c := range copies {
		emit(c)
	}
}
