package capture

import (
	"fmt"
	"sort"

	"golang.org/x/net/bpf"
)

// accept the whole datagram
const acceptLen = 0x40000

// PortFilter builds a classic BPF program for an AF_INET raw socket that
// keeps TCP datagrams whose destination port is one of ports. The program
// sees the IP header first, so the TCP header offset comes from the IHL.
func PortFilter(ports []uint16) ([]bpf.RawInstruction, error) {
	uniq := make(map[uint16]struct{}, len(ports))
	for _, p := range ports {
		uniq[p] = struct{}{}
	}
	sorted := make([]int, 0, len(uniq))
	for p := range uniq {
		sorted = append(sorted, int(p))
	}
	sort.Ints(sorted)

	n := len(sorted)
	if n == 0 || n > 255 {
		return nil, fmt.Errorf("port filter needs 1-255 ports, got %d", n)
	}

	insts := []bpf.Instruction{
		bpf.LoadMemShift{Off: 0},
		bpf.LoadIndirect{Off: 2, Size: 2},
	}
	for i, p := range sorted {
		insts = append(insts, bpf.JumpIf{
			Cond:     bpf.JumpEqual,
			Val:      uint32(p),
			SkipTrue: uint8(n - i),
		})
	}
	insts = append(insts,
		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: acceptLen},
	)
	return bpf.Assemble(insts)
}
