// Package address maps online endpoints to test host targets and manages the
// control tunnels toward the test hosts.
package address

import (
	"net"

	"github.com/vearne/tcpcopy/config"
)

// DerivePort shifts a client port for a replica. When the shifted value would
// overflow 16 bits the port is taken from the upper half of the range instead.
// The result depends only on the inputs.
func DerivePort(orig, addition uint16) uint16 {
	if int(orig)+int(addition) <= 0xffff {
		return orig + addition
	}
	return 32768 + addition
}

// Table resolves the target of a captured packet. It is built once from the
// transfer mappings and read only afterwards.
type Table struct {
	byPort map[uint16][]config.TransferMapping
}

func NewTable(mappings []config.TransferMapping) *Table {
	t := &Table{byPort: make(map[uint16][]config.TransferMapping, len(mappings))}
	for _, m := range mappings {
		t.byPort[m.OnlinePort] = append(t.byPort[m.OnlinePort], m)
	}
	return t
}

// Lookup returns the mapping for an online endpoint. A mapping naming the
// exact online address wins over a port only mapping.
func (t *Table) Lookup(onlineIP net.IP, onlinePort uint16) (config.TransferMapping, bool) {
	var (
		wildcard config.TransferMapping
		found    bool
	)
	for _, m := range t.byPort[onlinePort] {
		if m.OnlineIP == nil {
			if !found {
				wildcard, found = m, true
			}
			continue
		}
		if m.OnlineIP.Equal(onlineIP) {
			return m, true
		}
	}
	return wildcard, found
}

func (t *Table) Len() int {
	n := 0
	for _, ms := range t.byPort {
		n += len(ms)
	}
	return n
}

// Release drops all mappings
func (t *Table) Release() {
	t.byPort = make(map[uint16][]config.TransferMapping)
}
