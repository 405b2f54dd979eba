package orchestrator

import (
	"fmt"
	"net"

	"github.com/rotisserie/eris"
)

// ErrNoPortAvailable is returned when a port range has no free port left.
var ErrNoPortAvailable = eris.New("no port available")

// PortRange is an inclusive range of ports a server resource is drawn from.
type PortRange struct {
	Start int
	End   int
}

// Contains reports whether p falls inside the range.
func (r PortRange) Contains(p int) bool {
	return p >= r.Start && p <= r.End
}

// Size is the number of ports in the range.
func (r PortRange) Size() int {
	return r.End - r.Start + 1
}

// FindPort linearly scans the range for a port that is neither claimed by a
// tracked instance nor rejected by the probe. The caller must hold whatever
// lock guards inUse for the duration of the allocate-and-record sequence;
// FindPort itself keeps no state.
func FindPort(r PortRange, inUse map[int]struct{}, probe func(port int) bool) (int, error) {
	for p := r.Start; p <= r.End; p++ {
		if _, taken := inUse[p]; taken {
			continue
		}
		if probe != nil && !probe(p) {
			continue
		}
		return p, nil
	}
	return 0, eris.Wrapf(ErrNoPortAvailable, "range %d-%d exhausted", r.Start, r.End)
}

// probeTCP checks OS-level availability by binding and releasing the port.
func probeTCP(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
