package runfiles

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrAllocation is returned when the OS cannot provide an ephemeral port.
var ErrAllocation = errors.New("cannot allocate ephemeral port")

// Port is a TCP listening port. Zero means "not chosen yet".
type Port uint16

func (p Port) String() string {
	return strconv.Itoa(int(p))
}

// EphemeralPort asks the kernel for a free port by binding port 0 and
// releasing the socket right away, so the caller's own listener can bind it.
// Something else may grab the port between the release and the rebind; that
// race is accepted for local development and test runs.
func EphemeralPort() (Port, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	defer l.Close()

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok || addr.Port <= 0 {
		return 0, fmt.Errorf("%w: unexpected listener address %v", ErrAllocation, l.Addr())
	}
	return Port(addr.Port), nil
}
