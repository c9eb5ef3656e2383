package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker probes services without a web endpoint (game servers, for
// example) by completing a TCP handshake
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

// NewTCPChecker creates a probe for host:port with a 5s dial timeout
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: 5 * time.Second}
}

func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	d := net.Dialer{Timeout: t.Timeout}
	conn, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return finish(start, false, fmt.Sprintf("dial %s: %v", t.Address, err))
	}
	_ = conn.Close()
	return finish(start, true, "accepting connections on "+t.Address)
}

func (t *TCPChecker) Type() CheckType { return CheckTypeTCP }

// WithTimeout sets the dial timeout
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
