// Package bind turns a configured port into a listening socket.
package bind

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/errs"
)

// DefaultBacklog is the pending-connection queue length.
const DefaultBacklog = 5

const maxPort = 65535

// ParsePort validates an operator-supplied port.
func ParsePort(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errs.Configuration("parse port", fmt.Errorf("no port provided"))
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, errs.Configuration("parse port", fmt.Errorf("invalid port %q: not a number", s))
	}
	if port < 1 || port > maxPort {
		return 0, errs.Configuration("parse port", fmt.Errorf("invalid port %d: must be between 1 and %d", port, maxPort))
	}
	return port, nil
}

// Listen binds all local IPv4 interfaces on port and starts listening with
// the given backlog. Port 0 lets the kernel pick a free port. Binding is
// attempted once; on failure no socket is left open.
func Listen(port, backlog int) (net.Listener, error) {
	if port < 0 || port > maxPort {
		return nil, errs.Configuration("listen", fmt.Errorf("invalid port %d", port))
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	ln, err := listen(port, backlog)
	if err != nil {
		return nil, errs.Bind(fmt.Sprintf("bind 0.0.0.0:%d", port), err)
	}
	return ln, nil
}
