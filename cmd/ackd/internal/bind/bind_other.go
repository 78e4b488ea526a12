//go:build !linux
// +build !linux

package bind

import (
	"context"
	"fmt"
	"net"
)

// listen falls back to the runtime listener; the OS default backlog is
// used on these platforms.
func listen(port, _ int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp4", fmt.Sprintf("0.0.0.0:%d", port))
}
