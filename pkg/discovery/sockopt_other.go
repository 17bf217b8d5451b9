//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package discovery

import "syscall"

// broadcastControl leaves socket options at their platform defaults.
func broadcastControl(network, address string, c syscall.RawConn) error {
	return nil
}
