// Package platform holds the OS-specific knobs spec.md §6 (Environment)
// and §4.5 (TCP options) call for: raising RLIMIT_NOFILE at startup and
// setting nodelay/keepalive on dialed sockets. Split one file per OS the
// way the teacher splits its system-proxy integration
// (internal/client/system_proxy_linux.go, _darwin.go, _windows.go), a
// concern this repo drops (see DESIGN.md) but whose build-tag shape is
// reused here for a concern the spec does name.
package platform

import "net"

// RaiseFileLimit raises RLIMIT_NOFILE to the given value, best effort.
// A failure here is never fatal — the process keeps whatever limit it
// started with.
func RaiseFileLimit(want uint64) error {
	return raiseFileLimit(want)
}

// ApplyTCPOptions sets nodelay and keepalive (with a 30s keepalive
// period on UNIX) on a freshly dialed connection, per spec.md §4.5 and
// the config's tcp block.
func ApplyTCPOptions(conn net.Conn, noDelay, keepAlive bool) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetNoDelay(noDelay); err != nil {
		return err
	}
	return applyKeepAlive(tc, keepAlive)
}
