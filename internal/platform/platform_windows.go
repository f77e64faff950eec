//go:build windows

package platform

import "net"

// windows has no RLIMIT_NOFILE equivalent exposed to Go; raising the
// handle limit is a no-op here.
func raiseFileLimit(want uint64) error {
	return nil
}

func applyKeepAlive(tc *net.TCPConn, enable bool) error {
	return tc.SetKeepAlive(enable)
}
