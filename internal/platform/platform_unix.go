//go:build unix

package platform

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

func raiseFileLimit(want uint64) error {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return err
	}
	if limit.Cur >= want {
		return nil
	}
	if limit.Max < want {
		limit.Cur = limit.Max
	} else {
		limit.Cur = want
	}
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &limit)
}

func applyKeepAlive(tc *net.TCPConn, enable bool) error {
	if err := tc.SetKeepAlive(enable); err != nil {
		return err
	}
	if enable {
		return tc.SetKeepAlivePeriod(30 * time.Second)
	}
	return nil
}
