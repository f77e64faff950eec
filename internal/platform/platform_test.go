package platform

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRaiseFileLimitDoesNotError(t *testing.T) {
	assert.NoError(t, RaiseFileLimit(4096))
}

func TestApplyTCPOptionsIgnoresNonTCPConn(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	assert.NoError(t, ApplyTCPOptions(a, true, true))
}

func TestApplyTCPOptionsOnRealTCPConn(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skip("no loopback TCP available in this sandbox")
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := ln.Accept()
		accepted <- conn
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Skip("no loopback TCP available in this sandbox")
	}
	defer conn.Close()
	server := <-accepted
	defer server.Close()

	assert.NoError(t, ApplyTCPOptions(conn, true, true))
}
