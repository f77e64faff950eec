package direct

import (
	"context"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulGUZU/fsak/internal/address"
)

func TestConnectAndConnectedRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		n, _ := conn.Read(buf)
		conn.Write(buf[:n])
	}()

	addrPort := ln.Addr().(*net.TCPAddr).AddrPort()
	target := address.V4(addrPort.Addr(), addrPort.Port())

	c := New(target)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	conn, err := c.Connected(ctx, []byte("hi"))
	require.NoError(t, err)
	defer conn.Close()

	echo := make([]byte, 2)
	_, err = io.ReadFull(conn, echo)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(echo))
}

func TestTargetReturnsConstructorValue(t *testing.T) {
	target := address.Domain("example.com", 80)
	c := New(target)
	assert.Equal(t, target, c.Target())
}

func TestConnectFailsOnRefusedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close() // nothing listening now

	c := New(address.V4(netip.MustParseAddr("127.0.0.1"), uint16(addr.Port)))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, c.Connect(ctx))
}
