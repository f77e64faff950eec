package socks5

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulGUZU/fsak/internal/address"
)

// udpConnectorStub hands back a pre-wired net.Conn once Connected is
// called, capturing the bytes the bridge wrote atomically.
type udpConnectorStub struct {
	target   address.Target
	upstream net.Conn
	failConn bool
}

func (u *udpConnectorStub) Target() address.Target { return u.target }
func (u *udpConnectorStub) Connect(ctx context.Context) error {
	if u.failConn {
		return assert.AnError
	}
	return nil
}
func (u *udpConnectorStub) Connected(ctx context.Context, payload []byte) (net.Conn, error) {
	if len(payload) > 0 {
		if _, err := u.upstream.Write(payload); err != nil {
			return nil, err
		}
	}
	return u.upstream, nil
}

func tcpPipe(t *testing.T) (clientConn, serverConn net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()

	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	s := <-acceptCh
	require.NotNil(t, s)
	return c, s
}

func TestAssociateUDPBridgesDatagramsBothWays(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()

	upstreamServer, upstreamClient := net.Pipe()
	defer upstreamClient.Close()

	a := NewAcceptor(server)
	c := &udpConnectorStub{upstream: upstreamClient}

	// Port 0: the bridge learns the client's UDP source from its first
	// datagram instead of pinning a declared port.
	targetBlob := []byte{0x01, 0, 0, 0, 0, 0, 0}

	done := make(chan error, 1)
	go func() { done <- a.AssociateUDP(context.Background(), targetBlob, c) }()

	reply := make([]byte, 10)
	_, err := readFullFromConn(client, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(0x05), reply[0])
	assert.Equal(t, byte(0x00), reply[1])

	bndPort := int(reply[8])<<8 | int(reply[9])
	require.NotZero(t, bndPort)

	udpLocal, err := net.ResolveUDPAddr("udp", client.LocalAddr().(*net.TCPAddr).IP.String()+":0")
	require.NoError(t, err)
	udpConn, err := net.ListenUDP("udp", udpLocal)
	require.NoError(t, err)
	defer udpConn.Close()

	bndAddr := &net.UDPAddr{IP: net.IPv4(reply[4], reply[5], reply[6], reply[7]), Port: bndPort}

	datagram := []byte{0x00, 0x00, 0x00, 0x01, 1, 2, 3, 4, 0, 80, 'h', 'i'}
	_, err = udpConn.WriteToUDP(datagram, bndAddr)
	require.NoError(t, err)

	gotFirst := make([]byte, 64)
	_, err = readFullFromConn(upstreamServer, gotFirst[:13])
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 1, 2, 3, 4, 0, 80}, gotFirst[:7])
	assert.Equal(t, byte(0), gotFirst[7])
	assert.Equal(t, byte(2), gotFirst[8])
	assert.Equal(t, []byte("\r\n"), gotFirst[9:11])
	assert.Equal(t, "hi", string(gotFirst[11:13]))

	reversePacket := append([]byte{0x01, 1, 2, 3, 4, 0, 80, 0, 2, '\r', '\n'}, []byte("ok")...)
	_, err = upstreamServer.Write(reversePacket)
	require.NoError(t, err)

	buf := make([]byte, 64)
	udpConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	n2, _, err := udpConn.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 1, 2, 3, 4, 0, 80}, buf[:10])
	assert.Equal(t, "ok", string(buf[10:n2]))

	client.Close()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("AssociateUDP did not return after control connection closed")
	}
}

func readFullFromConn(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
