package socks5

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"

	"github.com/paulGUZU/fsak/internal/address"
	"github.com/paulGUZU/fsak/internal/connector"
)

// udpDatagramBudget is the per-datagram buffer size of spec.md §4.7:
// a typical IPv4 MTU minus UDP headers. Encoded forms that would
// exceed it are dropped on the client side and are an error on the
// upstream side.
const udpDatagramBudget = 1472

// AssociateUDP drives state S3/S5 for CommandUDPAssociate: bind a
// fresh UDP socket, reply with its address, open the Trojan tunnel
// with CMD=3, and bridge datagrams until the control connection
// closes. Grounded on original_source/src/socks5/udp.rs's
// associate_udp.
func (a *Acceptor) AssociateUDP(ctx context.Context, targetBlob []byte, c connector.Connector) error {
	localTCP, ok := a.conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("socks5: udp associate: local addr is not tcp: %v", a.conn.LocalAddr())
	}
	peerTCP, ok := a.conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("socks5: udp associate: peer addr is not tcp: %v", a.conn.RemoteAddr())
	}

	clientTarget, err := address.Parse(targetBlob)
	if err != nil {
		return fmt.Errorf("socks5: udp associate: target: %w", err)
	}

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: localTCP.IP})
	if err != nil {
		return fmt.Errorf("socks5: udp associate: bind: %w", err)
	}
	defer udpConn.Close()

	localUDP := udpConn.LocalAddr().(*net.UDPAddr)
	reply := append([]byte{Version, replySuccess, 0x00}, address.Encode(udpAddrTarget(localUDP))...)
	if _, err := a.conn.Write(reply); err != nil {
		return fmt.Errorf("socks5: udp associate: reply: %w", err)
	}

	if err := c.Connect(ctx); err != nil {
		a.writeTargetReply(replyGeneralFailure, targetBlob)
		return fmt.Errorf("socks5: udp associate: upstream connect: %w", err)
	}

	// client_target's port, when non-zero, pins the expected source of
	// client datagrams per the original; a zero port means "learn it
	// from the first datagram", spec.md §9's preferred alternative.
	remote := &net.UDPAddr{IP: peerTCP.IP, Port: int(clientTarget.Port())}

	bridge := &udpBridge{control: a.conn, udp: udpConn, remote: remote, connector: c}
	return bridge.run(ctx)
}

// udpAddrTarget renders a bound UDP socket's local address as the
// Target the SOCKS5 reply's BND fields carry, with ATYP re-derived
// from the actual address family rather than assumed.
func udpAddrTarget(u *net.UDPAddr) address.Target {
	if ip4 := u.IP.To4(); ip4 != nil {
		addr, _ := netip.AddrFromSlice(ip4)
		return address.V4(addr, uint16(u.Port))
	}
	addr, _ := netip.AddrFromSlice(u.IP.To16())
	return address.V6(addr, uint16(u.Port))
}

// upstreamHolder lets the watchdog goroutine close an upstream
// connection that a concurrently-running goroutine may still be in
// the process of establishing.
type upstreamHolder struct {
	mu   sync.Mutex
	conn net.Conn
}

func (h *upstreamHolder) set(c net.Conn) {
	h.mu.Lock()
	h.conn = c
	h.mu.Unlock()
}

func (h *upstreamHolder) closeIfSet() {
	h.mu.Lock()
	c := h.conn
	h.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

// udpBridge runs the three cooperative tasks of spec.md §4.7 step 4:
// watchdog, client->upstream, upstream->client. The bridge ends on the
// first of the three to complete, mirroring internal/relay.Link's
// "first completion wins" semantics — an errgroup would instead keep
// the first *error*, which would let a benign post-shutdown "closed
// connection" artifact from a loser task mask the watchdog's clean
// termination.
type udpBridge struct {
	control   net.Conn
	udp       *net.UDPConn
	remote    *net.UDPAddr
	connector connector.Connector
}

func (b *udpBridge) run(ctx context.Context) error {
	results := make(chan error, 3)
	ready := make(chan net.Conn, 1)
	var holder upstreamHolder
	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.control.Close()
			b.udp.Close()
			holder.closeIfSet()
		})
	}

	go func() {
		_, err := b.control.Read(make([]byte, 1))
		stop()
		results <- err
	}()

	go func() {
		err := b.clientToUpstream(ctx, &holder, ready)
		stop()
		results <- err
	}()

	go func() {
		upstream, ok := <-ready
		if !ok || upstream == nil {
			results <- nil
			return
		}
		err := b.upstreamToClient(upstream)
		stop()
		results <- err
	}()

	first := <-results
	stop()
	<-results
	<-results
	return first
}

// clientToUpstream reads SOCKS5 UDP datagrams from the bound socket
// and re-encodes them as Trojan UDP packets. The first datagram's
// encoded form is handed to connector.Connected so that the Trojan
// request header and the first packet travel in one TLS write, per
// spec.md §4.7 step 3-4.
func (b *udpBridge) clientToUpstream(ctx context.Context, holder *upstreamHolder, ready chan<- net.Conn) error {
	defer close(ready)

	// One spare byte shows a datagram that did not fit the budget.
	buf := make([]byte, udpDatagramBudget+1)

	n, from, err := b.udp.ReadFromUDP(buf)
	for err == nil && n > udpDatagramBudget {
		n, from, err = b.udp.ReadFromUDP(buf)
	}
	if err != nil {
		return fmt.Errorf("socks5: udp associate: read: %w", err)
	}
	if b.remote.Port == 0 {
		b.remote = &net.UDPAddr{IP: from.IP, Port: from.Port}
	} else if !from.IP.Equal(b.remote.IP) || from.Port != b.remote.Port {
		return fmt.Errorf("socks5: udp associate: unexpected source %s", from)
	}

	blob, payload, err := decodeSocks5Datagram(buf[:n])
	if err != nil {
		return fmt.Errorf("socks5: udp associate: %w", err)
	}

	upstream, err := b.connector.Connected(ctx, encodeTrojanPacket(blob, payload))
	if err != nil {
		return fmt.Errorf("socks5: udp associate: connect upstream: %w", err)
	}
	holder.set(upstream)
	ready <- upstream

	for {
		n, from, err := b.udp.ReadFromUDP(buf)
		if err != nil {
			return fmt.Errorf("socks5: udp associate: read: %w", err)
		}
		if n > udpDatagramBudget || !from.IP.Equal(b.remote.IP) || from.Port != b.remote.Port {
			continue
		}
		blob, payload, err := decodeSocks5Datagram(buf[:n])
		if err != nil {
			return fmt.Errorf("socks5: udp associate: %w", err)
		}
		if _, err := upstream.Write(encodeTrojanPacket(blob, payload)); err != nil {
			return fmt.Errorf("socks5: udp associate: write: %w", err)
		}
	}
}

// upstreamToClient reads Trojan UDP packets from the TLS stream and
// re-encodes them as SOCKS5 UDP datagrams on the bound UDP socket.
func (b *udpBridge) upstreamToClient(upstream net.Conn) error {
	r := bufio.NewReader(upstream)
	for {
		blob, payload, err := readTrojanPacket(r)
		if err != nil {
			return fmt.Errorf("socks5: udp associate: upstream read: %w", err)
		}
		datagram := make([]byte, 0, 3+len(blob)+len(payload))
		datagram = append(datagram, 0x00, 0x00, 0x00)
		datagram = append(datagram, blob...)
		datagram = append(datagram, payload...)
		if len(datagram) > udpDatagramBudget {
			return fmt.Errorf("socks5: udp associate: upstream packet of %d bytes exceeds %d-byte budget", len(datagram), udpDatagramBudget)
		}
		if _, err := b.udp.WriteToUDP(datagram, b.remote); err != nil {
			return fmt.Errorf("socks5: udp associate: send: %w", err)
		}
	}
}

// decodeSocks5Datagram splits a SOCKS5 UDP datagram
// (RSV(2) FRAG(1) ATYP+ADDR+PORT PAYLOAD) into its target blob and
// payload, rejecting anything with a non-zero RSV or FRAG.
func decodeSocks5Datagram(buf []byte) (blob, payload []byte, err error) {
	if len(buf) < 4 || buf[0] != 0 || buf[1] != 0 || buf[2] != 0 {
		return nil, nil, fmt.Errorf("socks5: malformed udp datagram")
	}
	targetLen, err := address.TargetLen(buf[3:])
	if err != nil {
		return nil, nil, err
	}
	if len(buf) < 3+targetLen {
		return nil, nil, address.ErrShortBuffer
	}
	blob = append([]byte(nil), buf[3:3+targetLen]...)
	payload = append([]byte(nil), buf[3+targetLen:]...)
	return blob, payload, nil
}

// encodeTrojanPacket renders the Trojan UDP packet framing:
// ATYP+ADDR+PORT || LEN(2 BE) || CRLF || PAYLOAD.
func encodeTrojanPacket(blob, payload []byte) []byte {
	buf := make([]byte, 0, len(blob)+2+2+len(payload))
	buf = append(buf, blob...)
	var lenBytes [2]byte
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len(payload)))
	buf = append(buf, lenBytes[:]...)
	buf = append(buf, '\r', '\n')
	buf = append(buf, payload...)
	return buf
}

// readTrojanPacket parses one Trojan UDP packet off r: a target blob
// of the same shape address.Parse accepts, followed by a 2-byte
// big-endian length, CRLF, and that many payload bytes.
func readTrojanPacket(r *bufio.Reader) (blob, payload []byte, err error) {
	head, err := r.ReadByte()
	if err != nil {
		return nil, nil, err
	}

	switch address.Type(head) {
	case address.TypeIPv4:
		body := make([]byte, 4+2)
		if _, err = io.ReadFull(r, body); err != nil {
			return nil, nil, err
		}
		blob = append([]byte{head}, body...)
	case address.TypeIPv6:
		body := make([]byte, 16+2)
		if _, err = io.ReadFull(r, body); err != nil {
			return nil, nil, err
		}
		blob = append([]byte{head}, body...)
	case address.TypeDomain:
		lenByte, err := r.ReadByte()
		if err != nil {
			return nil, nil, err
		}
		body := make([]byte, int(lenByte)+2)
		if _, err = io.ReadFull(r, body); err != nil {
			return nil, nil, err
		}
		blob = append([]byte{head, lenByte}, body...)
	default:
		return nil, nil, address.ErrUnsupportedAddressType
	}

	lenCRLF := make([]byte, 4)
	if _, err = io.ReadFull(r, lenCRLF); err != nil {
		return nil, nil, err
	}
	length := binary.BigEndian.Uint16(lenCRLF[:2])
	payload = make([]byte, length)
	if length > 0 {
		if _, err = io.ReadFull(r, payload); err != nil {
			return nil, nil, err
		}
	}
	return blob, payload, nil
}
