// Package socks5 implements the client-facing half of spec.md §4.2: the
// SOCKS5 acceptor state machine (greeting, request, reply) and, in
// udp.go, the UDP ASSOCIATE bridge. Grounded on
// original_source/src/socks5/acceptor.rs, generalised to accept both
// CommandConnect and CommandUDPAssociate (the original's
// accept_command rejects anything but CONNECT; the UDP path is driven
// separately by the listener once it knows which command was sent).
package socks5

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/paulGUZU/fsak/internal/address"
	"github.com/paulGUZU/fsak/internal/connector"
	"github.com/paulGUZU/fsak/internal/relay"
)

// Protocol constants, per spec.md §6 wire formats.
const (
	Version = 0x05

	CommandConnect      = 0x01
	CommandBind         = 0x02
	CommandUDPAssociate = 0x03

	methodNoAuth       = 0x00
	methodNoAcceptable = 0xff

	replySuccess             = 0x00
	replyGeneralFailure      = 0x01
	replyNotAllowed          = 0x02
	replyCommandNotSupported = 0x07
	replyAddrNotSupported    = 0x08
)

// Errors a mis-negotiating client can trigger. These carry no SOCKS5
// reply code of their own where the acceptor has already written one.
var (
	ErrUnsupportedVersion = errors.New("socks5: unsupported protocol version")
	ErrNoAcceptableMethod = errors.New("socks5: no acceptable authentication method")
	ErrUnsupportedCommand = errors.New("socks5: unsupported command")
)

// Acceptor drives one accepted TCP connection through the SOCKS5
// handshake. It is used once, in order: Authenticate, AcceptCommand,
// then exactly one of HandleConnect / Reject / AssociateUDP (the UDP
// bridge's entry point).
type Acceptor struct {
	conn net.Conn
}

// NewAcceptor wraps an accepted connection.
func NewAcceptor(conn net.Conn) *Acceptor {
	return &Acceptor{conn: conn}
}

// Conn returns the underlying connection, for callers (the UDP bridge)
// that need the raw socket after the handshake completes.
func (a *Acceptor) Conn() net.Conn { return a.conn }

// PeerAddr is the client's address, for logging.
func (a *Acceptor) PeerAddr() net.Addr { return a.conn.RemoteAddr() }

// Authenticate drives states S0 and S1: read the greeting, require
// VER==5 and that NO AUTHENTICATION REQUIRED (0x00) is offered, and
// reply accordingly.
func (a *Acceptor) Authenticate() error {
	header := make([]byte, 2)
	if _, err := io.ReadFull(a.conn, header); err != nil {
		return fmt.Errorf("socks5: greeting header: %w", err)
	}
	if header[0] != Version {
		return ErrUnsupportedVersion
	}

	methods := make([]byte, header[1])
	if len(methods) > 0 {
		if _, err := io.ReadFull(a.conn, methods); err != nil {
			return fmt.Errorf("socks5: greeting methods: %w", err)
		}
	}

	found := false
	for _, m := range methods {
		if m == methodNoAuth {
			found = true
			break
		}
	}
	if !found {
		a.conn.Write([]byte{Version, methodNoAcceptable})
		return ErrNoAcceptableMethod
	}

	_, err := a.conn.Write([]byte{Version, methodNoAuth})
	return err
}

// AcceptCommand drives state S2: read VER CMD RSV ATYP ADDR PORT and
// return the command byte and the target blob (ATYP+payload, the
// verbatim form the address package and the Trojan request both
// expect). On an unsupported ATYP or CMD, the matching SOCKS5 reply is
// written before returning an error.
func (a *Acceptor) AcceptCommand() (cmd byte, targetBlob []byte, err error) {
	header := make([]byte, 4)
	if _, err = io.ReadFull(a.conn, header); err != nil {
		return 0, nil, fmt.Errorf("socks5: request header: %w", err)
	}
	if header[0] != Version || header[2] != 0x00 {
		return 0, nil, ErrUnsupportedVersion
	}
	cmd = header[1]
	atyp := header[3]

	var rest []byte
	switch address.Type(atyp) {
	case address.TypeIPv4:
		rest = make([]byte, 4+2)
	case address.TypeIPv6:
		rest = make([]byte, 16+2)
	case address.TypeDomain:
		lenByte := make([]byte, 1)
		if _, err = io.ReadFull(a.conn, lenByte); err != nil {
			return 0, nil, fmt.Errorf("socks5: domain length: %w", err)
		}
		rest = make([]byte, int(lenByte[0])+2)
		targetBlob = append(targetBlob, atyp, lenByte[0])
	default:
		a.conn.Write([]byte{Version, replyAddrNotSupported})
		return 0, nil, address.ErrUnsupportedAddressType
	}

	if _, err = io.ReadFull(a.conn, rest); err != nil {
		return 0, nil, fmt.Errorf("socks5: request body: %w", err)
	}
	if targetBlob == nil {
		targetBlob = append([]byte{atyp}, rest...)
	} else {
		targetBlob = append(targetBlob, rest...)
	}

	if cmd != CommandConnect && cmd != CommandUDPAssociate {
		a.conn.Write([]byte{Version, replyCommandNotSupported})
		return 0, nil, ErrUnsupportedCommand
	}
	return cmd, targetBlob, nil
}

// Reject writes the router's "connection not allowed by ruleset" reply
// and closes, per spec.md §9's Open Questions resolution (05 02 00,
// the RFC-correct code, in preference to the original's inconsistent
// close-with-no-reply / 05 01 00 paths).
func (a *Acceptor) Reject(targetBlob []byte) error {
	return a.writeTargetReply(replyNotAllowed, targetBlob)
}

func (a *Acceptor) connectFailed(targetBlob []byte) error {
	return a.writeTargetReply(replyGeneralFailure, targetBlob)
}

func (a *Acceptor) writeTargetReply(code byte, targetBlob []byte) error {
	buf := make([]byte, 0, 3+len(targetBlob))
	buf = append(buf, Version, code, 0x00)
	buf = append(buf, targetBlob...)
	_, err := a.conn.Write(buf)
	return err
}

// connectSuccess writes the CONNECT success reply with a zeroed BND
// field, per spec.md §4.2 ("clients ignore" it for CONNECT).
func (a *Acceptor) connectSuccess() error {
	_, err := a.conn.Write([]byte{Version, replySuccess, 0x00, byte(address.TypeIPv4), 0, 0, 0, 0, 0, 0})
	return err
}

// HandleConnect drives state S3/S4 for CommandConnect: dial upstream,
// reply, and relay until either side closes. targetBlob is reused only
// for the failure reply.
func (a *Acceptor) HandleConnect(ctx context.Context, targetBlob []byte, c connector.Connector) error {
	if err := c.Connect(ctx); err != nil {
		if werr := a.connectFailed(targetBlob); werr != nil {
			return werr
		}
		return err
	}
	if err := a.connectSuccess(); err != nil {
		return err
	}
	upstream, err := c.Connected(ctx, nil)
	if err != nil {
		return err
	}
	return relay.Link(a.conn, upstream)
}
