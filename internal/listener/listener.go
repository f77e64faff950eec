// Package listener implements spec.md §4.8: the SOCKS5 accept loop,
// one task per connection, each driving an Acceptor through the
// handshake and then picking a connector from the router's
// classification. Grounded on the teacher's
// internal/client.SOCKS5Server (Start/acceptLoop/trackConn) and
// original_source/src/bin/client.rs's dispatch loop.
package listener

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/paulGUZU/fsak/internal/address"
	"github.com/paulGUZU/fsak/internal/connector"
	"github.com/paulGUZU/fsak/internal/connector/direct"
	"github.com/paulGUZU/fsak/internal/connector/trojan"
	"github.com/paulGUZU/fsak/internal/router"
	"github.com/paulGUZU/fsak/internal/socks5"
	"github.com/paulGUZU/fsak/internal/tlsdial"
)

// TrojanEndpoint carries the remote-side wiring a TrojanConnector needs
// per connection: the shared TLS dialer, the server address, the SNI
// override, and the password (hashed once, process-wide, by
// pkg/crypto).
type TrojanEndpoint struct {
	Dialer     *tlsdial.Dialer
	RemoteAddr string
	SNI        string
	Password   string
}

// Listener accepts SOCKS5 connections on a single TCP socket and
// dispatches each to a connector chosen by Router.Classify, or directly
// to Trojan when Router is nil (spec.md §4.8: "defaults to proxy").
type Listener struct {
	ln       net.Listener
	router   *router.Router // nil means always proxy
	trojan   TrojanEndpoint
	log      *zap.Logger
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New binds local (host:port) and returns a Listener ready to Run.
func New(local string, r *router.Router, endpoint TrojanEndpoint, log *zap.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", local)
	if err != nil {
		return nil, fmt.Errorf("listener: bind %s: %w", local, err)
	}
	return &Listener{
		ln:       ln,
		router:   r,
		trojan:   endpoint,
		log:      log,
		conns:    make(map[net.Conn]struct{}),
		shutdown: make(chan struct{}),
	}, nil
}

// Addr is the bound local address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Run accepts connections until Close is called or the listener errors.
// Every per-connection error is logged with the client's peer address
// and never propagates — spec.md §4.8's "they never terminate the
// listener".
func (l *Listener) Run(ctx context.Context) error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.shutdown:
				return nil
			default:
			}
			return fmt.Errorf("listener: accept: %w", err)
		}

		l.track(conn)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.untrack(conn)
			defer conn.Close()
			if err := l.handle(ctx, conn); err != nil {
				l.log.Warn("connection error", zap.Stringer("peer", conn.RemoteAddr()), zap.Error(err))
			}
		}()
	}
}

// Close stops accepting new connections and closes every tracked
// connection, then waits for their handler goroutines to exit.
func (l *Listener) Close() error {
	close(l.shutdown)
	err := l.ln.Close()

	l.mu.Lock()
	conns := make([]net.Conn, 0, len(l.conns))
	for c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}

	l.wg.Wait()
	return err
}

func (l *Listener) track(conn net.Conn) {
	l.mu.Lock()
	l.conns[conn] = struct{}{}
	l.mu.Unlock()
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
}

// handle drives one accepted connection through (a) the SOCKS5
// handshake, (b) routing, (c) connector selection, and (d) the relay,
// per spec.md §4.8.
func (l *Listener) handle(ctx context.Context, conn net.Conn) error {
	a := socks5.NewAcceptor(conn)

	if err := a.Authenticate(); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	cmd, targetBlob, err := a.AcceptCommand()
	if err != nil {
		return fmt.Errorf("accept command: %w", err)
	}

	target, err := address.Parse(targetBlob)
	if err != nil {
		return fmt.Errorf("parse target: %w", err)
	}
	target = address.Canonicalize(target)

	action := router.Proxy
	if l.router != nil {
		action = l.router.Classify(target)
	}

	l.log.Info("accepted",
		zap.Stringer("peer", conn.RemoteAddr()),
		zap.Stringer("target", target),
		zap.Stringer("action", action),
	)

	if action == router.Reject {
		return a.Reject(targetBlob)
	}

	trojanCmd := trojan.CommandConnect
	if cmd == socks5.CommandUDPAssociate {
		trojanCmd = trojan.CommandUDP
	}

	var c connector.Connector
	switch action {
	case router.Direct:
		c = direct.New(target)
	default: // Proxy
		c = trojan.New(l.trojan.Dialer, l.trojan.RemoteAddr, l.trojan.SNI, l.trojan.Password, trojanCmd, target)
	}

	switch cmd {
	case socks5.CommandConnect:
		return a.HandleConnect(ctx, targetBlob, c)
	case socks5.CommandUDPAssociate:
		return a.AssociateUDP(ctx, targetBlob, c)
	default:
		return fmt.Errorf("unreachable command %d", cmd)
	}
}
