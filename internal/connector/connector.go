// Package connector defines the uniform contract spec.md §4.4 requires
// of every way to reach a target: DirectConnector
// (internal/connector/direct) and TrojanConnector
// (internal/connector/trojan) both satisfy it. The SOCKS5 acceptor and
// UDP bridge depend only on this interface, never on a concrete
// connector type; the listener builds the concrete connector and hands
// it over as a Connector, so adding a third path (spec.md's Design
// Notes mention "Connector = Direct | Trojan") needs no change here.
//
// Dynamic dispatch through this interface happens once per connection
// (at connect time), never on the hot byte-copy path — the relay
// package copies directly between two net.Conn values once a connector
// hands one back.
package connector

import (
	"context"
	"net"

	"github.com/paulGUZU/fsak/internal/address"
)

// Connector dials (or otherwise establishes) a path to a target and
// hands back a net.Conn once it's ready to carry payload.
type Connector interface {
	// Connect performs the network-side dial. It may block on DNS,
	// TCP, and (for Trojan) TLS handshake.
	Connect(ctx context.Context) error

	// Connected finalises the connector: payload, if non-empty, is
	// written before the connection is handed back. Connected
	// consumes the connector — it must not be called twice.
	Connected(ctx context.Context, payload []byte) (net.Conn, error)

	// Target returns the address this connector was built for.
	Target() address.Target
}
