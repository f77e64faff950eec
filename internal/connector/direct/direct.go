// Package direct implements the plain-TCP connector of spec.md §4.4:
// connect opens a TCP socket straight to the target, no TLS, no
// framing. Grounded on
// original_source/src/socks5/target.rs's DirectConnector.
package direct

import (
	"context"
	"fmt"
	"net"

	"github.com/paulGUZU/fsak/internal/address"
)

// Connector is a one-shot DirectConnector: Connect then Connected,
// never reused.
type Connector struct {
	target address.Target
	conn   net.Conn
}

// New builds a Connector for target. It does not dial.
func New(target address.Target) *Connector {
	return &Connector{target: target}
}

func (c *Connector) Target() address.Target { return c.target }

func (c *Connector) Connect(ctx context.Context) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.target.String())
	if err != nil {
		return fmt.Errorf("direct: dial %s: %w", c.target, err)
	}
	c.conn = conn
	return nil
}

func (c *Connector) Connected(ctx context.Context, payload []byte) (net.Conn, error) {
	if len(payload) > 0 {
		if _, err := c.conn.Write(payload); err != nil {
			c.conn.Close()
			return nil, fmt.Errorf("direct: write payload: %w", err)
		}
	}
	conn := c.conn
	c.conn = nil
	return conn, nil
}
