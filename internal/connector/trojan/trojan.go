// Package trojan implements the Trojan-protocol connector of spec.md
// §3/§4.4: a TLS session to the remote server carrying a
// password-hash + command + target request header ahead of the
// proxied bytes. Grounded on original_source/src/trojan/client.rs's
// TrojanConnector (trojan_request, connect, connected).
package trojan

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/paulGUZU/fsak/internal/address"
	"github.com/paulGUZU/fsak/internal/tlsdial"
	"github.com/paulGUZU/fsak/pkg/crypto"
)

// Command bytes a Trojan request header carries, per spec.md §3.
const (
	CommandConnect byte = 0x01
	CommandUDP     byte = 0x03
)

// Connector is a one-shot TrojanConnector: Connect then Connected,
// never reused.
type Connector struct {
	dialer     *tlsdial.Dialer
	remoteAddr string
	sni        string
	target     address.Target
	request    []byte
	conn       *tls.Conn
}

// New builds a Connector that will dial remoteAddr (host:port of the
// Trojan server), present sni during the TLS handshake, and open cmd
// against target once connected. password is the plaintext password
// from the client config; it is hashed once per process by
// crypto.PasswordHash.
func New(dialer *tlsdial.Dialer, remoteAddr, sni, password string, cmd byte, target address.Target) *Connector {
	return &Connector{
		dialer:     dialer,
		remoteAddr: remoteAddr,
		sni:        sni,
		target:     target,
		request:    buildRequest(password, cmd, address.Encode(target)),
	}
}

// buildRequest renders the Trojan request header: hex(SHA-224(password))
// + CRLF + cmd + target + CRLF, per spec.md §3.
func buildRequest(password string, cmd byte, targetBlob []byte) []byte {
	hash := crypto.PasswordHash(password)
	buf := make([]byte, 0, len(hash)+2+1+len(targetBlob)+2)
	buf = append(buf, hash...)
	buf = append(buf, '\r', '\n')
	buf = append(buf, cmd)
	buf = append(buf, targetBlob...)
	buf = append(buf, '\r', '\n')
	return buf
}

func (c *Connector) Target() address.Target { return c.target }

// Connect opens the TCP+TLS session to the Trojan server. The request
// header is not written yet — that happens in Connected, so that a
// payload passed there (for UDP ASSOCIATE, the first encoded packet)
// goes out in the same write as the header. The TCP CONNECT path
// passes no payload, so there the header is written on its own.
func (c *Connector) Connect(ctx context.Context) error {
	conn, err := c.dialer.Dial(ctx, c.remoteAddr, c.sni)
	if err != nil {
		return fmt.Errorf("trojan: %w", err)
	}
	c.conn = conn
	return nil
}

// Connected writes the request header, followed by payload if any is
// already available, as a single write, and hands back the open
// connection.
func (c *Connector) Connected(ctx context.Context, payload []byte) (net.Conn, error) {
	buf := c.request
	if len(payload) > 0 {
		buf = append(buf, payload...)
	}
	if _, err := c.conn.Write(buf); err != nil {
		c.conn.Close()
		return nil, fmt.Errorf("trojan: write request: %w", err)
	}
	conn := c.conn
	c.conn = nil
	return conn, nil
}
