package trojan

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulGUZU/fsak/internal/address"
	"github.com/paulGUZU/fsak/internal/tlsdial"
	"github.com/paulGUZU/fsak/pkg/config"
	"github.com/paulGUZU/fsak/pkg/crypto"
)

// trojanEchoServer starts a TLS listener that reads one Trojan request
// header (hash + CRLF + cmd + target + CRLF) then echoes whatever
// bytes follow, back to the client.
func trojanEchoServer(t *testing.T) (addr string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		hash := make([]byte, 56)
		io.ReadFull(r, hash)
		r.ReadByte() // \r
		r.ReadByte() // \n
		r.ReadByte() // cmd
		atyp, _ := r.ReadByte()
		buf := []byte{atyp}
		switch address.Type(atyp) {
		case address.TypeIPv4:
			rest := make([]byte, 6)
			io.ReadFull(r, rest)
			buf = append(buf, rest...)
		case address.TypeDomain:
			l, _ := r.ReadByte()
			rest := make([]byte, int(l)+2)
			io.ReadFull(r, rest)
			buf = append(buf, l)
			buf = append(buf, rest...)
		}
		r.ReadByte() // \r
		r.ReadByte() // \n

		echo := make([]byte, 5)
		n, _ := io.ReadFull(r, echo)
		conn.Write(echo[:n])
	}()

	return ln.Addr().String()
}

func TestConnectAndConnectedWritesRequestThenPayload(t *testing.T) {
	addr := trojanEchoServer(t)

	dialer, err := tlsdial.New(&config.ClientSSL{Verify: false}, config.TCP{})
	require.NoError(t, err)

	target := address.V4(netip.MustParseAddr("1.2.3.4"), 443)
	c := New(dialer, addr, "localhost", "hello", CommandConnect, target)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	conn, err := c.Connected(ctx, []byte("hello"))
	require.NoError(t, err)
	defer conn.Close()

	echo := make([]byte, 5)
	_, err = io.ReadFull(conn, echo)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(echo))
}

func TestBuildRequestMatchesKnownHash(t *testing.T) {
	target := address.V4(netip.MustParseAddr("1.2.3.4"), 443)
	req := buildRequest("hello", CommandConnect, address.Encode(target))

	wantHash := crypto.PasswordHash("hello")
	require.Len(t, wantHash, 56)
	assert.Equal(t, wantHash, string(req[:56]))
	assert.Equal(t, byte('\r'), req[56])
	assert.Equal(t, byte('\n'), req[57])
	assert.Equal(t, CommandConnect, req[58])
	assert.Equal(t, byte('\r'), req[len(req)-2])
	assert.Equal(t, byte('\n'), req[len(req)-1])
}

func TestTargetReturnsConstructorValue(t *testing.T) {
	target := address.Domain("example.com", 80)
	c := New(nil, "", "", "hello", CommandConnect, target)
	assert.Equal(t, target, c.Target())
}
