package router

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulGUZU/fsak/internal/address"
)

func mustParseIP(t *testing.T, s string) address.Target {
	t.Helper()
	return address.V4(netip.MustParseAddr(s), 1)
}

func TestIPv4Routing(t *testing.T) {
	r, err := parse(strings.NewReader("[direct]\n10.0.0.0/8\n[reject]\n10.1.0.0/16\n[default] proxy\n"))
	require.NoError(t, err)

	assert.Equal(t, Direct, r.Classify(mustParseIP(t, "10.2.3.4")))
	assert.Equal(t, Reject, r.Classify(mustParseIP(t, "10.1.0.1")))
	assert.Equal(t, Proxy, r.Classify(mustParseIP(t, "11.0.0.1")))
}

func TestDomainRouting(t *testing.T) {
	r, err := parse(strings.NewReader("[proxy]\n^example.com\ngoogle.com\n[default] direct\n"))
	require.NoError(t, err)

	assert.Equal(t, Proxy, r.Classify(address.Domain("example.com", 443)))
	assert.Equal(t, Direct, r.Classify(address.Domain("www.example.com", 443)))
	assert.Equal(t, Proxy, r.Classify(address.Domain("www.google.com", 443)))
	assert.Equal(t, Proxy, r.Classify(address.Domain("google.com", 443)))
}

func TestIPv6AlwaysDefault(t *testing.T) {
	r, err := parse(strings.NewReader("[default] direct\n"))
	require.NoError(t, err)

	ip6 := address.V6(netip.MustParseAddr("::1"), 443)
	assert.Equal(t, Direct, r.Classify(ip6))
}

func TestInvalidLineAbortsLoad(t *testing.T) {
	_, err := parse(strings.NewReader("[direct]\nnot a valid rule !!\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestDefaultSectionRejectsUnknownToken(t *testing.T) {
	_, err := parse(strings.NewReader("[default] sideways\n"))
	require.Error(t, err)
}

func TestBlankAndCommentLinesIgnored(t *testing.T) {
	r, err := parse(strings.NewReader("# comment\n\n[direct]\n# another\n1.2.3.4\n\n[default] proxy\n"))
	require.NoError(t, err)
	assert.Equal(t, Proxy, r.Default())
}

func TestInsertIPv4IndexMatchesNarrowPrefix(t *testing.T) {
	s := newSection()
	s.insertIPv4(0, 5)

	assert.Contains(t, s.ipv4Index, prefixKey{net: maskNet(0, 4), length: 4})
	assert.NotContains(t, s.ipv4Index, prefixKey{net: maskNet(0, 2), length: 2})
}

func TestLongestPrefixWins(t *testing.T) {
	r, err := parse(strings.NewReader("[direct]\n10.0.0.0/8\n10.0.0.0/24\n[default] proxy\n"))
	require.NoError(t, err)

	assert.Equal(t, Direct, r.Classify(mustParseIP(t, "10.0.0.5")))
	assert.Equal(t, Direct, r.Classify(mustParseIP(t, "10.5.5.5")))
	assert.Equal(t, Proxy, r.Classify(mustParseIP(t, "11.0.0.1")))
}

func TestHostPrefix32Matches(t *testing.T) {
	r, err := parse(strings.NewReader("[direct]\n8.8.8.8\n[default] proxy\n"))
	require.NoError(t, err)

	assert.Equal(t, Direct, r.Classify(mustParseIP(t, "8.8.8.8")))
	assert.Equal(t, Proxy, r.Classify(mustParseIP(t, "8.8.8.9")))
}
