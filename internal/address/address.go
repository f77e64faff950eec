// Package address implements the SOCKS5/Trojan-compatible target address
// record: encode, decode, and the length probe used to frame a buffer
// whose first bytes are an ATYP + payload without a length prefix of its
// own.
package address

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"unicode/utf8"
)

// Type is the wire ATYP byte.
type Type byte

const (
	TypeIPv4   Type = 0x01
	TypeDomain Type = 0x03
	TypeIPv6   Type = 0x04
)

// ErrUnsupportedAddressType is returned when an ATYP byte is not one of
// the three recognised values.
var ErrUnsupportedAddressType = errors.New("address: unsupported address type")

// ErrShortBuffer is returned when a buffer doesn't yet hold as much data
// as its own header claims it needs.
var ErrShortBuffer = errors.New("address: short buffer")

// Target is a tagged union of the three address forms a Trojan/SOCKS5
// request may carry. Zero value is not a valid Target.
type Target struct {
	typ    Type
	ip     netip.Addr // valid for TypeIPv4 / TypeIPv6
	domain string     // valid for TypeDomain
	port   uint16
}

// V4 builds an IPv4 target.
func V4(ip netip.Addr, port uint16) Target {
	return Target{typ: TypeIPv4, ip: ip, port: port}
}

// V6 builds an IPv6 target.
func V6(ip netip.Addr, port uint16) Target {
	return Target{typ: TypeIPv6, ip: ip, port: port}
}

// Domain builds a domain-name target. name is not validated here; Parse
// validates wire-derived names.
func Domain(name string, port uint16) Target {
	return Target{typ: TypeDomain, domain: name, port: port}
}

func (t Target) Type() Type    { return t.typ }
func (t Target) Port() uint16  { return t.port }
func (t Target) IP() netip.Addr { return t.ip }
func (t Target) Name() string  { return t.domain }

// IsIPv4Literal reports whether t is the canonical IPv4 form.
func (t Target) IsIPv4Literal() bool { return t.typ == TypeIPv4 }

// IsIPv6Literal reports whether t is the canonical IPv6 form.
func (t Target) IsIPv6Literal() bool { return t.typ == TypeIPv6 }

// IsDomain reports whether t is a domain-name target.
func (t Target) IsDomain() bool { return t.typ == TypeDomain }

// Host returns the dial-ready host portion (IP literal or domain name,
// without brackets or port).
func (t Target) Host() string {
	switch t.typ {
	case TypeIPv4, TypeIPv6:
		return t.ip.String()
	default:
		return t.domain
	}
}

// String renders a Target the way net.JoinHostPort would.
func (t Target) String() string {
	return net.JoinHostPort(t.Host(), fmt.Sprintf("%d", t.port))
}

// TargetLen returns the number of bytes the encoded record at the head
// of buf occupies, without requiring the whole record to be present.
// buf[0] must be the ATYP byte; for TypeDomain, buf[1] must be the
// length byte L, but bytes beyond that are not required to be present.
func TargetLen(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, ErrShortBuffer
	}
	switch Type(buf[0]) {
	case TypeIPv4:
		return 1 + 4 + 2, nil
	case TypeIPv6:
		return 1 + 16 + 2, nil
	case TypeDomain:
		if len(buf) < 2 {
			return 0, ErrShortBuffer
		}
		return 1 + 1 + int(buf[1]) + 2, nil
	default:
		return 0, ErrUnsupportedAddressType
	}
}

// Parse decodes a fully-present target blob (atyp + payload). The
// caller is expected to have sized buf using TargetLen first.
func Parse(buf []byte) (Target, error) {
	if len(buf) == 0 {
		return Target{}, ErrShortBuffer
	}
	atyp := Type(buf[0])
	payload := buf[1:]

	switch atyp {
	case TypeIPv4:
		if len(payload) < 6 {
			return Target{}, ErrShortBuffer
		}
		ip := netip.AddrFrom4([4]byte(payload[:4]))
		port := binary.BigEndian.Uint16(payload[4:6])
		return V4(ip, port), nil

	case TypeIPv6:
		if len(payload) < 18 {
			return Target{}, ErrShortBuffer
		}
		ip := netip.AddrFrom16([16]byte(payload[:16]))
		port := binary.BigEndian.Uint16(payload[16:18])
		return V6(ip, port), nil

	case TypeDomain:
		if len(payload) < 1 {
			return Target{}, ErrShortBuffer
		}
		l := int(payload[0])
		if len(payload) < 1+l+2 {
			return Target{}, ErrShortBuffer
		}
		name := payload[1 : 1+l]
		if !isValidDomainBytes(name) {
			return Target{}, fmt.Errorf("address: invalid domain: %q", name)
		}
		port := binary.BigEndian.Uint16(payload[1+l : 1+l+2])
		return Domain(string(name), port), nil

	default:
		return Target{}, ErrUnsupportedAddressType
	}
}

// isValidDomainBytes enforces the data-model invariant that a domain
// name is valid UTF-8, 1-255 octets, and free of control characters.
func isValidDomainBytes(b []byte) bool {
	if len(b) == 0 || len(b) > 255 {
		return false
	}
	if !utf8.Valid(b) {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

// Encode renders t back to its wire form: atyp + payload.
func Encode(t Target) []byte {
	switch t.typ {
	case TypeIPv4:
		buf := make([]byte, 1+4+2)
		buf[0] = byte(TypeIPv4)
		ip4 := t.ip.As4()
		copy(buf[1:5], ip4[:])
		binary.BigEndian.PutUint16(buf[5:7], t.port)
		return buf

	case TypeIPv6:
		buf := make([]byte, 1+16+2)
		buf[0] = byte(TypeIPv6)
		ip16 := t.ip.As16()
		copy(buf[1:17], ip16[:])
		binary.BigEndian.PutUint16(buf[17:19], t.port)
		return buf

	case TypeDomain:
		name := t.domain
		buf := make([]byte, 1+1+len(name)+2)
		buf[0] = byte(TypeDomain)
		buf[1] = byte(len(name))
		copy(buf[2:2+len(name)], name)
		binary.BigEndian.PutUint16(buf[2+len(name):], t.port)
		return buf

	default:
		return nil
	}
}

// Canonicalize re-tags a Domain target as V4 when its name is itself a
// valid dotted-quad IPv4 literal, per the data-model invariant that a
// Target is always kept in canonical form. Non-domain targets and
// domains that are not IPv4 literals pass through unchanged.
func Canonicalize(t Target) Target {
	if t.typ != TypeDomain {
		return t
	}
	ip, err := netip.ParseAddr(t.domain)
	if err != nil || !ip.Is4() {
		return t
	}
	return V4(ip, t.port)
}
