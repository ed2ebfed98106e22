// Package protocol implements the in-band tunneling request: the
// SOCKS5-style address/port header a trojan client sends as the first
// bytes of TLS-plaintext, immediately after its credential line.
//
// Wire format (after the credential line and its trailing CRLF):
//
//	<cmd:1><atyp:1><addr><port:2><CR><LF>
//
// atyp 0x01 is a 4-byte IPv4 address, 0x03 is a length-prefixed domain
// name, 0x04 is a 16-byte IPv6 address. port is big-endian uint16.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// Command is the requested operation. Only CommandConnect is honored; other
// values parse successfully (the wire format doesn't distinguish them) but
// a session that sees anything else falls back, per spec.
type Command byte

const CommandConnect Command = 0x01

// AddressType identifies how Address is encoded on the wire.
type AddressType byte

const (
	AddressIPv4       AddressType = 0x01
	AddressDomainName AddressType = 0x03
	AddressIPv6       AddressType = 0x04
)

func (t AddressType) String() string {
	switch t {
	case AddressIPv4:
		return "ipv4"
	case AddressDomainName:
		return "domain"
	case AddressIPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("atyp(0x%02x)", byte(t))
	}
}

// Request is a parsed tunneling request header.
type Request struct {
	Command Command
	Type    AddressType
	Address string // dotted-quad, domain, or bare (unbracketed) IPv6 form
	Port    uint16
}

// crlf is the two-byte header terminator.
const crlf = "\r\n"

var (
	// ErrIncomplete means buf does not yet contain a full header. The codec
	// never blocks waiting for more bytes (spec §4.2): the caller treats
	// this exactly like any other parse failure and falls back.
	ErrIncomplete = errors.New("protocol: incomplete header")
	// ErrMalformed covers every other parse failure: unknown atyp, a
	// zero-length domain name, a missing CRLF terminator. A domain-name
	// length that runs past the buffer, or any other truncated field before
	// the terminator, is ErrIncomplete instead.
	ErrMalformed = errors.New("protocol: malformed header")
)

// Parse reads one tunneling request header from the front of buf. It never
// blocks or asks for more data: on success it returns the parsed Request,
// the bytes consumed, and the remainder of buf (the payload that must be
// forwarded verbatim as the session's first outbound write). On failure it
// returns a non-nil error and the remainder is meaningless.
func Parse(buf []byte) (req Request, consumed int, rest []byte, err error) {
	if len(buf) < 2 {
		return Request{}, 0, nil, ErrIncomplete
	}
	req.Command = Command(buf[0])
	req.Type = AddressType(buf[1])

	off := 2
	switch req.Type {
	case AddressIPv4:
		if len(buf) < off+net.IPv4len {
			return Request{}, 0, nil, ErrIncomplete
		}
		req.Address = net.IP(buf[off : off+net.IPv4len]).String()
		off += net.IPv4len

	case AddressDomainName:
		if len(buf) < off+1 {
			return Request{}, 0, nil, ErrIncomplete
		}
		n := int(buf[off])
		off++
		if n == 0 {
			return Request{}, 0, nil, fmt.Errorf("%w: zero-length domain name", ErrMalformed)
		}
		if len(buf) < off+n {
			return Request{}, 0, nil, ErrIncomplete
		}
		req.Address = string(buf[off : off+n])
		off += n

	case AddressIPv6:
		if len(buf) < off+net.IPv6len {
			return Request{}, 0, nil, ErrIncomplete
		}
		req.Address = net.IP(buf[off : off+net.IPv6len]).String()
		off += net.IPv6len

	default:
		return Request{}, 0, nil, fmt.Errorf("%w: unknown address type 0x%02x", ErrMalformed, buf[1])
	}

	if len(buf) < off+2 {
		return Request{}, 0, nil, ErrIncomplete
	}
	req.Port = binary.BigEndian.Uint16(buf[off : off+2])
	off += 2

	if len(buf) < off+2 || string(buf[off:off+2]) != crlf {
		return Request{}, 0, nil, fmt.Errorf("%w: missing CRLF terminator", ErrMalformed)
	}
	off += 2

	return req, off, buf[off:], nil
}

// Serialize encodes req back into wire format, including the trailing
// CRLF. It is the inverse of Parse for all three address types; the tests
// use it to build request headers, including the round-trip suite.
func Serialize(req Request) ([]byte, error) {
	var addrBytes []byte
	switch req.Type {
	case AddressIPv4:
		ip := net.ParseIP(req.Address).To4()
		if ip == nil {
			return nil, fmt.Errorf("%w: %q is not a valid IPv4 address", ErrMalformed, req.Address)
		}
		addrBytes = append([]byte{byte(req.Type)}, ip...)

	case AddressDomainName:
		if len(req.Address) == 0 || len(req.Address) > 255 {
			return nil, fmt.Errorf("%w: domain name length %d out of range", ErrMalformed, len(req.Address))
		}
		addrBytes = append([]byte{byte(req.Type), byte(len(req.Address))}, req.Address...)

	case AddressIPv6:
		ip := net.ParseIP(req.Address).To16()
		if ip == nil || net.ParseIP(req.Address).To4() != nil {
			return nil, fmt.Errorf("%w: %q is not a valid IPv6 address", ErrMalformed, req.Address)
		}
		addrBytes = append([]byte{byte(req.Type)}, ip...)

	default:
		return nil, fmt.Errorf("%w: unknown address type 0x%02x", ErrMalformed, byte(req.Type))
	}

	out := make([]byte, 0, 1+len(addrBytes)+2+2)
	out = append(out, byte(req.Command))
	out = append(out, addrBytes...)
	out = append(out, byte(req.Port>>8), byte(req.Port))
	out = append(out, crlf...)
	return out, nil
}
