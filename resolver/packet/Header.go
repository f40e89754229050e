package packet

import (
	"encoding/binary"

	"golang.org/x/net/dns/dnsmessage"
)

// HeaderLen is the size of the fixed DNS message header.
const HeaderLen = 12

const (
	bitQR = 1 << 15
	bitAA = 1 << 10
	bitTC = 1 << 9
	bitRD = 1 << 8
	bitRA = 1 << 7
)

// Flags is the decoded second word of the DNS header.
type Flags struct {
	Response           bool
	OpCode             dnsmessage.OpCode
	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	Z                  uint8
	RCode              dnsmessage.RCode
}

// DecodeFlags splits the 16-bit flags field into its parts.
func DecodeFlags(v uint16) Flags {
	return Flags{
		Response:           v&bitQR != 0,
		OpCode:             dnsmessage.OpCode(v >> 11 & 0xf),
		Authoritative:      v&bitAA != 0,
		Truncated:          v&bitTC != 0,
		RecursionDesired:   v&bitRD != 0,
		RecursionAvailable: v&bitRA != 0,
		Z:                  uint8(v >> 4 & 0x7),
		RCode:              dnsmessage.RCode(v & 0xf),
	}
}

// Pack returns the 16-bit wire form of f.
func (f Flags) Pack() uint16 {
	v := uint16(f.OpCode&0xf)<<11 | uint16(f.Z&0x7)<<4 | uint16(f.RCode&0xf)
	if f.Response {
		v |= bitQR
	}
	if f.Authoritative {
		v |= bitAA
	}
	if f.Truncated {
		v |= bitTC
	}
	if f.RecursionDesired {
		v |= bitRD
	}
	if f.RecursionAvailable {
		v |= bitRA
	}
	return v
}

// Header is the fixed 12-byte message header.
type Header struct {
	ID      uint16
	Flags   Flags
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// ParseHeader decodes the header at the start of msg.
func ParseHeader(msg []byte) (Header, error) {
	if len(msg) < HeaderLen {
		return Header{}, ErrTruncated
	}
	return Header{
		ID:      binary.BigEndian.Uint16(msg[0:2]),
		Flags:   DecodeFlags(binary.BigEndian.Uint16(msg[2:4])),
		QDCount: binary.BigEndian.Uint16(msg[4:6]),
		ANCount: binary.BigEndian.Uint16(msg[6:8]),
		NSCount: binary.BigEndian.Uint16(msg[8:10]),
		ARCount: binary.BigEndian.Uint16(msg[10:12]),
	}, nil
}

// AppendPack appends the wire form of h to b.
func (h Header) AppendPack(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, h.ID)
	b = binary.BigEndian.AppendUint16(b, h.Flags.Pack())
	b = binary.BigEndian.AppendUint16(b, h.QDCount)
	b = binary.BigEndian.AppendUint16(b, h.ANCount)
	b = binary.BigEndian.AppendUint16(b, h.NSCount)
	return binary.BigEndian.AppendUint16(b, h.ARCount)
}

// Records returns the number of resource records following the questions.
func (h Header) Records() int {
	return int(h.ANCount) + int(h.NSCount) + int(h.ARCount)
}
