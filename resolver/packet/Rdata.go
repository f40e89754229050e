package packet

import "golang.org/x/net/dns/dnsmessage"

// Types from RFC 1035 whose RDATA may embed compressed names.
// Cached RDATA is replayed outside its original message, so those names are expanded.
const (
	typeMD    dnsmessage.Type = 3
	typeMF    dnsmessage.Type = 4
	typeMB    dnsmessage.Type = 7
	typeMG    dnsmessage.Type = 8
	typeMR    dnsmessage.Type = 9
	typeMINFO dnsmessage.Type = 14
)

// readRData returns the record data in [start, end), with embedded names expanded.
func readRData(msg []byte, rtype dnsmessage.Type, start, end int) ([]byte, error) {
	switch rtype {
	case dnsmessage.TypeNS, dnsmessage.TypeCNAME, dnsmessage.TypePTR, typeMD, typeMF, typeMB, typeMG, typeMR:
		return expandNames(msg, start, end, 0, 1, 0)
	case dnsmessage.TypeMX:
		return expandNames(msg, start, end, 2, 1, 0)
	case dnsmessage.TypeSOA:
		return expandNames(msg, start, end, 0, 2, 20)
	case typeMINFO:
		return expandNames(msg, start, end, 0, 2, 0)
	default:
		return append([]byte(nil), msg[start:end]...), nil
	}
}

// expandNames handles RDATA laid out as prefix fixed bytes, then n names, then
// suffix fixed bytes, which must end exactly at end.
func expandNames(msg []byte, start, end, prefix, n, suffix int) ([]byte, error) {
	off := start + prefix
	if off > end {
		return nil, ErrTruncated
	}

	b := make([]byte, 0, end-start+32)
	b = append(b, msg[start:off]...)

	// Names may only point backwards into msg, never past this record.
	bounded := msg[:end]
	for range n {
		name, next, err := ReadName(bounded, off)
		if err != nil {
			return nil, err
		}
		b = append(b, name...)
		off = next
	}

	if off+suffix != end {
		return nil, ErrTruncated
	}
	return append(b, msg[off:end]...), nil
}
