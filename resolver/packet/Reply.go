package packet

import (
	"encoding/binary"

	"dnsfwd/resolver/entities"
	"golang.org/x/net/dns/dnsmessage"
)

// BuildCachedReply synthesizes a one-answer response to q from a cached record.
// The question is copied verbatim from the query and the answer is written with
// the given TTL.
func BuildCachedReply(q entities.Query, record entities.Record, ttl uint32) []byte {
	h := Header{
		ID: q.ID,
		Flags: Flags{
			Response:           true,
			OpCode:             q.OpCode,
			Authoritative:      record.Authoritative,
			RecursionDesired:   q.RecursionDesired,
			RecursionAvailable: true,
			RCode:              dnsmessage.RCodeSuccess,
		},
		QDCount: 1,
		ANCount: 1,
	}

	b := make([]byte, 0, HeaderLen+len(q.Question)+len(record.Name)+10+len(record.RData))
	b = h.AppendPack(b)
	b = append(b, q.Question...)
	b = append(b, record.Name...)
	b = binary.BigEndian.AppendUint16(b, uint16(record.RType))
	b = binary.BigEndian.AppendUint16(b, uint16(record.Class))
	b = binary.BigEndian.AppendUint32(b, ttl)
	b = binary.BigEndian.AppendUint16(b, uint16(len(record.RData)))
	return append(b, record.RData...)
}

// BuildFailureReply returns an answerless response to q carrying rcode.
func BuildFailureReply(q entities.Query, rcode dnsmessage.RCode) []byte {
	h := Header{
		ID: q.ID,
		Flags: Flags{
			Response:           true,
			OpCode:             q.OpCode,
			RecursionDesired:   q.RecursionDesired,
			RecursionAvailable: true,
			RCode:              rcode,
		},
		QDCount: 1,
	}

	b := make([]byte, 0, HeaderLen+len(q.Question))
	b = h.AppendPack(b)
	return append(b, q.Question...)
}
