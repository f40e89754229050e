package packet

import (
	"encoding/binary"

	"dnsfwd/resolver/entities"
	"golang.org/x/net/dns/dnsmessage"
)

// ParseQuery decodes the header and first question of a client query.
func ParseQuery(buf []byte) (entities.Query, error) {
	header, err := ParseHeader(buf)
	if err != nil {
		return entities.Query{}, err
	}
	if header.Flags.Response {
		return entities.Query{}, ErrNotQuery
	}
	if header.QDCount == 0 {
		return entities.Query{}, ErrNoQuestion
	}

	name, off, err := ReadName(buf, HeaderLen)
	if err != nil {
		return entities.Query{}, err
	}
	if off+4 > len(buf) {
		return entities.Query{}, ErrTruncated
	}

	return entities.Query{
		Raw:              buf,
		ID:               header.ID,
		RecursionDesired: header.Flags.RecursionDesired,
		OpCode:           header.Flags.OpCode,
		Name:             name,
		Type:             dnsmessage.Type(binary.BigEndian.Uint16(buf[off:])),
		Class:            dnsmessage.Class(binary.BigEndian.Uint16(buf[off+2:])),
		Question:         buf[HeaderLen : off+4],
	}, nil
}

// ParseResponse decodes every answer, authority and additional record of an
// upstream reply, in wire order.
//
// A reply with a non-zero RCODE yields an *UpstreamError and no records.
func ParseResponse(buf []byte) ([]entities.Record, error) {
	header, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	if header.Flags.RCode != dnsmessage.RCodeSuccess {
		return nil, &UpstreamError{RCode: header.Flags.RCode}
	}

	off := HeaderLen
	for range header.QDCount {
		_, off, err = ReadName(buf, off)
		if err != nil {
			return nil, err
		}
		off += 4
	}
	if off > len(buf) {
		return nil, ErrTruncated
	}

	records := make([]entities.Record, 0, header.Records())
	for range header.Records() {
		var record entities.Record
		record, off, err = readRecord(buf, off, header.Flags.Authoritative)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

func readRecord(buf []byte, off int, authoritative bool) (entities.Record, int, error) {
	name, off, err := ReadName(buf, off)
	if err != nil {
		return entities.Record{}, 0, err
	}
	if off+10 > len(buf) {
		return entities.Record{}, 0, ErrTruncated
	}

	rtype := dnsmessage.Type(binary.BigEndian.Uint16(buf[off:]))
	rdlength := int(binary.BigEndian.Uint16(buf[off+8:]))
	start := off + 10
	end := start + rdlength
	if end > len(buf) {
		return entities.Record{}, 0, ErrTruncated
	}

	rdata, err := readRData(buf, rtype, start, end)
	if err != nil {
		return entities.Record{}, 0, err
	}

	return entities.Record{
		Name:          name,
		RType:         rtype,
		Class:         dnsmessage.Class(binary.BigEndian.Uint16(buf[off+2:])),
		TTL:           binary.BigEndian.Uint32(buf[off+4:]),
		RData:         rdata,
		Authoritative: authoritative,
	}, end, nil
}
