package entities

import (
	"time"

	"golang.org/x/net/dns/dnsmessage"
)

// Record is a single resource record as it appeared on the wire.
//
// Name is kept in expanded wire form (length-prefixed labels followed by the
// zero terminator) with every compression pointer already resolved.
type Record struct {
	Name  []byte
	RType dnsmessage.Type
	Class dnsmessage.Class
	TTL   uint32
	RData []byte

	// Authoritative is copied from the AA bit of the message the record came in.
	// It says nothing about the record itself.
	Authoritative bool

	// ExpireAt is set by the cache when the record is inserted.
	ExpireAt time.Time
}

// RDLength returns the length of the record data.
func (r Record) RDLength() int {
	return len(r.RData)
}

// Expired reports whether the record is no longer fresh at now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpireAt.After(now)
}

// Remaining returns the whole seconds of freshness left at now.
func (r Record) Remaining(now time.Time) uint32 {
	d := r.ExpireAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return uint32(d / time.Second)
}
