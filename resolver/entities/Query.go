package entities

import "golang.org/x/net/dns/dnsmessage"

// Query is a parsed client query. It lives for a single request cycle.
type Query struct {
	// Raw is the datagram exactly as received.
	Raw []byte

	ID uint16

	// RecursionDesired and OpCode are echoed in synthesized replies.
	RecursionDesired bool
	OpCode           dnsmessage.OpCode

	// Name is the question name in expanded wire form.
	Name  []byte
	Type  dnsmessage.Type
	Class dnsmessage.Class

	// Question holds the bytes of the first question section as sent by the client.
	Question []byte
}
