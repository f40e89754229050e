package packet

import (
	"errors"
	"fmt"

	"golang.org/x/net/dns/dnsmessage"
)

// ErrFormat is wrapped by every error caused by a malformed message.
var ErrFormat = errors.New("malformed DNS message")

var (
	ErrTruncated   = fmt.Errorf("%w: unexpected end of message", ErrFormat)
	ErrPointerLoop = fmt.Errorf("%w: compression pointer loop", ErrFormat)
	ErrBadPointer  = fmt.Errorf("%w: compression pointer out of range", ErrFormat)
	ErrBadLabel    = fmt.Errorf("%w: reserved label type", ErrFormat)
	ErrNameTooLong = fmt.Errorf("%w: name exceeds 255 octets", ErrFormat)
	ErrNotQuery    = fmt.Errorf("%w: QR bit set on query", ErrFormat)
	ErrNoQuestion  = fmt.Errorf("%w: no question", ErrFormat)
)

// UpstreamError is returned by ParseResponse when the message carries a non-zero RCODE.
type UpstreamError struct {
	RCode dnsmessage.RCode
}

func (e *UpstreamError) Error() string {
	return "upstream returned " + e.RCode.String()
}
