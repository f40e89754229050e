package query

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultTimeout    = 5 * time.Second
	DefaultAttempts   = 3
	DefaultBackoff    = 200 * time.Millisecond
	DefaultBufferSize = 65535
)

var errShortQuery = errors.New("query shorter than a DNS header")

// Config configures a Client.
type Config struct {
	Upstream   netip.AddrPort
	Timeout    time.Duration
	Attempts   int
	Backoff    time.Duration
	BufferSize int
}

// Client exchanges raw DNS messages with a single upstream server over UDP.
type Client struct {
	upstream   netip.AddrPort
	timeout    time.Duration
	attempts   int
	backoff    time.Duration
	bufferSize int
	dialer     net.Dialer
	logger     *zap.Logger
}

// NewClient returns a client for cfg. Zero fields take their defaults.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	c := &Client{
		upstream:   cfg.Upstream,
		timeout:    cfg.Timeout,
		attempts:   cfg.Attempts,
		backoff:    cfg.Backoff,
		bufferSize: cfg.BufferSize,
		logger:     logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.attempts <= 0 {
		c.attempts = DefaultAttempts
	}
	if c.backoff <= 0 {
		c.backoff = DefaultBackoff
	}
	if c.bufferSize <= 0 {
		c.bufferSize = DefaultBufferSize
	}
	return c
}

// Upstream returns the server address the client sends to.
func (c *Client) Upstream() netip.AddrPort {
	return c.upstream
}

// Exchange sends query unmodified and returns the first reply carrying the same
// transaction ID. Failed attempts are retried with exponential backoff.
func (c *Client) Exchange(ctx context.Context, query []byte) ([]byte, error) {
	if len(query) < 12 {
		return nil, errShortQuery
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	b.MaxElapsedTime = 0

	var (
		reply   []byte
		attempt int
	)
	operation := func() error {
		attempt++
		var err error
		reply, err = c.exchangeOnce(ctx, query)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Upstream exchange failed, retrying",
			zap.Stringer("upstream", c.upstream),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.attempts-1)), ctx), notify)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", c.upstream, err)
	}
	return reply, nil
}

func (c *Client) exchangeOnce(ctx context.Context, query []byte) ([]byte, error) {
	conn, err := c.dialer.DialContext(ctx, "udp", c.upstream.String())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err = conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	// Unblock the read as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err = conn.Write(query); err != nil {
		return nil, err
	}

	id := binary.BigEndian.Uint16(query)
	buf := make([]byte, c.bufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return nil, err
		}
		if n < 12 || binary.BigEndian.Uint16(buf) != id {
			if ce := c.logger.Check(zap.DebugLevel, "Ignoring unexpected upstream datagram"); ce != nil {
				ce.Write(
					zap.Stringer("upstream", c.upstream),
					zap.Uint16("id", id),
					zap.Int("length", n),
				)
			}
			continue
		}
		return append([]byte(nil), buf[:n]...), nil
	}
}
