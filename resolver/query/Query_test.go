package query

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/net/dns/dnsmessage"
)

// fakeUpstream answers on a loopback socket. handle receives the attempt number
// (starting at 1) and the query, and returns the datagrams to send back.
func fakeUpstream(t *testing.T, handle func(attempt int, query []byte) [][]byte) (netip.AddrPort, *atomic.Int32) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { pc.Close() })

	var received atomic.Int32
	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			attempt := int(received.Add(1))
			for _, reply := range handle(attempt, append([]byte(nil), buf[:n]...)) {
				pc.WriteTo(reply, addr)
			}
		}
	}()

	return pc.LocalAddr().(*net.UDPAddr).AddrPort(), &received
}

func packQuery(t *testing.T, id uint16) []byte {
	t.Helper()
	msg := dnsmessage.Message{
		Header: dnsmessage.Header{ID: id, RecursionDesired: true},
		Questions: []dnsmessage.Question{
			{Name: dnsmessage.MustNewName("example.com."), Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET},
		},
	}
	b, err := msg.Pack()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func replyTo(query []byte) []byte {
	reply := append([]byte(nil), query...)
	reply[2] |= 0x80
	return reply
}

func TestExchangeIgnoresMismatchedID(t *testing.T) {
	upstream, received := fakeUpstream(t, func(_ int, query []byte) [][]byte {
		stray := replyTo(query)
		stray[0] ^= 0xff
		return [][]byte{{1, 2, 3}, stray, replyTo(query)}
	})

	c := NewClient(Config{Upstream: upstream, Timeout: time.Second}, zaptest.NewLogger(t))
	query := packQuery(t, 0x4242)

	reply, err := c.Exchange(context.Background(), query)
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if !bytes.Equal(reply, replyTo(query)) {
		t.Errorf("Expected the matching reply, got %x", reply)
	}
	if n := received.Load(); n != 1 {
		t.Errorf("Expected one datagram upstream, got %d", n)
	}
}

func TestExchangeRetriesAfterTimeout(t *testing.T) {
	upstream, received := fakeUpstream(t, func(attempt int, query []byte) [][]byte {
		if attempt == 1 {
			return nil
		}
		return [][]byte{replyTo(query)}
	})

	c := NewClient(Config{
		Upstream: upstream,
		Timeout:  100 * time.Millisecond,
		Attempts: 3,
		Backoff:  10 * time.Millisecond,
	}, zaptest.NewLogger(t))

	if _, err := c.Exchange(context.Background(), packQuery(t, 1)); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if n := received.Load(); n != 2 {
		t.Errorf("Expected 2 attempts, got %d", n)
	}
}

func TestExchangeGivesUp(t *testing.T) {
	upstream, received := fakeUpstream(t, func(int, []byte) [][]byte { return nil })

	c := NewClient(Config{
		Upstream: upstream,
		Timeout:  50 * time.Millisecond,
		Attempts: 2,
		Backoff:  10 * time.Millisecond,
	}, zaptest.NewLogger(t))

	if _, err := c.Exchange(context.Background(), packQuery(t, 1)); err == nil {
		t.Fatal("Expected an error from a silent upstream")
	}
	if n := received.Load(); n != 2 {
		t.Errorf("Expected exactly 2 attempts, got %d", n)
	}
}

func TestExchangeStopsOnCancel(t *testing.T) {
	upstream, _ := fakeUpstream(t, func(int, []byte) [][]byte { return nil })

	c := NewClient(Config{Upstream: upstream, Timeout: 10 * time.Second, Attempts: 5}, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := c.Exchange(ctx, packQuery(t, 1)); err == nil {
		t.Fatal("Expected an error after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected Exchange to return promptly, took %v", elapsed)
	}
}

func TestExchangeRejectsShortQuery(t *testing.T) {
	c := NewClient(Config{Upstream: netip.MustParseAddrPort("127.0.0.1:53")}, zaptest.NewLogger(t))
	if _, err := c.Exchange(context.Background(), []byte{1, 2, 3}); err == nil {
		t.Error("Expected an error for a short query")
	}
}
