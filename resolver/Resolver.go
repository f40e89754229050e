package resolver

import (
	"context"
	"errors"
	"time"

	"dnsfwd/recordcache"
	"dnsfwd/resolver/entities"
	"dnsfwd/resolver/packet"
	"go.uber.org/zap"
	"golang.org/x/net/dns/dnsmessage"
)

// Exchanger sends a raw query upstream and returns the raw reply.
type Exchanger interface {
	Exchange(ctx context.Context, query []byte) ([]byte, error)
}

// Outcome says how a query was handled.
type Outcome int

const (
	// OutcomeDropped means the datagram could not be parsed and nothing was sent.
	OutcomeDropped Outcome = iota
	// OutcomeHit means the reply was synthesized from the cache.
	OutcomeHit
	// OutcomeMiss means the upstream reply was relayed and its records cached.
	OutcomeMiss
	// OutcomeUpstreamError means the upstream reply carried a non-zero RCODE or could
	// not be parsed. It was relayed but nothing was cached.
	OutcomeUpstreamError
	// OutcomeFailed means the upstream exchange failed and SERVFAIL was sent.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDropped:
		return "dropped"
	case OutcomeHit:
		return "hit"
	case OutcomeMiss:
		return "miss"
	case OutcomeUpstreamError:
		return "upstream-error"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Forwarder answers queries from the cache and forwards the rest upstream.
type Forwarder struct {
	cache    *recordcache.Cache
	upstream Exchanger
	logger   *zap.Logger

	// remainingTTL writes the seconds left on a cached record instead of 0.
	remainingTTL bool

	now func() time.Time
}

// NewForwarder returns a forwarder backed by cache and upstream.
func NewForwarder(cache *recordcache.Cache, upstream Exchanger, remainingTTL bool, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		cache:        cache,
		upstream:     upstream,
		logger:       logger,
		remainingTTL: remainingTTL,
		now:          time.Now,
	}
}

// Handle runs one query through parse, cache lookup and, on a miss, the upstream
// exchange. reply is called at most once, after the lookup or exchange completed.
//
// On a miss the upstream reply is passed to reply unmodified before it is parsed
// for records, so a malformed upstream reply still reaches the client.
func (f *Forwarder) Handle(ctx context.Context, raw []byte, reply func([]byte) error) (Outcome, error) {
	q, err := packet.ParseQuery(raw)
	if err != nil {
		return OutcomeDropped, err
	}

	if record, ok := f.cache.Lookup(q.Name, q.Type, f.now()); ok {
		if ce := f.logger.Check(zap.DebugLevel, "Answering from cache"); ce != nil {
			ce.Write(
				zap.String("name", packet.NameString(q.Name)),
				zap.Stringer("type", q.Type),
				zap.Uint16("id", q.ID),
			)
		}
		return OutcomeHit, reply(packet.BuildCachedReply(q, record, f.answerTTL(record)))
	}

	resp, err := f.upstream.Exchange(ctx, q.Raw)
	if err != nil {
		f.logger.Warn("Upstream exchange failed",
			zap.String("name", packet.NameString(q.Name)),
			zap.Stringer("type", q.Type),
			zap.Uint16("id", q.ID),
			zap.Error(err),
		)
		if rerr := reply(packet.BuildFailureReply(q, dnsmessage.RCodeServerFailure)); rerr != nil {
			return OutcomeFailed, errors.Join(err, rerr)
		}
		return OutcomeFailed, err
	}

	if err = reply(resp); err != nil {
		return OutcomeMiss, err
	}

	return f.learn(q, resp), nil
}

func (f *Forwarder) answerTTL(record entities.Record) uint32 {
	if f.remainingTTL {
		return record.Remaining(f.now())
	}
	return 0
}

// learn inserts every record of an upstream reply into the cache.
func (f *Forwarder) learn(q entities.Query, resp []byte) Outcome {
	records, err := packet.ParseResponse(resp)
	if err != nil {
		var ue *packet.UpstreamError
		if errors.As(err, &ue) {
			if ce := f.logger.Check(zap.DebugLevel, "Not caching upstream error"); ce != nil {
				ce.Write(
					zap.String("name", packet.NameString(q.Name)),
					zap.Stringer("type", q.Type),
					zap.Stringer("rcode", ue.RCode),
				)
			}
		} else {
			f.logger.Warn("Failed to parse upstream reply",
				zap.String("name", packet.NameString(q.Name)),
				zap.Stringer("type", q.Type),
				zap.Int("length", len(resp)),
				zap.Error(err),
			)
		}
		return OutcomeUpstreamError
	}

	now := f.now()
	for _, record := range records {
		f.cache.Insert(record, now)
	}

	if ce := f.logger.Check(zap.DebugLevel, "Cached upstream records"); ce != nil {
		ce.Write(
			zap.String("name", packet.NameString(q.Name)),
			zap.Stringer("type", q.Type),
			zap.Int("records", len(records)),
		)
	}
	return OutcomeMiss
}
