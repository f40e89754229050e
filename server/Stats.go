package server

import (
	"sync/atomic"

	"dnsfwd/resolver"
)

type statsCollector struct {
	queries        atomic.Uint64
	hits           atomic.Uint64
	misses         atomic.Uint64
	upstreamErrors atomic.Uint64
	failures       atomic.Uint64
	dropped        atomic.Uint64
	refused        atomic.Uint64
}

func (sc *statsCollector) collect(outcome resolver.Outcome) {
	sc.queries.Add(1)
	switch outcome {
	case resolver.OutcomeHit:
		sc.hits.Add(1)
	case resolver.OutcomeMiss:
		sc.misses.Add(1)
	case resolver.OutcomeUpstreamError:
		sc.upstreamErrors.Add(1)
	case resolver.OutcomeFailed:
		sc.failures.Add(1)
	default:
		sc.dropped.Add(1)
	}
}

// Stats stores the query counters of a server.
type Stats struct {
	Queries        uint64 `json:"queries"`
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
	UpstreamErrors uint64 `json:"upstreamErrors"`
	Failures       uint64 `json:"failures"`
	Dropped        uint64 `json:"dropped"`
	Refused        uint64 `json:"refused"`
}

// HitRatio returns hits over answered lookups, or 0 before the first one.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses + s.UpstreamErrors + s.Failures
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (sc *statsCollector) snapshot() Stats {
	return Stats{
		Queries:        sc.queries.Load(),
		Hits:           sc.hits.Load(),
		Misses:         sc.misses.Load(),
		UpstreamErrors: sc.upstreamErrors.Load(),
		Failures:       sc.failures.Load(),
		Dropped:        sc.dropped.Load(),
		Refused:        sc.refused.Load(),
	}
}
