package http

import (
	"errors"
	"sync/atomic"

	"github.com/olebeck/stress"
	"github.com/olebeck/stress/stats"
)

// Stats are the counters shared by every worker of a Client. All of them
// only ever grow, except OpenConnections.
type Stats struct {
	RequestsSent   atomic.Int64
	Succeeded      atomic.Int64
	Failed         atomic.Int64
	ResponseTimeMS atomic.Int64

	TotalConnects   atomic.Int64
	OpenConnections atomic.Int64
	Redirects       atomic.Int64
	RequestTimeMS   *stress.MovingAverage

	failures [numFailureKinds]atomic.Int64
}

// Record counts one finished request. The outcome counter is bumped before
// RequestsSent.
func (s *Stats) Record(res Result) {
	if res.Err == nil {
		s.Succeeded.Add(1)
	} else {
		s.Failed.Add(1)
		var f *Failure
		if !errors.As(res.Err, &f) {
			f = classify(res.Err)
		}
		s.failures[f.Kind].Add(1)
	}

	ms := res.Latency.Milliseconds()
	s.ResponseTimeMS.Add(ms)
	if s.RequestTimeMS != nil {
		s.RequestTimeMS.Add(float64(ms))
	}
	s.RequestsSent.Add(1)
}

func (s *Stats) FailuresOf(kind FailureKind) int64 {
	if kind >= numFailureKinds {
		return 0
	}
	return s.failures[kind].Load()
}

// Counts reads every counter once. The reads are not atomic as a group.
func (s *Stats) Counts() stats.Counts {
	return stats.Counts{
		Total:           s.RequestsSent.Load(),
		Succeeded:       s.Succeeded.Load(),
		Failed:          s.Failed.Load(),
		ResponseTimeMS:  s.ResponseTimeMS.Load(),
		TransportErrors: s.failures[FailureTransport].Load(),
		Timeouts:        s.failures[FailureTimeout].Load(),
		BadStatus:       s.failures[FailureStatus].Load(),
	}
}

func (s *Stats) RecentLatencyMS() float64 {
	if s.RequestTimeMS == nil {
		return 0
	}
	return s.RequestTimeMS.Avg()
}
