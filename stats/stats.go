package stats

import (
	"time"

	"github.com/google/uuid"
)

type Label string

const (
	Interim Label = "interim"
	Final   Label = "final"
)

// Info describes one run.
type Info struct {
	ID      uuid.UUID
	Target  string
	Workers int
	Delay   time.Duration
	Start   time.Time
}

// Counts is a copy of the request counters taken at one point in time.
// Fields are read one by one, so under load they may be slightly skewed
// against each other.
type Counts struct {
	Total          int64
	Succeeded      int64
	Failed         int64
	ResponseTimeMS int64

	// failure breakdown, not shown in reports
	TransportErrors int64 `json:"-"`
	Timeouts        int64 `json:"-"`
	BadStatus       int64 `json:"-"`
}

func (c *Counts) Add(o Counts) {
	c.Total += o.Total
	c.Succeeded += o.Succeeded
	c.Failed += o.Failed
	c.ResponseTimeMS += o.ResponseTimeMS
	c.TransportErrors += o.TransportErrors
	c.Timeouts += o.Timeouts
	c.BadStatus += o.BadStatus
}

type Snapshot struct {
	Label   Label
	Time    time.Time
	Elapsed time.Duration
	Counts

	SuccessPct      float64
	FailurePct      float64
	AvgLatencyMS    int64
	RecentLatencyMS float64
	QPS             float64
}

// ElapsedSeconds is the elapsed time in whole seconds.
func (s Snapshot) ElapsedSeconds() int64 {
	return int64(s.Elapsed / time.Second)
}

// Take computes a snapshot of counts for a run that started at start.
// Every ratio is 0 when its denominator is 0.
func Take(label Label, counts Counts, start, now time.Time) Snapshot {
	s := Snapshot{
		Label:   label,
		Time:    now,
		Elapsed: now.Sub(start),
		Counts:  counts,
	}
	if s.Elapsed < 0 {
		s.Elapsed = 0
	}
	if counts.Total > 0 {
		s.SuccessPct = float64(counts.Succeeded) * 100 / float64(counts.Total)
		s.FailurePct = float64(counts.Failed) * 100 / float64(counts.Total)
		s.AvgLatencyMS = counts.ResponseTimeMS / counts.Total
	}
	if s.Elapsed > 0 {
		s.QPS = float64(counts.Total) / s.Elapsed.Seconds()
	}
	return s
}

type Session struct {
	Info  Info
	Stats []Snapshot
}

// Latest returns the most recent snapshot of the session, the zero Snapshot
// if there is none.
func (s *Session) Latest() Snapshot {
	if len(s.Stats) == 0 {
		return Snapshot{}
	}
	return s.Stats[len(s.Stats)-1]
}

// Finished reports whether the session recorded its final snapshot.
func (s *Session) Finished() bool {
	return s.Latest().Label == Final
}

// Total sums the latest counts of every session.
func Total(sessions []*Session) Counts {
	var total Counts
	for _, session := range sessions {
		total.Add(session.Latest().Counts)
	}
	return total
}
