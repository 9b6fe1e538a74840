package statssender

import (
	"context"
	"time"

	"github.com/olebeck/stress/stats"
	"github.com/sirupsen/logrus"
)

// Sink receives snapshots. Errors are logged by the sender and never stop it.
type Sink interface {
	Send(ctx context.Context, s stats.Snapshot) error
}

type SinkFunc func(ctx context.Context, s stats.Snapshot) error

func (f SinkFunc) Send(ctx context.Context, s stats.Snapshot) error {
	return f(ctx, s)
}

type StatsSender struct {
	interval time.Duration
	statFunc func(stats.Label) stats.Snapshot
	sinks    []Sink
	log      *logrus.Entry

	lastInterim stats.Snapshot
}

func New(interval time.Duration, statFunc func(stats.Label) stats.Snapshot, sinks ...Sink) *StatsSender {
	return &StatsSender{
		interval: interval,
		statFunc: statFunc,
		sinks:    sinks,
		log:      logrus.WithField("part", "StatsSender"),
	}
}

// Run sends an interim snapshot every interval until ctx is done.
func (s *StatsSender) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			stat := s.statFunc(stats.Interim)
			s.lastInterim = stat
			s.send(ctx, stat)
		}
	}
}

// Final sends the final snapshot. Call it once, after Run has returned.
func (s *StatsSender) Final(ctx context.Context) stats.Snapshot {
	stat := s.statFunc(stats.Final)
	s.send(ctx, stat)
	return stat
}

// LastInterim returns the last snapshot sent by Run. Not safe to call while
// Run is active.
func (s *StatsSender) LastInterim() (stats.Snapshot, bool) {
	return s.lastInterim, s.lastInterim.Label != ""
}

func (s *StatsSender) send(ctx context.Context, stat stats.Snapshot) {
	for _, sink := range s.sinks {
		if err := sink.Send(ctx, stat); err != nil {
			s.log.Errorf("send %s stats: %s", stat.Label, err)
		}
	}
}
