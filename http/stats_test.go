package http

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/olebeck/stress"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestStatsRecord(t *testing.T) {
	s := Stats{RequestTimeMS: stress.NewMovingAverage(10)}

	s.Record(Result{Latency: 10 * time.Millisecond, StatusCode: 200})
	s.Record(Result{Latency: 20 * time.Millisecond, StatusCode: 500, Err: &Failure{Kind: FailureStatus, Err: &StatusError{status: 500}}})
	s.Record(Result{Latency: 30 * time.Millisecond, Err: &Failure{Kind: FailureTimeout, Err: errors.New("slow")}})
	s.Record(Result{Latency: 40 * time.Millisecond, Err: errors.New("refused")})

	c := s.Counts()
	require.EqualValues(t, 4, c.Total)
	require.EqualValues(t, 1, c.Succeeded)
	require.EqualValues(t, 3, c.Failed)
	require.EqualValues(t, 100, c.ResponseTimeMS)
	require.EqualValues(t, 1, c.BadStatus)
	require.EqualValues(t, 1, c.Timeouts)
	require.EqualValues(t, 1, c.TransportErrors)
	require.EqualValues(t, 1, s.FailuresOf(FailureTransport))
	require.Zero(t, s.FailuresOf(numFailureKinds))
	require.InDelta(t, 25, s.RecentLatencyMS(), 0.001)
}

func TestStatsRecordConcurrent(t *testing.T) {
	var s Stats
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				res := Result{Latency: time.Millisecond}
				if (i+j)%3 == 0 {
					res.Err = &Failure{Kind: FailureTransport, Err: errors.New("x")}
				}
				s.Record(res)
			}
		}(i)
	}
	wg.Wait()

	c := s.Counts()
	require.EqualValues(t, 50*200, c.Total)
	require.Equal(t, c.Total, c.Succeeded+c.Failed)
	require.EqualValues(t, 50*200, c.ResponseTimeMS)
	require.Equal(t, c.Failed, c.TransportErrors+c.Timeouts+c.BadStatus)
	require.Zero(t, s.RecentLatencyMS())
}

func TestStatsCollectors(t *testing.T) {
	var s Stats
	s.Record(Result{Latency: 5 * time.Millisecond})
	s.Record(Result{Latency: 5 * time.Millisecond, Err: errors.New("x")})

	registry := prometheus.NewRegistry()
	for _, c := range s.Collectors() {
		require.NoError(t, registry.Register(c))
	}

	families, err := registry.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		m := mf.GetMetric()[0]
		if m.GetCounter() != nil {
			values[mf.GetName()] = m.GetCounter().GetValue()
		} else {
			values[mf.GetName()] = m.GetGauge().GetValue()
		}
	}
	require.Equal(t, 2.0, values["stress_requests_total"])
	require.Equal(t, 1.0, values["stress_requests_succeeded_total"])
	require.Equal(t, 1.0, values["stress_requests_failed_total"])
	require.Equal(t, 10.0, values["stress_response_time_ms_total"])
	require.Contains(t, values, "stress_open_connections")
}
