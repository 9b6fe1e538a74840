package http

import "github.com/prometheus/client_golang/prometheus"

// Collectors exposes s as prometheus metrics. The failure breakdown by kind
// is deliberately left out.
func (s *Stats) Collectors() []prometheus.Collector {
	counter := func(name, help string, load func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: name,
			Help: help,
		}, func() float64 { return float64(load()) })
	}

	return []prometheus.Collector{
		counter("stress_requests_total", "Total number of finished requests", s.RequestsSent.Load),
		counter("stress_requests_succeeded_total", "Requests answered with a 2xx status", s.Succeeded.Load),
		counter("stress_requests_failed_total", "Requests that failed for any reason", s.Failed.Load),
		counter("stress_response_time_ms_total", "Sum of request latencies in milliseconds", s.ResponseTimeMS.Load),
		counter("stress_connects_total", "Total number of connections dialed", s.TotalConnects.Load),
		counter("stress_redirects_total", "Total number of redirects followed", s.Redirects.Load),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stress_open_connections",
			Help: "Current number of open connections",
		}, func() float64 { return float64(s.OpenConnections.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stress_recent_latency_ms",
			Help: "Mean latency of the last 100 requests in milliseconds",
		}, s.RecentLatencyMS),
	}
}
