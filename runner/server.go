package runner

import (
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/olebeck/stress/stats"
	"github.com/olebeck/stress/stats/statsdb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (r *Runner) startServer() error {
	registry := prometheus.NewRegistry()
	for _, c := range r.client.Stats.Collectors() {
		if err := registry.Register(c); err != nil {
			return err
		}
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	err := statsdb.StatsPage(app.Group("/stats"), r.store, r.info, func() stats.Snapshot {
		return r.Snapshot(stats.Interim)
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", r.cfg.StatsAddr)
	if err != nil {
		return err
	}
	r.listener = ln
	r.server = app

	log := r.log.WithField("addr", ln.Addr().String())
	log.Info("serving stats page on /stats/")
	go func() {
		if err := app.Listener(ln); err != nil {
			log.Errorf("stats server: %s", err)
		}
	}()
	return nil
}

// StatsAddr is the address the stats page listens on, empty when disabled.
func (r *Runner) StatsAddr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}
