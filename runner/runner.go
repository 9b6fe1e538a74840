package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/olebeck/stress"
	stresshttp "github.com/olebeck/stress/http"
	"github.com/olebeck/stress/stats"
	"github.com/olebeck/stress/stats/statsdb"
	"github.com/olebeck/stress/stats/statspush"
	"github.com/olebeck/stress/stats/statssender"
	"github.com/sirupsen/logrus"
)

var errAlreadyUsed = errors.New("runner already used")

type State int32

const (
	Idle State = iota
	Running
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Runner drives one load test: it starts the workers and the reporter, and on
// cancellation drains the workers and reports the final stats.
type Runner struct {
	cfg    Config
	out    io.Writer
	log    *logrus.Entry
	dialer *stress.Dialer
	client *stresshttp.Client
	pool   *stresshttp.Pool
	info   stats.Info
	state  atomic.Int32
	used   atomic.Bool

	store    *statsdb.Store
	pusher   *statspush.Client
	server   *fiber.App
	listener net.Listener
}

// New validates cfg and prepares a run. Reports are written to out.
func New(cfg Config, out io.Writer) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := stress.NewDialer()
	client := stresshttp.NewClient(dialer.DialContext, stresshttp.Options{
		Headers:               cfg.Headers,
		FollowRedirects:       cfg.FollowRedirects,
		InsecureSkipTLSVerify: cfg.InsecureSkipTLSVerify,
		ConnectTimeout:        cfg.ConnectTimeout,
		ReadTimeout:           cfg.ReadTimeout,
	})

	return &Runner{
		cfg:    cfg,
		out:    out,
		log:    logrus.WithField("part", "Runner"),
		dialer: dialer,
		client: client,
		pool:   stresshttp.NewPool(client, cfg.TargetURL, cfg.Workers, cfg.Delay),
		info: stats.Info{
			ID:      uuid.New(),
			Target:  cfg.TargetURL,
			Workers: cfg.Workers,
			Delay:   cfg.Delay,
		},
	}, nil
}

func (r *Runner) State() State {
	return State(r.state.Load())
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
	r.log.Infof("state: %s", s)
}

func (r *Runner) Info() stats.Info {
	return r.info
}

// Stats are the live counters of the run.
func (r *Runner) Stats() *stresshttp.Stats {
	return &r.client.Stats
}

// Snapshot reads the counters now.
func (r *Runner) Snapshot(label stats.Label) stats.Snapshot {
	s := stats.Take(label, r.client.Stats.Counts(), r.info.Start, time.Now())
	s.RecentLatencyMS = r.client.Stats.RecentLatencyMS()
	return s
}

// Run blocks until ctx is done, then drains the workers for at most the
// configured drain timeout and returns the final snapshot. Run may only be
// called once.
func (r *Runner) Run(ctx context.Context) (stats.Snapshot, error) {
	if !r.used.CompareAndSwap(false, true) {
		return stats.Snapshot{}, errAlreadyUsed
	}
	r.info.Start = time.Now()

	if r.cfg.InsecureSkipTLSVerify {
		r.log.Warn("TLS certificate verification is DISABLED, the target is not authenticated")
	}

	sinks := []statssender.Sink{
		stats.NewPrinter(r.out, r.info),
		statssender.SinkFunc(r.logSnapshot),
	}
	if err := r.open(); err != nil {
		r.close()
		r.state.Store(int32(Stopped))
		return stats.Snapshot{}, err
	}
	defer r.close()
	if r.store != nil {
		sinks = append(sinks, r.store)
	}
	if r.pusher != nil {
		sinks = append(sinks, r.pusher)
	}
	sender := statssender.New(r.cfg.ReportInterval, r.Snapshot, sinks...)

	bgCtx, stopBg := context.WithCancel(context.Background())
	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		sender.Run(bgCtx)
	}()
	if r.cfg.DNSRefreshInterval > 0 {
		bg.Add(1)
		go func() {
			defer bg.Done()
			r.dialer.RunRefresh(bgCtx, r.cfg.DNSRefreshInterval)
		}()
	}

	r.log.WithFields(logrus.Fields{
		"target":  r.cfg.TargetURL,
		"workers": r.cfg.Workers,
		"delay":   r.cfg.Delay,
		"run":     r.info.ID,
	}).Info("starting")
	r.setState(Running)
	r.pool.Start()

	<-ctx.Done()

	r.setState(Draining)
	if err := r.pool.Stop(r.cfg.DrainTimeout); err != nil {
		r.log.Warnf("drain: %s", err)
	}
	stopBg()
	bg.Wait()
	r.setState(Stopped)

	return sender.Final(context.Background()), nil
}

func (r *Runner) logSnapshot(_ context.Context, s stats.Snapshot) error {
	r.log.WithFields(logrus.Fields{
		"label":      s.Label,
		"total":      s.Total,
		"connects":   r.client.Stats.TotalConnects.Load(),
		"open_conns": r.client.Stats.OpenConnections.Load(),
		"redirects":  r.client.Stats.Redirects.Load(),
		"recent_ms":  s.RecentLatencyMS,
		"workers":    r.pool.Running(),
	}).Debug("stats")
	return nil
}

// open starts the optional parts of a run.
func (r *Runner) open() (err error) {
	if r.cfg.Pprof {
		addr, err := stress.StartPprof()
		if err != nil {
			r.log.Warnf("pprof: %s", err)
		} else {
			r.log.Infof("pprof on http://%s/debug/pprof/", addr)
		}
	}

	if r.cfg.StatsDB != "" {
		r.store, err = statsdb.NewStore(r.cfg.StatsDB)
		if err != nil {
			return fmt.Errorf("open stats db: %w", err)
		}
		if err = r.store.NewSession(r.info); err != nil {
			return fmt.Errorf("new session: %w", err)
		}
	}

	if r.cfg.StatsPush != "" {
		if r.pusher, err = statspush.NewClient(r.cfg.StatsPush, r.info); err != nil {
			return fmt.Errorf("stats push: %w", err)
		}
	}

	if r.cfg.StatsAddr != "" {
		if err = r.startServer(); err != nil {
			return fmt.Errorf("stats server: %w", err)
		}
	}
	return nil
}

func (r *Runner) close() {
	if r.server != nil {
		if err := r.server.ShutdownWithTimeout(2 * time.Second); err != nil {
			r.log.Errorf("stats server shutdown: %s", err)
		}
		r.server = nil
	}
	if r.pusher != nil {
		if err := r.pusher.Close(); err != nil {
			r.log.Debugf("close stats push: %s", err)
		}
		r.pusher = nil
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.Errorf("close stats db: %s", err)
		}
		r.store = nil
	}
}
