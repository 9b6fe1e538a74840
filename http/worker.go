package http

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrStopTimeout = errors.New("stop timeout, in-flight requests cancelled")

// Pool runs a fixed number of workers, each sending GET requests to one url
// in a loop and recording the results in the client's Stats.
type Pool struct {
	client  *Client
	url     string
	workers int
	delay   time.Duration

	group errgroup.Group

	// stopC is closed when no new iterations may start
	stopC chan struct{}

	// ctx is cancelled to abandon requests still in flight
	ctx    context.Context
	cancel context.CancelFunc

	isStopping atomic.Bool
	running    atomic.Int32
}

func NewPool(client *Client, url string, workers int, delay time.Duration) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		client:  client,
		url:     url,
		workers: workers,
		delay:   delay,
		stopC:   make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. It does nothing once Stop was called.
func (p *Pool) Start() {
	if p.isStopping.Load() {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.running.Add(1)
		p.group.Go(func() error {
			defer p.running.Add(-1)
			p.work()
			return nil
		})
	}
}

// Running is the number of workers that have not exited yet.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

func (p *Pool) work() {
	for {
		select {
		case <-p.stopC:
			return
		default:
		}

		res := p.client.Get(p.ctx, p.url)
		if p.ctx.Err() != nil {
			// abandoned by Stop, not a result
			return
		}
		p.client.Stats.Record(res)

		if p.delay > 0 {
			t := time.NewTimer(p.delay)
			select {
			case <-p.stopC:
				t.Stop()
				return
			case <-t.C:
			}
		}
	}
}

// Stop keeps workers from starting new requests and waits up to timeout for
// the running ones. Requests still in flight after that are cancelled and
// ErrStopTimeout is returned. Stop returns only after every worker exited.
func (p *Pool) Stop(timeout time.Duration) error {
	if !p.isStopping.CompareAndSwap(false, true) {
		return nil
	}
	close(p.stopC)

	doneC := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(doneC)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-doneC:
		p.cancel()
		return nil
	case <-t.C:
		p.cancel()
		<-doneC
		return ErrStopTimeout
	}
}
