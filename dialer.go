package stress

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/dnscache"
	"github.com/sirupsen/logrus"
)

// Dialer opens a new TCP connection on every call. Host lookups go through a
// dnscache.Resolver so that one connection per request does not also mean
// one DNS query per request.
type Dialer struct {
	resolver  *dnscache.Resolver
	dialer    net.Dialer
	dialCount atomic.Uint32
}

func NewDialer() *Dialer {
	return &Dialer{
		resolver: &dnscache.Resolver{
			Resolver: net.DefaultResolver,
			OnCacheMiss: func() {
				logrus.Debug("Dns Lookup!")
			},
		},
	}
}

// Refresh re-resolves cached hosts and drops the ones not used since the
// previous refresh.
func (d *Dialer) Refresh() {
	d.resolver.Refresh(true)
}

// RunRefresh calls Refresh every interval until ctx is done.
func (d *Dialer) RunRefresh(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.Refresh()
		}
	}
}

// DialContext connects to addr (host:port). Resolved addresses are rotated
// across calls; on failure the remaining addresses are tried in order.
func (d *Dialer) DialContext(ctx context.Context, addr string) (conn net.Conn, err error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}

	idx := int(d.dialCount.Add(1)) % len(ips)
	conn, err = d.dialer.DialContext(ctx, "tcp", net.JoinHostPort(ips[idx], port))
	if err == nil {
		return conn, nil
	}

	for i, ip := range ips {
		if i == idx {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		conn, err = d.dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, port))
		if err == nil {
			break
		}
	}
	return conn, err
}
