package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"net"
	"strings"
	"time"

	"github.com/olebeck/stress"
	"github.com/valyala/fasthttp"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 5 * time.Second

	maxRedirects = 16
)

// DefaultHeaders are sent with every request unless Options.Headers is set.
var DefaultHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/91.0.4472.124 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
}

type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

type Options struct {
	Headers         map[string]string
	FollowRedirects bool

	// InsecureSkipTLSVerify turns off certificate chain and hostname
	// verification for https targets. Any host can then impersonate the
	// target.
	InsecureSkipTLSVerify bool

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Result is the outcome of one GET. Err is nil exactly when the final
// response status was in [200, 300), otherwise it is a *Failure.
type Result struct {
	Start      time.Time
	Latency    time.Duration
	StatusCode int
	Err        error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Client issues GET requests, each on its own freshly dialed connection.
type Client struct {
	dialFunc  DialFunc
	opts      Options
	tlsConfig *tls.Config

	Stats Stats
}

func NewClient(dialFunc DialFunc, opts Options) *Client {
	if dialFunc == nil {
		var d net.Dialer
		dialFunc = func(ctx context.Context, addr string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	if opts.Headers == nil {
		opts.Headers = DefaultHeaders
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	return &Client{
		dialFunc: dialFunc,
		opts:     opts,
		tlsConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipTLSVerify,
		},
		Stats: Stats{
			RequestTimeMS: stress.NewMovingAverage(100),
		},
	}
}

// Get performs one GET against url. Cancelling ctx aborts the request by
// closing its connection.
func (h *Client) Get(ctx context.Context, url string) Result {
	req := fasthttp.AcquireRequest()
	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(res)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	for k, v := range h.opts.Headers {
		req.Header.Set(k, v)
	}
	req.SetConnectionClose()

	start := time.Now()
	status, err := h.Do(ctx, req, res)
	return Result{
		Start:      start,
		Latency:    time.Since(start),
		StatusCode: status,
		Err:        err,
	}
}

// Do sends req, following redirects when enabled. The returned status is 0
// when no response was read.
func (h *Client) Do(ctx context.Context, req *fasthttp.Request, res *fasthttp.Response) (int, error) {
	for redirects := 0; ; redirects++ {
		res.Reset()
		res.SkipBody = true
		if err := h.doOnce(ctx, req, res); err != nil {
			return 0, classify(err)
		}

		status := res.StatusCode()
		if h.opts.FollowRedirects && fasthttp.StatusCodeIsRedirect(status) {
			if redirects >= maxRedirects {
				return status, &Failure{Kind: FailureTransport, Err: fasthttp.ErrTooManyRedirects}
			}
			location := res.Header.Peek(fasthttp.HeaderLocation)
			if len(location) == 0 {
				return status, &Failure{Kind: FailureTransport, Err: fasthttp.ErrMissingLocation}
			}
			req.URI().UpdateBytes(location)
			h.Stats.Redirects.Add(1)
			continue
		}

		if status < 200 || status >= 300 {
			return status, &Failure{
				Kind: FailureStatus,
				Err:  &StatusError{url: req.URI().String(), status: status},
			}
		}
		return status, nil
	}
}

func (h *Client) doOnce(ctx context.Context, req *fasthttp.Request, res *fasthttp.Response) error {
	hc, err := h.NewConn(ctx, req.URI())
	if err != nil {
		return err
	}
	defer hc.Close()

	stop := context.AfterFunc(ctx, func() {
		hc.Close()
	})
	defer stop()

	return hc.DoTimeout(req, res, h.opts.ReadTimeout)
}

// NewConn dials the host of uri, doing the TLS handshake for https. Both are
// bounded by the connect timeout.
func (h *Client) NewConn(ctx context.Context, uri *fasthttp.URI) (*Conn, error) {
	h.Stats.TotalConnects.Add(1)
	isTLS := bytes.Equal(uri.Scheme(), []byte("https"))
	host, addr := hostAddr(string(uri.Host()), isTLS)

	dialCtx, cancel := context.WithTimeout(ctx, h.opts.ConnectTimeout)
	defer cancel()

	nc, err := h.dialFunc(dialCtx, addr)
	if err != nil {
		return nil, err
	}

	if isTLS {
		cfg := h.tlsConfig.Clone()
		cfg.ServerName = host
		tc := tls.Client(nc, cfg)
		if err := tc.HandshakeContext(dialCtx); err != nil {
			nc.Close()
			return nil, err
		}
		nc = tc
	}

	h.Stats.OpenConnections.Add(1)
	return &Conn{
		client: h,
		nc:     ncc{Conn: nc},
	}, nil
}

// hostAddr splits a URI host into the bare host name and a dialable
// host:port, adding the scheme's default port when none is given.
func hostAddr(uriHost string, isTLS bool) (host, addr string) {
	if h, _, err := net.SplitHostPort(uriHost); err == nil {
		return h, uriHost
	}
	host = strings.Trim(uriHost, "[]")
	port := "80"
	if isTLS {
		port = "443"
	}
	return host, net.JoinHostPort(host, port)
}
