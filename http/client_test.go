package http

import (
	"context"
	"errors"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func closedAddr(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func requireFailure(t *testing.T, err error, kind FailureKind) *Failure {
	t.Helper()
	var f *Failure
	require.True(t, errors.As(err, &f), "expected *Failure, got %v", err)
	require.Equal(t, kind, f.Kind, "failure: %v", err)
	return f
}

func TestGetSuccess(t *testing.T) {
	type seen struct {
		header nethttp.Header
		close  bool
		method string
	}
	seenC := make(chan seen, 1)
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		seenC <- seen{header: r.Header.Clone(), close: r.Close, method: r.Method}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewClient(nil, Options{})
	res := client.Get(context.Background(), srv.URL+"/")
	require.NoError(t, res.Err)
	require.True(t, res.OK())
	require.Equal(t, 200, res.StatusCode)
	require.GreaterOrEqual(t, res.Latency, time.Duration(0))

	s := <-seenC
	require.Equal(t, nethttp.MethodGet, s.method)
	require.True(t, s.close, "request should ask to close the connection")
	for k, v := range DefaultHeaders {
		require.Equal(t, v, s.header.Get(k), k)
	}

	require.EqualValues(t, 1, client.Stats.TotalConnects.Load())
	require.EqualValues(t, 0, client.Stats.OpenConnections.Load())
}

func TestGetCustomHeaders(t *testing.T) {
	headerC := make(chan nethttp.Header, 1)
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		headerC <- r.Header.Clone()
	}))
	defer srv.Close()

	client := NewClient(nil, Options{Headers: map[string]string{"X-Test": "yes"}})
	res := client.Get(context.Background(), srv.URL+"/")
	require.NoError(t, res.Err)

	h := <-headerC
	require.Equal(t, "yes", h.Get("X-Test"))
	require.NotEqual(t, DefaultHeaders["User-Agent"], h.Get("User-Agent"))
}

func TestGetBadStatus(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(nil, Options{})
	res := client.Get(context.Background(), srv.URL+"/")
	require.False(t, res.OK())
	require.Equal(t, nethttp.StatusServiceUnavailable, res.StatusCode)
	requireFailure(t, res.Err, FailureStatus)

	var se *StatusError
	require.True(t, errors.As(res.Err, &se))
	require.Equal(t, nethttp.StatusServiceUnavailable, se.Status())
}

func TestGetConnectionRefused(t *testing.T) {
	client := NewClient(nil, Options{})
	res := client.Get(context.Background(), "http://"+closedAddr(t)+"/")
	require.False(t, res.OK())
	require.Equal(t, 0, res.StatusCode)
	requireFailure(t, res.Err, FailureTransport)
	require.EqualValues(t, 0, client.Stats.OpenConnections.Load())
}

func TestGetReadTimeout(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(nil, Options{ReadTimeout: 50 * time.Millisecond})
	res := client.Get(context.Background(), srv.URL+"/")
	requireFailure(t, res.Err, FailureTimeout)
	require.Less(t, res.Latency, time.Second)
}

func TestGetRedirects(t *testing.T) {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/start", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.Redirect(w, r, "/end", nethttp.StatusFound)
	})
	mux.HandleFunc("/end", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, _ = w.Write([]byte("end"))
	})
	mux.HandleFunc("/loop", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.Redirect(w, r, "/loop", nethttp.StatusFound)
	})
	mux.HandleFunc("/nolocation", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	t.Run("not followed", func(t *testing.T) {
		client := NewClient(nil, Options{})
		res := client.Get(context.Background(), srv.URL+"/start")
		require.Equal(t, nethttp.StatusFound, res.StatusCode)
		requireFailure(t, res.Err, FailureStatus)
		require.EqualValues(t, 0, client.Stats.Redirects.Load())
	})

	t.Run("followed", func(t *testing.T) {
		client := NewClient(nil, Options{FollowRedirects: true})
		res := client.Get(context.Background(), srv.URL+"/start")
		require.NoError(t, res.Err)
		require.Equal(t, 200, res.StatusCode)
		require.EqualValues(t, 1, client.Stats.Redirects.Load())
		require.EqualValues(t, 2, client.Stats.TotalConnects.Load())
	})

	t.Run("too many", func(t *testing.T) {
		client := NewClient(nil, Options{FollowRedirects: true})
		res := client.Get(context.Background(), srv.URL+"/loop")
		f := requireFailure(t, res.Err, FailureTransport)
		require.ErrorIs(t, f, fasthttp.ErrTooManyRedirects)
		require.EqualValues(t, maxRedirects+1, client.Stats.TotalConnects.Load())
	})

	t.Run("missing location", func(t *testing.T) {
		client := NewClient(nil, Options{FollowRedirects: true})
		res := client.Get(context.Background(), srv.URL+"/nolocation")
		f := requireFailure(t, res.Err, FailureTransport)
		require.ErrorIs(t, f, fasthttp.ErrMissingLocation)
	})
}

func TestGetTLS(t *testing.T) {
	srv := httptest.NewTLSServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer srv.Close()

	t.Run("verified by default", func(t *testing.T) {
		client := NewClient(nil, Options{})
		res := client.Get(context.Background(), srv.URL+"/")
		requireFailure(t, res.Err, FailureTransport)
	})

	t.Run("insecure skip verify", func(t *testing.T) {
		client := NewClient(nil, Options{InsecureSkipTLSVerify: true})
		res := client.Get(context.Background(), srv.URL+"/")
		require.NoError(t, res.Err)
		require.Equal(t, 200, res.StatusCode)
	})
}

func TestGetCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	res := client.Get(ctx, srv.URL+"/")
	require.Error(t, res.Err)
	require.Less(t, time.Since(start), 2*time.Second)
	require.EqualValues(t, 0, client.Stats.OpenConnections.Load())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	require.Equal(t, FailureTimeout, classify(timeoutErr{}).Kind)
	require.Equal(t, FailureTimeout, classify(context.DeadlineExceeded).Kind)
	require.Equal(t, FailureStatus, classify(&StatusError{status: 404}).Kind)
	require.Equal(t, FailureTransport, classify(errors.New("boom")).Kind)

	f := &Failure{Kind: FailureTimeout, Err: errors.New("x")}
	require.Same(t, f, classify(f))
}

func TestHostAddr(t *testing.T) {
	for _, tc := range []struct {
		in         string
		tls        bool
		host, addr string
	}{
		{"example.com", false, "example.com", "example.com:80"},
		{"example.com", true, "example.com", "example.com:443"},
		{"example.com:8443", true, "example.com", "example.com:8443"},
		{"[::1]", false, "::1", "[::1]:80"},
		{"[::1]:9000", false, "::1", "[::1]:9000"},
	} {
		host, addr := hostAddr(tc.in, tc.tls)
		require.Equal(t, tc.host, host, tc.in)
		require.Equal(t, tc.addr, addr, tc.in)
	}
}
