// Package statspush ships snapshots over a websocket to a collector, so that
// several load generators can be watched from one place.
package statspush

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/olebeck/stress/stats"
	"github.com/sirupsen/logrus"
)

const (
	headerSession  = "X-session"
	headerPassword = "X-password"
)

var dialer = websocket.Dialer{
	Proxy:            http.ProxyFromEnvironment,
	HandshakeTimeout: 5 * time.Second,
}

// Message is one pushed snapshot.
type Message struct {
	Info     stats.Info
	Snapshot stats.Snapshot
}

type Client struct {
	l        sync.Mutex
	c        *websocket.Conn
	log      *logrus.Entry
	url      *url.URL
	password string
	info     stats.Info
	retries  uint64
}

// NewClient parses uri (ws:// or wss://). A user name in uri is sent as the
// collector password.
func NewClient(uri string, info stats.Info) (*Client, error) {
	_uri, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	if _uri.Scheme != "ws" && _uri.Scheme != "wss" {
		return nil, fmt.Errorf("stats push url scheme %q, want ws or wss", _uri.Scheme)
	}
	var password string
	if _uri.User != nil {
		password = _uri.User.Username()
		_uri.User = nil
	}
	return &Client{
		log:      logrus.WithField("part", "StatsPushClient"),
		url:      _uri,
		password: password,
		info:     info,
		retries:  3,
	}, nil
}

// caller holds l
func (q *Client) connect(ctx context.Context) (err error) {
	if q.c != nil {
		q.c.Close()
		q.c = nil
	}
	h := http.Header{}
	h.Add(headerSession, q.info.ID.String())
	h.Add(headerPassword, q.password)
	c, res, err := dialer.DialContext(ctx, q.url.String(), h)
	if err != nil {
		if res != nil {
			return fmt.Errorf("%w (%s)", err, res.Status)
		}
		return err
	}
	q.c = c
	return nil
}

// Send implements statssender.Sink. A broken connection is redialed a few
// times with exponential backoff before the snapshot is given up.
func (q *Client) Send(ctx context.Context, s stats.Snapshot) error {
	data, err := json.Marshal(Message{Info: q.info, Snapshot: s})
	if err != nil {
		return err
	}

	q.l.Lock()
	defer q.l.Unlock()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.MaxElapsedTime = 5 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(eb, q.retries), ctx)

	return backoff.RetryNotify(func() error {
		if q.c == nil {
			if err := q.connect(ctx); err != nil {
				return err
			}
		}
		if err := q.c.WriteMessage(websocket.TextMessage, data); err != nil {
			q.c.Close()
			q.c = nil
			return err
		}
		return nil
	}, b, func(err error, next time.Duration) {
		q.log.Warnf("Push: %s, retrying in %s", err, next)
	})
}

func (q *Client) Close() error {
	q.l.Lock()
	defer q.l.Unlock()
	if q.c == nil {
		return nil
	}
	err := q.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	q.c.Close()
	q.c = nil
	return err
}

type push struct {
	Session uuid.UUID
	Message Message
}

// Server collects pushed snapshots.
type Server struct {
	pushes   chan push
	listener net.Listener
	server   *http.Server
	log      *logrus.Entry
	password string
}

func NewServer(password string) *Server {
	return &Server{
		pushes:   make(chan push, 1000),
		log:      logrus.WithField("part", "StatsPushServer"),
		password: password,
	}
}

func (q *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	q.listener = ln
	go q.serve()
	return nil
}

func (q *Server) serve() {
	mux := http.NewServeMux()
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		session, err := uuid.Parse(r.Header.Get(headerSession))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if r.Header.Get(headerPassword) != q.password {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			q.log.Warn("Unauthorized request")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			q.log.Error(err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					q.log.Warn(err)
				}
				return
			}
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				q.log.Warnf("bad message from %s: %s", session, err)
				return
			}
			q.pushes <- push{Session: session, Message: msg}
		}
	})

	q.server = &http.Server{Handler: mux}
	if err := q.server.Serve(q.listener); err != nil && err != http.ErrServerClosed {
		q.log.Error(err)
	}
}

func (q *Server) Address() string {
	return q.listener.Addr().String()
}

// Process calls proc for every received snapshot until ctx is done.
func (q *Server) Process(ctx context.Context, proc func(sessionID uuid.UUID, msg Message)) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-q.pushes:
			proc(p.Session, p.Message)
		}
	}
}

func (q *Server) Close() error {
	return q.listener.Close()
}
