package http

import (
	"bufio"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

const connBufferSize = 4096

var (
	writers = sync.Pool{New: func() any { return bufio.NewWriterSize(nil, connBufferSize) }}
	readers = sync.Pool{New: func() any { return bufio.NewReaderSize(nil, connBufferSize) }}
)

// Conn is a single use connection to the target. Close is safe to call from
// another goroutine to abort a request in flight.
type Conn struct {
	client       *Client
	nc           ncc
	closed       atomic.Bool
	RequestsSent int
}

func (hc *Conn) Closed() bool {
	return hc.closed.Load()
}

func (hc *Conn) Close() error {
	if !hc.closed.CompareAndSwap(false, true) {
		return nil
	}
	hc.client.Stats.OpenConnections.Add(-1)
	return hc.nc.Conn.Close()
}

// DoTimeout writes req and reads the response header into res. timeout bounds
// the write and, separately, the wait for the response. The connection is
// closed on any error.
func (hc *Conn) DoTimeout(req *fasthttp.Request, res *fasthttp.Response, timeout time.Duration) error {
	hc.RequestsSent++
	err := hc.send(req, time.Now().Add(timeout))
	if err == nil {
		err = hc.receive(res, time.Now().Add(timeout))
	}
	if err != nil {
		hc.Close()
	}
	return err
}

func (hc *Conn) send(req *fasthttp.Request, deadline time.Time) error {
	if err := hc.nc.SetWriteDeadline(deadline); err != nil {
		return err
	}
	bw := writers.Get().(*bufio.Writer)
	bw.Reset(hc.nc.Conn)
	defer func() {
		bw.Reset(nil)
		writers.Put(bw)
	}()
	if err := req.Write(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// receive blocks until the first response byte arrives before handing the
// connection to the response parser.
func (hc *Conn) receive(res *fasthttp.Response, deadline time.Time) error {
	if err := hc.nc.SetReadDeadline(deadline); err != nil {
		return err
	}
	if err := hc.nc.Wait(); err != nil {
		return err
	}
	br := readers.Get().(*bufio.Reader)
	br.Reset(&hc.nc)
	defer func() {
		br.Reset(nil)
		readers.Put(br)
	}()
	return res.Read(br)
}
