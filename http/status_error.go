package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/valyala/fasthttp"
)

// StatusError is returned for responses outside [200, 300).
type StatusError struct {
	url    string
	status int
}

func (s StatusError) Status() int {
	return s.status
}

func (s StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", s.url, s.status)
}

type FailureKind uint8

const (
	FailureTransport FailureKind = iota
	FailureTimeout
	FailureStatus

	numFailureKinds
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureTimeout:
		return "timeout"
	case FailureStatus:
		return "bad-status"
	}
	return fmt.Sprintf("FailureKind(%d)", uint8(k))
}

// Failure is the error of every failed request.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	var se *StatusError
	if errors.As(err, &se) {
		return &Failure{Kind: FailureStatus, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, fasthttp.ErrTimeout) {
		return &Failure{Kind: FailureTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Failure{Kind: FailureTimeout, Err: err}
	}
	return &Failure{Kind: FailureTransport, Err: err}
}
