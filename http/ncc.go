package http

import "net"

// ncc holds back the first byte read by Wait and replays it on the next Read.
type ncc struct {
	net.Conn
	peeked  [1]byte
	pending bool
}

func (nc *ncc) Read(b []byte) (int, error) {
	if nc.pending && len(b) > 0 {
		nc.pending = false
		b[0] = nc.peeked[0]
		return 1, nil
	}
	return nc.Conn.Read(b)
}

// Wait blocks until the peer sends something, the read deadline passes or the
// connection is closed.
func (nc *ncc) Wait() error {
	for !nc.pending {
		n, err := nc.Conn.Read(nc.peeked[:])
		if n == 1 {
			nc.pending = true
		}
		if err != nil && !nc.pending {
			return err
		}
	}
	return nil
}
