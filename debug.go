package stress

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

var Commit struct {
	Hash     string
	Modified bool
}

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				Commit.Hash = setting.Value
			case "vcs.modified":
				Commit.Modified = setting.Value == "true"
			}
		}
	}
	if Commit.Hash == "" {
		Commit.Hash = "None"
	}
}

var errNoDebugPort = errors.New("no free debug port in 6060-6999")

// StartPprof serves net/http/pprof on the first free loopback port from 6060
// and returns the address it bound.
func StartPprof() (string, error) {
	for port := 6060; port < 7000; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		logrus.Debugf("Using Debug Port: %d", port)
		go func() {
			if err := http.Serve(listener, nil); err != nil {
				logrus.Errorf("pprof: %s", err)
			}
		}()
		return listener.Addr().String(), nil
	}
	return "", errNoDebugPort
}
