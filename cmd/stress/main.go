package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olebeck/stress"
	"github.com/olebeck/stress/runner"
	"github.com/sirupsen/logrus"
)

const (
	targetURL       = "https://example.com/"
	workers         = 300
	requestInterval = 0 * time.Millisecond
	followRedirects = false

	// insecureSkipTLSVerify accepts any certificate for any host name.
	// Only for targets you own.
	insecureSkipTLSVerify = false

	// statsDB keeps the history of runs in sqlite, empty disables it.
	statsDB = ""
	// statsAddr serves the live stats page and /metrics, empty disables it.
	statsAddr = ""
	// statsPush pushes every report to a stress-collector, empty disables it.
	statsPush = ""

	debug = false
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.Infof("stress commit %s", stress.Commit.Hash)

	cfg := runner.DefaultConfig()
	cfg.TargetURL = targetURL
	cfg.Workers = workers
	cfg.Delay = requestInterval
	cfg.FollowRedirects = followRedirects
	cfg.InsecureSkipTLSVerify = insecureSkipTLSVerify
	cfg.StatsDB = statsDB
	cfg.StatsAddr = statsAddr
	cfg.StatsPush = statsPush
	cfg.Pprof = debug

	r, err := runner.New(cfg, os.Stdout)
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalC
		logrus.Infof("received %s, stopping", sig)
		cancel()
		signal.Stop(signalC)
	}()

	if _, err := r.Run(ctx); err != nil {
		logrus.Fatal(err)
	}
}
