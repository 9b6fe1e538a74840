// stress-collector receives the reports pushed by stress runs and keeps them
// in one stats db.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/olebeck/stress"
	"github.com/olebeck/stress/stats/statsdb"
	"github.com/olebeck/stress/stats/statspush"
	"github.com/sirupsen/logrus"
)

const (
	listenAddr = "0.0.0.0:8095"
	password   = "changeme"
	statsDB    = "collector.db"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.Infof("stress-collector commit %s", stress.Commit.Hash)

	store, err := statsdb.NewStore(statsDB)
	if err != nil {
		logrus.Fatal(err)
	}
	defer store.Close()

	server := statspush.NewServer(password)
	if err := server.Listen(listenAddr); err != nil {
		logrus.Fatal(err)
	}
	defer server.Close()
	logrus.Infof("listening on %s", server.Address())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	known := make(map[uuid.UUID]bool)
	server.Process(ctx, func(sessionID uuid.UUID, msg statspush.Message) {
		if !known[sessionID] {
			msg.Info.ID = sessionID
			if err := store.AddSession(msg.Info); err != nil {
				logrus.Errorf("add session %s: %s", sessionID, err)
				return
			}
			known[sessionID] = true
		}
		if err := store.HandleSubmit(ctx, sessionID, msg.Snapshot); err != nil {
			logrus.Errorf("submit %s: %s", sessionID, err)
			return
		}
		logrus.WithFields(logrus.Fields{
			"run":    sessionID,
			"target": msg.Info.Target,
			"label":  msg.Snapshot.Label,
			"total":  msg.Snapshot.Total,
			"qps":    msg.Snapshot.QPS,
		}).Info("report")
	})
}
