package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/landohd/landohd/internal/bridge"
	"github.com/landohd/landohd/internal/config"
	"github.com/landohd/landohd/internal/coordinator"
	"github.com/landohd/landohd/internal/identity"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	envPath := flag.String("env", ".env", "path to ambient config file")
	nickname := flag.String("nickname", "", "display name for a freshly generated identity")
	destination := flag.String("destination", ".", "directory downloaded files land in")
	flag.Parse()

	logrus.Info("landohd starting up")

	if abs, err := filepath.Abs(*envPath); err == nil {
		if err := config.Read(abs); err != nil {
			logrus.WithError(err).Warn("could not read ambient config, using defaults")
		}
	}

	id, err := identity.Load()
	if err != nil {
		logrus.WithError(err).Info("no existing identity found, generating one")
		id = identity.New(*nickname, *destination, config.GetTransferAddress())
		if err := id.Save(); err != nil {
			logrus.WithError(err).Fatal("failed to persist new identity")
		}
	}

	started := time.Now().UTC()

	ctx, cancel := context.WithCancel(context.Background())

	coord := coordinator.New(id, config.GetConcurrencyFactor())
	go coord.Run(ctx)

	st := id.Snapshot()
	if err := coord.StartServe(st.Address); err != nil {
		logrus.WithError(err).Error("failed to start transfer server")
		os.Exit(2)
	}
	if err := coord.StartListen(); err != nil {
		logrus.WithError(err).Error("failed to start discovery listener")
	}
	if err := coord.StartBroadcast(); err != nil {
		logrus.WithError(err).Error("failed to start announcer")
	}

	br := bridge.New(coord)
	go br.Forward(ctx, coord.Events())
	go func() {
		if err := br.Start(config.GetBridgeAddress()); err != nil {
			logrus.WithError(err).Info("bridge server stopped")
		}
	}()

	interruptChan := make(chan os.Signal, 1)
	signal.Notify(interruptChan, syscall.SIGTERM, syscall.SIGINT)

	<-interruptChan
	logrus.Info("shutdown signal received, winding down")

	// Exit must be sent before the context is canceled: it is itself the
	// command that tears down every subsystem and stops the command
	// loop, and the loop's select treats ctx.Done() and <-c.cmds as
	// racing cases — canceling first could make Run take the ctx.Done()
	// branch and return with nobody left to receive this command, which
	// would block Exit (and this shutdown) forever.
	if err := coord.Exit(); err != nil {
		logrus.WithError(err).Warn("coordinator exit reported an error")
	}
	cancel()
	if err := br.Shutdown(); err != nil {
		logrus.WithError(err).Warn("bridge shutdown reported an error")
	}

	logrus.WithField("uptime", time.Since(started).String()).Info("landohd shut down gracefully")
}
