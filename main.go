package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/floedb/floe/crdb"
	"github.com/floedb/floe/datastore"
	"github.com/floedb/floe/gologger"
	"github.com/floedb/floe/http_server"
	"github.com/floedb/floe/metastore"
	"github.com/floedb/floe/migrations"
	"github.com/floedb/floe/utils"
)

var logger = gologger.NewLogger()

func main() {
	logger.Debug().Msg("starting floe write node")

	if err := crdb.ConnectToDB(); err != nil {
		logger.Error().Err(err).Msg("error connecting to CRDB")
		os.Exit(1)
	}

	err := migrations.CheckMigrations(utils.CRDB_DSN)
	if err != nil {
		logger.Error().Err(err).Msg("Error checking migrations")
		os.Exit(1)
	}

	ms, err := metastore.NewCRDBMetaStore(crdb.PGPool)
	if err != nil {
		logger.Error().Err(err).Msg("error creating CRDB metastore")
		os.Exit(1)
	}

	ds, err := datastore.NewS3DataStore()
	if err != nil {
		logger.Error().Err(err).Msg("error creating S3 datastore")
		os.Exit(1)
	}

	floe, err := NewFloe(ms, ds)
	if err != nil {
		logger.Error().Err(err).Msg("error creating floe")
		os.Exit(1)
	}

	httpServer := http_server.StartHTTPServer(floe.Writer)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn().Msg("received shutdown signal!")

	// For AWS ALB needing some time to de-register pod
	sleepTime := utils.GetEnvOrDefaultInt("SHUTDOWN_SLEEP_SEC", 0)
	logger.Info().Msg(fmt.Sprintf("sleeping for %ds before exiting", sleepTime))

	time.Sleep(time.Second * time.Duration(sleepTime))
	logger.Info().Msg(fmt.Sprintf("slept for %ds, exiting", sleepTime))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server")
	} else {
		logger.Info().Msg("successfully shutdown HTTP server")
	}

	if err := floe.MetaStore.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown metastore")
	}
	if err := floe.DataStore.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown datastore")
	}
}
