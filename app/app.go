package app

import (
	"fmt"
	"os"
	"time"

	"github.com/coinchain/coinchaind/infrastructure/config"
	"github.com/coinchain/coinchaind/infrastructure/logger"
	"github.com/coinchain/coinchaind/infrastructure/os/execenv"
	"github.com/coinchain/coinchaind/infrastructure/os/signal"
	"github.com/coinchain/coinchaind/util/panics"
	"github.com/coinchain/coinchaind/util/profiling"
	"github.com/coinchain/coinchaind/version"
)

type coinchaindApp struct {
	cfg *config.Config
}

// StartApp starts the coinchaind app, and blocks until it finishes running
func StartApp() error {
	err := execenv.Initialize()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	// Load configuration and parse command line.
	cfg, _, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	err = logger.InitLog(cfg.LogFile, cfg.ErrLogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logger.BackendLog.Close()
	defer panics.HandlePanic(log, nil)

	app := &coinchaindApp{cfg: cfg}
	return app.main(nil)
}

func (app *coinchaindApp) main(startedChan chan<- struct{}) error {
	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem such as the metrics server.
	interrupt := signal.InterruptListener()
	defer log.Info("Shutdown complete")

	// Show version at startup.
	log.Infof("Version %s", version.Version())
	log.Infof("Running on %s", app.cfg.NetParams().Name)

	// Enable http profiling server if requested.
	if app.cfg.Profile != "" {
		profileServer := profiling.Start(app.cfg.Profile, log)
		defer profileServer.Close()
	}

	// Return now if an interrupt signal was triggered.
	if signal.InterruptRequested(interrupt) {
		return nil
	}

	db, err := openDB(app.cfg)
	if err != nil {
		log.Errorf("Loading database failed: %+v", err)
		return err
	}
	defer func() {
		log.Infof("Gracefully shutting down the database...")
		err := db.Close()
		if err != nil {
			log.Errorf("Failed to close the database: %s", err)
		}
	}()

	componentManager, err := NewComponentManager(app.cfg, db)
	if err != nil {
		log.Errorf("Unable to start coinchaind: %+v", err)
		return err
	}
	defer func() {
		log.Infof("Gracefully shutting down coinchaind...")

		shutdownDone := make(chan struct{}, 1)
		go func() {
			componentManager.Stop()
			shutdownDone <- struct{}{}
		}()

		const shutdownTimeout = 2 * time.Minute
		select {
		case <-shutdownDone:
		case <-time.After(shutdownTimeout):
			log.Criticalf("Graceful shutdown timed out %s. Terminating...", shutdownTimeout)
		}
		log.Infof("Coinchaind shutdown complete")
	}()

	if app.cfg.ImportFile != "" {
		_, err := importBlockFile(componentManager.Chain(), app.cfg.ImportFile, interrupt)
		if err != nil {
			log.Errorf("Importing %s failed: %+v", app.cfg.ImportFile, err)
			return err
		}
	}

	componentManager.Start()

	if startedChan != nil {
		startedChan <- struct{}{}
	}

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems.
	<-interrupt
	return nil
}
