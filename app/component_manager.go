package app

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coinchain/coinchaind/domain/consensus/blockchain"
	"github.com/coinchain/coinchaind/domain/consensus/chainstore"
	"github.com/coinchain/coinchaind/domain/consensus/stats"
	"github.com/coinchain/coinchaind/infrastructure/config"
	infrastructuredatabase "github.com/coinchain/coinchaind/infrastructure/db/database"
	"github.com/coinchain/coinchaind/infrastructure/os/signal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdownTimeout = 5 * time.Second

// ComponentManager is a wrapper for all the coinchaind services
type ComponentManager struct {
	cfg           *config.Config
	chain         *blockchain.BlockChain
	registry      *prometheus.Registry
	metricsServer *http.Server

	quit     chan struct{}
	loopDone sync.WaitGroup

	started, shutdown int32
}

// Start launches all the coinchaind services.
func (a *ComponentManager) Start() {
	// Already started?
	if atomic.AddInt32(&a.started, 1) != 1 {
		return
	}

	log.Trace("Starting coinchaind")

	if a.cfg.MetricsListen != "" {
		a.startMetricsServer()
	}
	if a.chain.LazyPurging() {
		a.loopDone.Add(1)
		spawn(a.purgeLoop)
	}
}

// Stop gracefully shuts down all the coinchaind services.
func (a *ComponentManager) Stop() {
	// Make sure this only happens once.
	if atomic.AddInt32(&a.shutdown, 1) != 1 {
		log.Infof("Coinchaind is already in the process of shutting down")
		return
	}

	log.Warnf("Coinchaind shutting down")

	close(a.quit)
	a.loopDone.Wait()

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		err := a.metricsServer.Shutdown(ctx)
		if err != nil {
			log.Errorf("Error stopping the metrics server: %+v", err)
		}
	}

	err := a.chain.Close()
	if err != nil {
		log.Errorf("Error closing the chain: %+v", err)
	}
}

// Chain returns the chain run by this ComponentManager.
func (a *ComponentManager) Chain() *blockchain.BlockChain {
	return a.chain
}

// NewComponentManager returns a new ComponentManager instance.
// Use Start() to begin all services within this ComponentManager
func NewComponentManager(cfg *config.Config, db infrastructuredatabase.Database) (*ComponentManager, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	chain, err := blockchain.New(&blockchain.Config{
		Params:            cfg.ActiveNetParams,
		DatabaseContext:   chainstore.New(db),
		Observer:          stats.NewPrometheusObserver(registry),
		PurgeDepth:        cfg.PurgeDepth,
		LazyPurging:       cfg.LazyPurging,
		ValidationDepth:   cfg.ValidationDepth,
		VerificationDepth: cfg.VerificationDepth,
		ScriptToUnspents:  cfg.ScriptToUnspents,
		MaxOrphanBlocks:   cfg.ActiveNetParams.MaxOrphanBlocks,
	})
	if err != nil {
		return nil, err
	}

	return &ComponentManager{
		cfg:      cfg,
		chain:    chain,
		registry: registry,
		quit:     make(chan struct{}),
	}, nil
}

func (a *ComponentManager) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	a.metricsServer = &http.Server{
		Addr:              a.cfg.MetricsListen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	server := a.metricsServer
	spawn(func() {
		log.Infof("Metrics server listening on %s", server.Addr)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server failed: %s", err)
			signal.ShutdownRequestChannel <- struct{}{}
		}
	})
}

// purgeLoop runs the pending lazy purge work every PurgeInterval until the
// manager stops.
func (a *ComponentManager) purgeLoop() {
	defer a.loopDone.Done()

	ticker := time.NewTicker(a.cfg.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !a.chain.PurgePending() {
				continue
			}
			err := a.chain.Purge()
			if err != nil {
				log.Errorf("Lazy purge failed: %+v", err)
			}
		case <-a.quit:
			return
		}
	}
}
