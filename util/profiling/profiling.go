package profiling

import (
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/coinchain/coinchaind/infrastructure/logger"
	"github.com/coinchain/coinchaind/util/panics"
)

// Handler returns the pprof endpoints under /debug/pprof/. The root path
// redirects to the profile index.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/", http.RedirectHandler("/debug/pprof/", http.StatusSeeOther))
	return mux
}

// Start starts the profiling server on port and returns it so it can be
// shut down.
func Start(port string, log *logger.Logger) *http.Server {
	server := &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	spawn := panics.GoroutineWrapperFunc(log)
	spawn(func() {
		log.Infof("Profile server listening on %s", server.Addr)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("Profile server failed: %s", err)
		}
	})
	return server
}
