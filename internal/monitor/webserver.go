// Package monitor serves live views of the ball filter on the /debug/ index:
// the current hypothesis set as JSON, an ECharts scatter of the field, and
// the per-cycle debug trace.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/balltrack/internal/ballfilter"
	"github.com/banshee-data/balltrack/internal/cycler"
	"github.com/banshee-data/balltrack/internal/monitoring"
	"github.com/banshee-data/balltrack/internal/storage/sqlite"
)

var logf = monitoring.Prefixed("[monitor] ")

// LatestSource provides the most recent completed cycle. *cycler.Cycler
// satisfies it.
type LatestSource interface {
	Latest() (cycler.Record, bool)
}

// WebServerConfig configures a WebServer.
type WebServerConfig struct {
	Address string
	Latest  LatestSource
	Params  ballfilter.Parameters
	// Store is optional. When set, its admin routes and recorded cycles are
	// served too.
	Store *sqlite.Store
}

// WebServer is the debug HTTP server.
type WebServer struct {
	address string
	latest  LatestSource
	params  ballfilter.Parameters
	store   *sqlite.Store
	server  *http.Server
	mux     *http.ServeMux
}

// NewWebServer builds the server and its routes. Nothing listens until Start.
func NewWebServer(config WebServerConfig) (*WebServer, error) {
	ws := &WebServer{
		address: config.Address,
		latest:  config.Latest,
		params:  config.Params,
		store:   config.Store,
	}
	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.mux = mux
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws, nil
}

// Handler returns the route multiplexer.
func (ws *WebServer) Handler() http.Handler { return ws.mux }

// Start serves until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		logf("starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("serve %s: %w", ws.address, err)
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		logf("shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			logf("force close error: %v", err)
		}
	}
	logf("HTTP server stopped")
	return nil
}

func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)

	debug := tsweb.Debugger(mux)
	debug.Handle("ballfilter/hypotheses", "Current ball hypotheses (JSON)", http.HandlerFunc(ws.handleHypotheses))
	debug.Handle("ballfilter/chart", "Ball hypotheses on the field (chart)", http.HandlerFunc(ws.handleChart))
	debug.Handle("ballfilter/trace", "Association and lifecycle trace of the last cycle (JSON)", http.HandlerFunc(ws.handleTrace))

	if ws.store != nil {
		if err := ws.store.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
		debug.Handle("ballfilter/cycles", "Recorded cycles of a run, ?run_id= (JSON)", http.HandlerFunc(ws.handleCycles))
	}
	return mux, nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "balltrack", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}
