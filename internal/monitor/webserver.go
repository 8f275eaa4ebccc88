// Package monitor serves the HTTP interface of the simulator: runtime
// configuration, readouts, processed points and debug charts.
package monitor

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/pulse.lab/internal/db"
	"github.com/banshee-data/pulse.lab/internal/httputil"
	"github.com/banshee-data/pulse.lab/internal/ppg/sim"
	"github.com/banshee-data/pulse.lab/internal/readoutmux"
	"github.com/banshee-data/pulse.lab/internal/version"
)

//go:embed status.html
var statusFS embed.FS

var statusTemplate = template.Must(template.ParseFS(statusFS, "status.html"))

// WebServer exposes a sim.Engine over HTTP.
type WebServer struct {
	address  string
	engine   *sim.Engine
	db       *db.DB
	readouts *readoutmux.Mux
	server   *http.Server
	started  time.Time

	// runCtx is the context the engine is restarted under after a reset.
	ctxMu  sync.Mutex
	runCtx context.Context
}

// WebServerConfig contains configuration options for the web server.
// DB and Readouts are optional.
type WebServerConfig struct {
	Address  string
	Engine   *sim.Engine
	DB       *db.DB
	Readouts *readoutmux.Mux
}

// NewWebServer creates a web server for the given engine.
func NewWebServer(config WebServerConfig) (*WebServer, error) {
	if config.Engine == nil {
		return nil, errors.New("monitor: engine is required")
	}
	ws := &WebServer{
		address:  config.Address,
		engine:   config.Engine,
		db:       config.DB,
		readouts: config.Readouts,
		started:  time.Now(),
		runCtx:   context.Background(),
	}
	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws, nil
}

// Handler returns the root handler, for tests and embedding.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts the server down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", ws.address, err)
	}
	return ws.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (ws *WebServer) Serve(ctx context.Context, ln net.Listener) error {
	ws.ctxMu.Lock()
	ws.runCtx = ctx
	ws.ctxMu.Unlock()

	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", ln.Addr())
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
	return nil
}

// Close shuts down the web server immediately.
func (ws *WebServer) Close() error {
	return ws.server.Close()
}

func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/readout", ws.handleReadout)
	mux.HandleFunc("/api/points", ws.handlePoints)
	mux.HandleFunc("/api/params", ws.handleParams)
	mux.HandleFunc("/api/algorithm", ws.handleAlgorithm)
	mux.HandleFunc("/api/emitter", ws.handleEmitter)
	mux.HandleFunc("/api/reset", ws.handleReset)
	mux.HandleFunc("/api/start", ws.handleStart)
	mux.HandleFunc("/api/stop", ws.handleStop)
	mux.HandleFunc("/api/sessions", ws.handleSessions)
	mux.HandleFunc("/api/sessions/readouts", ws.handleSessionReadouts)

	ws.attachDebugRoutes(mux)
	if ws.db != nil {
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	if ws.readouts != nil {
		ws.readouts.AttachAdminRoutes(mux)
	}
	return mux, nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{
		"status":    "ok",
		"service":   "pulselab",
		"running":       ws.engine.Running(),
		"physics_ticks": ws.engine.PhysicsTicks(),
		"version":       version.Get(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	latest := ws.engine.Latest()
	cfg := ws.engine.Config()
	data := struct {
		Address       string
		Uptime        string
		Running       bool
		Line          string
		Readout       sim.Readout
		AlgorithmName string
		SampleRate    float64
		PhysicsTick   time.Duration
		AlgorithmTick time.Duration
		Recording     bool
	}{
		Address:       ws.address,
		Uptime:        time.Since(ws.started).Round(time.Second).String(),
		Running:       ws.engine.Running(),
		Line:          readoutmux.FormatReadout(latest),
		Readout:       latest,
		AlgorithmName: algorithmName(latest.Algorithm),
		SampleRate:    cfg.SampleRate,
		PhysicsTick:   cfg.PhysicsTick,
		AlgorithmTick: cfg.AlgorithmTick,
		Recording:     ws.db != nil,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
	}
}

func (ws *WebServer) context() context.Context {
	ws.ctxMu.Lock()
	defer ws.ctxMu.Unlock()
	return ws.runCtx
}
