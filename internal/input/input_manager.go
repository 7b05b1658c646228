/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package input

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/InfamousVague/umbra/cluster/nlog"
	"github.com/InfamousVague/umbra/internal/handler"
	"github.com/InfamousVague/umbra/internal/middleware"
	"github.com/InfamousVague/umbra/internal/service"
	"github.com/InfamousVague/umbra/internal/view"
	"github.com/gorilla/mux"
)

type IptConfig struct {
	ServerPort        uint16
	ReadHeaderTimeout int64 // seconds
	IdleTimeout       int64 // seconds
}

// DataPlane is everything the HTTP layer needs from the relay data plane
type DataPlane interface {
	handler.RelayPlane
	handler.StatsSource
}

// Federation is everything the HTTP layer needs from the federation. A standalone relay has none
type Federation interface {
	handler.PeerAcceptor
	handler.PeerLister
}

type InputManager struct { // Manages the HTTP server of the relay: client sessions, peer links, info and discovery routes
	running atomic.Bool
	paused  atomic.Bool

	logger nlog.Logger
	server *http.Server

	stopFromOutsideChan chan struct{}
	doneFromInsideChan  chan struct{}

	description handler.RelayDescription
	dataPlane   DataPlane
	federation  Federation
	discovery   service.DiscoveryService
	renderer    *view.PageRenderer
}

func NewInputManager() *InputManager {
	return &InputManager{
		running:             atomic.Bool{},
		paused:              atomic.Bool{},
		stopFromOutsideChan: make(chan struct{}),
		doneFromInsideChan:  make(chan struct{}),
	}
}

func (i *InputManager) IsReady() bool {
	return i.logger != nil && i.dataPlane != nil
}

func (i *InputManager) IsRunning() bool {
	return i.running.Load()
}

func (i *InputManager) SetLogger(l nlog.Logger) {
	i.logger = l
}

func (i *InputManager) SetDescription(d handler.RelayDescription) {
	i.description = d
}

func (i *InputManager) SetDataPlane(d DataPlane) {
	i.dataPlane = d
}

func (i *InputManager) SetFederation(f Federation) {
	i.federation = f
}

func (i *InputManager) SetDiscoveryService(ds service.DiscoveryService) {
	i.discovery = ds
}

func (i *InputManager) SetRenderer(r *view.PageRenderer) {
	i.renderer = r
}

func (i *InputManager) Logf(format string, a ...any) {
	if i.logger != nil {
		i.logger.Logf(format, a...)
	}
}

func (i *InputManager) SetPause(paused bool) {
	i.paused.Store(paused)
}

func (i *InputManager) IsPaused() bool {
	return i.paused.Load()
}

// PauseMiddleware answers 503 while the manager is paused, for instance while the relay drains on shutdown
func (i *InputManager) PauseMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if i.IsPaused() {
			http.Error(w, "The relay is not accepting requests right now", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Router builds the routes of the relay. ctx bounds every websocket served through them
func (i *InputManager) Router(ctx context.Context) *mux.Router {
	r := mux.NewRouter()
	r.Use(i.PauseMiddleware)
	if i.logger != nil {
		r.Use(middleware.LoggingMiddleware(i.logger))
	}
	r.Use(middleware.CORSMiddleware)

	// Websockets
	sessions := handler.NewSessionHandler(ctx, i.dataPlane, i.logger)
	r.HandleFunc("/ws", sessions.Connect).Methods("GET")

	var acceptor handler.PeerAcceptor
	var peers handler.PeerLister
	if i.federation != nil {
		acceptor, peers = i.federation, i.federation
	}
	federation := handler.NewFederationHandler(ctx, acceptor, i.logger)
	r.HandleFunc("/federation", federation.Connect).Methods("GET")

	// Info
	info := handler.NewInfoHandler(i.description, i.dataPlane, peers, i.renderer)
	r.HandleFunc("/health", info.Health).Methods("GET")
	r.HandleFunc("/stats", info.Stats).Methods("GET")
	r.HandleFunc("/info", info.Info).Methods("GET")
	r.HandleFunc("/peers", info.Peers).Methods("GET")
	r.HandleFunc("/", info.Status).Methods("GET")

	// Discovery
	if i.discovery != nil {
		discovery := handler.NewDiscoveryHandler(i.discovery, i.logger)
		discovery.Routes(r.PathPrefix("/discovery").Subrouter())
	}

	// Preflight requests never match a route method, the CORS middleware answers them
	r.MethodNotAllowedHandler = middleware.CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}))

	return r
}

func (i *InputManager) Run(ctx context.Context, cfg *IptConfig) error {
	i.Logf("Input service started...")

	if !i.IsReady() {
		return fmt.Errorf("The Input manager is not ready... Missing components")
	}

	i.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           i.Router(ctx),
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeout * int64(time.Second)),
		IdleTimeout:       time.Duration(cfg.IdleTimeout * int64(time.Second)),
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		select {
		case <-ctx.Done():
			i.Logf("Received stop signal. Shutting down...")
		case <-i.stopFromOutsideChan:
			i.Logf("Server was asked to stop. Shutting down...")
		}
		i.SetPause(true)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := i.server.Shutdown(shutdownCtx); err != nil {
			i.Logf("Error during shutdown... %v\n", err)
		}
		close(i.doneFromInsideChan)
	}()

	i.Logf("Http server starting on port {%d}", cfg.ServerPort)
	i.running.Store(true)

	if err := i.server.ListenAndServe(); err != http.ErrServerClosed {
		i.running.Store(false)
		i.Logf("FATAL: HTTP Server error{%v}\n", err)
		return err
	}
	return nil
}

func (i *InputManager) Stop() {
	close(i.stopFromOutsideChan)
	<-i.doneFromInsideChan
	i.running.Store(false)
}
