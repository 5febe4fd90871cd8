// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package status serves a read-only view of a running emulator over HTTP:
// an HTML page, a JSON snapshot, a websocket push channel and Prometheus
// metrics.
package status

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Thermoquad/cn105emu/internal/syncutil"
	"github.com/Thermoquad/cn105emu/pkg/emulator"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultPushInterval = time.Second
	clientSendBuffer    = 16
	shutdownTimeout     = 5 * time.Second
)

//go:embed index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// Source supplies emulator snapshots
type Source interface {
	Snapshot() emulator.Snapshot
}

// Server is the status HTTP server
type Server struct {
	addr     string
	src      Source
	log      logrus.FieldLogger
	metrics  *Metrics
	interval time.Duration
	upgrader websocket.Upgrader

	clientsMu syncutil.RWMutex
	clients   map[*wsClient]struct{}
	closing   bool
	clientWG  sync.WaitGroup
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a status server for src listening on addr
func New(addr string, src Source, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		addr:     addr,
		src:      src,
		log:      log.WithField("component", "status"),
		metrics:  NewMetrics(),
		interval: defaultPushInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// SetPushInterval changes the websocket push cadence
func (s *Server) SetPushInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Metrics returns the Prometheus collectors
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", s.metrics.Handler(s.src))
	return mux
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.pushLoop(ctx)

	// Shutdown does not track hijacked websocket connections, so clients are
	// closed here and Serve waits for their goroutines before returning.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutCtx)
		s.closeClients()
	}()

	s.log.WithField("addr", ln.Addr().String()).Info("listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-closed
	s.clientWG.Wait()
	s.log.Info("stopped")
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, s.src.Snapshot()); err != nil {
		s.log.WithError(err).Warn("render failed")
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.src.Snapshot()); err != nil {
		s.log.WithError(err).Warn("encode failed")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
	if data, err := json.Marshal(s.src.Snapshot()); err == nil {
		client.send <- data
	}

	s.clientsMu.Lock()
	if s.closing {
		s.clientsMu.Unlock()
		conn.Close()
		return
	}
	s.clients[client] = struct{}{}
	s.clientWG.Add(2)
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.log.WithField("clients", n).Debug("ws client connected")

	go func() {
		defer s.clientWG.Done()
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// incoming messages are ignored; a read error means the client left
	go func() {
		defer s.clientWG.Done()
		defer s.removeClient(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) removeClient(c *wsClient) {
	s.clientsMu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.log.WithField("clients", n).Debug("ws client disconnected")
}

// closeClients drops every client and refuses new ones. Closing the
// connection unblocks the reader goroutine.
func (s *Server) closeClients() {
	s.clientsMu.Lock()
	s.closing = true
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
		c.conn.Close()
	}
	s.clientsMu.Unlock()
}

func (s *Server) pushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast(s.src.Snapshot())
		}
	}
}

func (s *Server) broadcast(snap emulator.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.WithError(err).Warn("encode failed")
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// slow client, drop this push
		}
	}
}

// ClientCount returns the number of connected websocket clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
