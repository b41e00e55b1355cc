package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/teenpatti/internal/auth"
	"github.com/lox/teenpatti/internal/gameid"
	"github.com/lox/teenpatti/internal/session"
)

// Config wires the server to the rest of the process.
type Config struct {
	Registry  *session.Registry
	Validator auth.Validator
	Recorder  *Recorder
	Clock     quartz.Clock
	Logger    *log.Logger
	IDs       *gameid.Generator
}

// Server is the broadcast layer: it accepts operator and viewer websocket
// connections, relays operator commands to sessions and fans session events
// out to each session's connections.
type Server struct {
	addr      string
	upgrader  websocket.Upgrader
	registry  *session.Registry
	validator auth.Validator
	recorder  *Recorder
	clock     quartz.Clock
	logger    *log.Logger
	ids       *gameid.Generator

	mu          sync.RWMutex
	connections map[string]*Connection
	register    chan *Connection
	unregister  chan *Connection

	relayMu sync.Mutex
	relayed map[string]struct{} // session ids with a relay subscribed

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewServer creates a WebSocket server and starts its connection hub.
func NewServer(addr string, cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Validator == nil {
		cfg.Validator = auth.NewNoopValidator()
	}
	if cfg.IDs == nil {
		cfg.IDs = gameid.NewGenerator(nil, cfg.Clock)
	}
	if cfg.Registry == nil {
		cfg.Registry = session.NewRegistry(session.Config{Clock: cfg.Clock, Logger: cfg.Logger, IDs: cfg.IDs})
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			// Viewers are browser pages served from elsewhere; access is
			// gated by auth and the operator's approval instead.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		registry:    cfg.Registry,
		validator:   cfg.Validator,
		recorder:    cfg.Recorder,
		clock:       cfg.Clock,
		logger:      cfg.Logger.WithPrefix("server"),
		ids:         cfg.IDs,
		connections: make(map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		relayed:     make(map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	go s.run()
	return s
}

// Handler returns the HTTP handler serving /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Run serves until ctx is cancelled, then shuts the listener down and closes
// every connection.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting WebSocket server", "addr", s.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down WebSocket server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close stops the hub and closes every connection. Live sessions are left
// to the registry's owner.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		for _, conn := range s.connections {
			_ = conn.Close()
		}
		s.mu.Unlock()
	})
}

// run handles connection lifecycle
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn.id] = conn
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Debug("Client connected", "conn", conn.id, "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			_, ok := s.connections[conn.id]
			delete(s.connections, conn.id)
			total := len(s.connections)
			s.mu.Unlock()
			if !ok {
				continue
			}

			// The operator of a session can go away and come back; only the
			// access bookkeeping is dropped.
			for _, sess := range s.registry.Disconnect(conn.id) {
				s.notifyPending(sess)
			}
			s.logger.Debug("Client disconnected", "conn", conn.id, "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := newConnection(s.ids.New(gameid.PrefixConn), conn, s)
	select {
	case s.register <- client:
	case <-s.ctx.Done():
		_ = client.Close()
		return
	}
	client.Start()

	go func() {
		<-client.ctx.Done()
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()
}

// HealthData is the body served on /health.
type HealthData struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthData{
		Status:      "ok",
		Connections: s.ConnectionCount(),
		Sessions:    len(s.registry.Sessions()),
	})
}

// connection returns the live connection with the given id.
func (s *Server) connection(id string) (*Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	return c, ok
}

// sendTo sends to one connection if it is still connected.
func (s *Server) sendTo(connID string, messageType MessageType, data interface{}) {
	if connID == "" {
		return
	}
	if c, ok := s.connection(connID); ok {
		c.reply(messageType, data)
	}
}

// broadcast sends to the session's operator and every approved viewer.
func (s *Server) broadcast(sess *session.Session, messageType MessageType, data interface{}) {
	msg, err := newMessageAt(messageType, data, s.clock.Now())
	if err != nil {
		s.logger.Error("Failed to create broadcast", "type", messageType, "error", err)
		return
	}

	count := 0
	for _, id := range sess.Members() {
		c, ok := s.connection(id)
		if !ok {
			continue
		}
		if err := c.SendMessage(msg); err != nil {
			s.logger.Debug("Failed to send to member", "session", sess.Name, "conn", id, "error", err)
			continue
		}
		count++
	}
	s.logger.Debug("Broadcasted message to session", "session", sess.Name, "type", messageType, "recipients", count)
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
