// Package httpapi exposes the Grimoire runtime over HTTP: error history
// and notification inspection for the web shell, Prometheus metrics, and a
// WebSocket stream of runtime events.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grimoire-docs/grimoire/pkg/errhandler"
	"github.com/grimoire-docs/grimoire/pkg/eventbus"
	"github.com/grimoire-docs/grimoire/pkg/logger"
	"github.com/grimoire-docs/grimoire/pkg/notify"
	"github.com/grimoire-docs/grimoire/pkg/present"
)

// Options configures the API server.
type Options struct {
	Port           int
	AllowedOrigins []string

	Handler       *errhandler.Handler
	Notifications *notify.System
	Bus           *eventbus.Bus
	Logger        *logger.Logger
}

// Server serves the Grimoire HTTP API.
type Server struct {
	opts       Options
	log        *logger.Logger
	httpServer *http.Server

	mu      sync.Mutex
	clients map[string]struct{}
}

// NewServer creates an API server.
func NewServer(opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8780
	}
	if opts.Logger == nil {
		opts.Logger = logger.Global()
	}

	return &Server{
		opts:    opts,
		log:     opts.Logger.WithComponent("httpapi"),
		clients: make(map[string]struct{}),
	}
}

// Routes returns the API handler, also used directly by tests.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/errors", s.handleErrors)
	mux.HandleFunc("/notifications", s.handleNotifications)
	mux.HandleFunc("/notifications/close", s.handleNotificationClose)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())
	return s.corsMiddleware(mux)
}

// Start runs the server until Stop is called. Blocks.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.opts.Port),
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info("starting API server", "port", s.opts.Port)

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		s.log.Info("stopping API server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.opts.Handler != nil {
		status["error_history"] = len(s.opts.Handler.ErrorHistory())
	}
	if s.opts.Notifications != nil {
		status["notifications_visible"] = s.opts.Notifications.Count()
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	if s.opts.Handler == nil {
		http.Error(w, "error handler not attached", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		records := s.opts.Handler.ErrorHistory()
		s.writeJSON(w, http.StatusOK, map[string]any{
			"count":  len(records),
			"errors": records,
		})

	case http.MethodDelete:
		s.opts.Handler.ClearErrorHistory()
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.opts.Notifications == nil {
		http.Error(w, "notification system not attached", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		visible := s.opts.Notifications.Visible()
		s.writeJSON(w, http.StatusOK, map[string]any{
			"count":         len(visible),
			"notifications": visible,
		})

	case http.MethodPost:
		var req struct {
			Message    string `json:"message"`
			Level      string `json:"level"`
			DurationMS int    `json:"duration_ms"`
			Sticky     bool   `json:"sticky"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		id, err := s.opts.Notifications.Show(notify.Request{
			Message:  req.Message,
			Level:    present.Level(req.Level),
			Duration: time.Duration(req.DurationMS) * time.Millisecond,
			Sticky:   req.Sticky,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]string{"id": id})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleNotificationClose(w http.ResponseWriter, r *http.Request) {
	if s.opts.Notifications == nil {
		http.Error(w, "notification system not attached", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.opts.Notifications.Close(req.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", "error", err.Error())
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	// Local development shells are always allowed.
	return strings.HasPrefix(origin, "http://localhost:") ||
		strings.HasPrefix(origin, "http://127.0.0.1:")
}

// WebSocket event stream

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// handleWebSocket streams runtime events to the client. The optional
// "types" query parameter restricts delivery to a comma-separated list of
// event types.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.opts.Bus == nil {
		http.Error(w, "event bus not attached", http.StatusServiceUnavailable)
		return
	}

	var filter eventbus.Filter
	if types := r.URL.Query().Get("types"); types != "" {
		filter.Types = strings.Split(types, ",")
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	sub, err := s.opts.Bus.Subscribe("ws-"+clientID, filter, 64)
	if err != nil {
		s.log.Warn("event subscription failed", "error", err.Error())
		return
	}
	defer s.opts.Bus.Unsubscribe("ws-" + clientID)

	s.mu.Lock()
	s.clients[clientID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, clientID)
		s.mu.Unlock()
	}()

	s.log.Debug("event stream client connected", "client", clientID, "types", filter.Types)

	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(conn, sub, done)

	s.log.Debug("event stream client disconnected", "client", clientID)
}

// readPump discards inbound frames; its job is pong handling and noticing
// the peer going away.
func (s *Server) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(4 * 1024)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read error", "error", err.Error())
			}
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, sub *eventbus.Subscriber, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.Events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := event.Marshal()
			if err != nil {
				s.log.Warn("failed to marshal event", "error", err.Error())
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// ClientCount returns the number of connected event stream clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
