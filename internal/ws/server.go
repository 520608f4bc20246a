package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/session"
)

// Scanner is what the HTTP API drives.
type Scanner interface {
	// StartSession begins a scan, replacing any active one, and returns
	// its initial state.
	StartSession() (*session.State, error)
	// StopSession ends the active scan and reports whether there was one.
	StopSession() bool
}

// ErrUnavailable is returned by a Scanner that cannot start sessions, e.g.
// because no camera is attached.
var ErrUnavailable = errors.New("scanner unavailable")

type Server struct {
	store          *session.Store
	broadcaster    *Broadcaster
	scanner        Scanner
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	stats          func() interface{}
	started        time.Time
}

func NewServer(store *session.Store, broadcaster *Broadcaster, scanner Scanner, allowedOrigins []string, authToken string) *Server {
	s := &Server{
		store:          store,
		broadcaster:    broadcaster,
		scanner:        scanner,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      authToken,
		started:        time.Now(),
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// SetStatsSource configures the payload of /api/stats. Must be called
// before Routes.
func (s *Server) SetStatsSource(fn func() interface{}) {
	s.stats = fn
}

// Routes builds the HTTP handler:
//
//	GET    /healthz
//	GET    /api/session          current session
//	POST   /api/session          start a scan
//	DELETE /api/session          stop the scan
//	GET    /api/sessions         recent finished sessions
//	GET    /api/sessions/{id}    one session by id
//	GET    /api/stats
//	GET    /ws                   live updates
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/session", s.handleCurrent).Methods(http.MethodGet)
	api.HandleFunc("/session", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/session", s.handleStop).Methods(http.MethodDelete)
	api.HandleFunc("/sessions", s.handleRecent).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	return securityHeaders(r)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"clients": s.broadcaster.ClientCount(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		log.Printf("ws client rejected: %v", err)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}
	log.Printf("WebSocket client connected: %s", r.RemoteAddr)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	cur, ok := s.store.Current()
	if !ok {
		writeJSON(w, http.StatusOK, &session.State{Phase: session.Idle})
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	state, err := s.scanner.StartSession()
	if errors.Is(err, ErrUnavailable) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, state)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.scanner.StopSession() {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Recent())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if cur, ok := s.store.Current(); ok && cur.ID == id {
		writeJSON(w, http.StatusOK, cur)
		return
	}
	for _, st := range s.store.Recent() {
		if st.ID == id {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	http.Error(w, "session not found", http.StatusNotFound)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, "stats not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.stats())
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-QRScan-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
