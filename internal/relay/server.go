// Package relay is the server side of the device terminal: a STOMP broker
// on /ws, the terminal service that answers published control messages,
// and a small device inventory API.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dids/devterm/internal/client"
	"github.com/dids/devterm/internal/config"
	"github.com/dids/devterm/internal/inventory"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

const tokenHeader = "X-Devterm-Token"

type Server struct {
	store          inventory.Store
	broker         *Broker
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool

	mu        sync.RWMutex
	tokenHash []byte
}

func NewServer(cfg config.ServerConfig, store inventory.Store, broker *Broker) *Server {
	s := &Server{
		store:          store,
		broker:         broker,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}

	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	s.SetTokenHash(cfg.TokenHash)
	return s
}

// SetTokenHash replaces the bcrypt hash API callers are checked against.
// An empty hash disables authentication.
func (s *Server) SetTokenHash(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hash == "" {
		s.tokenHash = nil
		return
	}
	s.tokenHash = []byte(hash)
}

// Routes returns the relay's HTTP handler.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/devices", s.handleListDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}", s.handleGetDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/status", s.handleUpdateStatus).Methods(http.MethodPatch)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)

	return securityHeaders(r)
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

	c, err := s.broker.AddConn(conn)
	if err != nil {
		log.Printf("ws client %s rejected: %v", r.RemoteAddr, err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}

	log.Printf("WebSocket client connected: %s", r.RemoteAddr)
	go func() {
		s.broker.Serve(c)
		log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
	}()
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if devices == nil {
		devices = []client.Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body client.StatusUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	d, err := s.store.UpdateStatus(r.Context(), mux.Vars(r)["id"], body.Status)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		http.Error(w, "device not found", http.StatusNotFound)
	case errors.Is(err, inventory.ErrBadStatus):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("inventory error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
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

func (s *Server) authorize(r *http.Request) bool {
	s.mu.RLock()
	hash := s.tokenHash
	s.mu.RUnlock()
	if hash == nil {
		return true
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get(tokenHeader)
	}
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(token)) == nil
}

// HashToken returns the bcrypt hash to put in server.token_hash.
func HashToken(token string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
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

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves h until ctx is cancelled, then shuts down
// gracefully. Hijacked WebSocket connections are not waited for.
func ListenAndServe(ctx context.Context, host string, port int, h http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Relay listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
