package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"peerlink/pkg/interfaces"
	"peerlink/pkg/types"
)

// defaultListLimit is the page size used when the list request carries
// no usable limit parameter.
const defaultListLimit = 50

// ConnectionStats reports push-hub socket occupancy for the health
// endpoint without coupling this package to the hub implementation.
type ConnectionStats interface {
	SessionCount() int
}

// Server is the signaling REST surface: session creation and join, the
// pull relay's post/list endpoints, and a health check. No business
// logic lives here, only HTTP handling and JSON serialization.
type Server struct {
	sessions interfaces.SessionManager
	relay    interfaces.SignalRelay
	store    interfaces.Store
	stats    ConnectionStats
	router   *http.ServeMux
}

func NewServer(sessions interfaces.SessionManager, relay interfaces.SignalRelay, store interfaces.Store, stats ConnectionStats) *Server {
	s := &Server{
		sessions: sessions,
		relay:    relay,
		store:    store,
		stats:    stats,
		router:   http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/p2p/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/p2p/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionSubpath))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionSubpath routes /api/p2p/sessions/{id}/join and
// /api/p2p/sessions/{id}/signals.
func (s *Server) handleSessionSubpath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/p2p/sessions/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}
	sessionID := parts[0]

	switch parts[1] {
	case "join":
		switch r.Method {
		case http.MethodPost:
			s.joinSession(w, r, sessionID)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "signals":
		switch r.Method {
		case http.MethodPost:
			s.postSignal(w, r, sessionID)
		case http.MethodGet:
			s.listSignals(w, r, sessionID)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

// POST /api/p2p/sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	meta, err := s.sessions.Create(r.Context(), req.ClientID)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(types.SessionResponse{
		SessionID:        meta.SessionID,
		Role:             types.RoleInitiator,
		Token:            meta.Initiator.Token,
		Status:           meta.Status,
		ExpiresAtEpochMs: meta.ExpiresAtEpochMs,
	})
}

// POST /api/p2p/sessions/{id}/join
func (s *Server) joinSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req types.JoinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	meta, err := s.sessions.Join(r.Context(), sessionID, req.ClientID)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	json.NewEncoder(w).Encode(types.SessionResponse{
		SessionID:        meta.SessionID,
		Role:             types.RoleResponder,
		Token:            meta.Responder.Token,
		Status:           meta.Status,
		ExpiresAtEpochMs: meta.ExpiresAtEpochMs,
	})
}

// POST /api/p2p/sessions/{id}/signals
func (s *Server) postSignal(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req types.PostSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.relay.PostSignal(r.Context(), sessionID, req.Token, req.Type, req.Payload); err != nil {
		s.sendDomainError(w, err)
		return
	}

	json.NewEncoder(w).Encode(types.PostSignalResponse{OK: true})
}

// GET /api/p2p/sessions/{id}/signals?token=...&cursor=...&limit=...
func (s *Server) listSignals(w http.ResponseWriter, r *http.Request, sessionID string) {
	query := r.URL.Query()
	token := query.Get("token")
	cursor := query.Get("cursor")

	// Missing or unparseable limit falls back to a full page rather
	// than rejecting the request.
	limit := defaultListLimit
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	signals, next, err := s.relay.ListSignalsFromPeer(r.Context(), sessionID, token, cursor, limit)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	if signals == nil {
		signals = []types.SignalRecord{}
	}

	json.NewEncoder(w).Encode(types.ListSignalsResponse{
		Signals:    signals,
		NextCursor: next,
	})
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	storeStatus := "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		storeStatus = err.Error()
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status":         status,
		"store":          storeStatus,
		"socketSessions": s.stats.SessionCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// sendDomainError maps the shared error taxonomy onto HTTP statuses. The
// join race gets its own retryable message so clients can tell it apart
// from a genuinely full session.
func (s *Server) sendDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		s.sendError(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, types.ErrJoinRace):
		s.sendError(w, "Join conflict, retry", http.StatusConflict)
	case errors.Is(err, types.ErrAlreadyJoined):
		s.sendError(w, "Session already has two peers", http.StatusConflict)
	case errors.Is(err, types.ErrSessionClosed):
		s.sendError(w, "Session is closed", http.StatusConflict)
	case errors.Is(err, types.ErrUnauthorized):
		s.sendError(w, "Unauthorized", http.StatusForbidden)
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrInvalidSignalType):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		s.sendError(w, "Internal error", http.StatusInternalServerError)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(types.ErrorResponse{Error: message})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
