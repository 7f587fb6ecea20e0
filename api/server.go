package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wricardo/memory-match/game/service"
	"github.com/wricardo/memory-match/transport/websocket"
)

const maxUserIDLength = 64

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	router  *mux.Router
	logger  *zap.Logger
}

// NewServer creates a new API server. hub may be nil, in which case the
// WebSocket endpoint answers 503.
func NewServer(gameService service.GameService, hub *websocket.Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: gameService,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  logger.Named("api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()

	// Room discovery
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms/{id}", s.handleGetRoom).Methods("GET")

	// Catalogue
	api.HandleFunc("/themes", s.handleListThemes).Methods("GET")
	api.HandleFunc("/rules", s.handleGetRules).Methods("GET")

	// Anti-cheat administration
	api.HandleFunc("/anticheat/{userId}", s.handleGetSuspicion).Methods("GET")
	api.HandleFunc("/anticheat/{userId}", s.handleClearSuspicion).Methods("DELETE")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidUserID):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Room Handlers

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	joinable := false
	if v := r.URL.Query().Get("joinable"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "joinable must be a boolean")
			return
		}
		joinable = b
	}

	rooms, err := s.service.ListRooms(r.Context(), joinable)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rooms),
		"rooms": rooms,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	room, err := s.service.GetRoom(r.Context(), roomID)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, room)
}

// Catalogue Handlers

func (s *Server) handleListThemes(w http.ResponseWriter, r *http.Request) {
	themes, err := s.service.ListThemes(r.Context())
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, themes)
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.GetRules(r.Context()))
}

// Anti-cheat Handlers

func (s *Server) handleGetSuspicion(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.GetSuspicion(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleClearSuspicion(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	cleared, err := s.service.ClearSuspicion(r.Context(), userID)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	if !cleared {
		respondError(w, http.StatusNotFound, "no anti-cheat record for "+userID)
		return
	}

	s.logger.Info("anti-cheat record cleared", zap.String("user_id", userID))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"cleared": true,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "WebSocket transport unavailable", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	userID := strings.TrimSpace(query.Get("user"))
	if userID == "" || len(userID) > maxUserIDLength {
		http.Error(w, "user parameter required", http.StatusBadRequest)
		return
	}

	s.hub.ServeWS(w, r, userID, strings.TrimSpace(query.Get("name")))
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.service.ListRooms(r.Context(), false)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"rooms":  len(rooms),
	})
}
