package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/wricardo/wargame/game/engine"
	"github.com/wricardo/wargame/game/service"
)

// maxBodyBytes bounds request bodies; a full batch of events fits comfortably.
const maxBodyBytes = 1 << 20

// Broadcaster pushes session updates to live subscribers
type Broadcaster interface {
	BroadcastState(sessionID string, world *service.WorldView)
	BroadcastEventApplied(sessionID string, record service.EventRecord, world *service.WorldView)
	ServeWS(w http.ResponseWriter, r *http.Request, sessionID string)
}

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     Broadcaster
	router  *mux.Router
	logger  zerolog.Logger
}

// NewServer creates a new API server. hub may be nil.
func NewServer(gameService service.GameService, hub Broadcaster, logger zerolog.Logger) *Server {
	s := &Server{
		service: gameService,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("", s.handleIndex).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	// Must be registered before the {id} pattern
	api.HandleFunc("/sessions/unified", s.handleUnifiedSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// World state and events
	api.HandleFunc("/sessions/{id}/state", s.handleGetWorldState).Methods("GET")
	api.HandleFunc("/sessions/{id}/events", s.handleApplyEvent).Methods("POST")
	api.HandleFunc("/sessions/{id}/events", s.handleGetEventLog).Methods("GET")
	api.HandleFunc("/sessions/{id}/events/batch", s.handleApplyEvents).Methods("POST")
	api.HandleFunc("/sessions/{id}/units/{unit}", s.handleGetUnit).Methods("GET")
	api.HandleFunc("/sessions/{id}/tiles/{x}/{y}", s.handleDescribeTile).Methods("GET")

	// Scenarios and rules
	api.HandleFunc("/scenarios", s.handleListScenarios).Methods("GET")
	api.HandleFunc("/scenarios", s.handleCreateScenario).Methods("POST")
	api.HandleFunc("/scenarios/{name}", s.handleGetScenario).Methods("GET")
	api.HandleFunc("/unit-types", s.handleUnitTypes).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service and engine errors to HTTP status codes
func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

// statusFor checks desync first: desync errors also wrap their cause, such as ErrUnitNotFound.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrDesync),
		errors.Is(err, engine.ErrHalted),
		errors.Is(err, service.ErrSessionDesynced):
		return http.StatusConflict
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrScenarioNotFound),
		errors.Is(err, engine.ErrUnitNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidEvent),
		errors.Is(err, service.ErrOutOfBounds),
		errors.Is(err, service.ErrInvalidScenario):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"name": "wargame",
		"endpoints": []string{
			"POST /api/sessions", "GET /api/sessions", "GET /api/sessions/{id}",
			"GET /api/sessions/{id}/state", "POST /api/sessions/{id}/events",
			"POST /api/sessions/{id}/events/batch", "GET /api/sessions/{id}/events",
			"GET /api/sessions/{id}/units/{unit}", "GET /api/sessions/{id}/tiles/{x}/{y}",
			"GET /api/scenarios", "POST /api/scenarios", "GET /api/scenarios/{name}",
			"GET /api/unit-types", "GET /ws?session={id}",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id,omitempty"`
		Observer   string `json:"observer,omitempty"`
	}

	// An empty body selects the default scenario
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	info, err := s.service.CreateSession(r.Context(), req.ScenarioID, req.Observer)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default)
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	if scenario := query.Get("scenario"); scenario != "" {
		filtered := sessions[:0]
		for _, sess := range sessions {
			if sess.ScenarioID == scenario {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}
	total := len(sessions)

	sort.Slice(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	info, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// handleUnifiedSessions returns the world views of several sessions side by side,
// typically the observers of one battle.
func (s *Server) handleUnifiedSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var sessions []*service.SessionInfo
	if sessionIDs := query.Get("sessionIds"); sessionIDs != "" {
		for _, id := range strings.Split(sessionIDs, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if info, err := s.service.GetSession(r.Context(), id); err == nil {
				sessions = append(sessions, info)
			}
		}
	} else {
		all, err := s.service.ListSessions(r.Context())
		if err != nil {
			respondServiceError(w, err)
			return
		}
		scenario := query.Get("scenario")
		for _, info := range all {
			if scenario == "" || info.ScenarioID == scenario {
				sessions = append(sessions, info)
			}
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })

	scenarioID := ""
	if len(sessions) > 0 {
		scenarioID = sessions[0].ScenarioID
	}

	entries := make([]map[string]any, 0, len(sessions))
	for _, info := range sessions {
		entries = append(entries, map[string]any{
			"session_id":    info.ID,
			"observer":      info.Observer,
			"scenario_id":   info.ScenarioID,
			"world":         info.World,
			"created_at":    info.CreatedAt,
			"last_accessed": info.LastAccessedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"scenario_id": scenarioID,
		"sessions":    entries,
	})
}

// World Handlers

func (s *Server) handleGetWorldState(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	world, err := s.service.GetWorldState(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, world)
}

func (s *Server) handleApplyEvent(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	ev, err := engine.UnmarshalEvent(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.ApplyEvent(r.Context(), sessionID, ev)
	if err != nil {
		if statusFor(err) == http.StatusConflict {
			s.logger.Warn().Err(err).Str("session", sessionID).Str("event", string(ev.Kind())).Msg("event rejected")
			s.broadcastState(r, sessionID)
		}
		respondServiceError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastEventApplied(sessionID, result.Record, result.World)
	}

	s.logger.Info().
		Str("session", sessionID).
		Str("event", string(ev.Kind())).
		Int("seq", result.Record.Seq).
		Int("units", len(result.World.Units)).
		Msg("event applied")

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleApplyEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Events []engine.Envelope `json:"events"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Events) == 0 {
		respondError(w, http.StatusBadRequest, "events must not be empty")
		return
	}

	evs := make([]engine.Event, 0, len(req.Events))
	for i, env := range req.Events {
		ev, err := env.Event()
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("event %d: %v", i+1, err))
			return
		}
		evs = append(evs, ev)
	}

	result, err := s.service.ApplyEvents(r.Context(), sessionID, evs)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if s.hub != nil {
		for _, rec := range result.Records {
			s.hub.BroadcastEventApplied(sessionID, rec, nil)
		}
		s.hub.BroadcastState(sessionID, result.World)
	}

	s.logger.Info().
		Str("session", sessionID).
		Int("applied", result.Applied).
		Int("requested", result.RequestedEvents).
		Bool("desync", result.Desync).
		Str("stopped", result.StoppedReason).
		Msg("event batch applied")

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetEventLog(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	opts := service.HistoryOptions{
		Page:  1,
		Limit: 20,
		Order: "desc",
	}

	query := r.URL.Query()
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			opts.Page = p
		}
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			opts.Limit = l
		}
	}
	if order := query.Get("order"); order == "asc" || order == "desc" {
		opts.Order = order
	}

	history, err := s.service.GetEventLog(r.Context(), sessionID, opts)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	unitID, err := strconv.Atoi(vars["unit"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "unit id must be an integer")
		return
	}

	detail, err := s.service.GetUnit(r.Context(), vars["id"], engine.UnitID(unitID))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDescribeTile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	x, errX := strconv.Atoi(vars["x"])
	y, errY := strconv.Atoi(vars["y"])
	if errX != nil || errY != nil {
		respondError(w, http.StatusBadRequest, "tile coordinates must be integers")
		return
	}

	tile, err := s.service.DescribeTile(r.Context(), vars["id"], engine.MapPos{X: x, Y: y})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tile)
}

// Scenario Handlers

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := s.service.ListScenarios(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, scenarios)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(mux.Vars(r)["name"], ".json")

	scenario, err := s.service.LoadScenario(r.Context(), name)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, scenario)
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var scenario engine.Scenario
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&scenario); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if scenario.Name == "" {
		respondError(w, http.StatusBadRequest, "Scenario name is required")
		return
	}

	if err := s.service.SaveScenario(r.Context(), scenario.Name, &scenario); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message":     "Scenario saved successfully",
		"scenario_id": scenario.Name,
	})
}

func (s *Server) handleUnitTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.service.UnitTypes(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, types)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}
	if s.hub == nil {
		http.Error(w, "websocket updates are disabled", http.StatusServiceUnavailable)
		return
	}

	if _, err := s.service.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, sessionID)
}

// broadcastState pushes the current world view, used after a rejected event so
// subscribers see the desync reason.
func (s *Server) broadcastState(r *http.Request, sessionID string) {
	if s.hub == nil {
		return
	}
	world, err := s.service.GetWorldState(r.Context(), sessionID)
	if err != nil {
		return
	}
	s.hub.BroadcastState(sessionID, world)
}
