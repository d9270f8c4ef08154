// Package api provides the HTTP API for observing the simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/timberline/internal/agents"
	"github.com/talgya/timberline/internal/engine"
	"github.com/talgya/timberline/internal/persistence"
	"github.com/talgya/timberline/internal/world"
)

const (
	maxStreamConns        = 8
	defaultStreamInterval = 250 * time.Millisecond
	maxSpeed              = 1000
)

// Server serves the simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional run journal
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Forest regenerates tree positions for a reset. A zero seed means the
	// configured one.
	Forest func(seed int64) []world.Vec3

	// StreamInterval is how often websocket clients receive an update.
	StreamInterval time.Duration

	upgrader    websocket.Upgrader
	streamConns atomic.Int32
	limiter     *RateLimiter
	srv         *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.limiter == nil {
		s.limiter = NewRateLimiter(60, time.Minute)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/agents", s.handleAgents)
	mux.HandleFunc("GET /api/v1/agent/{id}", s.handleAgent)
	mux.HandleFunc("GET /api/v1/sites", s.handleSites)
	mux.HandleFunc("GET /api/v1/trees", s.handleTrees)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.HandleFunc("GET /api/v1/speed", s.handleGetSpeed)
	mux.HandleFunc("GET /api/v1/journal/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/journal/structures", s.handleJournalStructures)
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Admin endpoints.
	mux.HandleFunc("POST /api/v1/speed", s.adminOnly(s.handleSetSpeed))
	mux.HandleFunc("POST /api/v1/reset", s.adminOnly(s.handleReset))
	mux.HandleFunc("POST /api/v1/agents", s.adminOnly(s.handleAddAgent))
	mux.HandleFunc("POST /api/v1/agent/{id}/destroy", s.adminOnly(s.handleDestroyAgent))
	mux.HandleFunc("POST /api/v1/trees", s.adminOnly(s.handleAddTree))
	mux.HandleFunc("POST /api/v1/tree/{id}/destroy", s.adminOnly(s.handleDestroyTree))
	mux.HandleFunc("POST /api/v1/checkpoint", s.adminOnly(s.handleCheckpoint))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// allowedOrigins lists browser origins permitted for CORS and websocket
// upgrades. Set CORS_ORIGINS to a comma-separated list to extend it.
func allowedOrigins() map[string]bool {
	origins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				origins[origin] = true
			}
		}
	}
	return origins
}

func corsMiddleware(next http.Handler) http.Handler {
	allowed := allowedOrigins()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkOrigin accepts non-browser clients and allowed browser origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || allowedOrigins()[origin]
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth, rate limited
// per client.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return RateLimitMiddleware(s.limiter, func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no TIMBERLINE_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.StatsSnapshot()
	tick := s.Sim.CurrentTick()
	writeJSON(w, map[string]any{
		"name":       "timberline",
		"run_id":     s.RunID,
		"tick":       tick,
		"sim_time":   engine.SimTime(tick, s.Eng.Delta),
		"speed":      s.Eng.Speed(),
		"running":    s.Eng.Running(),
		"agents":     st.Agents,
		"trees":      st.Trees,
		"structures": st.Structures,
		"sites":      st.Sites,
		"claims":     st.Claims,
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	crew := s.Sim.AgentSnapshots()

	if name := r.URL.Query().Get("state"); name != "" {
		var want agents.State
		if err := want.UnmarshalText([]byte(name)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filtered := crew[:0]
		for _, a := range crew {
			if a.State == want {
				filtered = append(filtered, a)
			}
		}
		crew = filtered
	}
	writeJSON(w, crew)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	a, ok := s.Sim.AgentSnapshot(agents.AgentID(id))
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, a)
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Registry.Snapshot())
}

func (s *Server) handleTrees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Snapshot(true).Trees)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var after uint64
	if a := r.URL.Query().Get("after"); a != "" {
		n, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			http.Error(w, "invalid after", http.StatusBadRequest)
			return
		}
		after = n
	}

	events := s.Sim.EventsSince(after, 0)

	if category := r.URL.Query().Get("category"); category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	// With an explicit cursor return the oldest page after it; otherwise the
	// newest events.
	if len(events) > limit {
		if after > 0 {
			events = events[:limit]
		} else {
			events = events[len(events)-limit:]
		}
	}
	if events == nil {
		events = []engine.Event{}
	}
	writeJSON(w, events)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.StatsSnapshot())
}

func (s *Server) handleGetSpeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Speed > maxSpeed {
		http.Error(w, fmt.Sprintf("speed must be 0-%d", maxSpeed), http.StatusBadRequest)
		return
	}
	if err := s.Eng.SetSpeed(req.Speed); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.Forest == nil {
		http.Error(w, "reset not available", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Seed int64 `json:"seed,omitempty"`
	}
	// The body is optional.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	trees := s.Forest(req.Seed)
	s.Sim.Reset(trees)
	slog.Info("simulation reset", "seed", req.Seed, "trees", len(trees))
	writeJSON(w, map[string]any{
		"success": true,
		"trees":   len(trees),
	})
}

type positionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (s *Server) handleAddAgent(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	writeJSONStatus(w, http.StatusCreated, s.Sim.AddAgent(world.Vec3{X: req.X, Y: req.Y, Z: req.Z}))
}

func (s *Server) handleDestroyAgent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	if !s.Sim.DestroyAgent(agents.AgentID(id)) {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleAddTree(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id := s.Sim.AddResource(world.Vec3{X: req.X, Y: req.Y, Z: req.Z})
	writeJSONStatus(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleDestroyTree(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid tree id", http.StatusBadRequest)
		return
	}
	if !s.Sim.DestroyResource(world.NodeID(id)) {
		http.Error(w, "tree not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.DB.Runs()
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "journal query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleJournalStructures(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}
	run := r.URL.Query().Get("run")
	if run == "" {
		run = s.RunID
	}
	rows, err := s.DB.Structures(run)
	if err != nil {
		slog.Error("journal structures failed", "run", run, "error", err)
		http.Error(w, "journal query failed", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []persistence.StructureRow{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil || s.RunID == "" {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}
	if _, err := s.DB.SaveCheckpoint(s.RunID, s.Sim); err != nil {
		slog.Error("checkpoint failed", "error", err)
		http.Error(w, "checkpoint failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "checkpoint saved",
	})
}

// streamMessage is one websocket update: the world as of now plus every
// event since the previous message.
type streamMessage struct {
	Type     string               `json:"type"`
	Snapshot engine.WorldSnapshot `json:"snapshot"`
	Events   []engine.Event       `json:"events"`
}

// handleStream upgrades to a websocket and pushes snapshots until the client
// goes away. ?after=<seq> resumes the event feed from a sequence number.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if n := s.streamConns.Add(1); n > maxStreamConns {
		s.streamConns.Add(-1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.streamConns.Add(-1)

	var after uint64
	if a := r.URL.Query().Get("after"); a != "" {
		n, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			http.Error(w, "invalid after", http.StatusBadRequest)
			return
		}
		after = n
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	slog.Info("stream client connected", "remote", r.RemoteAddr)

	// Reader: the client sends nothing we need, but reading surfaces close
	// frames and dead connections.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		msg := streamMessage{
			Type:     "tick",
			Snapshot: s.Sim.Snapshot(false),
			Events:   s.Sim.EventsSince(after, 500),
		}
		if n := len(msg.Events); n > 0 {
			after = msg.Events[n-1].Seq
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(msg)
	}

	interval := s.StreamInterval
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-gone:
			slog.Info("stream client disconnected", "remote", r.RemoteAddr)
			return
		case <-ticker.C:
			if err := send(); err != nil {
				slog.Debug("stream write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
