package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stronghold/pkg/db"
	"stronghold/pkg/game"
)

// Server carries every dependency the handlers need. Constructed once
// in main and passed by reference; no package-level state.
type Server struct {
	cfg       Config
	db        *sql.DB
	engine    *game.Engine
	feed      *Feed
	identity  db.Identity
	startedAt time.Time

	info   *log.Logger
	errlog *log.Logger

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

func newServer(cfg Config, database *sql.DB, engine *game.Engine, identity db.Identity, info, errlog *log.Logger) *Server {
	return &Server{
		cfg:       cfg,
		db:        database,
		engine:    engine,
		feed:      newFeed(errlog),
		identity:  identity,
		startedAt: time.Now().UTC(),
		info:      info,
		errlog:    errlog,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/realms", s.searchRealms)
	mux.HandleFunc("POST /v1/realms", s.createRealm)
	mux.HandleFunc("GET /v1/realms/{id}", s.getRealm)
	mux.HandleFunc("PATCH /v1/realms/{id}", s.patchRealm)
	mux.HandleFunc("DELETE /v1/realms/{id}", s.deleteRealm)

	mux.HandleFunc("GET /v1/players", s.searchPlayers)
	mux.HandleFunc("POST /v1/players", s.createPlayer)
	mux.HandleFunc("GET /v1/players/{id}", s.getPlayer)
	mux.HandleFunc("PATCH /v1/players/{id}", s.patchPlayer)
	mux.HandleFunc("DELETE /v1/players/{id}", s.deletePlayer)
	mux.HandleFunc("GET /v1/players/{id}/storage", s.searchStorage)

	mux.HandleFunc("GET /v1/materials", s.searchMaterials)
	mux.HandleFunc("POST /v1/materials", s.createMaterial)
	mux.HandleFunc("GET /v1/materials/{id}", s.getMaterial)
	mux.HandleFunc("PATCH /v1/materials/{id}", s.patchMaterial)
	mux.HandleFunc("DELETE /v1/materials/{id}", s.deleteMaterial)

	mux.HandleFunc("GET /v1/building-templates", s.searchTemplates)
	mux.HandleFunc("POST /v1/building-templates", s.createTemplate)
	mux.HandleFunc("GET /v1/building-templates/{id}", s.getTemplate)
	mux.HandleFunc("PATCH /v1/building-templates/{id}", s.patchTemplate)
	mux.HandleFunc("DELETE /v1/building-templates/{id}", s.deleteTemplate)

	mux.HandleFunc("GET /v1/material-effects", s.searchEffects)
	mux.HandleFunc("POST /v1/material-effects", s.createEffect)
	mux.HandleFunc("GET /v1/material-effects/{id}", s.getEffect)
	mux.HandleFunc("PATCH /v1/material-effects/{id}", s.patchEffect)
	mux.HandleFunc("DELETE /v1/material-effects/{id}", s.deleteEffect)
	mux.HandleFunc("GET /v1/material-costs", s.searchCosts)
	mux.HandleFunc("GET /v1/material-yields", s.searchYields)

	mux.HandleFunc("GET /v1/buildings", s.searchBuildings)
	mux.HandleFunc("POST /v1/buildings", s.createBuilding)
	mux.HandleFunc("GET /v1/buildings/{id}", s.getBuilding)
	mux.HandleFunc("DELETE /v1/buildings/{id}", s.deleteBuilding)

	mux.HandleFunc("GET /v1/ticks", s.searchTicks)
	mux.HandleFunc("POST /v1/ticks", s.createTick)
	mux.HandleFunc("GET /v1/ticks/live", s.feed.handleLive)
	mux.HandleFunc("GET /v1/ticks/{id}", s.getTick)
	mux.HandleFunc("GET /v1/snapshots", s.searchSnapshots)

	mux.HandleFunc("GET /v1/status", s.handleStatus)

	handler := s.middlewareRateLimit(mux)
	handler = s.middlewareRequestID(handler)
	handler = middlewareCORS(handler)
	return handler
}

// --- Response Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// fail translates domain errors to HTTP. Cadence conflicts reuse the
// exact wording clients key on.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var cadence *game.CadenceError
	var short *game.InsufficientMaterialsError
	switch {
	case errors.Is(err, game.ErrNotFound):
		jsonDetail(w, http.StatusNotFound, err.Error())
	case errors.As(err, &cadence):
		jsonDetail(w, http.StatusConflict,
			"Can only tick once every "+strconv.Itoa(int(game.TickLength.Seconds()))+" seconds")
	case errors.As(err, &short):
		jsonDetail(w, http.StatusUnprocessableEntity, short.Error())
	default:
		s.errlog.Printf("internal error: %v", err)
		jsonDetail(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON parses a request body, answering 422 on malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonDetail(w, http.StatusUnprocessableEntity, "malformed payload")
		return false
	}
	return true
}

// pathID parses the {id} segment, answering 404 on garbage ids.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonDetail(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// --- Time Helpers (timestamps persist as unix seconds) ---

func unixTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var lastTick sql.NullInt64
	s.db.QueryRow(`SELECT ticked_at FROM ticks ORDER BY ticked_at DESC LIMIT 1`).Scan(&lastTick)

	status := map[string]interface{}{
		"server_id":    s.identity.ServerID,
		"genesis_hash": s.identity.GenesisHash,
		"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
	}
	if lastTick.Valid {
		status["last_tick_at"] = unixTime(lastTick.Int64)
	}
	writeJSON(w, http.StatusOK, status)
}
