package main

import (
	"database/sql"
	"net/http"

	"stronghold/pkg/game"
	"stronghold/pkg/types"
)

const tickColumns = `id, ticked_at, prev_hash, state_hash`

func scanTick(row rowScanner) (types.Tick, error) {
	var (
		tick     types.Tick
		tickedAt int64
	)
	err := row.Scan(&tick.ID, &tickedAt, &tick.PrevHash, &tick.StateHash)
	if err != nil {
		return tick, err
	}
	tick.TickedAt = unixTime(tickedAt)
	return tick, nil
}

func (s *Server) searchTicks(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`SELECT ` + tickColumns + ` FROM ticks ORDER BY ticked_at DESC`)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer rows.Close()

	ticks := []types.Tick{}
	for rows.Next() {
		tick, err := scanTick(rows)
		if err != nil {
			s.fail(w, err)
			return
		}
		ticks = append(ticks, tick)
	}
	writeJSON(w, http.StatusOK, ticks)
}

func (s *Server) getTick(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tick, err := scanTick(s.db.QueryRow(`SELECT `+tickColumns+` FROM ticks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		jsonDetail(w, http.StatusNotFound, "tick not found")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tick)
}

// createTick advances the game clock. 409 means the cadence window has
// not elapsed; nothing changed and the caller should retry later.
func (s *Server) createTick(w http.ResponseWriter, r *http.Request) {
	tick, deltas, err := s.engine.AdvanceTick(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	s.feed.broadcast(tickEvent{Tick: *tick, Deltas: deltas})
	writeJSON(w, http.StatusOK, tick)
}

type tickEvent struct {
	Tick   types.Tick          `json:"tick"`
	Deltas []game.BalanceDelta `json:"deltas"`
}

func (s *Server) searchSnapshots(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(
		`SELECT tick_id, state_hash, length(state_blob) FROM snapshots ORDER BY tick_id DESC`)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer rows.Close()

	snapshots := []types.Snapshot{}
	for rows.Next() {
		var snap types.Snapshot
		if err := rows.Scan(&snap.TickID, &snap.StateHash, &snap.Size); err != nil {
			s.fail(w, err)
			return
		}
		snapshots = append(snapshots, snap)
	}
	writeJSON(w, http.StatusOK, snapshots)
}
