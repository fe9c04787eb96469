package main

import (
	"database/sql"
	"net/http"
	"time"

	"stronghold/pkg/types"
)

const effectColumns = `id, building_template_id, material_id, amount, trigger_event, created_at, updated_at, deleted_at`

func scanEffect(row rowScanner) (types.MaterialEffect, error) {
	var (
		effect           types.MaterialEffect
		trigger          string
		created, updated int64
		deleted          sql.NullInt64
	)
	err := row.Scan(&effect.ID, &effect.BuildingTemplateID, &effect.MaterialID,
		&effect.Amount, &trigger, &created, &updated, &deleted)
	if err != nil {
		return effect, err
	}
	effect.Trigger = types.Trigger(trigger)
	effect.CreatedAt = unixTime(created)
	effect.UpdatedAt = unixTime(updated)
	effect.DeletedAt = unixPtr(deleted)
	return effect, nil
}

func (s *Server) listEffects(w http.ResponseWriter, query string, args ...interface{}) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer rows.Close()

	effects := []types.MaterialEffect{}
	for rows.Next() {
		effect, err := scanEffect(rows)
		if err != nil {
			s.fail(w, err)
			return
		}
		effects = append(effects, effect)
	}
	writeJSON(w, http.StatusOK, effects)
}

func (s *Server) searchEffects(w http.ResponseWriter, r *http.Request) {
	s.listEffects(w, `SELECT `+effectColumns+` FROM material_effects WHERE deleted_at IS NULL`)
}

// searchCosts and searchYields are the legacy trigger-filtered views of
// the effect catalog.
func (s *Server) searchCosts(w http.ResponseWriter, r *http.Request) {
	s.listEffects(w,
		`SELECT `+effectColumns+` FROM material_effects WHERE deleted_at IS NULL AND trigger_event = ?`,
		string(types.TriggerBuild))
}

func (s *Server) searchYields(w http.ResponseWriter, r *http.Request) {
	s.listEffects(w,
		`SELECT `+effectColumns+` FROM material_effects WHERE deleted_at IS NULL AND trigger_event = ?`,
		string(types.TriggerTick))
}

func (s *Server) createEffect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildingTemplateID int64         `json:"building_template_id"`
		MaterialID         int64         `json:"material_id"`
		Amount             int64         `json:"amount"`
		Trigger            types.Trigger `json:"trigger"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Trigger.Valid() {
		jsonDetail(w, http.StatusUnprocessableEntity, "trigger must be build or tick")
		return
	}

	now := time.Now().UTC().Unix()
	res, err := s.db.Exec(`
		INSERT INTO material_effects (building_template_id, material_id, amount, trigger_event, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		req.BuildingTemplateID, req.MaterialID, req.Amount, string(req.Trigger), now, now)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, _ := res.LastInsertId()
	effect, err := scanEffect(s.db.QueryRow(`SELECT `+effectColumns+` FROM material_effects WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, effect)
}

func (s *Server) getEffect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	effect, err := scanEffect(s.db.QueryRow(
		`SELECT `+effectColumns+` FROM material_effects WHERE id = ? AND deleted_at IS NULL`, id))
	if err == sql.ErrNoRows {
		jsonDetail(w, http.StatusNotFound, "material effect not found")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, effect)
}

func (s *Server) patchEffect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount  int64         `json:"amount"`
		Trigger types.Trigger `json:"trigger"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Trigger.Valid() {
		jsonDetail(w, http.StatusUnprocessableEntity, "trigger must be build or tick")
		return
	}

	res, err := s.db.Exec(
		`UPDATE material_effects SET amount = ?, trigger_event = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		req.Amount, string(req.Trigger), time.Now().UTC().Unix(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonDetail(w, http.StatusNotFound, "material effect not found")
		return
	}
	effect, err := scanEffect(s.db.QueryRow(`SELECT `+effectColumns+` FROM material_effects WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, effect)
}

// deleteEffect soft-deletes; the effect stops contributing to builds
// and ticks immediately.
func (s *Server) deleteEffect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	now := time.Now().UTC().Unix()
	res, err := s.db.Exec(
		`UPDATE material_effects SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonDetail(w, http.StatusNotFound, "material effect not found")
		return
	}
	effect, err := scanEffect(s.db.QueryRow(`SELECT `+effectColumns+` FROM material_effects WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, effect)
}
