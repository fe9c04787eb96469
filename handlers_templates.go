package main

import (
	"database/sql"
	"net/http"
	"time"

	"stronghold/pkg/types"
)

const templateColumns = `id, name, created_at, updated_at, deleted_at`

func scanTemplate(row rowScanner) (types.BuildingTemplate, error) {
	var (
		template         types.BuildingTemplate
		created, updated int64
		deleted          sql.NullInt64
	)
	err := row.Scan(&template.ID, &template.Name, &created, &updated, &deleted)
	if err != nil {
		return template, err
	}
	template.CreatedAt = unixTime(created)
	template.UpdatedAt = unixTime(updated)
	template.DeletedAt = unixPtr(deleted)
	return template, nil
}

func (s *Server) searchTemplates(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`SELECT ` + templateColumns + ` FROM building_templates WHERE deleted_at IS NULL`)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer rows.Close()

	templates := []types.BuildingTemplate{}
	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			s.fail(w, err)
			return
		}
		templates = append(templates, template)
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	now := time.Now().UTC().Unix()
	res, err := s.db.Exec(
		`INSERT INTO building_templates (name, created_at, updated_at) VALUES (?, ?, ?)`,
		req.Name, now, now)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, _ := res.LastInsertId()
	template, err := scanTemplate(s.db.QueryRow(`SELECT `+templateColumns+` FROM building_templates WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, template)
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	template, err := scanTemplate(s.db.QueryRow(
		`SELECT `+templateColumns+` FROM building_templates WHERE id = ? AND deleted_at IS NULL`, id))
	if err == sql.ErrNoRows {
		jsonDetail(w, http.StatusNotFound, "building template not found")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func (s *Server) patchTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.db.Exec(
		`UPDATE building_templates SET name = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		req.Name, time.Now().UTC().Unix(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonDetail(w, http.StatusNotFound, "building template not found")
		return
	}
	template, err := scanTemplate(s.db.QueryRow(`SELECT `+templateColumns+` FROM building_templates WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	now := time.Now().UTC().Unix()
	res, err := s.db.Exec(
		`UPDATE building_templates SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonDetail(w, http.StatusNotFound, "building template not found")
		return
	}
	template, err := scanTemplate(s.db.QueryRow(`SELECT `+templateColumns+` FROM building_templates WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, template)
}
