package main

import (
	"database/sql"
	"net/http"
	"time"

	"stronghold/pkg/types"
)

const materialColumns = `id, name, created_at, updated_at, deleted_at`

func scanMaterial(row rowScanner) (types.Material, error) {
	var (
		material         types.Material
		created, updated int64
		deleted          sql.NullInt64
	)
	err := row.Scan(&material.ID, &material.Name, &created, &updated, &deleted)
	if err != nil {
		return material, err
	}
	material.CreatedAt = unixTime(created)
	material.UpdatedAt = unixTime(updated)
	material.DeletedAt = unixPtr(deleted)
	return material, nil
}

func (s *Server) searchMaterials(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`SELECT ` + materialColumns + ` FROM materials WHERE deleted_at IS NULL`)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer rows.Close()

	materials := []types.Material{}
	for rows.Next() {
		material, err := scanMaterial(rows)
		if err != nil {
			s.fail(w, err)
			return
		}
		materials = append(materials, material)
	}
	writeJSON(w, http.StatusOK, materials)
}

func (s *Server) createMaterial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	now := time.Now().UTC().Unix()
	res, err := s.db.Exec(
		`INSERT INTO materials (name, created_at, updated_at) VALUES (?, ?, ?)`,
		req.Name, now, now)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, _ := res.LastInsertId()
	material, err := scanMaterial(s.db.QueryRow(`SELECT `+materialColumns+` FROM materials WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, material)
}

func (s *Server) getMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	material, err := scanMaterial(s.db.QueryRow(
		`SELECT `+materialColumns+` FROM materials WHERE id = ? AND deleted_at IS NULL`, id))
	if err == sql.ErrNoRows {
		jsonDetail(w, http.StatusNotFound, "material not found")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, material)
}

func (s *Server) patchMaterial(w http.ResponseWriter, r *http.Request) {
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
		`UPDATE materials SET name = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		req.Name, time.Now().UTC().Unix(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonDetail(w, http.StatusNotFound, "material not found")
		return
	}
	material, err := scanMaterial(s.db.QueryRow(`SELECT `+materialColumns+` FROM materials WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, material)
}

func (s *Server) deleteMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	now := time.Now().UTC().Unix()
	res, err := s.db.Exec(
		`UPDATE materials SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonDetail(w, http.StatusNotFound, "material not found")
		return
	}
	material, err := scanMaterial(s.db.QueryRow(`SELECT `+materialColumns+` FROM materials WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, material)
}
