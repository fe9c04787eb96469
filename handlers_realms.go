package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/google/uuid"

	"stronghold/pkg/types"
)

func scanRealm(row rowScanner) (types.Realm, error) {
	var (
		realm            types.Realm
		created, updated int64
		deleted          sql.NullInt64
	)
	err := row.Scan(&realm.ID, &realm.Key, &realm.Name, &created, &updated, &deleted)
	if err != nil {
		return realm, err
	}
	realm.CreatedAt = unixTime(created)
	realm.UpdatedAt = unixTime(updated)
	realm.DeletedAt = unixPtr(deleted)
	return realm, nil
}

const realmColumns = `id, key, name, created_at, updated_at, deleted_at`

func (s *Server) searchRealms(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`SELECT ` + realmColumns + ` FROM realms WHERE deleted_at IS NULL`)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer rows.Close()

	realms := []types.Realm{}
	for rows.Next() {
		realm, err := scanRealm(rows)
		if err != nil {
			s.fail(w, err)
			return
		}
		realms = append(realms, realm)
	}
	writeJSON(w, http.StatusOK, realms)
}

func (s *Server) createRealm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	now := time.Now().UTC().Unix()
	res, err := s.db.Exec(
		`INSERT INTO realms (key, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), req.Name, now, now)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, _ := res.LastInsertId()
	realm, err := scanRealm(s.db.QueryRow(`SELECT `+realmColumns+` FROM realms WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, realm)
}

func (s *Server) getRealm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	realm, err := scanRealm(s.db.QueryRow(
		`SELECT `+realmColumns+` FROM realms WHERE id = ? AND deleted_at IS NULL`, id))
	if err == sql.ErrNoRows {
		jsonDetail(w, http.StatusNotFound, "realm not found")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, realm)
}

func (s *Server) patchRealm(w http.ResponseWriter, r *http.Request) {
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
		`UPDATE realms SET name = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		req.Name, time.Now().UTC().Unix(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonDetail(w, http.StatusNotFound, "realm not found")
		return
	}
	realm, err := scanRealm(s.db.QueryRow(`SELECT `+realmColumns+` FROM realms WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, realm)
}

func (s *Server) deleteRealm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	now := time.Now().UTC().Unix()
	res, err := s.db.Exec(
		`UPDATE realms SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonDetail(w, http.StatusNotFound, "realm not found")
		return
	}
	realm, err := scanRealm(s.db.QueryRow(`SELECT `+realmColumns+` FROM realms WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, realm)
}
