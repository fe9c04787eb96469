package main

import (
	"database/sql"
	"net/http"
	"time"

	"stronghold/pkg/types"
)

const playerColumns = `id, realm_id, name, created_at, updated_at, deleted_at`

func scanPlayer(row rowScanner) (types.Player, error) {
	var (
		player           types.Player
		realmID          sql.NullInt64
		created, updated int64
		deleted          sql.NullInt64
	)
	err := row.Scan(&player.ID, &realmID, &player.Name, &created, &updated, &deleted)
	if err != nil {
		return player, err
	}
	if realmID.Valid {
		player.RealmID = &realmID.Int64
	}
	player.CreatedAt = unixTime(created)
	player.UpdatedAt = unixTime(updated)
	player.DeletedAt = unixPtr(deleted)
	return player, nil
}

func (s *Server) searchPlayers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`SELECT ` + playerColumns + ` FROM players WHERE deleted_at IS NULL`)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer rows.Close()

	players := []types.Player{}
	for rows.Next() {
		player, err := scanPlayer(rows)
		if err != nil {
			s.fail(w, err)
			return
		}
		players = append(players, player)
	}
	writeJSON(w, http.StatusOK, players)
}

func (s *Server) createPlayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		RealmID *int64 `json:"realm_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	now := time.Now().UTC().Unix()
	res, err := s.db.Exec(
		`INSERT INTO players (realm_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		req.RealmID, req.Name, now, now)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, _ := res.LastInsertId()
	player, err := scanPlayer(s.db.QueryRow(`SELECT `+playerColumns+` FROM players WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	player, err := scanPlayer(s.db.QueryRow(
		`SELECT `+playerColumns+` FROM players WHERE id = ? AND deleted_at IS NULL`, id))
	if err == sql.ErrNoRows {
		jsonDetail(w, http.StatusNotFound, "player not found")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (s *Server) patchPlayer(w http.ResponseWriter, r *http.Request) {
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
		`UPDATE players SET name = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		req.Name, time.Now().UTC().Unix(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonDetail(w, http.StatusNotFound, "player not found")
		return
	}
	player, err := scanPlayer(s.db.QueryRow(`SELECT `+playerColumns+` FROM players WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (s *Server) deletePlayer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	now := time.Now().UTC().Unix()
	res, err := s.db.Exec(
		`UPDATE players SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonDetail(w, http.StatusNotFound, "player not found")
		return
	}
	player, err := scanPlayer(s.db.QueryRow(`SELECT `+playerColumns+` FROM players WHERE id = ?`, id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

// searchStorage lists a player's ledger. Rows appear once a material
// has been touched by a tick or a build.
func (s *Server) searchStorage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rows, err := s.db.Query(
		`SELECT player_id, material_id, balance FROM storage WHERE player_id = ? ORDER BY material_id`, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer rows.Close()

	balances := []types.Storage{}
	for rows.Next() {
		var st types.Storage
		if err := rows.Scan(&st.PlayerID, &st.MaterialID, &st.Balance); err != nil {
			s.fail(w, err)
			return
		}
		balances = append(balances, st)
	}
	writeJSON(w, http.StatusOK, balances)
}
