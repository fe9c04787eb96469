package main

import (
	"database/sql"
	"net/http"

	"stronghold/pkg/types"
)

const buildingColumns = `id, building_template_id, player_id, built_at, destroyed_at`

func scanBuilding(row rowScanner) (types.Building, error) {
	var (
		building  types.Building
		builtAt   int64
		destroyed sql.NullInt64
	)
	err := row.Scan(&building.ID, &building.BuildingTemplateID, &building.PlayerID, &builtAt, &destroyed)
	if err != nil {
		return building, err
	}
	building.BuiltAt = unixTime(builtAt)
	building.DestroyedAt = unixPtr(destroyed)
	return building, nil
}

func (s *Server) searchBuildings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`SELECT ` + buildingColumns + ` FROM buildings WHERE destroyed_at IS NULL`)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer rows.Close()

	buildings := []types.Building{}
	for rows.Next() {
		building, err := scanBuilding(rows)
		if err != nil {
			s.fail(w, err)
			return
		}
		buildings = append(buildings, building)
	}
	writeJSON(w, http.StatusOK, buildings)
}

// createBuilding is the build operation: costs are paid atomically with
// the building row, or not at all.
func (s *Server) createBuilding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildingTemplateID int64 `json:"building_template_id"`
		PlayerID           int64 `json:"player_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	building, err := s.engine.Build(r.Context(), req.PlayerID, req.BuildingTemplateID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, building)
}

func (s *Server) getBuilding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	building, err := scanBuilding(s.db.QueryRow(
		`SELECT `+buildingColumns+` FROM buildings WHERE id = ? AND destroyed_at IS NULL`, id))
	if err == sql.ErrNoRows {
		jsonDetail(w, http.StatusNotFound, "building not found")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, building)
}

func (s *Server) deleteBuilding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	building, err := s.engine.DestroyBuilding(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, building)
}
