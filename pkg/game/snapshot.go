package game

import (
	"context"
	"database/sql"
	"encoding/json"

	"stronghold/pkg/core"
	"stronghold/pkg/types"
)

// buildSnapshot serializes the full ledger, compresses it, and chains
// it to the previous tick's hash. The snapshot row commits in the same
// transaction as the tick it belongs to.
func buildSnapshot(ctx context.Context, tx *sql.Tx, prevHash string) ([]byte, string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT player_id, material_id, balance FROM storage ORDER BY player_id, material_id`)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	balances := []types.Storage{}
	for rows.Next() {
		var s types.Storage
		if err := rows.Scan(&s.PlayerID, &s.MaterialID, &s.Balance); err != nil {
			return nil, "", err
		}
		balances = append(balances, s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	raw, err := json.Marshal(balances)
	if err != nil {
		return nil, "", err
	}
	blob := core.Compress(raw)
	hash := core.Hash(append(blob, []byte(prevHash)...))
	return blob, hash, nil
}
