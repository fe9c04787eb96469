package game

import (
	"context"
	"database/sql"
	"sort"
)

// YieldRow is one (building, effect) pairing read from the database
// before a tick is resolved.
type YieldRow struct {
	PlayerID   int64
	MaterialID int64
	Amount     int64
}

// BalanceDelta is a net change to one ledger row.
type BalanceDelta struct {
	PlayerID   int64 `json:"player_id"`
	MaterialID int64 `json:"material_id"`
	Amount     int64 `json:"amount"`
}

// SumDeltas collapses effect rows into one delta per (player, material),
// ordered by player then material. Pure; the transaction write-back
// applies its output as a single batch.
func SumDeltas(rows []YieldRow) []BalanceDelta {
	type key struct{ player, material int64 }
	totals := make(map[key]int64)
	for _, r := range rows {
		totals[key{r.PlayerID, r.MaterialID}] += r.Amount
	}

	deltas := make([]BalanceDelta, 0, len(totals))
	for k, amount := range totals {
		deltas = append(deltas, BalanceDelta{PlayerID: k.player, MaterialID: k.material, Amount: amount})
	}
	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].PlayerID != deltas[j].PlayerID {
			return deltas[i].PlayerID < deltas[j].PlayerID
		}
		return deltas[i].MaterialID < deltas[j].MaterialID
	})
	return deltas
}

// getBalance reads a player's balance for one material. Missing rows
// read as zero; they are only materialized on first write.
func getBalance(ctx context.Context, tx *sql.Tx, playerID, materialID int64) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx,
		`SELECT balance FROM storage WHERE player_id = ? AND material_id = ?`,
		playerID, materialID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}

// applyDelta upserts one balance change. Balances floor at zero:
// tick-triggered upkeep may drain a stock but never takes it negative.
func applyDelta(ctx context.Context, tx *sql.Tx, d BalanceDelta) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO storage (player_id, material_id, balance) VALUES (?, ?, max(0, ?))
		ON CONFLICT (player_id, material_id) DO UPDATE SET balance = max(0, storage.balance + ?)`,
		d.PlayerID, d.MaterialID, d.Amount, d.Amount)
	return err
}

// deduct spends amount (> 0) from a balance, failing if the row would
// go negative. The conditional UPDATE is the lost-update guard: two
// concurrent builds cannot both spend the same stock.
func deduct(ctx context.Context, tx *sql.Tx, playerID, materialID, amount int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE storage SET balance = balance - ?
		WHERE player_id = ? AND material_id = ? AND balance >= ?`,
		amount, playerID, materialID, amount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
