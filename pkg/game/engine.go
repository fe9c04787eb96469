// Package game implements the tick resolution engine and the build
// operation: the only parts of the system with ordering and
// partial-failure rules. Everything runs inside single database
// transactions; a tick either commits with all of its balance changes
// or not at all.
package game

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"stronghold/pkg/types"
)

// TickLength is the minimum cadence between ticks. Tick timestamps sit
// on a fixed grid (last + TickLength) rather than drifting with caller
// latency.
const TickLength = 60 * time.Second

// Engine owns the game rules. It carries its persistence handle
// explicitly; handlers receive it by reference.
type Engine struct {
	db    *sql.DB
	clock Clock
	info  *log.Logger
}

func NewEngine(db *sql.DB, clock Clock, info *log.Logger) *Engine {
	return &Engine{db: db, clock: clock, info: info}
}

// AdvanceTick resolves one tick: cadence gate, yield application,
// snapshot, tick row. Returns the applied deltas alongside the tick.
// A *CadenceError means the window has not elapsed and nothing changed.
func (e *Engine) AdvanceTick(ctx context.Context) (*types.Tick, []BalanceDelta, error) {
	now := e.clock.Now().UTC().Truncate(time.Second)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	last, prevHash, err := e.lastTick(ctx, tx, now)
	if err != nil {
		return nil, nil, err
	}

	next := last.Add(TickLength)
	if next.After(now) {
		return nil, nil, &CadenceError{NextTickAt: next, Wait: next.Sub(now)}
	}

	rows, err := pendingYields(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	deltas := SumDeltas(rows)
	for _, d := range deltas {
		if err := applyDelta(ctx, tx, d); err != nil {
			return nil, nil, err
		}
	}

	blob, stateHash, err := buildSnapshot(ctx, tx, prevHash)
	if err != nil {
		return nil, nil, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO ticks (ticked_at, prev_hash, state_hash) VALUES (?, ?, ?)`,
		next.Unix(), prevHash, stateHash)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent advancer claimed this slot first. Abort as a
			// cadence conflict; none of our balance writes survive.
			retry := next.Add(TickLength)
			return nil, nil, &CadenceError{NextTickAt: retry, Wait: retry.Sub(now)}
		}
		return nil, nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (tick_id, state_blob, state_hash) VALUES (?, ?, ?)`,
		id, blob, stateHash); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	e.info.Printf("tick %d resolved at %s: %d balance changes", id, next.Format(time.RFC3339), len(deltas))
	return &types.Tick{ID: id, TickedAt: next, PrevHash: prevHash, StateHash: stateHash}, deltas, nil
}

// lastTick returns the newest tick time and state hash. With an empty
// log the clock seeds at now - TickLength (first tick always eligible)
// and the hash chain starts from the genesis hash.
func (e *Engine) lastTick(ctx context.Context, tx *sql.Tx, now time.Time) (time.Time, string, error) {
	var (
		tickedAt int64
		hash     string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT ticked_at, state_hash FROM ticks ORDER BY ticked_at DESC LIMIT 1`).
		Scan(&tickedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		genesis, gerr := genesisHash(ctx, tx)
		if gerr != nil {
			return time.Time{}, "", gerr
		}
		return now.Add(-TickLength), genesis, nil
	}
	if err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(tickedAt, 0).UTC(), hash, nil
}

func genesisHash(ctx context.Context, tx *sql.Tx) (string, error) {
	var hash string
	err := tx.QueryRowContext(ctx,
		`SELECT value FROM system_meta WHERE key = 'genesis_hash'`).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// pendingYields pairs every active building with its template's live
// tick effects. Destroyed buildings and soft-deleted effects are
// filtered here and nowhere else.
func pendingYields(ctx context.Context, tx *sql.Tx) ([]YieldRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT b.player_id, e.material_id, e.amount
		FROM buildings b
		JOIN material_effects e ON e.building_template_id = b.building_template_id
		WHERE b.destroyed_at IS NULL
		  AND e.deleted_at IS NULL
		  AND e.trigger_event = ?`, string(types.TriggerTick))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []YieldRow
	for rows.Next() {
		var y YieldRow
		if err := rows.Scan(&y.PlayerID, &y.MaterialID, &y.Amount); err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

// Build creates a building for a player, paying the template's build
// effects up front. All deductions and the building row commit
// together; the first shortfall discards everything.
func (e *Engine) Build(ctx context.Context, playerID, templateID int64) (*types.Building, error) {
	now := e.clock.Now().UTC().Truncate(time.Second)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := requireLive(ctx, tx, "building_templates", templateID); err != nil {
		return nil, fmt.Errorf("building template %d: %w", templateID, err)
	}
	if err := requireLive(ctx, tx, "players", playerID); err != nil {
		return nil, fmt.Errorf("player %d: %w", playerID, err)
	}

	costs, err := buildEffects(ctx, tx, templateID, playerID)
	if err != nil {
		return nil, err
	}
	for _, d := range SumDeltas(costs) {
		if d.Amount >= 0 {
			// Build-time grants are rare but legal; apply like a yield.
			if d.Amount > 0 {
				if err := applyDelta(ctx, tx, d); err != nil {
					return nil, err
				}
			}
			continue
		}
		need := -d.Amount
		have, err := getBalance(ctx, tx, d.PlayerID, d.MaterialID)
		if err != nil {
			return nil, err
		}
		ok := have >= need
		if ok {
			ok, err = deduct(ctx, tx, d.PlayerID, d.MaterialID, need)
			if err != nil {
				return nil, err
			}
		}
		if !ok {
			return nil, &InsufficientMaterialsError{
				PlayerID:   d.PlayerID,
				MaterialID: d.MaterialID,
				Required:   need,
				Available:  have,
			}
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO buildings (building_template_id, player_id, built_at) VALUES (?, ?, ?)`,
		templateID, playerID, now.Unix())
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e.info.Printf("player %d built template %d (building %d)", playerID, templateID, id)
	return &types.Building{
		ID:                 id,
		BuildingTemplateID: templateID,
		PlayerID:           playerID,
		BuiltAt:            now,
	}, nil
}

func buildEffects(ctx context.Context, tx *sql.Tx, templateID, playerID int64) ([]YieldRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT material_id, amount FROM material_effects
		WHERE building_template_id = ? AND deleted_at IS NULL AND trigger_event = ?`,
		templateID, string(types.TriggerBuild))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []YieldRow
	for rows.Next() {
		y := YieldRow{PlayerID: playerID}
		if err := rows.Scan(&y.MaterialID, &y.Amount); err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

// DestroyBuilding soft-destroys an active building and returns it.
// Destroyed buildings stop yielding from the next tick on.
func (e *Engine) DestroyBuilding(ctx context.Context, id int64) (*types.Building, error) {
	now := e.clock.Now().UTC().Truncate(time.Second)

	res, err := e.db.ExecContext(ctx,
		`UPDATE buildings SET destroyed_at = ? WHERE id = ? AND destroyed_at IS NULL`,
		now.Unix(), id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("building %d: %w", id, ErrNotFound)
	}

	b := &types.Building{ID: id}
	var builtAt, destroyedAt int64
	err = e.db.QueryRowContext(ctx,
		`SELECT building_template_id, player_id, built_at, destroyed_at FROM buildings WHERE id = ?`,
		id).Scan(&b.BuildingTemplateID, &b.PlayerID, &builtAt, &destroyedAt)
	if err != nil {
		return nil, err
	}
	b.BuiltAt = time.Unix(builtAt, 0).UTC()
	t := time.Unix(destroyedAt, 0).UTC()
	b.DestroyedAt = &t
	return b, nil
}

// requireLive checks that a soft-deletable row exists and is not
// deleted. Table names are fixed at the call sites.
func requireLive(ctx context.Context, tx *sql.Tx, table string, id int64) error {
	var n int
	q := fmt.Sprintf(`SELECT count(*) FROM %s WHERE id = ? AND deleted_at IS NULL`, table)
	if err := tx.QueryRowContext(ctx, q, id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
