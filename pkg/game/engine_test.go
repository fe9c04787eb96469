package game

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"stronghold/pkg/db"
	"stronghold/pkg/types"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func setupEngine(t *testing.T) (*Engine, *fakeClock, *sql.DB) {
	t.Helper()

	database, err := db.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := database.Exec(
		`INSERT INTO system_meta (key, value) VALUES ('genesis_hash', 'test-genesis')`); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine := NewEngine(database, clock, log.New(io.Discard, "", 0))
	return engine, clock, database
}

// --- Fixture Helpers (direct SQL, like the schema they exercise) ---

func insertPlayer(t *testing.T, database *sql.DB, name string) int64 {
	t.Helper()
	res, err := database.Exec(
		`INSERT INTO players (name, created_at, updated_at) VALUES (?, 0, 0)`, name)
	if err != nil {
		t.Fatalf("insert player: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func insertMaterial(t *testing.T, database *sql.DB, name string) int64 {
	t.Helper()
	res, err := database.Exec(
		`INSERT INTO materials (name, created_at, updated_at) VALUES (?, 0, 0)`, name)
	if err != nil {
		t.Fatalf("insert material: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func insertTemplate(t *testing.T, database *sql.DB, name string) int64 {
	t.Helper()
	res, err := database.Exec(
		`INSERT INTO building_templates (name, created_at, updated_at) VALUES (?, 0, 0)`, name)
	if err != nil {
		t.Fatalf("insert template: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func insertEffect(t *testing.T, database *sql.DB, templateID, materialID, amount int64, trigger types.Trigger) int64 {
	t.Helper()
	res, err := database.Exec(`
		INSERT INTO material_effects (building_template_id, material_id, amount, trigger_event, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 0)`, templateID, materialID, amount, string(trigger))
	if err != nil {
		t.Fatalf("insert effect: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func insertBuilding(t *testing.T, database *sql.DB, templateID, playerID int64) int64 {
	t.Helper()
	res, err := database.Exec(
		`INSERT INTO buildings (building_template_id, player_id, built_at) VALUES (?, ?, 0)`,
		templateID, playerID)
	if err != nil {
		t.Fatalf("insert building: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func setBalance(t *testing.T, database *sql.DB, playerID, materialID, balance int64) {
	t.Helper()
	if _, err := database.Exec(`
		INSERT INTO storage (player_id, material_id, balance) VALUES (?, ?, ?)
		ON CONFLICT (player_id, material_id) DO UPDATE SET balance = ?`,
		playerID, materialID, balance, balance); err != nil {
		t.Fatalf("set balance: %v", err)
	}
}

func balance(t *testing.T, database *sql.DB, playerID, materialID int64) int64 {
	t.Helper()
	var b int64
	err := database.QueryRow(
		`SELECT balance FROM storage WHERE player_id = ? AND material_id = ?`,
		playerID, materialID).Scan(&b)
	if err == sql.ErrNoRows {
		return 0
	}
	if err != nil {
		t.Fatalf("read balance: %v", err)
	}
	return b
}

func tickCount(t *testing.T, database *sql.DB) int {
	t.Helper()
	var n int
	if err := database.QueryRow(`SELECT count(*) FROM ticks`).Scan(&n); err != nil {
		t.Fatalf("count ticks: %v", err)
	}
	return n
}

// --- Tick Engine ---

func TestFirstTickImmediatelyEligible(t *testing.T) {
	engine, clock, database := setupEngine(t)

	tick, deltas, err := engine.AdvanceTick(context.Background())
	if err != nil {
		t.Fatalf("first tick should always be eligible: %v", err)
	}
	if !tick.TickedAt.Equal(clock.now) {
		t.Errorf("first tick at %v, want %v", tick.TickedAt, clock.now)
	}
	if len(deltas) != 0 {
		t.Errorf("no buildings means no deltas, got %d", len(deltas))
	}
	if tick.PrevHash != "test-genesis" {
		t.Errorf("first tick chains from genesis, got %q", tick.PrevHash)
	}
	if n := tickCount(t, database); n != 1 {
		t.Errorf("tick count = %d, want 1", n)
	}
}

func TestCadenceGate(t *testing.T) {
	engine, clock, database := setupEngine(t)

	playerID := insertPlayer(t, database, "Alice")
	stoneID := insertMaterial(t, database, "Stone")
	quarryID := insertTemplate(t, database, "Quarry")
	insertEffect(t, database, quarryID, stoneID, 10, types.TriggerTick)
	insertBuilding(t, database, quarryID, playerID)

	if _, _, err := engine.AdvanceTick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if got := balance(t, database, playerID, stoneID); got != 10 {
		t.Fatalf("stone after first tick = %d, want 10", got)
	}

	// 30s later: inside the window. Rejected, nothing changes.
	clock.advance(30 * time.Second)
	_, _, err := engine.AdvanceTick(context.Background())
	var cadence *CadenceError
	if !errors.As(err, &cadence) {
		t.Fatalf("expected CadenceError, got %v", err)
	}
	if cadence.Wait != 30*time.Second {
		t.Errorf("wait = %v, want 30s", cadence.Wait)
	}
	if got := balance(t, database, playerID, stoneID); got != 10 {
		t.Errorf("rejected tick must not change balances, stone = %d", got)
	}
	if n := tickCount(t, database); n != 1 {
		t.Errorf("tick count = %d, want 1", n)
	}

	// Full window elapsed: eligible again, aligned to the grid.
	clock.advance(30 * time.Second)
	tick, _, err := engine.AdvanceTick(context.Background())
	if err != nil {
		t.Fatalf("tick after full window: %v", err)
	}
	if got := balance(t, database, playerID, stoneID); got != 20 {
		t.Errorf("stone after second tick = %d, want 20", got)
	}
	if tick.TickedAt.Sub(clock.now) != 0 {
		t.Errorf("tick timestamp %v not on the grid (now %v)", tick.TickedAt, clock.now)
	}
}

func TestYieldsSumAcrossBuildingsAndEffects(t *testing.T) {
	engine, _, database := setupEngine(t)

	playerID := insertPlayer(t, database, "Alice")
	stoneID := insertMaterial(t, database, "Stone")
	quarryID := insertTemplate(t, database, "Quarry")
	// Two effects on the same material must both apply.
	insertEffect(t, database, quarryID, stoneID, 10, types.TriggerTick)
	insertEffect(t, database, quarryID, stoneID, 5, types.TriggerTick)
	insertBuilding(t, database, quarryID, playerID)
	insertBuilding(t, database, quarryID, playerID)

	_, deltas, err := engine.AdvanceTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := balance(t, database, playerID, stoneID); got != 30 {
		t.Errorf("stone = %d, want 30 (2 buildings x (10+5))", got)
	}
	if len(deltas) != 1 || deltas[0].Amount != 30 {
		t.Errorf("deltas = %+v, want one delta of 30", deltas)
	}
}

func TestDestroyedBuildingsYieldNothing(t *testing.T) {
	engine, _, database := setupEngine(t)

	playerID := insertPlayer(t, database, "Alice")
	stoneID := insertMaterial(t, database, "Stone")
	quarryID := insertTemplate(t, database, "Quarry")
	insertEffect(t, database, quarryID, stoneID, 10, types.TriggerTick)
	buildingID := insertBuilding(t, database, quarryID, playerID)

	if _, err := engine.DestroyBuilding(context.Background(), buildingID); err != nil {
		t.Fatalf("destroy: %v", err)
	}

	if _, _, err := engine.AdvanceTick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := balance(t, database, playerID, stoneID); got != 0 {
		t.Errorf("destroyed building produced %d stone", got)
	}

	// Destroying twice is a not-found, not a double destroy.
	if _, err := engine.DestroyBuilding(context.Background(), buildingID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second destroy: expected ErrNotFound, got %v", err)
	}
}

func TestSoftDeletedEffectsExcluded(t *testing.T) {
	engine, _, database := setupEngine(t)

	playerID := insertPlayer(t, database, "Alice")
	stoneID := insertMaterial(t, database, "Stone")
	woodID := insertMaterial(t, database, "Wood")
	quarryID := insertTemplate(t, database, "Quarry")
	effectID := insertEffect(t, database, quarryID, stoneID, 10, types.TriggerTick)
	insertEffect(t, database, quarryID, woodID, 7, types.TriggerTick)
	insertBuilding(t, database, quarryID, playerID)

	if _, err := database.Exec(
		`UPDATE material_effects SET deleted_at = 1 WHERE id = ?`, effectID); err != nil {
		t.Fatal(err)
	}

	if _, _, err := engine.AdvanceTick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := balance(t, database, playerID, stoneID); got != 0 {
		t.Errorf("deleted effect still yielded %d stone", got)
	}
	if got := balance(t, database, playerID, woodID); got != 7 {
		t.Errorf("live effect yielded %d wood, want 7", got)
	}
}

func TestUpkeepClampsAtZero(t *testing.T) {
	engine, _, database := setupEngine(t)

	playerID := insertPlayer(t, database, "Alice")
	grainID := insertMaterial(t, database, "Grain")
	barracksID := insertTemplate(t, database, "Barracks")
	insertEffect(t, database, barracksID, grainID, -50, types.TriggerTick)
	insertBuilding(t, database, barracksID, playerID)
	setBalance(t, database, playerID, grainID, 30)

	if _, _, err := engine.AdvanceTick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := balance(t, database, playerID, grainID); got != 0 {
		t.Errorf("grain = %d, want 0 (upkeep floors at zero)", got)
	}
}

func TestTickHashChain(t *testing.T) {
	engine, clock, database := setupEngine(t)

	first, _, err := engine.AdvanceTick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	clock.advance(TickLength)
	second, _, err := engine.AdvanceTick(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if second.PrevHash != first.StateHash {
		t.Errorf("tick %d prev_hash = %q, want %q", second.ID, second.PrevHash, first.StateHash)
	}

	var n int
	if err := database.QueryRow(`SELECT count(*) FROM snapshots`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("snapshot count = %d, want 2", n)
	}
}

func TestTickSlotUniqueConstraint(t *testing.T) {
	_, _, database := setupEngine(t)

	if _, err := database.Exec(
		`INSERT INTO ticks (ticked_at, prev_hash, state_hash) VALUES (100, '', 'a')`); err != nil {
		t.Fatal(err)
	}
	_, err := database.Exec(
		`INSERT INTO ticks (ticked_at, prev_hash, state_hash) VALUES (100, '', 'b')`)
	if err == nil {
		t.Fatal("duplicate tick slot accepted")
	}
	if !isUniqueViolation(err) {
		t.Errorf("isUniqueViolation(%v) = false", err)
	}
}

// --- Build Operation ---

func TestBuildDeductsCosts(t *testing.T) {
	engine, _, database := setupEngine(t)

	playerID := insertPlayer(t, database, "Alice")
	stoneID := insertMaterial(t, database, "Stone")
	woodID := insertMaterial(t, database, "Wood")
	mineID := insertTemplate(t, database, "Iron Mine")
	insertEffect(t, database, mineID, stoneID, -100, types.TriggerBuild)
	insertEffect(t, database, mineID, woodID, -100, types.TriggerBuild)
	setBalance(t, database, playerID, stoneID, 150)
	setBalance(t, database, playerID, woodID, 100)

	building, err := engine.Build(context.Background(), playerID, mineID)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if building.PlayerID != playerID || building.BuildingTemplateID != mineID {
		t.Errorf("building = %+v", building)
	}
	if got := balance(t, database, playerID, stoneID); got != 50 {
		t.Errorf("stone = %d, want 50", got)
	}
	if got := balance(t, database, playerID, woodID); got != 0 {
		t.Errorf("wood = %d, want 0", got)
	}

	var active int
	database.QueryRow(`SELECT count(*) FROM buildings WHERE destroyed_at IS NULL`).Scan(&active)
	if active != 1 {
		t.Errorf("active buildings = %d, want 1", active)
	}
}

func TestBuildInsufficientMaterialsIsAtomic(t *testing.T) {
	engine, _, database := setupEngine(t)

	playerID := insertPlayer(t, database, "Alice")
	stoneID := insertMaterial(t, database, "Stone")
	woodID := insertMaterial(t, database, "Wood")
	mineID := insertTemplate(t, database, "Iron Mine")
	insertEffect(t, database, mineID, stoneID, -100, types.TriggerBuild)
	insertEffect(t, database, mineID, woodID, -100, types.TriggerBuild)
	// Enough stone, not enough wood: nothing may be spent.
	setBalance(t, database, playerID, stoneID, 150)
	setBalance(t, database, playerID, woodID, 40)

	_, err := engine.Build(context.Background(), playerID, mineID)
	var short *InsufficientMaterialsError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientMaterialsError, got %v", err)
	}
	if short.Required != 100 || short.Available != 40 {
		t.Errorf("error detail = %+v", short)
	}
	if got := balance(t, database, playerID, stoneID); got != 150 {
		t.Errorf("stone = %d, want 150 (all-or-nothing)", got)
	}
	var n int
	database.QueryRow(`SELECT count(*) FROM buildings`).Scan(&n)
	if n != 0 {
		t.Errorf("building persisted despite failed costs")
	}
}

func TestBuildMissingReferences(t *testing.T) {
	engine, _, database := setupEngine(t)

	playerID := insertPlayer(t, database, "Alice")
	quarryID := insertTemplate(t, database, "Quarry")

	if _, err := engine.Build(context.Background(), playerID, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown template: got %v", err)
	}
	if _, err := engine.Build(context.Background(), 999, quarryID); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown player: got %v", err)
	}

	if _, err := database.Exec(
		`UPDATE building_templates SET deleted_at = 1 WHERE id = ?`, quarryID); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Build(context.Background(), playerID, quarryID); !errors.Is(err, ErrNotFound) {
		t.Errorf("soft-deleted template: got %v", err)
	}
}

func TestBuildSoftDeletedCostExcluded(t *testing.T) {
	engine, _, database := setupEngine(t)

	playerID := insertPlayer(t, database, "Alice")
	stoneID := insertMaterial(t, database, "Stone")
	quarryID := insertTemplate(t, database, "Quarry")
	effectID := insertEffect(t, database, quarryID, stoneID, -100, types.TriggerBuild)
	if _, err := database.Exec(
		`UPDATE material_effects SET deleted_at = 1 WHERE id = ?`, effectID); err != nil {
		t.Fatal(err)
	}

	// The only cost is soft-deleted, so a broke player can still build.
	if _, err := engine.Build(context.Background(), playerID, quarryID); err != nil {
		t.Fatalf("build: %v", err)
	}
}

func TestBuildGrantEffect(t *testing.T) {
	engine, _, database := setupEngine(t)

	playerID := insertPlayer(t, database, "Alice")
	stoneID := insertMaterial(t, database, "Stone")
	depotID := insertTemplate(t, database, "Supply Depot")
	insertEffect(t, database, depotID, stoneID, 25, types.TriggerBuild)

	if _, err := engine.Build(context.Background(), playerID, depotID); err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := balance(t, database, playerID, stoneID); got != 25 {
		t.Errorf("stone = %d, want 25 (build-time grant)", got)
	}
}
