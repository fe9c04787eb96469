package db

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func count(t *testing.T, database *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := database.QueryRow(`SELECT count(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	if err := Migrate(database); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestSeedDefaultContent(t *testing.T) {
	database := openTestDB(t)

	content, err := LoadContent("")
	if err != nil {
		t.Fatalf("load embedded content: %v", err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := Seed(database, content, now); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if n := count(t, database, "realms"); n != 1 {
		t.Errorf("realms = %d, want 1", n)
	}
	if n := count(t, database, "materials"); n != 3 {
		t.Errorf("materials = %d, want 3", n)
	}
	if n := count(t, database, "building_templates"); n != 3 {
		t.Errorf("templates = %d, want 3", n)
	}
	// Quarry +Stone, Lumberyard +Wood, Iron Mine -Stone -Wood +Iron.
	if n := count(t, database, "material_effects"); n != 5 {
		t.Errorf("effects = %d, want 5", n)
	}

	var key string
	if err := database.QueryRow(`SELECT key FROM realms`).Scan(&key); err != nil {
		t.Fatal(err)
	}
	if key == "" {
		t.Error("realm seeded without a key")
	}

	// Reboot: seeding again must not duplicate the world.
	if err := Seed(database, content, now); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if n := count(t, database, "materials"); n != 3 {
		t.Errorf("materials after reseed = %d, want 3", n)
	}
}

func TestLoadContentRejectsBadTrigger(t *testing.T) {
	path := t.TempDir() + "/content.yml"
	bad := `
materials: [Stone]
templates:
  - name: Quarry
    effects:
      - {material: Stone, amount: 10, trigger: hourly}
`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadContent(path); err == nil {
		t.Fatal("bad trigger accepted")
	}
}

func TestInitIdentityStable(t *testing.T) {
	database := openTestDB(t)

	first, err := InitIdentity(database, time.Now())
	if err != nil {
		t.Fatalf("first boot: %v", err)
	}
	if first.ServerID == "" || first.GenesisHash == "" {
		t.Fatalf("identity not minted: %+v", first)
	}

	second, err := InitIdentity(database, time.Now())
	if err != nil {
		t.Fatalf("second boot: %v", err)
	}
	if second != first {
		t.Errorf("identity changed across boots: %+v vs %+v", first, second)
	}
}

func TestTickSlotIsUnique(t *testing.T) {
	database := openTestDB(t)

	if _, err := database.Exec(
		`INSERT INTO ticks (ticked_at, prev_hash, state_hash) VALUES (60, '', 'a')`); err != nil {
		t.Fatal(err)
	}
	if _, err := database.Exec(
		`INSERT INTO ticks (ticked_at, prev_hash, state_hash) VALUES (60, '', 'b')`); err == nil {
		t.Fatal("two ticks landed in the same slot")
	}
}
