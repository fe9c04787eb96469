package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"stronghold/pkg/types"
)

//go:embed seed.yml
var defaultSeed []byte

// Content is the seed pack: the materials, templates, and effects the
// world starts with.
type Content struct {
	Realms []struct {
		Name string `yaml:"name"`
	} `yaml:"realms"`
	Materials []string          `yaml:"materials"`
	Templates []ContentTemplate `yaml:"templates"`
}

type ContentTemplate struct {
	Name    string          `yaml:"name"`
	Effects []ContentEffect `yaml:"effects"`
}

type ContentEffect struct {
	Material string `yaml:"material"`
	Amount   int64  `yaml:"amount"`
	Trigger  string `yaml:"trigger"`
}

// LoadContent parses a content pack, falling back to the embedded
// default when no path is configured.
func LoadContent(path string) (*Content, error) {
	raw := defaultSeed
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	var c Content
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("content pack: %w", err)
	}
	for _, tpl := range c.Templates {
		for _, eff := range tpl.Effects {
			if !types.Trigger(eff.Trigger).Valid() {
				return nil, fmt.Errorf("content pack: template %q: bad trigger %q", tpl.Name, eff.Trigger)
			}
		}
	}
	return &c, nil
}

// Seed loads the content pack into an empty database. A database that
// already has materials is left alone, so reboots do not duplicate the
// world.
func Seed(db *sql.DB, content *Content, now time.Time) error {
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM materials`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ts := now.UTC().Unix()
	for _, r := range content.Realms {
		if _, err := tx.Exec(
			`INSERT INTO realms (key, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			newRealmKey(), r.Name, ts, ts); err != nil {
			return err
		}
	}

	materialIDs := make(map[string]int64, len(content.Materials))
	for _, name := range content.Materials {
		res, err := tx.Exec(
			`INSERT INTO materials (name, created_at, updated_at) VALUES (?, ?, ?)`,
			name, ts, ts)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		materialIDs[name] = id
	}

	for _, tpl := range content.Templates {
		res, err := tx.Exec(
			`INSERT INTO building_templates (name, created_at, updated_at) VALUES (?, ?, ?)`,
			tpl.Name, ts, ts)
		if err != nil {
			return err
		}
		tplID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, eff := range tpl.Effects {
			materialID, ok := materialIDs[eff.Material]
			if !ok {
				return fmt.Errorf("content pack: template %q: unknown material %q", tpl.Name, eff.Material)
			}
			if _, err := tx.Exec(`
				INSERT INTO material_effects (building_template_id, material_id, amount, trigger_event, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				tplID, materialID, eff.Amount, eff.Trigger, ts, ts); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}
