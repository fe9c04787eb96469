// Package types holds the persisted domain models shared by the HTTP
// layer and the game engine.
package types

import "time"

// Record is the base embedded by every soft-deletable entity. A record
// with DeletedAt set is invisible to reads and never contributes to
// tick resolution.
type Record struct {
	ID        int64      `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (r *Record) Deleted() bool {
	return r.DeletedAt != nil
}

func (r *Record) MarkDeleted(now time.Time) {
	t := now.UTC()
	r.DeletedAt = &t
}

// SoftDeletable is implemented by every entity that supports soft
// deletion, including Building (where deletion means destruction).
type SoftDeletable interface {
	Deleted() bool
	MarkDeleted(now time.Time)
}

// Trigger says when a material effect fires.
type Trigger string

const (
	// TriggerBuild effects apply once, when a building is created.
	// Negative amounts are construction costs.
	TriggerBuild Trigger = "build"
	// TriggerTick effects apply on every resolved tick while the
	// building stands.
	TriggerTick Trigger = "tick"
)

func (t Trigger) Valid() bool {
	return t == TriggerBuild || t == TriggerTick
}

// Realm groups players. Isolation between realms is not enforced.
type Realm struct {
	Record
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Player owns buildings and material storage.
type Player struct {
	Record
	RealmID *int64 `json:"realm_id,omitempty"`
	Name    string `json:"name"`
}

// Material is a fungible resource (Stone, Wood, ...).
type Material struct {
	Record
	Name string `json:"name"`
}

// BuildingTemplate is a blueprint: its material effects define what a
// building costs and what it produces.
type BuildingTemplate struct {
	Record
	Name string `json:"name"`
}

// MaterialEffect is a signed material quantity bound to a template and
// a trigger event.
type MaterialEffect struct {
	Record
	BuildingTemplateID int64   `json:"building_template_id"`
	MaterialID         int64   `json:"material_id"`
	Amount             int64   `json:"amount"`
	Trigger            Trigger `json:"trigger"`
}

// Building is a player-owned instance of a template. It is active while
// DestroyedAt is unset.
type Building struct {
	ID                 int64      `json:"id"`
	BuildingTemplateID int64      `json:"building_template_id"`
	PlayerID           int64      `json:"player_id"`
	BuiltAt            time.Time  `json:"built_at"`
	DestroyedAt        *time.Time `json:"destroyed_at,omitempty"`
}

func (b *Building) Deleted() bool {
	return b.DestroyedAt != nil
}

func (b *Building) MarkDeleted(now time.Time) {
	t := now.UTC()
	b.DestroyedAt = &t
}

// Storage is one ledger row: how much of a material a player holds.
// Rows are created lazily at balance 0 and never deleted.
type Storage struct {
	PlayerID   int64 `json:"player_id"`
	MaterialID int64 `json:"material_id"`
	Balance    int64 `json:"balance"`
}

// Tick marks one resolved advancement of game time. The log is
// append-only; the newest TickedAt is the authoritative game clock.
// StateHash chains each tick to the previous one over a compressed
// ledger snapshot.
type Tick struct {
	ID        int64     `json:"id"`
	TickedAt  time.Time `json:"ticked_at"`
	PrevHash  string    `json:"prev_hash"`
	StateHash string    `json:"state_hash"`
}

// Snapshot is the compressed ledger state captured with a tick.
type Snapshot struct {
	TickID    int64  `json:"tick_id"`
	StateHash string `json:"state_hash"`
	Size      int    `json:"size"`
}
