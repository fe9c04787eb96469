package game

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound marks a missing or soft-deleted entity. Callers wrap it
// with the entity kind and id.
var ErrNotFound = errors.New("not found")

// InsufficientMaterialsError aborts a build whose costs exceed the
// player's stored balance. Nothing from the attempt is persisted.
type InsufficientMaterialsError struct {
	PlayerID   int64
	MaterialID int64
	Required   int64
	Available  int64
}

func (e *InsufficientMaterialsError) Error() string {
	return fmt.Sprintf("player %d has %d of material %d, needs %d",
		e.PlayerID, e.Available, e.MaterialID, e.Required)
}

// CadenceError rejects a tick requested before the minimum interval
// elapsed. It is a rate gate, not a fault; callers wait and retry.
type CadenceError struct {
	NextTickAt time.Time
	Wait       time.Duration
}

func (e *CadenceError) Error() string {
	return fmt.Sprintf("can only tick once every %d seconds", int(TickLength.Seconds()))
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint
// failure. Matched on message text so both drivers (mattn, modernc)
// are covered.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
