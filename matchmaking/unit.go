package matchmaking

// OwnerKind tags what kind of entity a unit is, and so how its controlling
// player is found.
type OwnerKind uint8

const (
	OwnerNone OwnerKind = iota
	OwnerPlayer
	OwnerSummon
	OwnerMercenary
)

// Controllable is any entity that can fight in a match on behalf of a player.
type Controllable interface {
	Kind() OwnerKind
	// ControllingPlayer returns the player the unit answers to.
	ControllingPlayer() (PlayerID, bool)
}

// Unit is the plain Controllable used by the intake layer.
type Unit struct {
	OwnerKind OwnerKind
	ID        string
	// Owner is the master of a summon or mercenary.
	Owner PlayerID
}

func (u Unit) Kind() OwnerKind { return u.OwnerKind }

func (u Unit) ControllingPlayer() (PlayerID, bool) {
	switch u.OwnerKind {
	case OwnerPlayer:
		return PlayerID(u.ID), u.ID != ""
	case OwnerSummon, OwnerMercenary:
		return u.Owner, u.Owner != ""
	default:
		return "", false
	}
}

// MatchOf resolves the match a unit fights for through its controlling player.
func (e *Engine) MatchOf(u Controllable) (MatchID, bool) {
	p, ok := u.ControllingPlayer()
	if !ok {
		return 0, false
	}
	return e.PlayerMatch(p)
}

// UnitDied runs the side death hook of the match the unit's controlling
// player fights in. Summons and mercenaries count for their owner.
func (e *Engine) UnitDied(u Controllable) bool {
	p, ok := u.ControllingPlayer()
	if !ok {
		return false
	}
	return e.PlayerDied(p)
}
