// Package demogame is a minimal game-state container implementing
// pulsenet/pkg/netcore's Update/StateStore/EventHandler contracts, just
// complete enough to make cmd/pulsenet-server and cmd/pulsenet-client
// runnable examples. Grounded on the teacher's FreeroamGamemode player
// model (core/gamemode/freeroam.go's Player/Vector3), generalized away
// from SA-MP-specific fields (skin, wanted level, admin flag) and onto
// original_source/pygase's GameState/GameStateUpdate newest-wins merge
// semantics (gamestate.py's GameStateUpdate.__add__/_recursive_update).
package demogame

import (
	"bytes"
	"encoding/gob"

	"pulsenet/pkg/netcore"
	"pulsenet/pkg/sqn"
)

func init() {
	gob.Register(Vector3{})
}

// Vector3 is a 3D position, mirroring the teacher's freeroam Vector3.
type Vector3 struct {
	X, Y, Z float32
}

// PlayerState is one player's replicated state.
type PlayerState struct {
	Name     string
	Position Vector3
	Health   float32
}

// toDelete marks a player as removed from the state on merge, the Go
// analogue of gamestate.py's TO_DELETE sentinel.
var toDelete = PlayerState{Name: "\x00__deleted__\x00"}

// Deleted reports whether a player entry is a tombstone.
func (p PlayerState) Deleted() bool {
	return p == toDelete
}

// DeletedPlayer returns the tombstone value used to remove a player on the
// next merge.
func DeletedPlayer() PlayerState {
	return toDelete
}

// GameStateUpdate is a set of per-player changes labeled with a time order,
// implementing netcore.Update.
type GameStateUpdate struct {
	Order   uint16
	Players map[uint16]PlayerState
}

// NewUpdate creates an empty update at the given time order.
func NewUpdate(timeOrder uint16) *GameStateUpdate {
	return &GameStateUpdate{Order: timeOrder, Players: make(map[uint16]PlayerState)}
}

func (u *GameStateUpdate) TimeOrder() uint16 { return u.Order }

// Merge combines u with other, keeping the time order of whichever is
// newer and folding the older update's player entries in underneath the
// newer one's, the way gamestate.py's _recursive_update keeps keys the
// newer update didn't touch.
func (u *GameStateUpdate) Merge(other netcore.Update) netcore.Update {
	o, ok := other.(*GameStateUpdate)
	if !ok || o == nil {
		return u
	}
	newer, older := u, o
	if sqn.SQN(o.Order).Sub(sqn.SQN(u.Order)) > 0 {
		newer, older = o, u
	}
	merged := NewUpdate(newer.Order)
	for id, p := range older.Players {
		merged.Players[id] = p
	}
	for id, p := range newer.Players {
		merged.Players[id] = p
	}
	return merged
}

// Bytes gob-encodes the update for the wire's opaque state-update payload.
func (u *GameStateUpdate) Bytes() []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(u); err != nil {
		return nil
	}
	return buf.Bytes()
}

// DecodeUpdate parses a GameStateUpdate previously produced by Bytes,
// suitable as the decodeUpdate argument to netcore.DialClient.
func DecodeUpdate(raw []byte) (netcore.Update, error) {
	var u GameStateUpdate
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}
