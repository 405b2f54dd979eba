// Package player is the backend player record store. Every player is keyed
// by a backend id; the zeus id is the player's identity on the game network
// and is never exposed to other players.
package player

import "github.com/google/uuid"

const MaxNameLength = 32

// Player is a stored player record.
type Player struct {
	// ID is the backend id. All lookups between components happen through it.
	ID uuid.UUID `json:"id"`

	// ZeusID is the player's account id on the game network. Kept out of
	// public responses for privacy.
	ZeusID uuid.UUID `json:"zeusId"`

	// Name is the last display name seen for this player.
	Name string `json:"name"`

	// PreviousNames records every display name this player has used.
	PreviousNames []string `json:"previousNames"`
}

// Public is the projection of a player that is safe to return to clients.
type Public struct {
	ID   uuid.UUID `json:"playerId"`
	Name string    `json:"name"`
}

func (p Player) Public() Public {
	return Public{ID: p.ID, Name: p.Name}
}
