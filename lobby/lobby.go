// Package lobby is the registry of active player groups. A lobby keeps a
// group of players together so they can be dropped into the same match as a
// squad, no matter which endpoint each player connected from.
package lobby

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// SearchLock controls whether the matchmaking merge pass may combine a
// lobby with strangers.
type SearchLock string

const (
	// Locked lobbies are never merged; their players stay together as-is.
	Locked SearchLock = "locked"
	// Unlocked lobbies may receive players from, or be drained into, other
	// unlocked lobbies during matchmaking.
	Unlocked SearchLock = "unlocked"
)

const (
	MaxNameLength = 32
	codeLength    = 4
	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Lobby is a snapshot of a registered lobby. Registry methods hand out
// copies; mutation goes through the Registry only.
type Lobby struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	MaxPlayers    int         `json:"maxPlayers"`
	AdminPlayerID uuid.UUID   `json:"adminPlayerId"`
	PlayerIDs     []uuid.UUID `json:"playerIds"`
	Code          string      `json:"code"`
	CreatedAt     time.Time   `json:"createdAt"`
	SearchLock    SearchLock  `json:"searchLock"`
}

// IsFull reports whether the lobby has reached its own capacity.
func (l Lobby) IsFull() bool {
	return len(l.PlayerIDs) >= l.MaxPlayers
}

// HasPlayer reports whether the given player is a member.
func (l Lobby) HasPlayer(playerID uuid.UUID) bool {
	for _, id := range l.PlayerIDs {
		if id == playerID {
			return true
		}
	}
	return false
}

// GenerateCode returns a 4-character alphanumeric join code. Codes are not
// required to be unique across lobbies; the lobby id disambiguates.
func GenerateCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(code)
}
