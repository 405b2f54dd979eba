// Package match is the matchmaking scheduler. It consumes queued lobby
// ids, groups them into matches on a periodic reconciliation tick,
// requests a server from the orchestrator, and drives each match through
// its state machine using both the tick timer and the orchestrator's
// lifecycle events.
package match

import (
	"time"

	"github.com/google/uuid"
)

// State is a match's position in its lifecycle.
type State string

const (
	// StateQueued collects lobbies until the queue window closes.
	StateQueued State = "queued"
	// StateWaiting has a server bound but not yet hosting play.
	StateWaiting State = "waiting"
	// StateInGame is entered only by an authenticated call from the
	// match's own server, never automatically from readiness.
	StateInGame State = "ingame"
	// StateCompleted is terminal; final rosters have been reported.
	StateCompleted State = "completed"
	// StateInvalid is terminal; the bound server died mid-match. Clients
	// must abandon the match id and re-queue.
	StateInvalid State = "invalid"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateInvalid
}

// canTransition encodes the forward-only edges a server-initiated state
// set may take. Rollback and crash edges are engine-internal and never go
// through here.
func canTransition(from, to State) bool {
	switch to {
	case StateWaiting:
		return from == StateQueued
	case StateInGame:
		return from == StateWaiting
	default:
		return false
	}
}

// TeamKey places one player on a team and a squad within it.
type TeamKey struct {
	Team  int `json:"team"`
	Squad int `json:"squad"`
}

// FFAKey is the reserved assignment for players from lobbies too small to
// form a squad; the server pools them into free-for-all slots.
var FFAKey = TeamKey{Team: 1, Squad: 0}

// record is the engine-internal match state: the public fields plus the
// scheduling bookkeeping that never leaves the engine.
type record struct {
	id       uuid.UUID
	serverID uuid.UUID
	state    State

	lobbyIDs     []uuid.UUID
	players      []uuid.UUID
	lobbyPlayers map[uuid.UUID][]uuid.UUID
	teams        map[uuid.UUID]TeamKey
	winners      []uuid.UUID

	queueStart time.Time
	queueEnd   time.Time
	gameStart  time.Time
	gameEnd    time.Time
}

func (r *record) hasLobby(lobbyID uuid.UUID) bool {
	for _, id := range r.lobbyIDs {
		if id == lobbyID {
			return true
		}
	}
	return false
}

func (r *record) hasPlayer(playerID uuid.UUID) bool {
	for _, id := range r.players {
		if id == playerID {
			return true
		}
	}
	return false
}

// Match is the read-only projection handed to external callers. Teams is
// keyed by the players' external (Zeus) ids so the snapshot can be passed
// straight to the spawned server.
type Match struct {
	ID       uuid.UUID             `json:"id"`
	ServerID uuid.UUID             `json:"serverId"`
	State    State                 `json:"state"`
	LobbyIDs []uuid.UUID           `json:"lobbyIds"`
	Players  []uuid.UUID           `json:"players"`
	Teams    map[uuid.UUID]TeamKey `json:"teams"`
	Winners  []uuid.UUID           `json:"winners"`

	QueueStart time.Time `json:"queueStart"`
	QueueEnd   time.Time `json:"queueEnd"`
	GameStart  time.Time `json:"gameStart"`
	GameEnd    time.Time `json:"gameEnd"`
}

func snapshot(r *record) Match {
	teams := make(map[uuid.UUID]TeamKey, len(r.teams))
	for k, v := range r.teams {
		teams[k] = v
	}
	return Match{
		ID:         r.id,
		ServerID:   r.serverID,
		State:      r.state,
		LobbyIDs:   append([]uuid.UUID(nil), r.lobbyIDs...),
		Players:    append([]uuid.UUID(nil), r.players...),
		Teams:      teams,
		Winners:    append([]uuid.UUID(nil), r.winners...),
		QueueStart: r.queueStart,
		QueueEnd:   r.queueEnd,
		GameStart:  r.gameStart,
		GameEnd:    r.gameEnd,
	}
}

// ConnectionInfo is what a client needs to reach its match's server.
type ConnectionInfo struct {
	ZeusID       uuid.UUID `json:"zeusId"`
	GamePassword string    `json:"gamePassword"`
	GamePort     int       `json:"gamePort"`
	MonitorPort  int       `json:"monitorPort"`
}
