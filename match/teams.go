package match

import (
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"brsvc/lobby"
)

// formTeams is the launch-time formation pass. It merges small unlocked
// lobbies together, rebuilds the match roster from the post-merge
// registry state and assigns the final team keys. Lobbies that no longer
// fit the match capacity are returned for the caller to requeue. Called
// with the engine lock held; a lobby that vanished since queueing is
// dropped silently.
func (e *Engine) formTeams(r *record) []lobby.Lobby {
	var full, locked, unlocked []lobby.Lobby
	for _, id := range r.lobbyIDs {
		lob, ok := e.lobbies.GetLobbyByID(id)
		if !ok {
			log.Debug().Str("lobby_id", id.String()).Msg("queued lobby vanished, dropping")
			continue
		}
		switch {
		case lob.IsFull():
			full = append(full, lob)
		case lob.SearchLock == lobby.Locked:
			locked = append(locked, lob)
		default:
			unlocked = append(unlocked, lob)
		}
	}

	unlocked = e.mergeLobbies(unlocked)

	ordered := make([]lobby.Lobby, 0, len(unlocked)+len(locked)+len(full))
	ordered = append(ordered, unlocked...)
	ordered = append(ordered, locked...)
	ordered = append(ordered, full...)

	// Lobbies are live between queueing and launch, so the registry
	// roster may have grown past what QueueLobby admitted. Shed whole
	// lobbies that no longer fit.
	var overflow []lobby.Lobby
	admitted := ordered[:0]
	total := 0
	for _, lob := range ordered {
		if total+len(lob.PlayerIDs) > e.capacity {
			overflow = append(overflow, lob)
			continue
		}
		total += len(lob.PlayerIDs)
		admitted = append(admitted, lob)
	}
	ordered = admitted

	r.lobbyIDs = r.lobbyIDs[:0]
	r.players = r.players[:0]
	r.lobbyPlayers = map[uuid.UUID][]uuid.UUID{}
	r.teams = map[uuid.UUID]TeamKey{}

	// Squads round-robin across team slots 2..maxTeams so no team fills
	// up before the others receive any squad. Slot 1 pools the players
	// whose lobby is too small to count as a squad.
	squadIdx := 0
	for _, lob := range ordered {
		key := FFAKey
		if len(lob.PlayerIDs) >= 2 {
			key = TeamKey{
				Team:  squadIdx%(maxTeams-1) + 2,
				Squad: squadIdx/(maxTeams-1) + 1,
			}
			squadIdx++
		}
		r.lobbyIDs = append(r.lobbyIDs, lob.ID)
		r.lobbyPlayers[lob.ID] = append([]uuid.UUID(nil), lob.PlayerIDs...)
		for _, pid := range lob.PlayerIDs {
			r.players = append(r.players, pid)
			p, ok := e.players.GetPlayerByID(pid)
			if !ok {
				continue
			}
			r.teams[p.ZeusID] = key
		}
	}
	return overflow
}

// mergeLobbies pours small unlocked lobbies into large ones with room,
// two pointers over the ascending-sorted list: on a successful pour the
// low pointer advances, otherwise the high pointer shrinks. Members move
// through the registry's own leave/join so its invariants keep holding;
// an emptied lobby is removed by the registry when its admin leaves last.
func (e *Engine) mergeLobbies(unlocked []lobby.Lobby) []lobby.Lobby {
	sort.SliceStable(unlocked, func(i, j int) bool {
		return len(unlocked[i].PlayerIDs) < len(unlocked[j].PlayerIDs)
	})

	lo, hi := 0, len(unlocked)-1
	for lo < hi {
		src, dst := unlocked[lo], unlocked[hi]
		room := dst.MaxPlayers - len(dst.PlayerIDs)
		if room < len(src.PlayerIDs) {
			hi--
			continue
		}
		moved := make([]uuid.UUID, 0, len(src.PlayerIDs))
		for _, pid := range src.PlayerIDs {
			if !e.lobbies.JoinLobby(dst.ID, pid, dst.Code) {
				break
			}
			e.lobbies.LeaveLobby(src.ID, pid)
			moved = append(moved, pid)
		}
		if fresh, ok := e.lobbies.GetLobbyByID(dst.ID); ok {
			unlocked[hi] = fresh
		}
		if fresh, ok := e.lobbies.GetLobbyByID(src.ID); ok {
			unlocked[lo] = fresh
		} else {
			unlocked[lo].PlayerIDs = nil
		}
		if len(moved) < len(src.PlayerIDs) {
			// Destination filled up mid-pour; stop aiming at it.
			hi--
			continue
		}
		lo++
	}

	kept := unlocked[:0]
	for _, lob := range unlocked {
		if len(lob.PlayerIDs) > 0 {
			kept = append(kept, lob)
		}
	}
	return kept
}
