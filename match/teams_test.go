package match

import (
	"testing"

	"gotest.tools/v3/assert"

	"brsvc/lobby"
)

func TestMergePoursSmallLobbyIntoLarge(t *testing.T) {
	f := newFixture(t)

	small := f.addLobby(t, 1)
	large := f.addLobby(t, 3)
	assert.Assert(t, f.engine.QueueLobby(small.ID))
	assert.Assert(t, f.engine.QueueLobby(large.ID))

	f.engine.tick()

	all := f.lobbies.GetAllLobbies()
	assert.Equal(t, len(all), 1, "the emptied lobby is removed from the registry")
	assert.Equal(t, len(all[0].PlayerIDs), 4)
	assert.Equal(t, all[0].ID, large.ID, "members pour into the larger lobby")
	assert.Equal(t, all[0].Code, large.Code, "the receiving lobby keeps its join code")

	m, ok := f.engine.GetMatchByPlayer(small.PlayerIDs[0])
	assert.Assert(t, ok)
	assert.Equal(t, len(m.LobbyIDs), 1)
	assert.Equal(t, len(m.Players), 4)
}

func TestMergeNeverOverfills(t *testing.T) {
	f := newFixture(t)

	a := f.addLobby(t, 2)
	b := f.addLobby(t, 3)
	assert.Assert(t, f.engine.QueueLobby(a.ID))
	assert.Assert(t, f.engine.QueueLobby(b.ID))

	f.engine.tick()

	for _, l := range f.lobbies.GetAllLobbies() {
		assert.Assert(t, len(l.PlayerIDs) <= l.MaxPlayers,
			"lobby %s holds %d of %d", l.ID, len(l.PlayerIDs), l.MaxPlayers)
	}
	assert.Equal(t, len(f.lobbies.GetAllLobbies()), 2, "2+3 does not fit a 4 cap, no merge")
}

func TestMergeSkipsLockedLobbies(t *testing.T) {
	f := newFixture(t)

	locked := f.addLobby(t, 2)
	assert.Assert(t, f.lobbies.SetLobbySearchLock(locked.ID, locked.AdminPlayerID, lobby.Locked))
	open := f.addLobby(t, 2)
	assert.Assert(t, f.engine.QueueLobby(locked.ID))
	assert.Assert(t, f.engine.QueueLobby(open.ID))

	f.engine.tick()

	assert.Equal(t, len(f.lobbies.GetAllLobbies()), 2, "locked lobbies are never merged")
}

func TestTeamAssignment(t *testing.T) {
	f := newFixture(t)

	solo := f.addLobbySized(t, 1, 1)
	squadA := f.addLobby(t, 3)
	squadB := f.addLobby(t, 4)
	assert.Assert(t, f.engine.QueueLobby(solo.ID))
	assert.Assert(t, f.engine.QueueLobby(squadA.ID))
	assert.Assert(t, f.engine.QueueLobby(squadB.ID))

	f.engine.tick()

	m, ok := f.engine.GetMatchByPlayer(solo.PlayerIDs[0])
	assert.Assert(t, ok)
	assert.Equal(t, len(m.Teams), 8)

	soloPlayer, _ := f.players.GetPlayerByID(solo.PlayerIDs[0])
	assert.Equal(t, m.Teams[soloPlayer.ZeusID], FFAKey,
		"players without a squad go to the free-for-all pool")

	keys := map[TeamKey]int{}
	for _, key := range m.Teams {
		keys[key]++
	}
	// One FFA slot plus one distinct team per multi-member lobby.
	assert.Equal(t, len(keys), 3)
	for key, count := range keys {
		if key == FFAKey {
			assert.Equal(t, count, 1)
			continue
		}
		assert.Assert(t, key.Team >= 2, "squad teams start above the FFA slot")
		assert.Equal(t, key.Squad, 1)
	}
}

func TestVanishedLobbyIsDroppedSilently(t *testing.T) {
	f := newFixture(t)

	gone := f.addLobby(t, 2)
	stays := f.addLobby(t, 3)
	assert.Assert(t, f.engine.QueueLobby(gone.ID))
	assert.Assert(t, f.engine.QueueLobby(stays.ID))
	assert.Assert(t, f.lobbies.RemoveLobby(gone.ID))

	f.engine.tick()

	m, ok := f.engine.GetMatchByPlayer(stays.PlayerIDs[0])
	assert.Assert(t, ok)
	assert.Equal(t, m.State, StateWaiting, "one vanished lobby never aborts the pass")
	assert.Equal(t, len(m.Players), 3)
	_, ok = f.engine.GetMatchByPlayer(gone.PlayerIDs[0])
	assert.Assert(t, !ok)
}
