package lobby

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"brsvc/internal/names"
	"brsvc/player"
)

const (
	// DefaultMaxLobbies caps the number of lobbies the registry will track.
	DefaultMaxLobbies = 30
	// DefaultMaxPlayers is the hard cap a lobby's capacity is clamped to.
	DefaultMaxPlayers = 4
	// DefaultTTL is how long a lobby lives without a heartbeat.
	DefaultTTL = 5 * time.Minute
)

var (
	ErrNoSuchPlayer = eris.New("no such player")
	ErrCapacity     = eris.New("lobby capacity exceeded")
)

// PlayerFinder is the slice of the player store the registry needs.
type PlayerFinder interface {
	GetPlayerByID(id uuid.UUID) (player.Player, bool)
}

// Registry owns the set of active lobbies. One mutex guards the whole
// collection and is held for the duration of each logical operation.
type Registry struct {
	mu      sync.Mutex
	lobbies []*Lobby

	players    PlayerFinder
	maxLobbies int
	ttl        time.Duration
}

// Option mutates registry construction parameters.
type Option func(*Registry)

// WithMaxLobbies overrides the lobby cap.
func WithMaxLobbies(n int) Option {
	return func(r *Registry) { r.maxLobbies = n }
}

// WithTTL overrides the lobby expiration window.
func WithTTL(d time.Duration) Option {
	return func(r *Registry) { r.ttl = d }
}

func NewRegistry(players PlayerFinder, opts ...Option) *Registry {
	r := &Registry{
		players:    players,
		maxLobbies: DefaultMaxLobbies,
		ttl:        DefaultTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddLobby creates a lobby with the given creator as its sole member and
// admin. maxPlayers is clamped into [1, DefaultMaxPlayers]; a single-player
// lobby is always search-locked.
func (r *Registry) AddLobby(creatorID uuid.UUID, maxPlayers int, name string) (Lobby, error) {
	creator, ok := r.players.GetPlayerByID(creatorID)
	if !ok {
		return Lobby{}, eris.Wrapf(ErrNoSuchPlayer, "creator %s", creatorID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.lobbies) >= r.maxLobbies {
		return Lobby{}, eris.Wrap(ErrCapacity, "registry is full")
	}

	if maxPlayers < 1 {
		maxPlayers = 1
	}
	if maxPlayers > DefaultMaxPlayers {
		maxPlayers = DefaultMaxPlayers
	}

	id := uuid.New()
	for r.findByID(id) != nil {
		id = uuid.New()
	}

	lock := Unlocked
	if maxPlayers == 1 {
		lock = Locked
	}

	l := &Lobby{
		ID:            id,
		Name:          names.Sanitize(name, MaxNameLength),
		MaxPlayers:    maxPlayers,
		AdminPlayerID: creator.ID,
		PlayerIDs:     []uuid.UUID{creator.ID},
		Code:          GenerateCode(),
		CreatedAt:     time.Now(),
		SearchLock:    lock,
	}
	r.lobbies = append(r.lobbies, l)
	return cloneLobby(l), nil
}

// JoinLobby adds a player to a lobby if the join code matches and the lobby
// has room. Joining a lobby the player already belongs to succeeds without
// mutation.
func (r *Registry) JoinLobby(lobbyID, playerID uuid.UUID, code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.findByID(lobbyID)
	if l == nil {
		return false
	}
	if l.Code != code {
		return false
	}
	if l.HasPlayer(playerID) {
		return true
	}
	if len(l.PlayerIDs) >= l.MaxPlayers {
		return false
	}
	l.PlayerIDs = append(l.PlayerIDs, playerID)
	return true
}

// LeaveLobby removes a player from a lobby. Leaving a lobby that does not
// exist is a successful no-op. If the departing player was the admin, the
// first remaining member inherits the role; an emptied lobby is removed.
func (r *Registry) LeaveLobby(lobbyID, playerID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.findByID(lobbyID)
	if l == nil {
		return true
	}

	removed := false
	kept := l.PlayerIDs[:0]
	for _, id := range l.PlayerIDs {
		if id == playerID {
			removed = true
			continue
		}
		kept = append(kept, id)
	}
	l.PlayerIDs = kept
	if !removed {
		return true
	}

	if l.AdminPlayerID == playerID {
		if len(l.PlayerIDs) == 0 {
			return r.removeLocked(lobbyID)
		}
		l.AdminPlayerID = l.PlayerIDs[0]
	}
	return true
}

// RemoveLobby deletes a lobby outright.
func (r *Registry) RemoveLobby(lobbyID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(lobbyID)
}

// SetLobbyAdmin transfers the admin role to an existing member.
func (r *Registry) SetLobbyAdmin(lobbyID, playerID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.findByID(lobbyID)
	if l == nil || !l.HasPlayer(playerID) {
		return false
	}
	l.AdminPlayerID = playerID
	return true
}

// SetLobbySearchLock lets the admin opt the lobby out of (or back into)
// matchmaking merges. Single-player lobbies stay locked.
func (r *Registry) SetLobbySearchLock(lobbyID, playerID uuid.UUID, lock SearchLock) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.findByID(lobbyID)
	if l == nil || l.AdminPlayerID != playerID {
		return false
	}
	if l.MaxPlayers == 1 && lock == Unlocked {
		return false
	}
	l.SearchLock = lock
	return true
}

// UpdateLobby refreshes a lobby's creation time so it does not expire.
// Only members may heartbeat a lobby.
func (r *Registry) UpdateLobby(lobbyID, playerID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.findByID(lobbyID)
	if l == nil || !l.HasPlayer(playerID) {
		return false
	}
	l.CreatedAt = time.Now()
	return true
}

// ExpireLobbies removes every lobby older than the TTL and returns how
// many were swept.
func (r *Registry) ExpireLobbies() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	kept := r.lobbies[:0]
	expired := 0
	for _, l := range r.lobbies {
		if now.Sub(l.CreatedAt) > r.ttl {
			expired++
			log.Debug().Str("lobby_id", l.ID.String()).Msg("lobby expired")
			continue
		}
		kept = append(kept, l)
	}
	r.lobbies = kept
	return expired
}

// GetLobbyByID returns a snapshot of the lobby with the given id.
func (r *Registry) GetLobbyByID(lobbyID uuid.UUID) (Lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l := r.findByID(lobbyID); l != nil {
		return cloneLobby(l), true
	}
	return Lobby{}, false
}

// GetLobbiesByName returns snapshots of every lobby whose name contains sub.
func (r *Registry) GetLobbiesByName(sub string) []Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Lobby
	for _, l := range r.lobbies {
		if strings.Contains(l.Name, sub) {
			out = append(out, cloneLobby(l))
		}
	}
	return out
}

// GetAllLobbies returns snapshots of every active lobby.
func (r *Registry) GetAllLobbies() []Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		out = append(out, cloneLobby(l))
	}
	return out
}

func (r *Registry) findByID(id uuid.UUID) *Lobby {
	for _, l := range r.lobbies {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (r *Registry) removeLocked(id uuid.UUID) bool {
	for i, l := range r.lobbies {
		if l.ID == id {
			r.lobbies = append(r.lobbies[:i], r.lobbies[i+1:]...)
			return true
		}
	}
	return false
}

func cloneLobby(l *Lobby) Lobby {
	out := *l
	out.PlayerIDs = append([]uuid.UUID(nil), l.PlayerIDs...)
	return out
}
