package player

import (
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"brsvc/internal/names"
)

const DefaultDBPath = "./players.json"

// Store keeps all known players in memory and persists them to a single
// JSON file. All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	players []*Player
	path    string
}

// NewStore creates a store backed by the JSON file at path. A missing file
// is not an error; the store simply starts empty.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultDBPath
	}
	s := &Store{path: path}
	if err := s.Load(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("no player database loaded, starting empty")
	}
	return s
}

// Load replaces the in-memory player set with the contents of the database
// file.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return eris.Wrap(err, "failed to read player database")
	}
	var players []*Player
	if err := json.Unmarshal(data, &players); err != nil {
		return eris.Wrap(err, "failed to decode player database")
	}
	s.mu.Lock()
	s.players = players
	s.mu.Unlock()
	return nil
}

// Save writes the full player set back to the database file.
func (s *Store) Save() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.players, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return eris.Wrap(err, "failed to encode player database")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return eris.Wrap(err, "failed to write player database")
	}
	return nil
}

// AddPlayer creates a player record for the given zeus id, or updates the
// display name of an existing one. The returned Player is a copy.
func (s *Store) AddPlayer(zeusID uuid.UUID, name string) (Player, error) {
	sanitized := names.Sanitize(name, MaxNameLength)

	s.mu.Lock()
	if existing := s.findByZeusID(zeusID); existing != nil {
		renamed := false
		if existing.Name != sanitized && !containsName(existing.PreviousNames, sanitized) {
			existing.Name = sanitized
			existing.PreviousNames = append(existing.PreviousNames, sanitized)
			renamed = true
		}
		snapshot := *existing
		s.mu.Unlock()
		if renamed {
			if err := s.Save(); err != nil {
				log.Error().Err(err).Msg("failed to persist player database")
			}
		}
		return snapshot, nil
	}

	id := uuid.New()
	for s.findByID(id) != nil {
		id = uuid.New()
	}
	p := &Player{
		ID:            id,
		ZeusID:        zeusID,
		Name:          sanitized,
		PreviousNames: []string{sanitized},
	}
	s.players = append(s.players, p)
	snapshot := *p
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		log.Error().Err(err).Msg("failed to persist player database")
	}
	return snapshot, nil
}

// GetPlayerByID returns the player with the given backend id.
func (s *Store) GetPlayerByID(id uuid.UUID) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.findByID(id); p != nil {
		return *p, true
	}
	return Player{}, false
}

// GetPlayerByZeusID returns the player with the given zeus id.
func (s *Store) GetPlayerByZeusID(zeusID uuid.UUID) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.findByZeusID(zeusID); p != nil {
		return *p, true
	}
	return Player{}, false
}

// GetPlayersByName returns every player whose current name contains sub.
func (s *Store) GetPlayersByName(sub string) []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Player
	for _, p := range s.players {
		if strings.Contains(p.Name, sub) {
			out = append(out, *p)
		}
	}
	return out
}

// GetAllPlayers returns a copy of every player record.
func (s *Store) GetAllPlayers() []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	return out
}

func (s *Store) findByID(id uuid.UUID) *Player {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Store) findByZeusID(zeusID uuid.UUID) *Player {
	for _, p := range s.players {
		if p.ZeusID == zeusID {
			return p
		}
	}
	return nil
}

func containsName(haystack []string, name string) bool {
	for _, n := range haystack {
		if n == name {
			return true
		}
	}
	return false
}
