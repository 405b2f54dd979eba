package match

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"brsvc/lobby"
	"brsvc/orchestrator"
	"brsvc/player"
	"brsvc/statsd"
)

const (
	// DefaultCapacity is the hard cap on players per match.
	DefaultCapacity = 100
	// DefaultQueueWindow is how long a queued match keeps accepting lobbies.
	DefaultQueueWindow = 5 * time.Minute
	// DefaultTickInterval drives the reconciliation loop.
	DefaultTickInterval = 5 * time.Second
	// maxTeams is the number of team slots squads are spread across;
	// slot 1 is reserved for the free-for-all pool.
	maxTeams = 25

	launchTemplate = "battleroyale"
)

// LobbyDirectory is the slice of the lobby registry the engine needs. The
// engine moves players between lobbies through these during merge passes;
// it never mutates a lobby any other way.
type LobbyDirectory interface {
	GetLobbyByID(lobbyID uuid.UUID) (lobby.Lobby, bool)
	JoinLobby(lobbyID, playerID uuid.UUID, code string) bool
	LeaveLobby(lobbyID, playerID uuid.UUID) bool
	RemoveLobby(lobbyID uuid.UUID) bool
}

// PlayerDirectory resolves internal player ids to their records.
type PlayerDirectory interface {
	GetPlayerByID(id uuid.UUID) (player.Player, bool)
}

// Provisioner is the slice of the orchestrator the engine needs.
type Provisioner interface {
	AddServer(unlisted bool, bindAddress, templateName string, tick orchestrator.TickRate, typ orchestrator.Type) (orchestrator.Instance, error)
	GetServerByID(id uuid.UUID) (orchestrator.Instance, bool)
	RemoveServer(id uuid.UUID, terminate bool) bool
	Events() <-chan orchestrator.Event
}

// Notifier pushes match lifecycle updates to connected clients.
type Notifier interface {
	Broadcast(message any)
}

// Engine owns the match collection. One mutex serializes the tick, the
// orchestrator event handler and every direct call, held for each whole
// logical operation so the classify-merge-assign-launch sequence stays
// atomic. Lock order is Engine, then Registry, then Orchestrator; never
// the reverse.
type Engine struct {
	mu      sync.Mutex
	matches []*record

	lobbies LobbyDirectory
	players PlayerDirectory
	servers Provisioner
	notify  Notifier

	capacity     int
	queueWindow  time.Duration
	tickInterval time.Duration
	tickRate     orchestrator.TickRate
	bindAddress  string
}

type Option func(*Engine)

// WithCapacity overrides the per-match player cap.
func WithCapacity(n int) Option {
	return func(e *Engine) { e.capacity = n }
}

// WithQueueWindow overrides how long matches accept lobbies before launch.
func WithQueueWindow(d time.Duration) Option {
	return func(e *Engine) { e.queueWindow = d }
}

// WithTickInterval overrides the reconciliation period.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tickInterval = d }
}

// WithTickRate overrides the simulation rate requested for launched servers.
func WithTickRate(r orchestrator.TickRate) Option {
	return func(e *Engine) { e.tickRate = r }
}

// WithBindAddress overrides the address launched servers listen on.
func WithBindAddress(addr string) Option {
	return func(e *Engine) { e.bindAddress = addr }
}

// WithNotifier attaches a client-facing broadcast sink.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notify = n }
}

func NewEngine(lobbies LobbyDirectory, players PlayerDirectory, servers Provisioner, opts ...Option) *Engine {
	e := &Engine{
		lobbies:      lobbies,
		players:      players,
		servers:      servers,
		capacity:     DefaultCapacity,
		queueWindow:  DefaultQueueWindow,
		tickInterval: DefaultTickInterval,
		tickRate:     orchestrator.Tick30,
		bindAddress:  "0.0.0.0",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives the reconciliation tick and consumes the orchestrator's
// event stream until the context is cancelled. Exactly one Run loop may
// be active per Engine.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	log.Info().Dur("interval", e.tickInterval).Msg("match engine running")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("match engine stopped")
			return
		case <-ticker.C:
			e.tick()
		case ev := <-e.servers.Events():
			e.handleEvent(ev)
		}
	}
}

// QueueLobby attaches a lobby to a queued match, opening a new one when no
// queued match has room. Queueing a lobby already attached to a
// non-terminal match is a successful no-op.
func (e *Engine) QueueLobby(lobbyID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.matches {
		if !r.state.Terminal() && r.hasLobby(lobbyID) {
			return true
		}
	}

	lob, ok := e.lobbies.GetLobbyByID(lobbyID)
	if !ok {
		return false
	}

	for _, r := range e.matches {
		if r.state == StateQueued && len(r.players)+len(lob.PlayerIDs) <= e.capacity {
			e.attachLobby(r, lob)
			return true
		}
	}

	now := time.Now()
	r := &record{
		id:           uuid.New(),
		state:        StateQueued,
		lobbyPlayers: map[uuid.UUID][]uuid.UUID{},
		teams:        map[uuid.UUID]TeamKey{},
		queueStart:   now,
		queueEnd:     now.Add(e.queueWindow),
	}
	e.matches = append(e.matches, r)
	e.attachLobby(r, lob)
	log.Info().
		Str("match_id", r.id.String()).
		Str("lobby_id", lobbyID.String()).
		Time("queue_end", r.queueEnd).
		Msg("match opened")
	return true
}

// attachLobby copies the lobby's roster into the match. Team keys start as
// the free-for-all placeholder; the launch-time formation pass assigns the
// final ones.
func (e *Engine) attachLobby(r *record, lob lobby.Lobby) {
	r.lobbyIDs = append(r.lobbyIDs, lob.ID)
	r.lobbyPlayers[lob.ID] = append([]uuid.UUID(nil), lob.PlayerIDs...)
	for _, pid := range lob.PlayerIDs {
		if r.hasPlayer(pid) {
			continue
		}
		r.players = append(r.players, pid)
		p, ok := e.players.GetPlayerByID(pid)
		if !ok {
			log.Warn().Str("player_id", pid.String()).Msg("queued player has no record")
			continue
		}
		r.teams[p.ZeusID] = FFAKey
	}
}

// DequeueLobby detaches a lobby and its players from its queued match.
// Fails if the lobby is not attached to a match that is still queued.
func (e *Engine) DequeueLobby(lobbyID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.matches {
		if r.state != StateQueued || !r.hasLobby(lobbyID) {
			continue
		}
		members := r.lobbyPlayers[lobbyID]
		delete(r.lobbyPlayers, lobbyID)
		kept := r.lobbyIDs[:0]
		for _, id := range r.lobbyIDs {
			if id != lobbyID {
				kept = append(kept, id)
			}
		}
		r.lobbyIDs = kept
		for _, pid := range members {
			keptPlayers := r.players[:0]
			for _, id := range r.players {
				if id != pid {
					keptPlayers = append(keptPlayers, id)
				}
			}
			r.players = keptPlayers
			if p, ok := e.players.GetPlayerByID(pid); ok {
				delete(r.teams, p.ZeusID)
			}
		}
		return true
	}
	return false
}

// tick is one reconciliation pass: every queued match whose window has
// elapsed and which still holds players gets a launch attempt, and queued
// matches emptied by dequeues or vanished lobbies are discarded. A failed
// launch leaves the match queued; the next tick retries.
func (e *Engine) tick() {
	startTime := time.Now()
	defer func() {
		statsd.EmitTickStat(startTime, "reconcile")
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	for _, r := range e.matches {
		if r.state != StateQueued || now.Before(r.queueEnd) || len(r.players) == 0 {
			continue
		}
		e.launchMatch(r)
	}

	kept := e.matches[:0]
	for _, r := range e.matches {
		if r.state == StateQueued && len(r.players) == 0 {
			log.Info().Str("match_id", r.id.String()).Msg("discarding empty queued match")
			continue
		}
		kept = append(kept, r)
	}
	e.matches = kept
}

// launchMatch runs the team-formation pass and requests a server. Lobbies
// the formation pass shed over capacity open a fresh queued match. Called
// with the engine lock held.
func (e *Engine) launchMatch(r *record) {
	if shed := e.formTeams(r); len(shed) > 0 {
		e.requeueLobbies(shed)
	}
	if len(r.players) == 0 {
		return
	}

	inst, err := e.servers.AddServer(true, e.bindAddress, launchTemplate, e.tickRate, orchestrator.TypeGame)
	if err != nil {
		log.Warn().
			Err(err).
			Str("match_id", r.id.String()).
			Msg("server provisioning failed, match stays queued")
		return
	}
	r.serverID = inst.ID
	r.state = StateWaiting
	log.Info().
		Str("match_id", r.id.String()).
		Str("server_id", inst.ID.String()).
		Int("players", len(r.players)).
		Msg("match waiting for server")
	e.broadcastState(r)
}

// requeueLobbies opens a fresh queued match, with a full window, for
// lobbies shed from an over-capacity launch. Called with the engine lock
// held.
func (e *Engine) requeueLobbies(shed []lobby.Lobby) {
	now := time.Now()
	r := &record{
		id:           uuid.New(),
		state:        StateQueued,
		lobbyPlayers: map[uuid.UUID][]uuid.UUID{},
		teams:        map[uuid.UUID]TeamKey{},
		queueStart:   now,
		queueEnd:     now.Add(e.queueWindow),
	}
	e.matches = append(e.matches, r)
	for _, lob := range shed {
		e.attachLobby(r, lob)
		log.Info().
			Str("match_id", r.id.String()).
			Str("lobby_id", lob.ID.String()).
			Msg("over-capacity lobby moved to a fresh queued match")
	}
}

// handleEvent reacts to orchestrator lifecycle notifications. A server
// death before completion invalidates its match; a death after completion
// is the expected teardown.
func (e *Engine) handleEvent(ev orchestrator.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.findByServerID(ev.ServerID)
	if r == nil {
		return
	}
	switch ev.Kind {
	case orchestrator.EventReady:
		log.Info().
			Str("match_id", r.id.String()).
			Str("zeus_id", ev.ZeusID.String()).
			Msg("match server ready")
		e.broadcastState(r)
	case orchestrator.EventTerminated:
		if r.state.Terminal() {
			return
		}
		r.state = StateInvalid
		r.gameEnd = time.Now()
		log.Warn().
			Str("match_id", r.id.String()).
			Str("server_id", ev.ServerID.String()).
			Msg("match server died, match invalidated")
		e.broadcastState(r)
	}
}

// SetMatchState applies a server-initiated state change. The caller must
// already have verified that serverID is the server bound to the match;
// the engine re-checks the binding and only permits forward transitions
// into Waiting or InGame.
func (e *Engine) SetMatchState(matchID, serverID uuid.UUID, state State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.findByID(matchID)
	if r == nil || serverID == uuid.Nil || r.serverID != serverID {
		return false
	}
	if !canTransition(r.state, state) {
		log.Warn().
			Str("match_id", matchID.String()).
			Str("from", string(r.state)).
			Str("to", string(state)).
			Msg("rejected match state transition")
		return false
	}
	r.state = state
	if state == StateInGame {
		r.gameStart = time.Now()
	}
	e.broadcastState(r)
	return true
}

// SetMatchCompleted records the final rosters reported by the match's own
// server, marks the match completed and tears the server down.
func (e *Engine) SetMatchCompleted(matchID, serverID uuid.UUID, winners, players []uuid.UUID) bool {
	e.mu.Lock()
	r := e.findByID(matchID)
	if r == nil || serverID == uuid.Nil || r.serverID != serverID || r.state.Terminal() {
		e.mu.Unlock()
		return false
	}
	r.winners = append([]uuid.UUID(nil), winners...)
	r.players = append([]uuid.UUID(nil), players...)
	r.state = StateCompleted
	r.gameEnd = time.Now()
	e.broadcastState(r)
	e.mu.Unlock()

	// Server teardown happens outside the engine lock; the resulting
	// Terminated event finds the match already completed and is ignored.
	e.servers.RemoveServer(serverID, true)
	log.Info().
		Str("match_id", matchID.String()).
		Int("winners", len(winners)).
		Msg("match completed")
	return true
}

// GetMatchStateByLobbyID returns the state of the most recent match the
// lobby is attached to.
func (e *Engine) GetMatchStateByLobbyID(lobbyID uuid.UUID) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.matches) - 1; i >= 0; i-- {
		if e.matches[i].hasLobby(lobbyID) {
			return e.matches[i].state, true
		}
	}
	return "", false
}

// GetMatchByID returns a snapshot of the match with the given id.
func (e *Engine) GetMatchByID(matchID uuid.UUID) (Match, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.findByID(matchID); r != nil {
		return snapshot(r), true
	}
	return Match{}, false
}

// GetMatchByPlayer returns the most recent match containing the player.
func (e *Engine) GetMatchByPlayer(playerID uuid.UUID) (Match, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.matches) - 1; i >= 0; i-- {
		if e.matches[i].hasPlayer(playerID) {
			return snapshot(e.matches[i]), true
		}
	}
	return Match{}, false
}

// GetMatchByServerID returns the non-terminal match bound to the server.
func (e *Engine) GetMatchByServerID(serverID uuid.UUID) (Match, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.findByServerID(serverID); r != nil {
		return snapshot(r), true
	}
	return Match{}, false
}

// GetConnectionInfo returns what the player needs to join their match's
// server, or false while no ready server is bound. Invalid and completed
// matches never expose stale connection data.
func (e *Engine) GetConnectionInfo(matchID, playerID uuid.UUID) (ConnectionInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.findByID(matchID)
	if r == nil || !r.hasPlayer(playerID) {
		return ConnectionInfo{}, false
	}
	if r.state != StateWaiting && r.state != StateInGame {
		return ConnectionInfo{}, false
	}
	inst, ok := e.servers.GetServerByID(r.serverID)
	if !ok || !inst.Ready() {
		return ConnectionInfo{}, false
	}
	return ConnectionInfo{
		ZeusID:       inst.ZeusID,
		GamePassword: inst.GamePassword,
		GamePort:     inst.GamePort,
		MonitorPort:  inst.MonitorPort,
	}, true
}

// ActiveMatches counts matches that have not reached a terminal state.
func (e *Engine) ActiveMatches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, r := range e.matches {
		if !r.state.Terminal() {
			n++
		}
	}
	return n
}

func (e *Engine) findByID(id uuid.UUID) *record {
	for _, r := range e.matches {
		if r.id == id {
			return r
		}
	}
	return nil
}

// findByServerID resolves the non-terminal match bound to a server.
func (e *Engine) findByServerID(serverID uuid.UUID) *record {
	if serverID == uuid.Nil {
		return nil
	}
	for _, r := range e.matches {
		if r.serverID == serverID && !r.state.Terminal() {
			return r
		}
	}
	return nil
}

type stateUpdate struct {
	MatchID uuid.UUID `json:"matchId"`
	State   State     `json:"state"`
}

func (e *Engine) broadcastState(r *record) {
	if e.notify == nil {
		return
	}
	e.notify.Broadcast(stateUpdate{MatchID: r.id, State: r.state})
}
