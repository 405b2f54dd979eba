package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"brsvc/match"
)

type queueRequest struct {
	LobbyID  uuid.UUID `json:"lobbyId"`
	PlayerID uuid.UUID `json:"playerId"`
}

type setStateRequest struct {
	ServerZeusID uuid.UUID   `json:"serverZeusId"`
	State        match.State `json:"state"`
}

type setCompletedRequest struct {
	ServerZeusID uuid.UUID   `json:"serverZeusId"`
	Winners      []uuid.UUID `json:"winners"`
	Players      []uuid.UUID `json:"players"`
}

type serverMatchResponse struct {
	MatchID uuid.UUID                   `json:"matchId"`
	Teams   map[uuid.UUID]match.TeamKey `json:"teams"`
}

func (s *Server) registerMatchHandlers() {
	s.app.Post("/matches/queue", s.handleQueueLobby)
	s.app.Post("/matches/dequeue", s.handleDequeueLobby)
	s.app.Get("/matches/state", s.handleMatchStateByLobby)
	s.app.Get("/matches/player/:playerId", s.handleMatchByPlayer)
	s.app.Get("/matches/server/:zeusId", s.handleMatchByServerZeusID)
	s.app.Get("/matches/:id", s.handleMatchByID)
	s.app.Get("/matches/:id/connection", s.handleConnectionInfo)
	s.app.Post("/matches/:id/state", s.handleSetMatchState)
	s.app.Post("/matches/:id/completed", s.handleSetMatchCompleted)
}

func matchID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "malformed match id")
	}
	return id, nil
}

// requireLobbyAdmin verifies the request came from the lobby's admin.
// Queueing binds every member of the lobby, so only the admin may do it.
func (s *Server) requireLobbyAdmin(lobbyID, playerID uuid.UUID) error {
	l, ok := s.lobbies.GetLobbyByID(lobbyID)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no such lobby")
	}
	if l.AdminPlayerID != playerID {
		return fiber.NewError(fiber.StatusForbidden, "only the lobby admin may queue or dequeue")
	}
	return nil
}

// resolveServer authenticates a server-originated call: the caller's Zeus
// id must belong to a live tracked server. The engine then re-checks that
// this server is the one bound to the match.
func (s *Server) resolveServer(zeusID uuid.UUID) (uuid.UUID, error) {
	inst, ok := s.servers.GetServerByZeusID(zeusID)
	if !ok {
		return uuid.Nil, fiber.NewError(fiber.StatusForbidden, "caller is not a live server")
	}
	return inst.ID, nil
}

func (s *Server) handleQueueLobby(c *fiber.Ctx) error {
	var req queueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if err := s.requireLobbyAdmin(req.LobbyID, req.PlayerID); err != nil {
		return err
	}
	if !s.matches.QueueLobby(req.LobbyID) {
		return fiber.NewError(fiber.StatusBadRequest, "queue rejected")
	}
	return c.JSON(fiber.Map{"queued": true})
}

func (s *Server) handleDequeueLobby(c *fiber.Ctx) error {
	var req queueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if err := s.requireLobbyAdmin(req.LobbyID, req.PlayerID); err != nil {
		return err
	}
	if !s.matches.DequeueLobby(req.LobbyID) {
		return fiber.NewError(fiber.StatusBadRequest, "lobby is not queued")
	}
	return c.JSON(fiber.Map{"dequeued": true})
}

func (s *Server) handleMatchStateByLobby(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Query("lobbyId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed lobby id")
	}
	state, ok := s.matches.GetMatchStateByLobbyID(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "lobby has no match")
	}
	return c.JSON(fiber.Map{"state": state})
}

func (s *Server) handleMatchByID(c *fiber.Ctx) error {
	id, err := matchID(c)
	if err != nil {
		return err
	}
	m, ok := s.matches.GetMatchByID(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no such match")
	}
	return c.JSON(m)
}

func (s *Server) handleMatchByPlayer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("playerId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed player id")
	}
	m, ok := s.matches.GetMatchByPlayer(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "player has no match")
	}
	return c.JSON(m)
}

// handleMatchByServerZeusID is how a freshly booted server discovers which
// match it is hosting and how to group players into squads.
func (s *Server) handleMatchByServerZeusID(c *fiber.Ctx) error {
	zeusID, err := uuid.Parse(c.Params("zeusId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed zeus id")
	}
	serverID, err := s.resolveServer(zeusID)
	if err != nil {
		return err
	}
	m, ok := s.matches.GetMatchByServerID(serverID)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "server has no match")
	}
	return c.JSON(serverMatchResponse{MatchID: m.ID, Teams: m.Teams})
}

func (s *Server) handleConnectionInfo(c *fiber.Ctx) error {
	id, err := matchID(c)
	if err != nil {
		return err
	}
	playerID, err := uuid.Parse(c.Query("playerId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed player id")
	}
	info, ok := s.matches.GetConnectionInfo(id, playerID)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "connection info unavailable")
	}
	return c.JSON(info)
}

func (s *Server) handleSetMatchState(c *fiber.Ctx) error {
	id, err := matchID(c)
	if err != nil {
		return err
	}
	var req setStateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	serverID, err := s.resolveServer(req.ServerZeusID)
	if err != nil {
		return err
	}
	if !s.matches.SetMatchState(id, serverID, req.State) {
		return fiber.NewError(fiber.StatusForbidden, "state change rejected")
	}
	return c.JSON(fiber.Map{"state": req.State})
}

func (s *Server) handleSetMatchCompleted(c *fiber.Ctx) error {
	id, err := matchID(c)
	if err != nil {
		return err
	}
	var req setCompletedRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	serverID, err := s.resolveServer(req.ServerZeusID)
	if err != nil {
		return err
	}
	if !s.matches.SetMatchCompleted(id, serverID, req.Winners, req.Players) {
		return fiber.NewError(fiber.StatusForbidden, "completion rejected")
	}
	return c.JSON(fiber.Map{"state": match.StateCompleted})
}
