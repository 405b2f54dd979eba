package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"brsvc/lobby"
)

type addLobbyRequest struct {
	CreatorPlayerID uuid.UUID `json:"creatorPlayerId"`
	MaxPlayers      int       `json:"maxPlayers"`
	Name            string    `json:"name"`
}

type lobbyMemberRequest struct {
	PlayerID uuid.UUID `json:"playerId"`
	Code     string    `json:"code"`
}

type setAdminRequest struct {
	PlayerID   uuid.UUID `json:"playerId"`
	NewAdminID uuid.UUID `json:"newAdminId"`
}

type setLockRequest struct {
	PlayerID uuid.UUID        `json:"playerId"`
	Lock     lobby.SearchLock `json:"lock"`
}

type lobbyStatusResponse struct {
	LobbyID     uuid.UUID `json:"lobbyId"`
	MaxPlayers  int       `json:"maxPlayers"`
	MemberNames []string  `json:"memberNames"`
}

func (s *Server) registerLobbyHandlers() {
	s.app.Post("/lobbies", s.handleAddLobby)
	s.app.Delete("/lobbies/:id", s.handleRemoveLobby)
	s.app.Post("/lobbies/:id/join", s.handleJoinLobby)
	s.app.Post("/lobbies/:id/leave", s.handleLeaveLobby)
	s.app.Post("/lobbies/:id/heartbeat", s.handleHeartbeatLobby)
	s.app.Post("/lobbies/:id/admin", s.handleSetLobbyAdmin)
	s.app.Post("/lobbies/:id/lock", s.handleSetLobbyLock)
	s.app.Get("/lobbies/:id/status", s.handleLobbyStatus)
}

func lobbyID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "malformed lobby id")
	}
	return id, nil
}

func (s *Server) handleAddLobby(c *fiber.Ctx) error {
	var req addLobbyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	l, err := s.lobbies.AddLobby(req.CreatorPlayerID, req.MaxPlayers, req.Name)
	if err != nil {
		return err
	}
	return c.JSON(l)
}

// handleRemoveLobby deletes a lobby. Only its admin may do so.
func (s *Server) handleRemoveLobby(c *fiber.Ctx) error {
	id, err := lobbyID(c)
	if err != nil {
		return err
	}
	var req lobbyMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	l, ok := s.lobbies.GetLobbyByID(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no such lobby")
	}
	if l.AdminPlayerID != req.PlayerID {
		return fiber.NewError(fiber.StatusForbidden, "only the lobby admin may remove it")
	}
	s.lobbies.RemoveLobby(id)
	return c.JSON(fiber.Map{"removed": true})
}

func (s *Server) handleJoinLobby(c *fiber.Ctx) error {
	id, err := lobbyID(c)
	if err != nil {
		return err
	}
	var req lobbyMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if !s.lobbies.JoinLobby(id, req.PlayerID, req.Code) {
		return fiber.NewError(fiber.StatusBadRequest, "join rejected")
	}
	return c.JSON(fiber.Map{"joined": true})
}

func (s *Server) handleLeaveLobby(c *fiber.Ctx) error {
	id, err := lobbyID(c)
	if err != nil {
		return err
	}
	var req lobbyMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	s.lobbies.LeaveLobby(id, req.PlayerID)
	return c.JSON(fiber.Map{"left": true})
}

func (s *Server) handleHeartbeatLobby(c *fiber.Ctx) error {
	id, err := lobbyID(c)
	if err != nil {
		return err
	}
	var req lobbyMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if !s.lobbies.UpdateLobby(id, req.PlayerID) {
		return fiber.NewError(fiber.StatusNotFound, "no such lobby or not a member")
	}
	return c.JSON(fiber.Map{"updated": true})
}

func (s *Server) handleSetLobbyAdmin(c *fiber.Ctx) error {
	id, err := lobbyID(c)
	if err != nil {
		return err
	}
	var req setAdminRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	l, ok := s.lobbies.GetLobbyByID(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no such lobby")
	}
	if l.AdminPlayerID != req.PlayerID {
		return fiber.NewError(fiber.StatusForbidden, "only the lobby admin may transfer the role")
	}
	if !s.lobbies.SetLobbyAdmin(id, req.NewAdminID) {
		return fiber.NewError(fiber.StatusBadRequest, "new admin must be a member")
	}
	return c.JSON(fiber.Map{"adminPlayerId": req.NewAdminID})
}

func (s *Server) handleSetLobbyLock(c *fiber.Ctx) error {
	id, err := lobbyID(c)
	if err != nil {
		return err
	}
	var req setLockRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if req.Lock != lobby.Locked && req.Lock != lobby.Unlocked {
		return fiber.NewError(fiber.StatusBadRequest, "lock must be locked or unlocked")
	}
	if !s.lobbies.SetLobbySearchLock(id, req.PlayerID, req.Lock) {
		return fiber.NewError(fiber.StatusForbidden, "only the lobby admin may change the search lock")
	}
	return c.JSON(fiber.Map{"searchLock": req.Lock})
}

// handleLobbyStatus is code-gated like joining: the caller proves they
// know the join code and gets the member roster back.
func (s *Server) handleLobbyStatus(c *fiber.Ctx) error {
	id, err := lobbyID(c)
	if err != nil {
		return err
	}
	l, ok := s.lobbies.GetLobbyByID(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no such lobby")
	}
	if c.Query("code") != l.Code {
		return fiber.NewError(fiber.StatusForbidden, "wrong join code")
	}
	names := make([]string, 0, len(l.PlayerIDs))
	for _, pid := range l.PlayerIDs {
		if p, ok := s.players.GetPlayerByID(pid); ok {
			names = append(names, p.Name)
		}
	}
	return c.JSON(lobbyStatusResponse{
		LobbyID:     l.ID,
		MaxPlayers:  l.MaxPlayers,
		MemberNames: names,
	})
}
