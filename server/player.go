package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type addPlayerRequest struct {
	ZeusID uuid.UUID `json:"zeusId"`
	Name   string    `json:"name"`
}

func (s *Server) registerPlayerHandlers() {
	s.app.Post("/players", s.handleAddPlayer)
	s.app.Get("/players/:id", s.handleGetPlayer)
	s.app.Get("/players", s.handleFindPlayers)
}

// handleAddPlayer creates or renames the player identified by its Zeus id.
func (s *Server) handleAddPlayer(c *fiber.Ctx) error {
	var req addPlayerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if req.ZeusID == uuid.Nil || req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "zeusId and name are required")
	}
	p, err := s.players.AddPlayer(req.ZeusID, req.Name)
	if err != nil {
		return err
	}
	return c.JSON(p.Public())
}

func (s *Server) handleGetPlayer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed player id")
	}
	p, ok := s.players.GetPlayerByID(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no such player")
	}
	return c.JSON(p.Public())
}

func (s *Server) handleFindPlayers(c *fiber.Ctx) error {
	name := c.Query("name")
	if name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name query is required")
	}
	players := s.players.GetPlayersByName(name)
	out := make([]any, 0, len(players))
	for _, p := range players {
		out = append(out, p.Public())
	}
	return c.JSON(out)
}
