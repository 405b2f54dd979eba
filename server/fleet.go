package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type fleetServer struct {
	ID          uuid.UUID `json:"id"`
	ZeusID      uuid.UUID `json:"zeusId"`
	Name        string    `json:"name"`
	GamePort    int       `json:"gamePort"`
	ControlPort int       `json:"controlPort"`
	MonitorPort int       `json:"monitorPort"`
	Ready       bool      `json:"ready"`
}

// Fleet inspection endpoints for operators. Passwords and instance paths
// stay out of the responses.
func (s *Server) registerFleetHandlers() {
	s.app.Get("/servers", s.handleListServers)
	s.app.Get("/servers/:id/logs", s.handleServerLogs)
}

func (s *Server) handleListServers(c *fiber.Ctx) error {
	instances := s.servers.GetAllServers()
	out := make([]fleetServer, 0, len(instances))
	for _, inst := range instances {
		out = append(out, fleetServer{
			ID:          inst.ID,
			ZeusID:      inst.ZeusID,
			Name:        inst.Name,
			GamePort:    inst.GamePort,
			ControlPort: inst.ControlPort,
			MonitorPort: inst.MonitorPort,
			Ready:       inst.Ready(),
		})
	}
	return c.JSON(out)
}

func (s *Server) handleServerLogs(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed server id")
	}
	stdout, stderr, ok := s.servers.ServerLogs(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no such server")
	}
	return c.JSON(fiber.Map{"stdout": stdout, "stderr": stderr})
}
