package server

import (
	"github.com/gofiber/fiber/v2"
)

type healthResponse struct {
	IsServerRunning bool `json:"is_server_running"`
	Lobbies         int  `json:"lobbies"`
	Servers         int  `json:"servers"`
}

func (s *Server) registerHealthHandler() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(healthResponse{
			IsServerRunning: true, // see http://ismycomputeron.com/
			Lobbies:         len(s.lobbies.GetAllLobbies()),
			Servers:         len(s.servers.GetAllServers()),
		})
	})
}
