// Package server is the HTTP boundary: a thin fiber app translating
// requests into calls on the player store, lobby registry, match engine
// and orchestrator. Authorization checks live here; the core components
// assume their callers are already verified.
package server

import (
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"brsvc/events"
	"brsvc/lobby"
	"brsvc/match"
	"brsvc/orchestrator"
	"brsvc/player"
)

const defaultPort = "7032"

type Server struct {
	players *player.Store
	lobbies *lobby.Registry
	matches *match.Engine
	servers *orchestrator.Manager
	hub     *events.Hub

	app  *fiber.App
	port string

	running       atomic.Bool
	shutdownMutex sync.Mutex
}

type Option func(*Server)

// WithPort overrides the listen port.
func WithPort(port string) Option {
	return func(s *Server) { s.port = port }
}

func New(
	players *player.Store,
	lobbies *lobby.Registry,
	matches *match.Engine,
	servers *orchestrator.Manager,
	hub *events.Hub,
	opts ...Option,
) *Server {
	s := &Server{
		players: players,
		lobbies: lobbies,
		matches: matches,
		servers: servers,
		hub:     hub,
		port:    defaultPort,
	}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          errorHandler,
	})
	for _, opt := range opts {
		opt(s)
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.registerPlayerHandlers()
	s.registerLobbyHandlers()
	s.registerMatchHandlers()
	s.registerFleetHandlers()
	s.registerHealthHandler()
	s.registerEventHandler()
}

func (s *Server) registerEventHandler() {
	if s.hub == nil {
		return
	}
	s.app.Use("/events", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/events", fiberws.New(s.hub.NewWebSocketHandler()))
}

// Serve blocks listening for requests until Shutdown is called.
func (s *Server) Serve() error {
	s.running.Store(true)
	log.Info().Str("port", s.port).Msg("serving http")
	err := s.app.Listen(":" + s.port)
	s.running.Store(false)
	if err != nil {
		return eris.Wrap(err, "http server failed")
	}
	return nil
}

func (s *Server) Shutdown() error {
	s.shutdownMutex.Lock()
	defer s.shutdownMutex.Unlock()
	if !s.running.Load() {
		return nil
	}
	if err := s.app.Shutdown(); err != nil {
		return eris.Wrap(err, "http shutdown failed")
	}
	s.running.Store(false)
	return nil
}
