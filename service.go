// Package brsvc wires the matchmaking service together: player store,
// lobby registry, match engine, server orchestrator and the HTTP boundary.
package brsvc

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"brsvc/events"
	"brsvc/lobby"
	"brsvc/match"
	"brsvc/orchestrator"
	"brsvc/player"
	"brsvc/server"
	"brsvc/statsd"
	"brsvc/telemetry"
)

type Service struct {
	cfg Config

	players *player.Store
	lobbies *lobby.Registry
	engine  *match.Engine
	fleet   *orchestrator.Manager
	hub     *events.Hub
	http    *server.Server
}

func New(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setupLogger(cfg)

	players := player.NewStore(cfg.PlayerDBPath)
	lobbies := lobby.NewRegistry(players,
		lobby.WithMaxLobbies(cfg.MaxLobbies),
		lobby.WithTTL(cfg.LobbyTTL),
	)
	fleet := orchestrator.NewManager(
		orchestrator.WithBinary(cfg.ServerBinary),
		orchestrator.WithRootDir(cfg.ServerRoot),
		orchestrator.WithTemplateDir(cfg.TemplateDir),
		orchestrator.WithMaxServers(cfg.MaxServers),
		orchestrator.WithPortRanges(cfg.GamePorts(), cfg.ControlPorts(), cfg.MonitorPorts()),
	)
	hub := events.NewHub()
	engine := match.NewEngine(lobbies, players, fleet,
		match.WithQueueWindow(cfg.QueueWindow),
		match.WithTickInterval(cfg.TickInterval),
		match.WithTickRate(orchestrator.TickRate(cfg.TickRate)),
		match.WithBindAddress(cfg.BindAddress),
		match.WithNotifier(hub),
	)
	return &Service{
		cfg:     cfg,
		players: players,
		lobbies: lobbies,
		engine:  engine,
		fleet:   fleet,
		hub:     hub,
		http:    server.New(players, lobbies, engine, fleet, hub, server.WithPort(cfg.Port)),
	}, nil
}

func setupLogger(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// Run starts everything and blocks until SIGINT/SIGTERM, then shuts the
// components down in reverse dependency order.
func (s *Service) Run() error {
	tm, err := telemetry.New(s.cfg.TraceEnabled, s.cfg.ProfilerEnabled)
	if err != nil {
		return eris.Wrap(err, "failed to start telemetry")
	}
	if s.cfg.StatsdAddress != "" {
		if err := statsd.Init(s.cfg.StatsdAddress, nil); err != nil {
			log.Warn().Err(err).Msg("statsd disabled")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go s.engine.Run(ctx)
	go s.sweep(ctx)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.http.Serve()
	}()

	select {
	case err := <-serveErr:
		s.shutdown(tm)
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		s.shutdown(tm)
		return nil
	}
}

// sweep periodically expires idle lobbies, flushes queued client events
// and reports occupancy gauges.
func (s *Service) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := s.lobbies.ExpireLobbies(); expired > 0 {
				log.Info().Int("expired", expired).Msg("swept idle lobbies")
			}
			s.hub.FlushEvents()
			statsd.EmitPoolGauges(
				len(s.lobbies.GetAllLobbies()),
				s.engine.ActiveMatches(),
				len(s.fleet.GetAllServers()),
			)
		}
	}
}

func (s *Service) shutdown(tm *telemetry.Manager) {
	if err := s.http.Shutdown(); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	s.fleet.TerminateAllServers()
	if err := s.players.Save(); err != nil {
		log.Error().Err(err).Msg("failed to persist player store")
	}
	s.hub.Shutdown()
	if err := tm.Shutdown(); err != nil {
		log.Error().Err(err).Msg("telemetry shutdown failed")
	}
}
