package brsvc

import (
	"time"

	jlconfig "github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"

	"brsvc/orchestrator"
)

// Config is the service configuration, loaded from BRSVC_* environment
// variables over these defaults.
type Config struct {
	Port      string `config:"BRSVC_PORT"`
	LogLevel  string `config:"BRSVC_LOG_LEVEL"`
	LogPretty bool   `config:"BRSVC_LOG_PRETTY"`

	PlayerDBPath string `config:"BRSVC_PLAYER_DB"`

	ServerBinary string `config:"BRSVC_SERVER_BINARY"`
	ServerRoot   string `config:"BRSVC_SERVER_ROOT"`
	TemplateDir  string `config:"BRSVC_TEMPLATE_DIR"`
	BindAddress  string `config:"BRSVC_BIND_ADDRESS"`
	MaxServers   int    `config:"BRSVC_MAX_SERVERS"`
	TickRate     int    `config:"BRSVC_SERVER_TICK_RATE"`

	GamePortStart    int `config:"BRSVC_GAME_PORT_START"`
	GamePortEnd      int `config:"BRSVC_GAME_PORT_END"`
	ControlPortStart int `config:"BRSVC_CONTROL_PORT_START"`
	ControlPortEnd   int `config:"BRSVC_CONTROL_PORT_END"`
	MonitorPortStart int `config:"BRSVC_MONITOR_PORT_START"`
	MonitorPortEnd   int `config:"BRSVC_MONITOR_PORT_END"`

	MaxLobbies    int           `config:"BRSVC_MAX_LOBBIES"`
	LobbyTTL      time.Duration `config:"BRSVC_LOBBY_TTL"`
	QueueWindow   time.Duration `config:"BRSVC_QUEUE_WINDOW"`
	TickInterval  time.Duration `config:"BRSVC_TICK_INTERVAL"`
	SweepInterval time.Duration `config:"BRSVC_SWEEP_INTERVAL"`

	StatsdAddress   string `config:"BRSVC_STATSD_ADDRESS"`
	TraceEnabled    bool   `config:"BRSVC_TRACE_ENABLED"`
	ProfilerEnabled bool   `config:"BRSVC_PROFILER_ENABLED"`
}

var defaultConfig = Config{
	Port:             "7032",
	LogLevel:         "info",
	PlayerDBPath:     "players.json",
	ServerBinary:     "/opt/vu/vu.exe",
	ServerRoot:       "instances",
	TemplateDir:      "Templates",
	BindAddress:      "0.0.0.0",
	MaxServers:       orchestrator.DefaultMaxServers,
	TickRate:         int(orchestrator.Tick30),
	GamePortStart:    orchestrator.DefaultGamePorts.Start,
	GamePortEnd:      orchestrator.DefaultGamePorts.End,
	ControlPortStart: orchestrator.DefaultControlPorts.Start,
	ControlPortEnd:   orchestrator.DefaultControlPorts.End,
	MonitorPortStart: orchestrator.DefaultMonitorPorts.Start,
	MonitorPortEnd:   orchestrator.DefaultMonitorPorts.End,
	MaxLobbies:       30,
	LobbyTTL:         5 * time.Minute,
	QueueWindow:      5 * time.Minute,
	TickInterval:     5 * time.Second,
	SweepInterval:    30 * time.Second,
}

// LoadConfig returns the defaults overridden by whatever BRSVC_* variables
// are set in the environment.
func LoadConfig() (Config, error) {
	cfg := defaultConfig
	if err := jlconfig.FromEnv().To(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "failed to load config from env")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch orchestrator.TickRate(c.TickRate) {
	case orchestrator.Tick30, orchestrator.Tick60, orchestrator.Tick120:
	default:
		return eris.Errorf("tick rate must be 30, 60 or 120, got %d", c.TickRate)
	}
	ranges := []orchestrator.PortRange{c.GamePorts(), c.ControlPorts(), c.MonitorPorts()}
	for _, r := range ranges {
		if r.Size() < 1 {
			return eris.Errorf("port range %d-%d is empty", r.Start, r.End)
		}
	}
	for i, a := range ranges {
		for _, b := range ranges[i+1:] {
			if a.Start <= b.End && b.Start <= a.End {
				return eris.Errorf("port ranges %d-%d and %d-%d overlap", a.Start, a.End, b.Start, b.End)
			}
		}
	}
	if c.MaxServers < 1 {
		return eris.New("max servers must be at least 1")
	}
	if c.MaxLobbies < 1 {
		return eris.New("max lobbies must be at least 1")
	}
	return nil
}

func (c Config) GamePorts() orchestrator.PortRange {
	return orchestrator.PortRange{Start: c.GamePortStart, End: c.GamePortEnd}
}

func (c Config) ControlPorts() orchestrator.PortRange {
	return orchestrator.PortRange{Start: c.ControlPortStart, End: c.ControlPortEnd}
}

func (c Config) MonitorPorts() orchestrator.PortRange {
	return orchestrator.PortRange{Start: c.MonitorPortStart, End: c.MonitorPortEnd}
}
