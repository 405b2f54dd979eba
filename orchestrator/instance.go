// Package orchestrator owns the pool of dedicated game-server processes: it
// allocates ports and license keys, materializes launch configuration,
// spawns and supervises the OS process, and watches its output for the
// readiness handshake with the game network.
package orchestrator

import (
	"github.com/google/uuid"
)

// Type selects the launch profile of a server instance.
type Type string

const (
	TypeLobby Type = "lobby"
	TypeGame  Type = "game"
)

// TickRate is the simulation frequency the server is launched with.
type TickRate int

const (
	Tick30  TickRate = 30
	Tick60  TickRate = 60
	Tick120 TickRate = 120
)

// Instance is the domain-facing record of a tracked server. The process
// handle and log buffers stay inside the Manager; callers only ever see
// copies of this struct.
type Instance struct {
	ID       uuid.UUID `json:"id"`
	ZeusID   uuid.UUID `json:"zeusId"`
	Type     Type      `json:"type"`
	TickRate TickRate  `json:"tickRate"`
	Name     string    `json:"name"`

	GamePort    int `json:"gamePort"`
	ControlPort int `json:"controlPort"`
	MonitorPort int `json:"monitorPort"`

	GamePassword    string `json:"gamePassword"`
	ControlPassword string `json:"controlPassword"`

	KeyPath string `json:"keyPath"`
	Dir     string `json:"dir"`
}

// Ready reports whether the server has completed its Zeus handshake.
func (i Instance) Ready() bool {
	return i.ZeusID != uuid.Nil
}
