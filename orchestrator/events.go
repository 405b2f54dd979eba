package orchestrator

import "github.com/google/uuid"

// EventKind tags a lifecycle notification on the Manager's event stream.
type EventKind string

const (
	// EventReady fires when a server's stdout announces the Zeus handshake.
	EventReady EventKind = "ready"
	// EventTerminated fires when a server process exits, cleanly or not.
	EventTerminated EventKind = "terminated"
)

// Event is a server lifecycle notification. ZeusID is the zero uuid on
// Terminated events for servers that died before finishing the handshake.
type Event struct {
	Kind     EventKind
	ServerID uuid.UUID
	ZeusID   uuid.UUID
}
