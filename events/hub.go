// Package events pushes matchmaking updates (match state changes, server
// readiness) to clients over websockets so they do not have to poll the
// HTTP API.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

const (
	writeDeadline        = 5 * time.Second
	shutdownPollInterval = 200 * time.Millisecond
)

// connAndDone pairs a websocket connection with a channel the hub loop
// uses to signal the web handler that the (un)registration took effect.
type connAndDone struct {
	conn *websocket.Conn
	done chan bool
}

// Hub fans queued events out to every connected websocket. All state is
// owned by the single Run goroutine; the exported methods communicate
// with it over channels only.
type Hub struct {
	connections    map[*websocket.Conn]bool
	broadcast      chan []byte
	getQueueLength chan chan int
	getConnCount   chan chan int
	flush          chan bool
	register       chan connAndDone
	unregister     chan connAndDone
	shutdown       chan bool
	queue          [][]byte
	isRunning      atomic.Bool
}

func NewHub() *Hub {
	h := &Hub{
		connections:    map[*websocket.Conn]bool{},
		broadcast:      make(chan []byte),
		getQueueLength: make(chan chan int),
		getConnCount:   make(chan chan int),
		flush:          make(chan bool),
		register:       make(chan connAndDone),
		unregister:     make(chan connAndDone),
		shutdown:       make(chan bool),
		queue:          make([][]byte, 0),
	}
	go h.Run()
	return h
}

// Broadcast queues a json-serializable event for the next flush.
// Marshal failures are logged, never propagated; the matchmaking path
// must not fail because a spectator socket exists.
func (h *Hub) Broadcast(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(eris.Wrap(err, "unserializable event")).Msg("dropping event")
		return
	}
	h.broadcast <- data
}

// FlushEvents writes every queued event to every connection.
func (h *Hub) FlushEvents() {
	h.flush <- true
}

func (h *Hub) QueueLength() int {
	c := make(chan int)
	h.getQueueLength <- c
	return <-c
}

func (h *Hub) ConnectionCount() int {
	c := make(chan int)
	h.getConnCount <- c
	return <-c
}

func (h *Hub) RegisterConnection(ws *websocket.Conn) {
	done := make(chan bool)
	h.register <- connAndDone{conn: ws, done: done}
	<-done
}

func (h *Hub) UnregisterConnection(ws *websocket.Conn) {
	done := make(chan bool)
	h.unregister <- connAndDone{conn: ws, done: done}
	<-done
}

// Shutdown closes every connection and blocks until the loop has exited.
func (h *Hub) Shutdown() {
	h.shutdown <- true
	for h.isRunning.Load() {
		time.Sleep(shutdownPollInterval)
	}
}

func (h *Hub) Run() {
	if h.isRunning.Load() {
		return
	}
	h.isRunning.Store(true)
	drop := func(conn *websocket.Conn) {
		if _, ok := h.connections[conn]; ok {
			delete(h.connections, conn)
			if err := conn.Close(); err != nil {
				log.Error().Err(eris.Wrap(err, "")).Msg("failed to close websocket")
			}
		}
	}
Loop:
	for h.isRunning.Load() {
		select {
		case c := <-h.getConnCount:
			c <- len(h.connections)
		case c := <-h.getQueueLength:
			c <- len(h.queue)
		case reg := <-h.register:
			h.connections[reg.conn] = true
			reg.done <- true
		case unreg := <-h.unregister:
			drop(unreg.conn)
			unreg.done <- true
		case event := <-h.broadcast:
			h.queue = append(h.queue, event)
		case <-h.flush:
			var wg sync.WaitGroup
			for conn := range h.connections {
				wg.Add(1)
				conn := conn
				go func() {
					defer wg.Done()
					for _, event := range h.queue {
						if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
							go h.UnregisterConnection(conn)
							log.Error().Err(eris.Wrap(err, "")).Msg("dropping stalled websocket")
							break
						}
						if err := conn.WriteMessage(websocket.TextMessage, event); err != nil {
							go h.UnregisterConnection(conn)
							log.Error().Err(eris.Wrap(err, "")).Msg("websocket write failed")
							break
						}
					}
				}()
			}
			wg.Wait()
			h.queue = h.queue[:0]
		case <-h.shutdown:
			go func() {
				for range h.shutdown { //nolint:revive // drains the channel until closed
				}
			}()
			for conn := range h.connections {
				drop(conn)
			}
			break Loop
		}
	}
	h.isRunning.Store(false)
}

// NewWebSocketHandler returns the fiber websocket handler that keeps a
// client subscribed until its connection dies. Inbound messages are
// discarded; the stream is one-way.
func (h *Hub) NewWebSocketHandler() func(conn *websocket.Conn) {
	return func(conn *websocket.Conn) {
		h.RegisterConnection(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				log.Debug().Err(eris.Wrap(err, "")).Msg("websocket closed")
				break
			}
		}
		h.UnregisterConnection(conn)
	}
}
