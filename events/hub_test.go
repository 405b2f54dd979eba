package events_test

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"gotest.tools/v3/assert"

	"brsvc/events"
)

type testEvent struct {
	Message string `json:"message"`
}

func startHubServer(t *testing.T, hub *events.Hub) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/events", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/events", fiberws.New(hub.NewWebSocketHandler()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/events"
}

func waitForConnections(t *testing.T, hub *events.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.ConnectionCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("never reached %d connections", want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastsToEveryConnection(t *testing.T) {
	// 5 events to 5 clients means 25 deliveries.
	const n = 5
	hub := events.NewHub()
	t.Cleanup(hub.Shutdown)
	url := startHubServer(t, hub)

	dialers := make([]*websocket.Conn, n)
	for i := range dialers {
		dial, _, err := websocket.DefaultDialer.Dial(url, nil)
		assert.NilError(t, err)
		dialers[i] = dial
	}
	waitForConnections(t, hub, n)

	for i := 0; i < n; i++ {
		hub.Broadcast(testEvent{Message: fmt.Sprintf("update%d", i)})
	}
	assert.Equal(t, hub.QueueLength(), n)
	go hub.FlushEvents()

	var wg sync.WaitGroup
	for _, dialer := range dialers {
		dialer := dialer
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n; j++ {
				mode, message, err := dialer.ReadMessage()
				assert.NilError(t, err)
				assert.Equal(t, mode, websocket.TextMessage)
				var ev testEvent
				assert.NilError(t, json.Unmarshal(message, &ev))
				assert.Equal(t, ev.Message[:6], "update")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, hub.QueueLength(), 0, "flush drains the queue")
}

func TestHubUnregisterOnClientClose(t *testing.T) {
	hub := events.NewHub()
	t.Cleanup(hub.Shutdown)
	url := startHubServer(t, hub)

	dial, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NilError(t, err)
	waitForConnections(t, hub, 1)

	assert.NilError(t, dial.Close())
	waitForConnections(t, hub, 0)
}
