package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gotest.tools/v3/assert"

	"brsvc/lobby"
	"brsvc/match"
	"brsvc/orchestrator"
	"brsvc/player"
)

const testZeusID = "fedcba9876543210fedcba9876543210"

type testServer struct {
	*Server
	store    *player.Store
	registry *lobby.Registry
	manager  *orchestrator.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	script := filepath.Join(t.TempDir(), "fakeserver.sh")
	content := fmt.Sprintf(
		"#!/bin/sh\necho 'Successfully authenticated server with Zeus (Server GUID: %s)'\nsleep 60\n",
		testZeusID,
	)
	assert.NilError(t, os.WriteFile(script, []byte(content), 0o755))
	templates := t.TempDir()
	assert.NilError(t, os.WriteFile(filepath.Join(templates, "a.key"), []byte("k"), 0o644))

	store := player.NewStore(filepath.Join(t.TempDir(), "players.json"))
	registry := lobby.NewRegistry(store)
	manager := orchestrator.NewManager(
		orchestrator.WithBinary(script),
		orchestrator.WithRootDir(t.TempDir()),
		orchestrator.WithTemplateDir(templates),
		orchestrator.WithPortProbe(func(int) bool { return true }),
	)
	t.Cleanup(manager.TerminateAllServers)

	engine := match.NewEngine(registry, store, manager,
		match.WithQueueWindow(0),
		match.WithTickInterval(10*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go engine.Run(ctx)

	return &testServer{
		Server:   New(store, registry, engine, manager, nil),
		store:    store,
		registry: registry,
		manager:  manager,
	}
}

func (ts *testServer) request(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		assert.NilError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.app.Test(req)
	assert.NilError(t, err)
	payload, err := io.ReadAll(resp.Body)
	assert.NilError(t, err)
	return resp, payload
}

func (ts *testServer) addPlayer(t *testing.T, name string) player.Player {
	t.Helper()
	p, err := ts.store.AddPlayer(uuid.New(), name)
	assert.NilError(t, err)
	return p
}

func TestPlayerEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.request(t, http.MethodPost, "/players",
		map[string]any{"zeusId": uuid.New(), "name": "shooter mcgavin"})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var created struct {
		PlayerID uuid.UUID `json:"playerId"`
		Name     string    `json:"name"`
	}
	assert.NilError(t, json.Unmarshal(body, &created))
	assert.Equal(t, created.Name, "shooter_mcgavin")

	resp, _ = ts.request(t, http.MethodGet, "/players/"+created.PlayerID.String(), nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	resp, _ = ts.request(t, http.MethodGet, "/players/"+uuid.NewString(), nil)
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)

	resp, body = ts.request(t, http.MethodGet, "/players?name=shooter", nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var found []any
	assert.NilError(t, json.Unmarshal(body, &found))
	assert.Equal(t, len(found), 1)

	resp, _ = ts.request(t, http.MethodPost, "/players", map[string]any{"name": "noid"})
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
}

func TestLobbyEndpoints(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.addPlayer(t, "admin")
	member := ts.addPlayer(t, "member")

	resp, _ := ts.request(t, http.MethodPost, "/lobbies",
		map[string]any{"creatorPlayerId": uuid.New(), "maxPlayers": 4, "name": "squad"})
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest, "unknown creator")

	resp, body := ts.request(t, http.MethodPost, "/lobbies",
		map[string]any{"creatorPlayerId": admin.ID, "maxPlayers": 4, "name": "squad"})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var l lobby.Lobby
	assert.NilError(t, json.Unmarshal(body, &l))
	assert.Equal(t, len(l.Code), 4)

	resp, _ = ts.request(t, http.MethodPost, "/lobbies/"+l.ID.String()+"/join",
		map[string]any{"playerId": member.ID, "code": "NOPE"})
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest, "wrong code")

	resp, _ = ts.request(t, http.MethodPost, "/lobbies/"+l.ID.String()+"/join",
		map[string]any{"playerId": member.ID, "code": l.Code})
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	resp, _ = ts.request(t, http.MethodGet, "/lobbies/"+l.ID.String()+"/status?code=NOPE", nil)
	assert.Equal(t, resp.StatusCode, http.StatusForbidden)

	resp, body = ts.request(t, http.MethodGet, "/lobbies/"+l.ID.String()+"/status?code="+l.Code, nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var status lobbyStatusResponse
	assert.NilError(t, json.Unmarshal(body, &status))
	assert.Equal(t, len(status.MemberNames), 2)

	resp, _ = ts.request(t, http.MethodDelete, "/lobbies/"+l.ID.String(),
		map[string]any{"playerId": member.ID})
	assert.Equal(t, resp.StatusCode, http.StatusForbidden, "only the admin removes a lobby")

	resp, _ = ts.request(t, http.MethodDelete, "/lobbies/"+l.ID.String(),
		map[string]any{"playerId": admin.ID})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
}

func TestQueueRequiresLobbyAdmin(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.addPlayer(t, "admin")
	member := ts.addPlayer(t, "member")
	l, err := ts.registry.AddLobby(admin.ID, 4, "squad")
	assert.NilError(t, err)
	assert.Assert(t, ts.registry.JoinLobby(l.ID, member.ID, l.Code))

	resp, _ := ts.request(t, http.MethodPost, "/matches/queue",
		map[string]any{"lobbyId": l.ID, "playerId": member.ID})
	assert.Equal(t, resp.StatusCode, http.StatusForbidden)

	resp, _ = ts.request(t, http.MethodPost, "/matches/queue",
		map[string]any{"lobbyId": l.ID, "playerId": admin.ID})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
}

// waitForMatchState polls the state endpoint until the match reaches the
// wanted state or the deadline passes.
func (ts *testServer) waitForMatchState(t *testing.T, lobbyID uuid.UUID, want match.State) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, body := ts.request(t, http.MethodGet, "/matches/state?lobbyId="+lobbyID.String(), nil)
		if resp.StatusCode == http.StatusOK {
			var got struct {
				State match.State `json:"state"`
			}
			assert.NilError(t, json.Unmarshal(body, &got))
			if got.State == want {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("match never reached state %s", want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (ts *testServer) waitForReadyServer(t *testing.T) uuid.UUID {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		for _, inst := range ts.manager.GetAllServers() {
			if inst.Ready() {
				return inst.ZeusID
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("no server ever became ready")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestMatchLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.addPlayer(t, "admin")
	member := ts.addPlayer(t, "member")
	l, err := ts.registry.AddLobby(admin.ID, 4, "squad")
	assert.NilError(t, err)
	assert.Assert(t, ts.registry.JoinLobby(l.ID, member.ID, l.Code))

	resp, _ := ts.request(t, http.MethodPost, "/matches/queue",
		map[string]any{"lobbyId": l.ID, "playerId": admin.ID})
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	ts.waitForMatchState(t, l.ID, match.StateWaiting)
	zeusID := ts.waitForReadyServer(t)

	resp, body := ts.request(t, http.MethodGet, "/matches/player/"+admin.ID.String(), nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var m match.Match
	assert.NilError(t, json.Unmarshal(body, &m))

	// The server fetches its match and squad layout by its Zeus id.
	resp, body = ts.request(t, http.MethodGet, "/matches/server/"+zeusID.String(), nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var sm serverMatchResponse
	assert.NilError(t, json.Unmarshal(body, &sm))
	assert.Equal(t, sm.MatchID, m.ID)
	assert.Equal(t, len(sm.Teams), 2)

	// Members can fetch connection info once the server is ready.
	resp, body = ts.request(t, http.MethodGet,
		"/matches/"+m.ID.String()+"/connection?playerId="+member.ID.String(), nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var info match.ConnectionInfo
	assert.NilError(t, json.Unmarshal(body, &info))
	assert.Equal(t, info.ZeusID, zeusID)

	// A caller that is not a live server cannot advance the match.
	resp, _ = ts.request(t, http.MethodPost, "/matches/"+m.ID.String()+"/state",
		map[string]any{"serverZeusId": uuid.New(), "state": match.StateInGame})
	assert.Equal(t, resp.StatusCode, http.StatusForbidden)

	resp, _ = ts.request(t, http.MethodPost, "/matches/"+m.ID.String()+"/state",
		map[string]any{"serverZeusId": zeusID, "state": match.StateInGame})
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	resp, _ = ts.request(t, http.MethodPost, "/matches/"+m.ID.String()+"/completed",
		map[string]any{
			"serverZeusId": zeusID,
			"winners":      []uuid.UUID{admin.ID},
			"players":      []uuid.UUID{admin.ID, member.ID},
		})
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	resp, body = ts.request(t, http.MethodGet, "/matches/"+m.ID.String(), nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.NilError(t, json.Unmarshal(body, &m))
	assert.Equal(t, m.State, match.StateCompleted)
	assert.Equal(t, len(m.Winners), 1)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var health healthResponse
	assert.NilError(t, json.Unmarshal(body, &health))
	assert.Assert(t, health.IsServerRunning)
}
