package orchestrator_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gotest.tools/v3/assert"

	"brsvc/orchestrator"
)

const testZeusID = "0123456789abcdef0123456789abcdef"

// writeFakeServer drops an executable script that performs the Zeus
// handshake on stdout and then idles until killed.
func writeFakeServer(t *testing.T) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fakeserver.sh")
	content := fmt.Sprintf(
		"#!/bin/sh\necho 'Successfully authenticated server with Zeus (Server GUID: %s)'\nsleep 60\n",
		testZeusID,
	)
	assert.NilError(t, os.WriteFile(script, []byte(content), 0o755))
	return script
}

func writeTemplateDir(t *testing.T, keyCount int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < keyCount; i++ {
		name := filepath.Join(dir, fmt.Sprintf("license%d.key", i))
		assert.NilError(t, os.WriteFile(name, []byte("key material"), 0o644))
	}
	return dir
}

func newTestManager(t *testing.T, keyCount int, opts ...orchestrator.Option) *orchestrator.Manager {
	t.Helper()
	base := []orchestrator.Option{
		orchestrator.WithBinary(writeFakeServer(t)),
		orchestrator.WithRootDir(t.TempDir()),
		orchestrator.WithTemplateDir(writeTemplateDir(t, keyCount)),
		orchestrator.WithPortProbe(func(int) bool { return true }),
	}
	m := orchestrator.NewManager(append(base, opts...)...)
	t.Cleanup(m.TerminateAllServers)
	return m
}

func waitForEvent(t *testing.T, m *orchestrator.Manager, kind orchestrator.EventKind) orchestrator.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestAddServerBecomesReady(t *testing.T) {
	m := newTestManager(t, 2)

	inst, err := m.AddServer(true, "127.0.0.1", "", orchestrator.Tick30, orchestrator.TypeGame)
	assert.NilError(t, err)
	assert.Assert(t, !inst.Ready(), "readiness is reported asynchronously")

	ev := waitForEvent(t, m, orchestrator.EventReady)
	assert.Equal(t, ev.ServerID, inst.ID)

	got, ok := m.GetServerByID(inst.ID)
	assert.Assert(t, ok)
	assert.Assert(t, got.Ready())
	assert.Equal(t, got.ZeusID, ev.ZeusID)

	byZeus, ok := m.GetServerByZeusID(ev.ZeusID)
	assert.Assert(t, ok)
	assert.Equal(t, byZeus.ID, inst.ID)

	stdout, _, ok := m.ServerLogs(inst.ID)
	assert.Assert(t, ok)
	assert.Assert(t, len(stdout) > 0)
}

func TestTerminateServerEmitsTerminated(t *testing.T) {
	m := newTestManager(t, 2)

	inst, err := m.AddServer(true, "127.0.0.1", "", orchestrator.Tick30, orchestrator.TypeGame)
	assert.NilError(t, err)
	waitForEvent(t, m, orchestrator.EventReady)

	assert.Assert(t, m.TerminateServer(inst.ID, false))
	ev := waitForEvent(t, m, orchestrator.EventTerminated)
	assert.Equal(t, ev.ServerID, inst.ID)

	// The exit handler untracks the instance on its own.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := m.GetServerByID(inst.ID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("terminated server was never untracked")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAddServerRespectsPoolCap(t *testing.T) {
	m := newTestManager(t, 4, orchestrator.WithMaxServers(1))

	_, err := m.AddServer(true, "127.0.0.1", "", orchestrator.Tick30, orchestrator.TypeGame)
	assert.NilError(t, err)
	_, err = m.AddServer(true, "127.0.0.1", "", orchestrator.Tick30, orchestrator.TypeGame)
	assert.ErrorIs(t, err, orchestrator.ErrServerCapacity)
}

func TestAddServerRequiresFreeKey(t *testing.T) {
	m := newTestManager(t, 1)

	_, err := m.AddServer(true, "127.0.0.1", "", orchestrator.Tick30, orchestrator.TypeGame)
	assert.NilError(t, err)
	_, err = m.AddServer(true, "127.0.0.1", "", orchestrator.Tick30, orchestrator.TypeGame)
	assert.ErrorIs(t, err, orchestrator.ErrNoKeyAvailable)
}

func TestConcurrentAddServerNeverSharesPorts(t *testing.T) {
	const workers = 5
	game := orchestrator.PortRange{Start: 25200, End: 25201}
	m := newTestManager(t, workers,
		orchestrator.WithMaxServers(workers*2),
		orchestrator.WithPortRanges(game,
			orchestrator.PortRange{Start: 47200, End: 47299},
			orchestrator.PortRange{Start: 7948, End: 8047}))

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.AddServer(true, "127.0.0.1", "", orchestrator.Tick30, orchestrator.TypeGame)
		}(i)
	}
	wg.Wait()

	launched := 0
	for _, err := range errs {
		if err == nil {
			launched++
		} else {
			assert.ErrorIs(t, err, orchestrator.ErrNoPortAvailable)
		}
	}
	assert.Equal(t, launched, game.Size(), "exactly one launch per free game port")

	seen := map[int]bool{}
	for _, inst := range m.GetAllServers() {
		assert.Assert(t, !seen[inst.GamePort], "game port %d assigned twice", inst.GamePort)
		seen[inst.GamePort] = true
	}
}

func TestAddServerProvisionsInstanceDir(t *testing.T) {
	root := t.TempDir()
	templates := writeTemplateDir(t, 1)
	assert.NilError(t, os.MkdirAll(filepath.Join(templates, "battleroyale", "Mods"), 0o755))
	assert.NilError(t, os.WriteFile(
		filepath.Join(templates, "battleroyale", "Mods", "mod.lua"), []byte("-- mod"), 0o644))

	m := newTestManager(t, 0,
		orchestrator.WithRootDir(root),
		orchestrator.WithTemplateDir(templates))

	inst, err := m.AddServer(true, "127.0.0.1", "battleroyale", orchestrator.Tick30, orchestrator.TypeGame)
	assert.NilError(t, err)

	for _, rel := range []string{
		"server.key",
		filepath.Join("Mods", "mod.lua"),
		filepath.Join("Admin", "Startup.txt"),
		filepath.Join("Admin", "ModList.txt"),
		filepath.Join("Admin", "MapList.txt"),
	} {
		_, statErr := os.Stat(filepath.Join(inst.Dir, rel))
		assert.NilError(t, statErr, "missing %s", rel)
	}
}

func TestRemoveServerUnknownID(t *testing.T) {
	m := newTestManager(t, 1)
	assert.Assert(t, !m.RemoveServer(uuid.New(), true))
}
