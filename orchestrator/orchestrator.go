package orchestrator

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

var (
	ErrServerCapacity = eris.New("server pool is full")
	ErrNoKeyAvailable = eris.New("no license key available")
	ErrLaunchFailed   = eris.New("failed to launch server process")
	ErrNoSuchServer   = eris.New("no such server")
)

const (
	// DefaultMaxServers caps the number of concurrently tracked processes.
	DefaultMaxServers = 4
	// shutdownWait bounds how long TerminateAllServers blocks on exits.
	shutdownWait = 10 * time.Second
	eventBuffer  = 64
)

var (
	DefaultGamePorts    = PortRange{Start: 25200, End: 25299}
	DefaultControlPorts = PortRange{Start: 47200, End: 47299}
	DefaultMonitorPorts = PortRange{Start: 7948, End: 8047}
)

// trackedServer pairs the domain record with the process internals the
// Manager keeps to itself.
type trackedServer struct {
	inst     Instance
	cmd      *exec.Cmd
	stdout   []string
	stderr   []string
	waitDone chan struct{}
}

// Manager owns every live server instance. One mutex guards the tracked
// set and is held across the whole allocate-ports, pick-key, record
// sequence of AddServer so concurrent calls cannot race onto the same
// resources.
type Manager struct {
	mu      sync.Mutex
	servers map[uuid.UUID]*trackedServer

	binary       string
	rootDir      string
	templateDir  string
	maxServers   int
	gamePorts    PortRange
	controlPorts PortRange
	monitorPorts PortRange
	probe        func(port int) bool

	events chan Event
}

type Option func(*Manager)

// WithBinary sets the server executable path.
func WithBinary(path string) Option {
	return func(m *Manager) { m.binary = path }
}

// WithRootDir sets the directory instance directories are created under.
func WithRootDir(dir string) Option {
	return func(m *Manager) { m.rootDir = dir }
}

// WithTemplateDir sets the directory holding launch templates and license
// key files.
func WithTemplateDir(dir string) Option {
	return func(m *Manager) { m.templateDir = dir }
}

// WithMaxServers overrides the tracked-process cap.
func WithMaxServers(n int) Option {
	return func(m *Manager) { m.maxServers = n }
}

// WithPortRanges overrides the three disjoint allocation ranges.
func WithPortRanges(game, control, monitor PortRange) Option {
	return func(m *Manager) {
		m.gamePorts = game
		m.controlPorts = control
		m.monitorPorts = monitor
	}
}

// WithPortProbe overrides the OS-level availability check. Tests inject a
// stub so allocation does not depend on the host's open ports.
func WithPortProbe(probe func(port int) bool) Option {
	return func(m *Manager) { m.probe = probe }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		servers:      map[uuid.UUID]*trackedServer{},
		maxServers:   DefaultMaxServers,
		gamePorts:    DefaultGamePorts,
		controlPorts: DefaultControlPorts,
		monitorPorts: DefaultMonitorPorts,
		probe:        probeTCP,
		events:       make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events is the Manager-wide lifecycle stream. Exactly one consumer should
// drain it; events are dropped with a warning if nobody does.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// AddServer allocates ports and a license key, materializes the instance
// directory and launch files, and spawns the server process. It returns as
// soon as the process is running; readiness is reported later through the
// event stream once the Zeus handshake shows up on stdout.
func (m *Manager) AddServer(unlisted bool, bindAddress, templateName string, tick TickRate, typ Type) (Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.servers) >= m.maxServers {
		return Instance{}, eris.Wrapf(ErrServerCapacity, "%d servers running", len(m.servers))
	}

	gameInUse := map[int]struct{}{}
	controlInUse := map[int]struct{}{}
	monitorInUse := map[int]struct{}{}
	keysInUse := map[string]struct{}{}
	for _, t := range m.servers {
		gameInUse[t.inst.GamePort] = struct{}{}
		controlInUse[t.inst.ControlPort] = struct{}{}
		monitorInUse[t.inst.MonitorPort] = struct{}{}
		keysInUse[t.inst.KeyPath] = struct{}{}
	}

	gamePort, err := FindPort(m.gamePorts, gameInUse, m.probe)
	if err != nil {
		return Instance{}, err
	}
	controlPort, err := FindPort(m.controlPorts, controlInUse, m.probe)
	if err != nil {
		return Instance{}, err
	}
	monitorPort, err := FindPort(m.monitorPorts, monitorInUse, m.probe)
	if err != nil {
		return Instance{}, err
	}

	keys, err := scanKeys(m.templateDir)
	if err != nil {
		return Instance{}, err
	}
	keyPath := ""
	for _, k := range keys {
		if _, taken := keysInUse[k]; !taken {
			keyPath = k
			break
		}
	}
	if keyPath == "" {
		return Instance{}, eris.Wrapf(ErrNoKeyAvailable, "%d keys, all in use", len(keys))
	}

	id := uuid.New()
	for m.servers[id] != nil {
		id = uuid.New()
	}
	inst := Instance{
		ID:              id,
		Type:            typ,
		TickRate:        tick,
		Name:            instanceName(),
		GamePort:        gamePort,
		ControlPort:     controlPort,
		MonitorPort:     monitorPort,
		GamePassword:    randomHex(8),
		ControlPassword: randomHex(8),
		KeyPath:         keyPath,
	}
	inst.Dir = filepath.Join(m.rootDir, inst.Name)

	if err := m.provision(inst, templateName); err != nil {
		m.cleanupDir(inst.Dir)
		return Instance{}, err
	}

	cmd := exec.Command(m.binary, launchArgs(inst, unlisted, bindAddress)...)
	cmd.Dir = inst.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.cleanupDir(inst.Dir)
		return Instance{}, eris.Wrap(ErrLaunchFailed, err.Error())
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.cleanupDir(inst.Dir)
		return Instance{}, eris.Wrap(ErrLaunchFailed, err.Error())
	}
	if err := cmd.Start(); err != nil {
		m.cleanupDir(inst.Dir)
		return Instance{}, eris.Wrap(ErrLaunchFailed, err.Error())
	}

	t := &trackedServer{
		inst:     inst,
		cmd:      cmd,
		waitDone: make(chan struct{}),
	}
	m.servers[id] = t

	go m.scanOutput(t, stdout, true)
	go m.scanOutput(t, stderr, false)
	go m.waitServer(t)

	log.Info().
		Str("server_id", id.String()).
		Str("name", inst.Name).
		Int("game_port", gamePort).
		Int("control_port", controlPort).
		Int("monitor_port", monitorPort).
		Msg("server launched")
	return inst, nil
}

// provision creates the instance directory, copies the named template tree
// and the license key into it, and writes the launch files.
func (m *Manager) provision(inst Instance, templateName string) error {
	if err := os.MkdirAll(inst.Dir, 0o755); err != nil {
		return eris.Wrap(err, "failed to create instance dir")
	}
	if templateName != "" {
		src := filepath.Join(m.templateDir, templateName)
		if info, err := os.Stat(src); err == nil && info.IsDir() {
			if err := copyTree(src, inst.Dir); err != nil {
				return eris.Wrapf(err, "failed to copy template %s", templateName)
			}
		}
	}
	if err := copyFile(inst.KeyPath, filepath.Join(inst.Dir, keyDestName)); err != nil {
		return err
	}
	return writeLaunchFiles(inst)
}

func (m *Manager) cleanupDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("failed to remove instance dir")
	}
}

// scanOutput drains one process pipe line by line, appending to the
// instance's log buffer and watching stdout for the Zeus marker.
func (m *Manager) scanOutput(t *trackedServer, pipe io.Reader, isStdout bool) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		m.mu.Lock()
		if isStdout {
			t.stdout = append(t.stdout, line)
		} else {
			t.stderr = append(t.stderr, line)
		}
		ready := false
		if isStdout && t.inst.ZeusID == uuid.Nil {
			if zeusID, ok := parseZeusID(line); ok {
				t.inst.ZeusID = zeusID
				ready = true
			}
		}
		inst := t.inst
		m.mu.Unlock()

		if ready {
			log.Info().
				Str("server_id", inst.ID.String()).
				Str("zeus_id", inst.ZeusID.String()).
				Msg("server ready")
			m.emit(Event{Kind: EventReady, ServerID: inst.ID, ZeusID: inst.ZeusID})
		}
	}
}

// parseZeusID extracts the 32-character server GUID following the marker.
func parseZeusID(line string) (uuid.UUID, bool) {
	idx := strings.Index(line, zeusMarker)
	if idx < 0 {
		return uuid.Nil, false
	}
	rest := line[idx+len(zeusMarker):]
	if len(rest) < 32 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest[:32])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// waitServer reaps the process and untracks the instance once it exits.
func (m *Manager) waitServer(t *trackedServer) {
	err := t.cmd.Wait()
	close(t.waitDone)

	m.mu.Lock()
	inst := t.inst
	delete(m.servers, inst.ID)
	m.mu.Unlock()

	log.Info().
		Str("server_id", inst.ID.String()).
		AnErr("exit", err).
		Msg("server terminated")
	m.emit(Event{Kind: EventTerminated, ServerID: inst.ID, ZeusID: inst.ZeusID})
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		log.Warn().
			Str("kind", string(ev.Kind)).
			Str("server_id", ev.ServerID.String()).
			Msg("event stream full, dropping event")
	}
}

// GetServerByID returns a snapshot of the tracked instance with the given id.
func (m *Manager) GetServerByID(id uuid.UUID) (Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.servers[id]; ok {
		return t.inst, true
	}
	return Instance{}, false
}

// GetServerByZeusID returns the instance that authenticated with the given
// external connection id.
func (m *Manager) GetServerByZeusID(zeusID uuid.UUID) (Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.servers {
		if t.inst.ZeusID == zeusID && zeusID != uuid.Nil {
			return t.inst, true
		}
	}
	return Instance{}, false
}

// GetAllServers returns snapshots of every tracked instance.
func (m *Manager) GetAllServers() []Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Instance, 0, len(m.servers))
	for _, t := range m.servers {
		out = append(out, t.inst)
	}
	return out
}

// ServerLogs returns copies of the captured stdout and stderr lines.
func (m *Manager) ServerLogs(id uuid.UUID) (stdout, stderr []string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.servers[id]
	if !ok {
		return nil, nil, false
	}
	return append([]string(nil), t.stdout...), append([]string(nil), t.stderr...), true
}

// RemoveServer untracks a server, terminating its process first when
// terminate is set. Returns false if the id is unknown.
func (m *Manager) RemoveServer(id uuid.UUID, terminate bool) bool {
	m.mu.Lock()
	t, ok := m.servers[id]
	if ok {
		delete(m.servers, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	if terminate {
		killProcessGroup(t.cmd)
	}
	return true
}

// TerminateServer force-kills the server's process group and optionally
// deletes its instance directory. Directory removal failures are logged,
// never propagated.
func (m *Manager) TerminateServer(id uuid.UUID, deleteDir bool) bool {
	m.mu.Lock()
	t, ok := m.servers[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	killProcessGroup(t.cmd)
	if deleteDir {
		select {
		case <-t.waitDone:
		case <-time.After(shutdownWait):
			log.Warn().Str("server_id", id.String()).Msg("timed out waiting for server exit before cleanup")
		}
		m.cleanupDir(t.inst.Dir)
	}
	return true
}

// TerminateAllServers kills every tracked process and waits, bounded, for
// each to be reaped. Used at service shutdown.
func (m *Manager) TerminateAllServers() {
	m.mu.Lock()
	tracked := make([]*trackedServer, 0, len(m.servers))
	for _, t := range m.servers {
		tracked = append(tracked, t)
	}
	m.mu.Unlock()

	for _, t := range tracked {
		killProcessGroup(t.cmd)
	}
	deadline := time.After(shutdownWait)
	for _, t := range tracked {
		select {
		case <-t.waitDone:
		case <-deadline:
			log.Warn().
				Str("server_id", t.inst.ID.String()).
				Msg("gave up waiting for server exit during shutdown")
			return
		}
	}
}

// killProcessGroup kills the process and all of its children. The process
// was started with its own process group so one signal reaches the whole
// tree.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		// Fall back to the single process if the group is already gone.
		_ = cmd.Process.Kill()
	}
}
