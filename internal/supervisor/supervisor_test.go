package supervisor

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fwdctl/internal/dispatcher"
	"fwdctl/internal/forward"
	"fwdctl/internal/launcher"
	"fwdctl/internal/metrics"
	"fwdctl/internal/process/processtest"
	"fwdctl/pkg/logging"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestMain(m *testing.M) {
	logging.InitForCLI(logging.LevelError, io.Discard)
	os.Exit(m.Run())
}

type memStore struct {
	mu      sync.Mutex
	loaded  []forward.Definition
	loadErr error
	saves   [][]forward.Definition
}

func (s *memStore) Load() ([]forward.Definition, error) {
	return s.loaded, s.loadErr
}

func (s *memStore) Save(defs []forward.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, defs)
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *memStore) last() []forward.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return nil
	}
	return s.saves[len(s.saves)-1]
}

type recordingStarter struct {
	mu       sync.Mutex
	requests []forward.Definition
}

func (r *recordingStarter) RequestStart(def forward.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, def)
}

func (r *recordingStarter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func (r *recordingStarter) all() []forward.Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]forward.Definition(nil), r.requests...)
}

func isLaunchable(sup *Supervisor, id string) bool {
	_, ok := sup.Launchable(id)
	return ok
}

type harness struct {
	sup    *Supervisor
	runner *processtest.Runner
	store  *memStore
}

// newHarness wires a supervisor to a running dispatcher and a launcher that
// spawns fake processes.
func newHarness(t *testing.T) *harness {
	t.Helper()
	store := &memStore{}
	runner := processtest.NewRunner()
	d := dispatcher.New(64)
	sup := New(store, d, nil)
	l := launcher.New(runner, sup, d, launcher.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx, l)
	t.Cleanup(func() {
		cancel()
		<-d.Done()
	})
	return &harness{sup: sup, runner: runner, store: store}
}

func (h *harness) snapshot(t *testing.T, id string) forward.Snapshot {
	t.Helper()
	snap, ok := h.sup.Snapshot(id)
	require.True(t, ok, "forward %s not found", id)
	return snap
}

func (h *harness) waitActive(t *testing.T, id string) forward.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, ok := h.sup.Snapshot(id)
		return ok && snap.Status == forward.StatusActive && !snap.Launching
	}, waitFor, tick)
	return h.snapshot(t, id)
}

func TestSupervisor_AddStartStopScenario(t *testing.T) {
	h := newHarness(t)

	def := h.sup.Add(forward.Definition{Name: "svc-a", RemotePort: "8080", Enabled: false})
	require.NotEmpty(t, def.ID)

	h.sup.Start(def.ID)
	snap := h.waitActive(t, def.ID)
	assert.True(t, snap.Definition.Enabled)
	assert.Equal(t, 1000, snap.PID)
	assert.Equal(t, 1, h.sup.LiveCount())
	require.Len(t, h.runner.Calls(), 1, "start on a running forward is a no-op")

	p := h.runner.Last()
	p.EmitStdout("Forwarding from 127.0.0.1:8080 -> 8080")
	require.Eventually(t, func() bool { return h.snapshot(t, def.ID).LogCount == 1 }, waitFor, tick)

	h.sup.Stop(def.ID)
	snap = h.snapshot(t, def.ID)
	assert.Equal(t, forward.StatusDisabled, snap.Status)
	assert.False(t, snap.Definition.Enabled)
	assert.Zero(t, snap.PID)
	assert.Empty(t, snap.Logs)
	assert.Zero(t, h.sup.LiveCount())
	assert.Equal(t, 1, p.Kills())

	saved := h.store.last()
	require.Len(t, saved, 1)
	assert.False(t, saved[0].Enabled)
}

func TestSupervisor_StopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	def := h.sup.Add(forward.NewDefinition("svc-a", "8080"))
	h.waitActive(t, def.ID)
	p := h.runner.Last()

	h.sup.Stop(def.ID)
	saves := h.store.saveCount()
	h.sup.Stop(def.ID)

	assert.Equal(t, 1, p.Kills())
	assert.Equal(t, saves, h.store.saveCount())
	assert.Equal(t, forward.StatusDisabled, h.snapshot(t, def.ID).Status)
}

func TestSupervisor_LostConnectionRestartsOnce(t *testing.T) {
	h := newHarness(t)
	def := h.sup.Add(forward.NewDefinition("svc-a", "8080"))
	h.waitActive(t, def.ID)

	first := h.runner.Last()
	first.EmitStderr("Lost connection to pod abc")
	first.Finish(1)

	require.Eventually(t, func() bool { return len(h.runner.Started()) == 2 }, waitFor, tick)
	snap := h.waitActive(t, def.ID)
	assert.True(t, snap.Definition.Enabled)
	assert.Equal(t, 1001, snap.PID)
	assert.Equal(t, 1, h.sup.LiveCount(), "the exited process leaves the registry")

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.runner.Started(), 2, "exactly one restart")
}

func TestSupervisor_UnrecoverableExitMarksFailed(t *testing.T) {
	h := newHarness(t)
	def := h.sup.Add(forward.NewDefinition("svc-a", "8080"))
	h.waitActive(t, def.ID)

	p := h.runner.Last()
	p.EmitStderr("unable to connect to server")
	p.Finish(1)

	require.Eventually(t, func() bool { return h.snapshot(t, def.ID).Status == forward.StatusFailed }, waitFor, tick)
	snap := h.snapshot(t, def.ID)
	assert.False(t, snap.Definition.Enabled)
	assert.Zero(t, snap.PID)
	assert.Equal(t, []string{"unable to connect to server"}, snap.Logs)
	assert.Zero(t, h.sup.LiveCount())

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.runner.Started(), 1, "no restart after a permanent failure")
	assert.False(t, h.store.last()[0].Enabled)
}

func TestSupervisor_CleanExitChangesNothing(t *testing.T) {
	h := newHarness(t)
	def := h.sup.Add(forward.NewDefinition("svc-a", "8080"))
	h.waitActive(t, def.ID)

	h.runner.Last().Finish(0)

	require.Eventually(t, func() bool { return h.sup.LiveCount() == 0 }, waitFor, tick)
	snap := h.snapshot(t, def.ID)
	assert.Equal(t, forward.StatusActive, snap.Status)
	assert.True(t, snap.Definition.Enabled)
	assert.Len(t, h.runner.Started(), 1)
}

func TestSupervisor_SpawnErrorMarksFailed(t *testing.T) {
	h := newHarness(t)
	h.runner.Err = errors.New("exec: \"kubectl\": executable file not found in $PATH")

	def := h.sup.Add(forward.NewDefinition("svc-a", "8080"))

	require.Eventually(t, func() bool { return h.snapshot(t, def.ID).Status == forward.StatusFailed }, waitFor, tick)
	snap := h.snapshot(t, def.ID)
	assert.False(t, snap.Definition.Enabled)
	assert.Len(t, snap.Logs, 1)
	assert.Len(t, h.runner.Calls(), 1)
}

func TestSupervisor_ShutdownKillsOnlyLiveProcesses(t *testing.T) {
	h := newHarness(t)

	var active []string
	for _, name := range []string{"svc-a", "svc-b", "svc-c"} {
		def := h.sup.Add(forward.NewDefinition(name, "8080"))
		h.waitActive(t, def.ID)
		active = append(active, def.ID)
	}
	activeProcs := h.runner.Started()
	require.Len(t, activeProcs, 3)

	stopped := h.sup.Add(forward.NewDefinition("svc-stopped", "80"))
	h.waitActive(t, stopped.ID)
	stoppedProc := h.runner.Last()
	h.sup.Stop(stopped.ID)

	failed := h.sup.Add(forward.NewDefinition("svc-failed", "81"))
	h.waitActive(t, failed.ID)
	failedProc := h.runner.Last()
	failedProc.Finish(1)
	require.Eventually(t, func() bool { return h.snapshot(t, failed.ID).Status == forward.StatusFailed }, waitFor, tick)

	saves := h.store.saveCount()
	killed := h.sup.Shutdown()

	assert.Equal(t, 3, killed)
	for _, p := range activeProcs {
		assert.Equal(t, 1, p.Kills())
	}
	assert.Equal(t, 1, stoppedProc.Kills(), "only the explicit stop killed it")
	assert.Zero(t, failedProc.Kills())
	assert.Zero(t, h.sup.LiveCount())

	// Exits caused by the sweep neither fail forwards nor persist anything.
	time.Sleep(50 * time.Millisecond)
	for _, id := range active {
		snap := h.snapshot(t, id)
		assert.True(t, snap.Definition.Enabled)
		assert.Equal(t, forward.StatusActive, snap.Status)
	}
	assert.Equal(t, saves, h.store.saveCount())
}

func TestSupervisor_RepeatedStartLaunchesOnce(t *testing.T) {
	h := newHarness(t)
	def := h.sup.Add(forward.NewDefinition("svc-a", "8080"))
	for i := 0; i < 10; i++ {
		h.sup.Start(def.ID)
	}
	h.waitActive(t, def.ID)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.runner.Calls(), 1)
	assert.Equal(t, 1, h.sup.LiveCount())
}

func TestSupervisor_AtMostOneProcessUnderInterleaving(t *testing.T) {
	h := newHarness(t)

	ids := make([]string, 4)
	for i := range ids {
		ids[i] = h.sup.Add(forward.NewDefinition("svc-"+string(rune('a'+i)), "8080")).ID
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				id := ids[rng.Intn(len(ids))]
				switch rng.Intn(4) {
				case 0, 1:
					h.sup.Start(id)
				case 2:
					h.sup.Stop(id)
				case 3:
					if p := h.runner.Last(); p != nil {
						p.EmitStderr("lost connection to pod")
						p.Finish(1)
					}
				}
				assertOneRunningPerForward(t, h.runner)
			}
		}(int64(w))
	}
	wg.Wait()
	assertOneRunningPerForward(t, h.runner)

	// Every forward holds at most one registered process.
	for _, snap := range h.sup.Snapshots() {
		if snap.PID != 0 {
			assert.Equal(t, forward.StatusActive, snap.Status)
		}
	}

	for _, id := range ids {
		h.sup.Stop(id)
	}
	require.Eventually(t, func() bool {
		for _, p := range h.runner.Started() {
			if !p.Finished() {
				return false
			}
		}
		return h.sup.LiveCount() == 0
	}, waitFor, tick, "no process outlives its forward")
}

// assertOneRunningPerForward fails when any forward target has more than
// one unfinished process.
func assertOneRunningPerForward(t *testing.T, runner *processtest.Runner) {
	t.Helper()
	running := make(map[string]int)
	for _, p := range runner.Started() {
		if !p.Finished() {
			running[p.Args()[1]]++
		}
	}
	for name, n := range running {
		assert.LessOrEqual(t, n, 1, "forward %s has %d running processes", name, n)
	}
}

func TestSupervisor_QueuedStartUsesEditedDefinition(t *testing.T) {
	starter := &recordingStarter{}
	sup := New(nil, starter, nil)
	runner := processtest.NewRunner()
	l := launcher.New(runner, sup, starter, launcher.Options{})

	def := sup.Add(forward.NewDefinition("svc/old", "8080"))
	_, ok := sup.Edit(forward.Definition{ID: def.ID, Name: "svc/new", RemotePort: "8080"})
	require.True(t, ok)
	sup.Stop(def.ID)
	sup.Start(def.ID)

	requests := starter.all()
	require.Len(t, requests, 2)
	assert.Equal(t, "svc/old", requests[0].Name, "the first request was queued before the edit")

	for _, req := range requests {
		_, err := l.Launch(context.Background(), req)
		require.NoError(t, err)
	}

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "svc/new", calls[0].Args[1])

	snap, _ := sup.Snapshot(def.ID)
	assert.Equal(t, forward.StatusActive, snap.Status)
	assert.Equal(t, runner.Last().PID(), snap.PID)
}

func TestSupervisor_LiveProcessGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	sup := New(nil, &recordingStarter{}, m)

	a := sup.Add(forward.NewDefinition("svc-a", "8080"))
	b := sup.Add(forward.NewDefinition("svc-b", "8080"))

	var wg sync.WaitGroup
	for i, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func(id string, pid int) {
			defer wg.Done()
			sup.RegisterProcess(id, processtest.NewProcess(pid))
		}(id, i+1)
	}
	wg.Wait()
	assert.Equal(t, 2.0, gaugeValue(t, reg))

	sup.Stop(a.ID)
	assert.Equal(t, float64(sup.LiveCount()), gaugeValue(t, reg))
	sup.MarkFailed(b.ID)
	assert.Equal(t, 0.0, gaugeValue(t, reg))
}

func gaugeValue(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "fwdctl_live_processes" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("fwdctl_live_processes not registered")
	return 0
}

func TestSupervisor_LogRunChangesWhenLogsAreCleared(t *testing.T) {
	sup := New(nil, &recordingStarter{}, nil)
	def := sup.Add(forward.NewDefinition("svc-a", "8080"))
	require.True(t, sup.RegisterProcess(def.ID, processtest.NewProcess(1)))
	sup.AppendLog(def.ID, "first run")

	before, _ := sup.Snapshot(def.ID)
	sup.Stop(def.ID)
	sup.Start(def.ID)
	require.True(t, sup.RegisterProcess(def.ID, processtest.NewProcess(2)))
	sup.AppendLog(def.ID, "second run")

	after, _ := sup.Snapshot(def.ID)
	assert.NotEqual(t, before.LogRun, after.LogRun)
	assert.Equal(t, []string{"second run"}, after.Logs)

	sup.MarkFailed(def.ID)
	failed, _ := sup.Snapshot(def.ID)
	assert.Equal(t, after.LogRun, failed.LogRun, "failing keeps the logs of the run")

	sup.Start(def.ID)
	restarted, _ := sup.Snapshot(def.ID)
	assert.NotEqual(t, failed.LogRun, restarted.LogRun)
	assert.Empty(t, restarted.Logs)
}

func TestSupervisor_RegisterProcess(t *testing.T) {
	starter := &recordingStarter{}
	sup := New(nil, starter, nil)
	def := sup.Add(forward.NewDefinition("svc-a", "8080"))
	require.Equal(t, 1, starter.count())

	first := processtest.NewProcess(1)
	second := processtest.NewProcess(2)

	assert.True(t, isLaunchable(sup, def.ID))
	assert.True(t, sup.RegisterProcess(def.ID, first))
	assert.False(t, isLaunchable(sup, def.ID))
	assert.False(t, sup.RegisterProcess(def.ID, second), "a second process is refused")
	assert.Equal(t, 1, sup.LiveCount())

	snap, _ := sup.Snapshot(def.ID)
	assert.Equal(t, 1, snap.PID)
	assert.Equal(t, forward.StatusActive, snap.Status)

	sup.Stop(def.ID)
	assert.False(t, sup.RegisterProcess(def.ID, second), "a stopped forward refuses processes")
	assert.False(t, sup.RegisterProcess("missing", second))
}

func TestSupervisor_HandleExitIgnoresStaleProcess(t *testing.T) {
	starter := &recordingStarter{}
	sup := New(nil, starter, nil)
	def := sup.Add(forward.NewDefinition("svc-a", "8080"))
	current := processtest.NewProcess(1)
	require.True(t, sup.RegisterProcess(def.ID, current))

	stale := processtest.NewProcess(99)
	_, action := sup.HandleExit(def.ID, stale, forward.ExitFail)
	assert.Equal(t, forward.ExitIgnore, action)

	snap, _ := sup.Snapshot(def.ID)
	assert.Equal(t, forward.StatusActive, snap.Status)
	assert.True(t, snap.Definition.Enabled)

	got, action := sup.HandleExit(def.ID, current, forward.ExitRestart)
	assert.Equal(t, forward.ExitRestart, action)
	assert.Equal(t, def.ID, got.ID)
	assert.True(t, isLaunchable(sup, def.ID))
	assert.Zero(t, sup.LiveCount())
}

func TestSupervisor_MarkFailedKeepsLogs(t *testing.T) {
	sup := New(nil, &recordingStarter{}, nil)
	def := sup.Add(forward.NewDefinition("svc-a", "8080"))
	require.True(t, sup.RegisterProcess(def.ID, processtest.NewProcess(1)))
	sup.AppendLog(def.ID, "error: pod not found")

	sup.MarkFailed(def.ID)

	snap, _ := sup.Snapshot(def.ID)
	assert.Equal(t, forward.StatusFailed, snap.Status)
	assert.False(t, snap.Definition.Enabled)
	assert.Equal(t, []string{"error: pod not found"}, snap.Logs)
	assert.Zero(t, sup.LiveCount())

	sup.AppendLog(def.ID, "late line")
	snap, _ = sup.Snapshot(def.ID)
	assert.Len(t, snap.Logs, 1, "disabled forwards drop log lines")
}

func TestSupervisor_EditMergesFields(t *testing.T) {
	store := &memStore{}
	sup := New(store, &recordingStarter{}, nil)
	def := sup.Add(forward.NewDefinition("svc-a", "8080"))

	edited, ok := sup.Edit(forward.Definition{
		ID:         def.ID,
		Name:       "svc-b",
		RemotePort: "9090",
		LocalPort:  forward.Optional("19090"),
		Enabled:    false,
	})
	require.True(t, ok)
	assert.Equal(t, def.ID, edited.ID)
	assert.Equal(t, "svc-b", edited.Name)
	assert.Equal(t, "19090:9090", edited.PortSpec())
	assert.True(t, edited.Enabled, "edit does not change the run state")
	assert.Equal(t, "svc-b", store.last()[0].Name)

	_, ok = sup.Edit(forward.Definition{ID: "missing", Name: "x", RemotePort: "1"})
	assert.False(t, ok)
}

func TestSupervisor_AddDuplicateIDIsNoop(t *testing.T) {
	starter := &recordingStarter{}
	sup := New(nil, starter, nil)
	def := forward.NewDefinition("svc-a", "8080")
	sup.Add(def)

	dup := def
	dup.Name = "other"
	got := sup.Add(dup)

	assert.Equal(t, "svc-a", got.Name)
	assert.Len(t, sup.Definitions(), 1)
	assert.Equal(t, 1, starter.count())
}

func TestSupervisor_Remove(t *testing.T) {
	h := newHarness(t)
	a := h.sup.Add(forward.NewDefinition("svc-a", "8080"))
	b := h.sup.Add(forward.NewDefinition("svc-b", "8081"))
	h.waitActive(t, a.ID)
	h.waitActive(t, b.ID)

	h.sup.Remove(a.ID)

	_, ok := h.sup.Snapshot(a.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, h.sup.LiveCount())
	saved := h.store.last()
	require.Len(t, saved, 1)
	assert.Equal(t, b.ID, saved[0].ID)

	h.sup.Remove("missing")
	assert.Len(t, h.sup.Definitions(), 1)
}

func TestSupervisor_Bootstrap(t *testing.T) {
	enabled := forward.NewDefinition("svc-a", "8080")
	enabled.Enabled = true
	disabled := forward.NewDefinition("svc-b", "8081")

	starter := &recordingStarter{}
	store := &memStore{loaded: []forward.Definition{enabled, disabled}}
	sup := New(store, starter, nil)

	assert.Equal(t, 1, sup.Bootstrap())
	assert.Equal(t, 1, starter.count())
	assert.Equal(t, enabled.ID, starter.requests[0].ID)
	assert.Len(t, sup.Snapshots(), 2)
	assert.Zero(t, store.saveCount(), "bootstrap does not rewrite an unchanged collection")
}

func TestSupervisor_BootstrapLoadErrorStartsEmpty(t *testing.T) {
	store := &memStore{loadErr: errors.New("parse port-forwards.json: unexpected end of JSON input")}
	sup := New(store, &recordingStarter{}, nil)

	assert.Zero(t, sup.Bootstrap())
	assert.Empty(t, sup.Definitions())
}

func TestSupervisor_UnknownIDsAreIgnored(t *testing.T) {
	sup := New(nil, &recordingStarter{}, nil)
	assert.NotPanics(t, func() {
		sup.Start("missing")
		sup.Stop("missing")
		sup.MarkFailed("missing")
		sup.AppendLog("missing", "line")
		sup.SetStatus("missing", forward.StatusActive)
		sup.HandleExit("missing", processtest.NewProcess(1), forward.ExitFail)
	})
}
