// Package supervisor owns the runtime table of port-forwards: the desired
// run state of every forward, its process handle, its log buffer and the
// registry of live processes that must be killed on shutdown.
//
// Every operation runs to completion under a single mutex. Process kills,
// persistence and start requests happen after the mutex is released, so
// callbacks from the launcher never re-enter a held lock.
package supervisor

import (
	"sync"

	"fwdctl/internal/forward"
	"fwdctl/internal/metrics"
	"fwdctl/internal/process"
	"fwdctl/pkg/logging"
)

// Store persists the definition collection.
type Store interface {
	Load() ([]forward.Definition, error)
	Save(defs []forward.Definition) error
}

// Starter queues a launch for a forward.
type Starter interface {
	RequestStart(def forward.Definition)
}

type entry struct {
	def       forward.Definition
	status    forward.Status
	handle    process.Process
	launching bool
	logs      []string
	logRun    int
}

// Supervisor is the authoritative runtime state of all forwards.
type Supervisor struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*entry
	live    map[process.Process]string
	closing bool

	saveMu sync.Mutex

	store   Store
	starter Starter
	metrics *metrics.Metrics
}

// New returns an empty Supervisor. store may be nil to disable persistence.
func New(store Store, starter Starter, m *metrics.Metrics) *Supervisor {
	return &Supervisor{
		entries: make(map[string]*entry),
		live:    make(map[process.Process]string),
		store:   store,
		starter: starter,
		metrics: m,
	}
}

// Seed replaces the table with defs, each with a disabled runtime entry.
// Definitions without an ID get one. Duplicate IDs keep the first occurrence.
// Nothing is started and nothing is saved.
func (s *Supervisor) Seed(defs []forward.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.entries = make(map[string]*entry, len(defs))
	for _, def := range defs {
		def = def.Clone()
		if def.ID == "" {
			def.ID = forward.NewID()
		}
		if _, exists := s.entries[def.ID]; exists {
			logging.Warn("Supervisor", "Ignoring duplicate forward id %s", def.ID)
			continue
		}
		s.order = append(s.order, def.ID)
		s.entries[def.ID] = &entry{def: def, status: forward.StatusDisabled}
	}
}

// Bootstrap loads the persisted definitions, seeds the table and starts
// every forward marked enabled. A load failure is logged and treated as an
// empty collection. It returns the number of forwards started.
func (s *Supervisor) Bootstrap() int {
	var defs []forward.Definition
	if s.store != nil {
		loaded, err := s.store.Load()
		if err != nil {
			logging.Error("Supervisor", err, "Could not load forward definitions, starting empty")
		} else {
			defs = loaded
		}
	}

	s.Seed(defs)

	started := 0
	for _, def := range s.Definitions() {
		if def.Enabled {
			s.Start(def.ID)
			started++
		}
	}
	logging.Info("Supervisor", "Loaded %d forward(s), starting %d", len(defs), started)
	return started
}

// Add appends def as a new disabled forward, saves the collection and then
// starts it. An empty ID is assigned. Adding an ID that already exists is a
// no-op. The stored definition is returned.
func (s *Supervisor) Add(def forward.Definition) forward.Definition {
	def = def.Clone()
	if def.ID == "" {
		def.ID = forward.NewID()
	}
	def.Enabled = false

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return def
	}
	if existing, ok := s.entries[def.ID]; ok {
		current := existing.def.Clone()
		s.mu.Unlock()
		logging.Warn("Supervisor", "Forward %s already exists", def.ID)
		return current
	}
	s.order = append(s.order, def.ID)
	s.entries[def.ID] = &entry{def: def, status: forward.StatusDisabled}
	s.mu.Unlock()

	logging.Info("Supervisor", "Added forward %s (%s)", def.Label(), def.ID)
	s.persist()
	s.Start(def.ID)

	current, _ := s.Definition(def.ID)
	return current
}

// Remove stops the forward and deletes it together with its runtime entry.
func (s *Supervisor) Remove(id string) {
	s.Stop(id)

	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.entries, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	logging.Info("Supervisor", "Removed forward %s (%s)", e.def.Label(), id)
	s.persist()
}

// Edit merges the user-authored fields of def onto the forward with the same
// ID. A running process keeps its old arguments until the forward is stopped
// and started again. Unknown IDs are ignored.
func (s *Supervisor) Edit(def forward.Definition) (forward.Definition, bool) {
	s.mu.Lock()
	e, ok := s.entries[def.ID]
	if !ok {
		s.mu.Unlock()
		return forward.Definition{}, false
	}
	e.def = e.def.Merge(def)
	current := e.def.Clone()
	s.mu.Unlock()

	logging.Info("Supervisor", "Edited forward %s (%s)", current.Label(), current.ID)
	s.persist()
	return current, true
}

// Start enables the forward and queues a launch. It does nothing when a
// process is registered or a launch is already pending.
func (s *Supervisor) Start(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || s.closing || e.handle != nil || e.launching {
		s.mu.Unlock()
		return
	}
	changed := !e.def.Enabled
	if e.status == forward.StatusFailed {
		e.clearLogs()
	}
	e.def.Enabled = true
	e.launching = true
	def := e.def.Clone()
	s.mu.Unlock()

	logging.Debug("Supervisor", "Requesting start of %s", def.Label())
	if changed {
		s.persist()
	}
	s.starter.RequestStart(def)
}

// Stop disables the forward, kills its process and clears its logs. Stopping
// a forward that is not enabled does nothing.
func (s *Supervisor) Stop(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || !e.def.Enabled {
		s.mu.Unlock()
		return
	}
	e.def.Enabled = false
	handle := e.handle
	if handle != nil {
		delete(s.live, handle)
	}
	e.handle = nil
	e.launching = false
	e.clearLogs()
	e.status = forward.StatusDisabled
	label := e.def.Label()
	s.publishLiveLocked()
	s.mu.Unlock()

	if handle != nil {
		if err := handle.Kill(); err != nil {
			logging.Error("Supervisor", err, "Failed to kill process %d for %s", handle.PID(), label)
		}
	}
	logging.Info("Supervisor", "Stopped forward %s", label)
	s.persist()
}

// Launchable reports whether a pending start request for id should still
// spawn a process and returns the definition to spawn it with. A queued
// request may carry a definition that was edited since; the returned one is
// current.
func (s *Supervisor) Launchable(id string) (forward.Definition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || s.closing || !e.def.Enabled || !e.launching {
		return forward.Definition{}, false
	}
	return e.def.Clone(), true
}

// RegisterProcess records proc as the live process of the forward and marks
// it active. It refuses, returning false, when the forward is gone, no
// longer enabled, has no pending launch or the supervisor is shutting down.
// The caller owns a refused process and must kill it.
func (s *Supervisor) RegisterProcess(id string, proc process.Process) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || s.closing || !e.def.Enabled || !e.launching {
		s.mu.Unlock()
		return false
	}
	if e.handle != nil {
		delete(s.live, e.handle)
	}
	e.handle = proc
	e.launching = false
	s.live[proc] = id
	s.setStatusLocked(e, forward.StatusActive)
	s.publishLiveLocked()
	s.mu.Unlock()
	return true
}

// MarkFailed disables the forward after an unrecoverable error. Its logs
// are kept.
func (s *Supervisor) MarkFailed(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || s.closing {
		s.mu.Unlock()
		return
	}
	s.markFailedLocked(e)
	label := e.def.Label()
	s.publishLiveLocked()
	s.mu.Unlock()

	logging.Warn("Supervisor", "Forward %s marked failed", label)
	s.persist()
}

func (s *Supervisor) markFailedLocked(e *entry) {
	e.def.Enabled = false
	if e.handle != nil {
		delete(s.live, e.handle)
	}
	e.handle = nil
	e.launching = false
	s.setStatusLocked(e, forward.StatusFailed)
}

// AppendLog adds a line to the forward's log buffer. Lines arriving for a
// forward that is no longer enabled are dropped.
func (s *Supervisor) AppendLog(id string, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || !e.def.Enabled {
		return
	}
	e.logs = append(e.logs, line)
}

// SetStatus assigns status directly.
func (s *Supervisor) SetStatus(id string, status forward.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		s.setStatusLocked(e, status)
	}
}

func (s *Supervisor) setStatusLocked(e *entry, status forward.Status) {
	if e.status == status {
		return
	}
	logging.Debug("Supervisor", "Forward %s: %s -> %s", e.def.ID, e.status, status)
	e.status = status
}

// HandleExit applies the outcome of proc terminating. proc always leaves the
// live registry. The action is ignored when proc is not the forward's current
// process, the forward is no longer enabled, or the supervisor is shutting
// down. The action taken and the current definition are returned; on
// ExitRestart the caller queues the new launch.
func (s *Supervisor) HandleExit(id string, proc process.Process, action forward.ExitAction) (forward.Definition, forward.ExitAction) {
	s.mu.Lock()
	delete(s.live, proc)
	s.publishLiveLocked()

	e, ok := s.entries[id]
	if !ok || s.closing || e.handle != proc || !e.def.Enabled {
		var def forward.Definition
		if ok {
			def = e.def.Clone()
		}
		s.mu.Unlock()
		return def, forward.ExitIgnore
	}

	switch action {
	case forward.ExitRestart:
		e.launching = true
		def := e.def.Clone()
		s.mu.Unlock()
		return def, forward.ExitRestart
	case forward.ExitFail:
		s.markFailedLocked(e)
		def := e.def.Clone()
		s.mu.Unlock()
		s.persist()
		return def, forward.ExitFail
	default:
		def := e.def.Clone()
		s.mu.Unlock()
		return def, forward.ExitIgnore
	}
}

// Shutdown kills every live process and stops the supervisor from reacting
// to exits or persisting changes. It returns the number of processes killed.
func (s *Supervisor) Shutdown() int {
	s.mu.Lock()
	s.closing = true
	handles := make([]process.Process, 0, len(s.live))
	for h := range s.live {
		handles = append(handles, h)
	}
	s.live = make(map[process.Process]string)
	s.publishLiveLocked()
	s.mu.Unlock()

	for _, h := range handles {
		if err := h.Kill(); err != nil {
			logging.Error("Supervisor", err, "Failed to kill process %d during shutdown", h.PID())
		}
	}
	logging.Info("Supervisor", "Shutdown killed %d port-forward process(es)", len(handles))
	return len(handles)
}

// Definition returns a copy of the forward's definition.
func (s *Supervisor) Definition(id string) (forward.Definition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return forward.Definition{}, false
	}
	return e.def.Clone(), true
}

// Definitions returns copies of all definitions in insertion order.
func (s *Supervisor) Definitions() []forward.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.definitionsLocked()
}

func (s *Supervisor) definitionsLocked() []forward.Definition {
	defs := make([]forward.Definition, 0, len(s.order))
	for _, id := range s.order {
		defs = append(defs, s.entries[id].def.Clone())
	}
	return defs
}

// Snapshot returns the forward's definition and runtime entry.
func (s *Supervisor) Snapshot(id string) (forward.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return forward.Snapshot{}, false
	}
	return snapshotOf(e, true), true
}

// Snapshots returns every forward in insertion order without log lines.
func (s *Supervisor) Snapshots() []forward.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]forward.Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, snapshotOf(s.entries[id], false))
	}
	return out
}

func snapshotOf(e *entry, withLogs bool) forward.Snapshot {
	snap := forward.Snapshot{
		Definition: e.def.Clone(),
		Status:     e.status,
		Launching:  e.launching,
		LogCount:   len(e.logs),
		LogRun:     e.logRun,
	}
	if e.handle != nil {
		snap.PID = e.handle.PID()
	}
	if withLogs {
		snap.Logs = append([]string(nil), e.logs...)
	}
	return snap
}

// clearLogs empties the log buffer and starts a new log run.
func (e *entry) clearLogs() {
	e.logs = nil
	e.logRun++
}

// publishLiveLocked sets the live process gauge. s.mu must be held.
func (s *Supervisor) publishLiveLocked() {
	s.metrics.SetLiveProcesses(len(s.live))
}

// LiveCount returns the number of processes held for shutdown.
func (s *Supervisor) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// persist writes the current definitions through to the store. Failures are
// logged and otherwise ignored.
func (s *Supervisor) persist() {
	if s.store == nil {
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	defs := s.definitionsLocked()
	s.mu.Unlock()

	if err := s.store.Save(defs); err != nil {
		logging.Error("Supervisor", err, "Failed to save forward definitions")
	}
}
