// Package state persists the outcome of module compiles so that other
// processes (and later runs) can report them
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/poltergeist/conjure/pkg/logger"
)

// Dir is the state directory relative to the project root
const Dir = ".conjure/state"

// Status of a module
type Status string

const (
	StatusIdle      Status = "idle"
	StatusCompiling Status = "compiling"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ModuleState is the persisted state of one module
type ModuleState struct {
	Module          string        `json:"module"`
	Status          Status        `json:"status"`
	SessionID       string        `json:"sessionId,omitempty"`
	ProcessID       int           `json:"processId,omitempty"`
	LastCompileTime time.Time     `json:"lastCompileTime,omitempty"`
	CompileCount    int           `json:"compileCount"`
	FailureCount    int           `json:"failureCount"`
	Duration        time.Duration `json:"duration,omitempty"`
	Errors          int           `json:"errors"`
	Warnings        int           `json:"warnings"`
	LastError       string        `json:"lastError,omitempty"`
}

// Outcome describes one finished compile
type Outcome struct {
	SessionID string
	Duration  time.Duration
	Err       error
	Errors    int
	Warnings  int
}

// Manager reads and writes module state files
type Manager struct {
	stateDir string
	logger   logger.Logger

	mu     sync.Mutex
	states map[string]*ModuleState
}

// NewManager creates a state manager for the project at projectRoot
func NewManager(projectRoot string, log logger.Logger) *Manager {
	return &Manager{
		stateDir: filepath.Join(projectRoot, filepath.FromSlash(Dir)),
		logger:   logger.OrNop(log),
		states:   make(map[string]*ModuleState),
	}
}

// Begin marks module as compiling, keeping the counters of earlier runs
func (m *Manager) Begin(module, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.current(module)
	st.Status = StatusCompiling
	st.SessionID = sessionID
	st.ProcessID = os.Getpid()
	return m.save(st)
}

// Record stores the outcome of a compile
func (m *Manager) Record(module string, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.current(module)
	st.ProcessID = 0
	st.LastCompileTime = time.Now()
	st.Duration = o.Duration
	st.Errors = o.Errors
	st.Warnings = o.Warnings
	if o.SessionID != "" {
		st.SessionID = o.SessionID
	}
	if o.Err != nil {
		st.Status = StatusFailed
		st.FailureCount++
		st.LastError = o.Err.Error()
	} else {
		st.Status = StatusSucceeded
		st.CompileCount++
		st.LastError = ""
	}
	return m.save(st)
}

// Read returns the state of module
func (m *Manager) Read(module string) (*ModuleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[module]; ok {
		cp := *st
		return &cp, nil
	}
	return m.load(module)
}

// Discover returns every module state on disk, sorted by module name
func (m *Manager) Discover() ([]*ModuleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := os.ReadDir(m.stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var states []*ModuleState
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		module := file.Name()[:len(file.Name())-len(".json")]
		st, err := m.load(module)
		if err != nil {
			m.logger.Warn("Failed to load state file",
				logger.WithField("module", module),
				logger.WithField("error", err))
			continue
		}
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Module < states[j].Module })
	return states, nil
}

// Remove deletes the state of module
func (m *Manager) Remove(module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, module)
	if err := os.Remove(m.path(module)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// Cleanup marks modules this process left compiling as idle
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range m.states {
		if st.Status != StatusCompiling {
			continue
		}
		st.Status = StatusIdle
		st.ProcessID = 0
		if err := m.save(st); err != nil {
			m.logger.Warn("Failed to save final state",
				logger.WithField("module", st.Module),
				logger.WithField("error", err))
		}
	}
	return nil
}

// current returns the cached state of module, loading it from disk the
// first time. Callers hold mu.
func (m *Manager) current(module string) *ModuleState {
	if st, ok := m.states[module]; ok {
		return st
	}
	st, err := m.load(module)
	if err != nil {
		st = &ModuleState{Module: module, Status: StatusIdle}
	}
	m.states[module] = st
	return st
}

func (m *Manager) path(module string) string {
	return filepath.Join(m.stateDir, module+".json")
}

func (m *Manager) load(module string) (*ModuleState, error) {
	data, err := os.ReadFile(m.path(module))
	if err != nil {
		return nil, err
	}

	var st ModuleState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &st, nil
}

func (m *Manager) save(st *ModuleState) error {
	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write atomically
	file := m.path(st.Module)
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, file); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}
