// Package protocoldir implements the Protocol Directory (§4.L): an
// on-disk mirror of live status/checkpoint/result state under each
// project root's `.orchestration/` directory, for crash inspection and
// for tools that cannot reach the Durable Store directly. Every file is
// an idempotent echo of DB state, written via a write-to-temp-then-rename
// so readers never observe a partial write.
package protocoldir

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentharness/harness/internal/harnesserr"
)

const dirName = ".orchestration"

// Config mirrors config.yaml's minimal key-value contents.
type Config struct {
	Version     int      `yaml:"version"`
	SpecDir     string   `yaml:"specDir"`
	Parallelism int      `yaml:"parallelism"`
	Flags       []string `yaml:"flags,omitempty"`
}

// DependencyGraph is a coarse plan-graph snapshot.
type DependencyGraph struct {
	Plans     []string  `json:"plans"`
	Completed []string  `json:"completed"`
	Running   []string  `json:"running"`
	Blocked   []string  `json:"blocked"`
	Available []string  `json:"available"`
	Timestamp time.Time `json:"timestamp"`
}

// ActiveFile is one entry of active-files.json: a registration that a
// session is reading or writing a path.
type ActiveFile struct {
	Path      string    `json:"path"`
	SessionID string    `json:"sessionId"`
	PlanID    string    `json:"planId"`
	Operation string    `json:"operation"` // "read" | "write"
	StartedAt time.Time `json:"startedAt"`
}

// SessionStatus mirrors sessions/<id>/status.json.
type SessionStatus struct {
	SessionID string    `json:"sessionId"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Checkpoint mirrors sessions/<id>/checkpoint.json.
type Checkpoint struct {
	Type      string    `json:"type"`
	Workflow  string    `json:"workflow,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CheckpointResponse mirrors sessions/<id>/checkpoint_response.json.
type CheckpointResponse struct {
	Response  string    `json:"response"`
	RespondedAt time.Time `json:"respondedAt"`
}

// Result mirrors sessions/<id>/result.json.
type Result struct {
	Status   string `json:"status"`
	Summary  string `json:"summary,omitempty"`
	EndedAt  time.Time `json:"endedAt"`
}

// Mirror writes the per-project on-disk echo under projectRoot.
type Mirror struct {
	projectRoot string
}

// New returns a Mirror rooted at projectRoot.
func New(projectRoot string) *Mirror {
	return &Mirror{projectRoot: projectRoot}
}

func (m *Mirror) root() string {
	return filepath.Join(m.projectRoot, dirName)
}

func (m *Mirror) sessionDir(sessionID string) string {
	return filepath.Join(m.root(), "sessions", sessionID)
}

// WriteConfig replaces config.yaml.
func (m *Mirror) WriteConfig(cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return atomicWrite(filepath.Join(m.root(), "config.yaml"), data)
}

// WriteDependencyGraph replaces dependency-graph.json.
func (m *Mirror) WriteDependencyGraph(g DependencyGraph) error {
	return atomicWriteJSON(filepath.Join(m.root(), "dependency-graph.json"), g)
}

// ErrWriteConflict is returned by RegisterActiveFile when another session
// already holds a write registration for the same path.
var ErrWriteConflict = harnesserr.New(harnesserr.CodeInvalidArgument, "conflicting write registration for path")

// RegisterActiveFile appends or replaces entry's registration in
// active-files.json, atomically. It is rejected with ErrWriteConflict if
// entry.Operation is "write" and a different session already holds a
// write registration for the same path.
func (m *Mirror) RegisterActiveFile(entry ActiveFile) error {
	path := filepath.Join(m.root(), "active-files.json")

	var entries []ActiveFile
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &entries)
	}

	var kept []ActiveFile
	for _, e := range entries {
		if e.Path == entry.Path && e.SessionID == entry.SessionID {
			continue // superseded by the new registration below
		}
		if e.Path == entry.Path && e.Operation == "write" && entry.Operation == "write" && e.SessionID != entry.SessionID {
			return ErrWriteConflict
		}
		kept = append(kept, e)
	}
	kept = append(kept, entry)

	return atomicWriteJSON(path, kept)
}

// ReleaseActiveFile removes sessionID's registration for path, if any.
func (m *Mirror) ReleaseActiveFile(path, sessionID string) error {
	fullPath := filepath.Join(m.root(), "active-files.json")

	var entries []ActiveFile
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	_ = json.Unmarshal(data, &entries)

	var kept []ActiveFile
	for _, e := range entries {
		if e.Path == path && e.SessionID == sessionID {
			continue
		}
		kept = append(kept, e)
	}
	return atomicWriteJSON(fullPath, kept)
}

// WriteSessionStatus replaces sessions/<id>/status.json.
func (m *Mirror) WriteSessionStatus(sessionID string, status SessionStatus) error {
	return atomicWriteJSON(filepath.Join(m.sessionDir(sessionID), "status.json"), status)
}

// WriteCheckpoint replaces sessions/<id>/checkpoint.json.
func (m *Mirror) WriteCheckpoint(sessionID string, cp Checkpoint) error {
	return atomicWriteJSON(filepath.Join(m.sessionDir(sessionID), "checkpoint.json"), cp)
}

// WriteCheckpointResponse replaces sessions/<id>/checkpoint_response.json.
func (m *Mirror) WriteCheckpointResponse(sessionID string, resp CheckpointResponse) error {
	return atomicWriteJSON(filepath.Join(m.sessionDir(sessionID), "checkpoint_response.json"), resp)
}

// WriteResult replaces sessions/<id>/result.json.
func (m *Mirror) WriteResult(sessionID string, result Result) error {
	return atomicWriteJSON(filepath.Join(m.sessionDir(sessionID), "result.json"), result)
}

func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(path, data)
}

func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
