// Package checkpoint implements the Checkpoint Registry (§4.E): explicit
// checkpoints posted through the operation surface take priority over a
// pattern-based fallback that scans a waiting session's trailing output
// for a banner.
package checkpoint

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentharness/harness/internal/store"
)

// Source identifies which mechanism produced a Result.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourcePattern  Source = "pattern"
	SourceNone     Source = "none"
)

// Result is the priority-resolved answer to GetCheckpoint.
type Result struct {
	HasCheckpoint bool
	Source        Source
	Type          store.CheckpointType
	Raw           string
	Fields        map[string]any
	ResumeSignal  string
}

// InputSender is the subset of the PTY Supervisor the registry needs to
// deliver a coordinator's response.
type InputSender interface {
	SendInput(id, input string) (bool, error)
}

// Registry implements GetCheckpoint, RespondCheckpoint, and
// SignalCheckpoint per §4.E.
type Registry struct {
	store *store.Store
	ptys  InputSender
}

// New creates a Registry backed by st; ptys delivers RespondCheckpoint
// writes to the live child.
func New(st *store.Store, ptys InputSender) *Registry {
	return &Registry{store: st, ptys: ptys}
}

// GetCheckpoint resolves a session's checkpoint in priority order:
// explicit DB row first, pattern-based banner scan second, else
// HasCheckpoint=false. tail is the session's live output (or
// reconstructed from the store for a terminal session).
func (r *Registry) GetCheckpoint(sessionID string, tail []byte) (*Result, error) {
	explicit, err := r.store.GetPendingCheckpoint(sessionID)
	if err != nil {
		return nil, err
	}
	if explicit != nil {
		return &Result{
			HasCheckpoint: true,
			Source:        SourceExplicit,
			Type:          explicit.Type,
			Raw:           explicit.Data,
			Fields:        explicitFields(explicit),
			ResumeSignal:  defaultResumeSignal(explicit.Type),
		}, nil
	}

	sess, err := r.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Status != store.SessionWaitingCheckpoint {
		return &Result{HasCheckpoint: false, Source: SourceNone}, nil
	}

	banner, ok := findBanner(string(tail))
	if !ok {
		return &Result{HasCheckpoint: false, Source: SourceNone}, nil
	}

	cpType, fields, resumeSignal := parseBanner(banner)
	return &Result{
		HasCheckpoint: true,
		Source:        SourcePattern,
		Type:          cpType,
		Raw:           banner,
		Fields:        fields,
		ResumeSignal:  resumeSignal,
	}, nil
}

func explicitFields(cp *store.Checkpoint) map[string]any {
	fields := map[string]any{
		"workflow": cp.Workflow,
		"summary":  cp.Summary,
	}
	if cp.Phase != nil {
		fields["phase"] = *cp.Phase
	}
	if cp.NextCommand != "" {
		fields["nextCommand"] = cp.NextCommand
	}
	return fields
}

func defaultResumeSignal(t store.CheckpointType) string {
	switch t {
	case store.CheckpointHumanVerify:
		return "approved"
	case store.CheckpointDecision:
		return "select an option"
	case store.CheckpointHumanAction:
		return "done"
	default:
		return ""
	}
}

// RespondCheckpoint writes the coordinator's response to the live PTY.
// The registry does not bind the response to a specific checkpoint row;
// resolution happens via ResolvePendingCheckpointsForSession when a
// subsequent worker message supersedes it, or via the worker-message
// pairing path.
func (r *Registry) RespondCheckpoint(sessionID, response string) (bool, error) {
	return r.ptys.SendInput(sessionID, response)
}

// SignalCheckpoint creates an explicit checkpoint, flipping the session
// to waiting_checkpoint.
func (r *Registry) SignalCheckpoint(sessionID string, cpType store.CheckpointType, workflow string, phase *int, summary, nextCommand, data string) (*store.Checkpoint, error) {
	cp := &store.Checkpoint{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Type:        cpType,
		Workflow:    workflow,
		Phase:       phase,
		Summary:     summary,
		NextCommand: nextCommand,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.CreateCheckpoint(cp); err != nil {
		return nil, err
	}
	return cp, nil
}
