// Package store is the embedded relational Durable Store (§4.A). It holds
// sessions, outputs, worker messages, orchestrator responses, checkpoints,
// and orchestration/plan state for every project root, behind a
// single-writer sqlite3 connection.
package store

import "time"

// SessionStatus is the lifecycle status of a Session, per §3 of the
// specification.
type SessionStatus string

const (
	SessionRunning           SessionStatus = "running"
	SessionWaitingCheckpoint SessionStatus = "waiting_checkpoint"
	SessionCompleted         SessionStatus = "completed"
	SessionFailed            SessionStatus = "failed"
)

// IsTerminal reports whether status is one from which no further
// transition is allowed.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// IsActive reports whether status occupies a slot.
func (s SessionStatus) IsActive() bool {
	return s == SessionRunning || s == SessionWaitingCheckpoint
}

// Session is one interactive child process occupying a slot.
type Session struct {
	ID             string        `db:"id" json:"id"`
	Slot           int           `db:"slot" json:"slot"`
	Status         SessionStatus `db:"status" json:"status"`
	WorkingDir     string        `db:"working_dir" json:"workingDir"`
	CurrentCommand string        `db:"current_command" json:"currentCommand"`
	StartedAt      time.Time     `db:"started_at" json:"startedAt"`
	EndedAt        *time.Time    `db:"ended_at" json:"endedAt,omitempty"`
	PID            *int          `db:"pid" json:"pid,omitempty"`
	LastPolledAt   time.Time     `db:"last_polled_at" json:"lastPolledAt"`
	LastWaitType   string        `db:"last_wait_type" json:"lastWaitType,omitempty"`
}

// OutputChunk is a timestamped fragment of child output.
type OutputChunk struct {
	SessionID string    `db:"session_id" json:"sessionId"`
	Seq       int64     `db:"seq" json:"seq"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	Stream    string    `db:"stream" json:"stream"`
	Data      []byte    `db:"data" json:"data"`
}

// WorkerMessageType enumerates the kinds of structured item a child may
// post via the operation surface.
type WorkerMessageType string

const (
	MsgSessionReady       WorkerMessageType = "session_ready"
	MsgTaskStarted        WorkerMessageType = "task_started"
	MsgProgressUpdate     WorkerMessageType = "progress_update"
	MsgVerificationNeeded WorkerMessageType = "verification_needed"
	MsgDecisionNeeded     WorkerMessageType = "decision_needed"
	MsgActionNeeded       WorkerMessageType = "action_needed"
	MsgTaskCompleted      WorkerMessageType = "task_completed"
	MsgTaskFailed         WorkerMessageType = "task_failed"
)

// RequiresResponse reports whether this message type blocks on a paired
// OrchestratorResponse.
func (t WorkerMessageType) RequiresResponse() bool {
	switch t {
	case MsgVerificationNeeded, MsgDecisionNeeded, MsgActionNeeded:
		return true
	default:
		return false
	}
}

// WorkerMessageStatus is the lifecycle of a WorkerMessage.
type WorkerMessageStatus string

const (
	MessagePending   WorkerMessageStatus = "pending"
	MessageResponded WorkerMessageStatus = "responded"
	MessageExpired   WorkerMessageStatus = "expired"
)

// WorkerMessage is a structured item posted by a child via the operation
// surface.
type WorkerMessage struct {
	ID        string              `db:"id" json:"id"`
	SessionID string              `db:"session_id" json:"sessionId"`
	Type      WorkerMessageType   `db:"type" json:"type"`
	Payload   string              `db:"payload" json:"payload"`
	Timestamp time.Time           `db:"timestamp" json:"timestamp"`
	Status    WorkerMessageStatus `db:"status" json:"status"`
	ExpiresAt *time.Time          `db:"expires_at" json:"expiresAt,omitempty"`
}

// OrchestratorResponseType enumerates allowed coordinator→worker reply
// types.
type OrchestratorResponseType string

const (
	RespVerificationResult OrchestratorResponseType = "verification_result"
	RespDecisionMade       OrchestratorResponseType = "decision_made"
	RespActionCompleted    OrchestratorResponseType = "action_completed"
	RespAbortTask          OrchestratorResponseType = "abort_task"
)

// AllowedResponses returns the OrchestratorResponseTypes permitted as a
// reply to a worker message of type t, per §3's pairing table.
func AllowedResponses(t WorkerMessageType) []OrchestratorResponseType {
	switch t {
	case MsgVerificationNeeded:
		return []OrchestratorResponseType{RespVerificationResult, RespAbortTask}
	case MsgDecisionNeeded:
		return []OrchestratorResponseType{RespDecisionMade, RespAbortTask}
	case MsgActionNeeded:
		return []OrchestratorResponseType{RespActionCompleted, RespAbortTask}
	default:
		return nil
	}
}

// OrchestratorResponse is the coordinator's reply to a pending
// WorkerMessage.
type OrchestratorResponse struct {
	ID           string                   `db:"id" json:"id"`
	SessionID    string                   `db:"session_id" json:"sessionId"`
	InResponseTo string                   `db:"in_response_to" json:"inResponseTo"`
	Type         OrchestratorResponseType `db:"type" json:"type"`
	Payload      string                   `db:"payload" json:"payload"`
	Timestamp    time.Time                `db:"timestamp" json:"timestamp"`
}

// CheckpointType enumerates the kinds of explicit workflow-transition
// signal a child may post.
type CheckpointType string

const (
	CheckpointCompletion  CheckpointType = "completion"
	CheckpointHumanVerify CheckpointType = "human-verify"
	CheckpointDecision    CheckpointType = "decision"
	CheckpointHumanAction CheckpointType = "human-action"
	CheckpointError       CheckpointType = "error"
)

// Checkpoint is an explicit workflow-transition signal posted by the child
// through the operation surface.
type Checkpoint struct {
	ID          string         `db:"id" json:"id"`
	SessionID   string         `db:"session_id" json:"sessionId"`
	Type        CheckpointType `db:"type" json:"type"`
	Workflow    string         `db:"workflow" json:"workflow,omitempty"`
	Phase       *int           `db:"phase" json:"phase,omitempty"`
	Summary     string         `db:"summary" json:"summary,omitempty"`
	NextCommand string         `db:"next_command" json:"nextCommand,omitempty"`
	Data        string         `db:"data" json:"data,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	ResolvedAt  *time.Time     `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// PlanStatus is the lifecycle of a discovered filesystem plan unit.
type PlanStatus string

const (
	PlanPlanned   PlanStatus = "planned"
	PlanExecuting PlanStatus = "executing"
	PlanExecuted  PlanStatus = "executed"
	PlanVerified  PlanStatus = "verified"
)

// Plan is a discovered (phase, plan) filesystem unit under a project root.
type Plan struct {
	ProjectRoot string     `db:"project_root" json:"projectRoot"`
	Phase       int        `db:"phase" json:"phase"`
	Plan        int        `db:"plan" json:"plan"`
	Path        string     `db:"path" json:"path"`
	Status      PlanStatus `db:"status" json:"status"`
}

// OrchestrationState is the per-project-root phase/plan bookkeeping owned
// by the Orchestration Gate and reconciled by the Project Scanner.
type OrchestrationState struct {
	ProjectRoot           string `db:"project_root" json:"projectRoot"`
	HighestPlannedPhase   int    `db:"highest_planned_phase" json:"highestPlannedPhase"`
	HighestExecutedPhase  int    `db:"highest_executed_phase" json:"highestExecutedPhase"`
	HighestExecutingPhase int    `db:"highest_executing_phase" json:"highestExecutingPhase"`
	HighestExecutingPlan  int    `db:"highest_executing_plan" json:"highestExecutingPlan"`
	PendingVerifyPhase    *int   `db:"pending_verify_phase" json:"pendingVerifyPhase,omitempty"`
	ClearSeq              int64  `db:"clear_seq" json:"-"`
}
