package operationsurface

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agentharness/harness/internal/harnesserr"
	"github.com/agentharness/harness/internal/protocoldir"
	"github.com/agentharness/harness/internal/store"
)

func (srv *Server) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, err := srv.resolveSessionID(r.PathValue("id"))
	if err != nil {
		writeAppError(w, harnesserr.New(harnesserr.CodeSessionNotFound, err.Error()))
		return
	}

	var tail []byte
	if chunks, ok := srv.deps.Supervisor.GetOutput(id); ok {
		for _, c := range chunks {
			tail = append(tail, c.Data...)
		}
	} else {
		tail, _, _ = srv.deps.Store.GetOutputTail(id, 200)
	}

	result, err := srv.deps.Checkpoints.GetCheckpoint(id, tail)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeOK(w, map[string]any{
		"hasCheckpoint": result.HasCheckpoint,
		"source":        result.Source,
		"type":          result.Type,
		"raw":           result.Raw,
		"fields":        result.Fields,
		"resumeSignal":  result.ResumeSignal,
	})
}

type respondCheckpointRequest struct {
	Response string `json:"response"`
}

func (srv *Server) handleRespondCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, err := srv.resolveSessionID(r.PathValue("id"))
	if err != nil {
		writeAppError(w, harnesserr.New(harnesserr.CodeSessionNotFound, err.Error()))
		return
	}

	var req respondCheckpointRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ok, err := srv.deps.Checkpoints.RespondCheckpoint(id, req.Response)
	if err != nil {
		writeAppError(w, err)
		return
	}

	if sess, serr := srv.deps.Store.GetSession(id); serr == nil && sess != nil {
		_ = srv.protocolMirror(sess).WriteCheckpointResponse(id, protocoldir.CheckpointResponse{
			Response:    req.Response,
			RespondedAt: time.Now().UTC(),
		})
	}

	writeOK(w, map[string]any{"delivered": ok})
}

type signalCheckpointRequest struct {
	Type        store.CheckpointType `json:"type"`
	Workflow    string                `json:"workflow"`
	Phase       *int                  `json:"phase"`
	Summary     string                `json:"summary"`
	NextCommand string                `json:"nextCommand"`
	Data        string                `json:"data"`
}

func (srv *Server) handleSignalCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, err := srv.resolveSessionID(r.PathValue("id"))
	if err != nil {
		writeAppError(w, harnesserr.New(harnesserr.CodeSessionNotFound, err.Error()))
		return
	}

	var req signalCheckpointRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cp, err := srv.deps.Checkpoints.SignalCheckpoint(id, req.Type, req.Workflow, req.Phase, req.Summary, req.NextCommand, req.Data)
	if err != nil {
		writeAppError(w, err)
		return
	}

	if sess, serr := srv.deps.Store.GetSession(id); serr == nil && sess != nil {
		_ = srv.protocolMirror(sess).WriteCheckpoint(id, protocoldir.Checkpoint{
			Type:      string(cp.Type),
			Workflow:  cp.Workflow,
			Summary:   cp.Summary,
			CreatedAt: cp.CreatedAt,
		})
	}

	writeOK(w, map[string]any{"checkpointId": cp.ID})
}

type workerReportRequest struct {
	MessageType store.WorkerMessageType `json:"messageType"`
	Payload     string                   `json:"payload"`
}

func (srv *Server) handleWorkerReport(w http.ResponseWriter, r *http.Request) {
	id, err := srv.resolveSessionID(r.PathValue("id"))
	if err != nil {
		writeAppError(w, harnesserr.New(harnesserr.CodeSessionNotFound, err.Error()))
		return
	}

	var req workerReportRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	msg := &store.WorkerMessage{
		ID:        uuid.NewString(),
		SessionID: id,
		Type:      req.MessageType,
		Payload:   req.Payload,
		Timestamp: time.Now().UTC(),
		Status:    store.MessagePending,
	}
	if req.MessageType.RequiresResponse() {
		expires := time.Now().UTC().Add(30 * time.Second)
		msg.ExpiresAt = &expires
	}

	if err := srv.deps.Store.CreateWorkerMessage(msg); err != nil {
		writeAppError(w, err)
		return
	}

	if err := srv.deps.Store.ResolvePendingCheckpointsForSession(id, time.Now().UTC()); err != nil {
		writeAppError(w, err)
		return
	}

	writeOK(w, map[string]any{
		"messageId":        msg.ID,
		"requiresResponse": req.MessageType.RequiresResponse(),
	})
}

// handleWorkerAwait blocks until the coordinator posts a paired response,
// the message expires, or the timeout elapses, polling the store the way
// the teacher orchestrator's Wait() polls spawn completion.
func (srv *Server) handleWorkerAwait(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("messageId")

	timeout := 30 * time.Second
	if raw := r.URL.Query().Get("timeoutMs"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}
	if timeout > 300*time.Second {
		timeout = 300 * time.Second
	}

	msg, err := srv.deps.Store.GetWorkerMessage(messageID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if msg == nil {
		writeAppError(w, harnesserr.New(harnesserr.CodeMessageNotFound, "worker message not found"))
		return
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		resp, err := srv.deps.Store.GetResponseTo(messageID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if resp != nil {
			writeOK(w, map[string]any{"response": responseJSON(*resp)})
			return
		}

		if _, err := srv.deps.Store.ExpirePendingMessages(time.Now().UTC()); err != nil {
			writeAppError(w, err)
			return
		}
		msg, err = srv.deps.Store.GetWorkerMessage(messageID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if msg.Status == store.MessageExpired {
			writeAppError(w, harnesserr.New(harnesserr.CodeMessageExpired, "worker message expired before a response was posted"))
			return
		}
		if time.Now().After(deadline) {
			writeAppError(w, harnesserr.New(harnesserr.CodeMessageTimeout, "timed out waiting for a response"))
			return
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

func responseJSON(resp store.OrchestratorResponse) map[string]any {
	return map[string]any{
		"id":           resp.ID,
		"sessionId":    resp.SessionID,
		"inResponseTo": resp.InResponseTo,
		"type":         resp.Type,
		"payload":      resp.Payload,
		"timestamp":    resp.Timestamp,
	}
}

type respondRequest struct {
	ResponseType store.OrchestratorResponseType `json:"responseType"`
	Payload      string                          `json:"payload"`
}

func (srv *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	id, err := srv.resolveSessionID(r.PathValue("id"))
	if err != nil {
		writeAppError(w, harnesserr.New(harnesserr.CodeSessionNotFound, err.Error()))
		return
	}
	messageID := r.PathValue("messageId")

	var req respondRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	msg, err := srv.deps.Store.GetWorkerMessage(messageID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if msg == nil {
		writeAppError(w, harnesserr.New(harnesserr.CodeMessageNotFound, "worker message not found"))
		return
	}

	allowed := false
	for _, t := range store.AllowedResponses(msg.Type) {
		if t == req.ResponseType {
			allowed = true
			break
		}
	}
	if !allowed {
		writeAppError(w, harnesserr.New(harnesserr.CodeInvalidResponseType, "response type not allowed for this worker message"))
		return
	}

	resp := &store.OrchestratorResponse{
		ID:           uuid.NewString(),
		SessionID:    id,
		InResponseTo: messageID,
		Type:         req.ResponseType,
		Payload:      req.Payload,
		Timestamp:    time.Now().UTC(),
	}
	if err := srv.deps.Store.CreateOrchestratorResponse(resp); err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]any{"responseId": resp.ID})
}

func (srv *Server) handleGetPending(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("id")

	var types []store.WorkerMessageType
	// messageTypes, if present, is a comma-separated list of the worker
	// message types this call is restricted to.
	if raw := r.URL.Query().Get("messageTypes"); raw != "" {
		for _, part := range splitComma(raw) {
			types = append(types, store.WorkerMessageType(part))
		}
	}

	pending, err := srv.deps.Store.ListPendingWorkerMessages(sessionID, types)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var checkpoints, statusUpdates []map[string]any
	for _, msg := range pending {
		entry := map[string]any{
			"id":        msg.ID,
			"sessionId": msg.SessionID,
			"type":      msg.Type,
			"payload":   msg.Payload,
			"timestamp": msg.Timestamp,
		}
		if msg.Type.RequiresResponse() {
			checkpoints = append(checkpoints, entry)
		} else {
			statusUpdates = append(statusUpdates, entry)
		}
	}

	writeOK(w, map[string]any{"checkpoints": checkpoints, "statusUpdates": statusUpdates})
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
