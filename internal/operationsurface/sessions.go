package operationsurface

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agentharness/harness/internal/harnesserr"
	"github.com/agentharness/harness/internal/store"
)

func sessionJSON(s store.Session) map[string]any {
	out := map[string]any{
		"id":             s.ID,
		"slot":           s.Slot,
		"status":         s.Status,
		"workingDir":     s.WorkingDir,
		"currentCommand": s.CurrentCommand,
		"startedAt":      s.StartedAt,
		"lastPolledAt":   s.LastPolledAt,
	}
	if s.EndedAt != nil {
		out["endedAt"] = *s.EndedAt
	}
	if s.PID != nil {
		out["pid"] = *s.PID
	}
	if s.LastWaitType != "" {
		out["lastWaitType"] = s.LastWaitType
	}
	return out
}

func (srv *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter := store.SessionFilter(r.URL.Query().Get("filter"))
	if filter == "" {
		filter = store.FilterAll
	}

	sessions, err := srv.deps.Store.ListSessions(filter)
	if err != nil {
		writeAppError(w, err)
		return
	}

	list := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		list = append(list, sessionJSON(s))
	}

	writeOK(w, map[string]any{
		"sessions":  list,
		"freeSlots": srv.deps.Supervisor.FreeSlots(),
	})
}

type startSessionRequest struct {
	WorkingDir string `json:"workingDir"`
	Command    string `json:"command"`
}

func (srv *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.WorkingDir == "" {
		writeBadRequest(w, "workingDir is required")
		return
	}

	decision, err := srv.deps.Gate.AdmitStartSession(req.WorkingDir, req.Command)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !decision.Admitted {
		writeJSON(w, statusForCode(decision.Code), map[string]any{
			"success": false,
			"error":   decision.Message,
			"code":    decision.Code,
			"detail":  decision.Detail,
		})
		return
	}

	sess, err := srv.deps.Supervisor.Spawn(req.WorkingDir, req.Command)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeOK(w, map[string]any{"session": sessionJSON(*sess)})
}

func (srv *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, err := srv.resolveSessionID(r.PathValue("id"))
	if err != nil {
		writeAppError(w, harnesserr.New(harnesserr.CodeSessionNotFound, err.Error()))
		return
	}

	sess, err := srv.deps.Store.GetSession(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if sess == nil {
		writeAppError(w, harnesserr.New(harnesserr.CodeSessionNotFound, "session not found"))
		return
	}
	if sess.Status.IsTerminal() {
		writeOK(w, map[string]any{"alreadyEnded": true})
		return
	}

	if err := srv.deps.Supervisor.Terminate(id); err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]any{"alreadyEnded": false})
}

func (srv *Server) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	id, err := srv.resolveSessionID(r.PathValue("id"))
	if err != nil {
		writeAppError(w, harnesserr.New(harnesserr.CodeSessionNotFound, err.Error()))
		return
	}

	lines := 100
	if raw := r.URL.Query().Get("lines"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			lines = n
		}
	}
	// `since` is accepted and parsed per §9's resolved Open Question but is
	// a documented no-op — GetOutput always returns the tail by `lines`.
	if raw := r.URL.Query().Get("since"); raw != "" {
		_, _ = time.Parse(time.RFC3339, raw)
	}

	data, lineCount, err := srv.reconstructTail(id, lines)
	if err != nil {
		writeAppError(w, err)
		return
	}

	if err := srv.deps.Store.TouchLastPolled(id, time.Now().UTC()); err != nil {
		writeAppError(w, err)
		return
	}

	writeOK(w, map[string]any{"output": string(data), "lineCount": lineCount})
}

// reconstructTail prefers the live in-memory ring buffer, falling back to
// the durable store once a session is no longer held by the PTY
// Supervisor, per §4.B.
func (srv *Server) reconstructTail(id string, lines int) ([]byte, int, error) {
	if chunks, ok := srv.deps.Supervisor.GetOutput(id); ok {
		var all []byte
		for _, c := range chunks {
			all = append(all, c.Data...)
		}
		return tailLines(all, lines)
	}
	return srv.deps.Store.GetOutputTail(id, lines)
}

// tailLines returns the last n newline-delimited lines of data, plus the
// count of lines returned. Mirrors the store's own reconstruction rule so
// a live-buffer read and a store fallback read agree on semantics.
func tailLines(data []byte, n int) ([]byte, int, error) {
	if n <= 0 || len(data) == 0 {
		return nil, 0, nil
	}

	end := len(data)
	scanEnd := end
	if data[end-1] == '\n' {
		scanEnd = end - 1
	}

	count := 0
	start := 0
	for i := scanEnd - 1; i >= 0; i-- {
		if data[i] == '\n' {
			count++
			if count == n {
				start = i + 1
				break
			}
		}
	}
	lineCount := count
	if scanEnd > 0 {
		lineCount++
	}
	if lineCount > n {
		lineCount = n
	}
	return data[start:end], lineCount, nil
}

type sendInputRequest struct {
	Input      string `json:"input"`
	PressEnter *bool  `json:"pressEnter"`
}

func (srv *Server) handleSendInput(w http.ResponseWriter, r *http.Request) {
	id, err := srv.resolveSessionID(r.PathValue("id"))
	if err != nil {
		writeAppError(w, harnesserr.New(harnesserr.CodeSessionNotFound, err.Error()))
		return
	}

	var req sendInputRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	pressEnter := req.PressEnter == nil || *req.PressEnter

	var ok bool
	if pressEnter {
		ok, err = srv.deps.Supervisor.SendInput(id, req.Input)
	} else {
		ok, err = srv.deps.Supervisor.SendRawInput(id, []byte(req.Input))
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]any{"delivered": ok})
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

func (srv *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	id, err := srv.resolveSessionID(r.PathValue("id"))
	if err != nil {
		writeAppError(w, harnesserr.New(harnesserr.CodeSessionNotFound, err.Error()))
		return
	}

	var req resizeRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ok, err := srv.deps.Supervisor.Resize(id, req.Cols, req.Rows)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]any{"resized": ok})
}
