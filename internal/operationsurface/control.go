package operationsurface

import (
	"net/http"
	"time"
)

type waitForStateChangeRequest struct {
	TimeoutMs  int      `json:"timeoutMs"`
	SessionIDs []string `json:"sessionIds"`
}

func (srv *Server) handleWaitForStateChange(w http.ResponseWriter, r *http.Request) {
	var req waitForStateChangeRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout < time.Second || timeout > 300*time.Second {
		writeBadRequest(w, "timeoutMs must be between 1000 and 300000")
		return
	}

	result, err := srv.deps.Waiter.WaitForStateChange(timeout, req.SessionIDs)
	if err != nil {
		writeAppError(w, err)
		return
	}

	if result.Change == nil {
		writeOK(w, map[string]any{"change": nil, "reason": result.Reason})
		return
	}

	change := map[string]any{
		"sessionId": result.Change.SessionID,
		"kind":      result.Change.Kind,
	}
	if result.Change.WaitType != "" {
		change["waitType"] = result.Change.WaitType
	}
	if result.Change.MenuOptions > 0 {
		change["menuOptions"] = result.Change.MenuOptions
	}
	if result.Change.Reason != "" {
		change["reason"] = result.Change.Reason
	}
	writeOK(w, map[string]any{"change": change})
}
