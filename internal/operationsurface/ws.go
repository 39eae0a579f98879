package operationsurface

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/agentharness/harness/internal/eventbus"
)

type sessionWSMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// handleSessionWebSocket bridges a session's live output and input over a
// WebSocket connection, adapted from the teacher webserver's terminal
// bridge but sourced from the Ring Buffer / Event Bus instead of holding
// its own PTY.
func (srv *Server) handleSessionWebSocket(w http.ResponseWriter, r *http.Request) {
	id, err := srv.resolveSessionID(r.PathValue("id"))
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer ws.CloseNow()

	ctx := r.Context()
	var writeMu sync.Mutex

	send := func(msg sessionWSMessage) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return ws.Write(writeCtx, websocket.MessageText, data)
	}

	// Replay whatever is currently buffered so a client that connects
	// mid-session sees recent context immediately.
	if chunks, ok := srv.deps.Supervisor.GetOutput(id); ok {
		for _, c := range chunks {
			_ = send(sessionWSMessage{Type: "output", Data: base64.StdEncoding.EncodeToString(c.Data)})
		}
	}

	sub := srv.deps.Bus.Subscribe([]string{id}, []eventbus.Type{
		eventbus.SessionOutput, eventbus.SessionWaiting, eventbus.SessionCompleted, eventbus.SessionFailed,
	}, 64)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				srv.forwardEvent(send, id, ev)
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			<-done
			return
		}

		var msg sessionWSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "input":
			decoded, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				continue
			}
			_, _ = srv.deps.Supervisor.SendRawInput(id, decoded)
		case "resize":
			if msg.Cols > 0 && msg.Rows > 0 {
				_, _ = srv.deps.Supervisor.Resize(id, msg.Cols, msg.Rows)
			}
		}
	}
}

func (srv *Server) forwardEvent(send func(sessionWSMessage) error, id string, ev eventbus.Event) {
	switch ev.Type {
	case eventbus.SessionWaiting:
		payload, _ := json.Marshal(map[string]any{"waitType": ev.WaitType, "menuOptions": ev.MenuOptions})
		_ = send(sessionWSMessage{Type: "waiting", Data: string(payload)})
	case eventbus.SessionCompleted:
		_ = send(sessionWSMessage{Type: "completed"})
	case eventbus.SessionFailed:
		_ = send(sessionWSMessage{Type: "failed", Data: ev.Reason})
	case eventbus.SessionOutput:
		if chunks, ok := srv.deps.Supervisor.GetOutput(id); ok && len(chunks) > 0 {
			last := chunks[len(chunks)-1]
			_ = send(sessionWSMessage{Type: "output", Data: base64.StdEncoding.EncodeToString(last.Data)})
		}
	}
}
