package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/coder/websocket"
	"github.com/spf13/cobra"
)

type wsMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

var (
	attachHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	attachFooterStyle = lipgloss.NewStyle().Faint(true)
)

func attachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach <id|slot>",
		Short: "Attach an interactive terminal to a live session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(args[0])
		},
	}
	return cmd
}

func runAttach(sessionID string) error {
	wsURL := strings.Replace(activeClient.baseURL, "http", "ws", 1) + "/ws/sessions/" + sessionID

	ctx, cancel := context.WithCancel(context.Background())
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("harnessctl: dial %s: %w", wsURL, err)
	}

	m := newAttachModel(ctx, cancel, conn, sessionID)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.program = p

	go m.readLoop()

	_, err = p.Run()
	cancel()
	conn.Close(websocket.StatusNormalClosure, "")
	return err
}

type attachOutputMsg []byte
type attachWaitingMsg struct{ waitType string }
type attachEndedMsg struct {
	failed bool
	reason string
}
type attachClosedMsg struct{ err error }

type attachModel struct {
	ctx       context.Context
	cancel    context.CancelFunc
	conn      *websocket.Conn
	sessionID string
	program   *tea.Program

	viewport viewport.Model
	content  strings.Builder
	status   string
	ended    bool
}

func newAttachModel(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sessionID string) *attachModel {
	vp := viewport.New(80, 20)
	return &attachModel{
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
		sessionID: sessionID,
		viewport:  vp,
		status:    "connected",
	}
}

func (m *attachModel) Init() tea.Cmd {
	return nil
}

func (m *attachModel) readLoop() {
	for {
		_, data, err := m.conn.Read(m.ctx)
		if err != nil {
			m.program.Send(attachClosedMsg{err: err})
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "output":
			if decoded, err := base64.StdEncoding.DecodeString(msg.Data); err == nil {
				m.program.Send(attachOutputMsg(decoded))
			}
		case "waiting":
			var payload struct {
				WaitType string `json:"waitType"`
			}
			_ = json.Unmarshal([]byte(msg.Data), &payload)
			m.program.Send(attachWaitingMsg{waitType: payload.WaitType})
		case "completed":
			m.program.Send(attachEndedMsg{failed: false})
		case "failed":
			m.program.Send(attachEndedMsg{failed: true, reason: msg.Data})
		}
	}
}

func (m *attachModel) sendInput(data []byte) {
	payload, err := json.Marshal(wsMessage{Type: "input", Data: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return
	}
	_ = m.conn.Write(m.ctx, websocket.MessageText, payload)
}

func (m *attachModel) sendResize(cols, rows int) {
	payload, err := json.Marshal(wsMessage{Type: "resize", Cols: cols, Rows: rows})
	if err != nil {
		return
	}
	_ = m.conn.Write(m.ctx, websocket.MessageText, payload)
}

func (m *attachModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 2
		m.sendResize(msg.Width, msg.Height-2)
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlD {
			m.cancel()
			return m, tea.Quit
		}
		if m.ended {
			return m, nil
		}
		m.sendInput([]byte(msg.String()))
		return m, nil

	case attachOutputMsg:
		m.content.WriteString(ansi.Strip(string(msg)))
		m.viewport.SetContent(m.content.String())
		m.viewport.GotoBottom()
		return m, nil

	case attachWaitingMsg:
		m.status = "waiting: " + msg.waitType
		return m, nil

	case attachEndedMsg:
		m.ended = true
		if msg.failed {
			m.status = "failed: " + msg.reason
		} else {
			m.status = "completed"
		}
		return m, nil

	case attachClosedMsg:
		m.ended = true
		m.status = "disconnected"
		return m, nil
	}
	return m, nil
}

func (m *attachModel) View() string {
	header := attachHeaderStyle.Render(fmt.Sprintf("session %s — %s", m.sessionID, m.status))
	footer := attachFooterStyle.Render("ctrl+d to detach")
	return header + "\n" + m.viewport.View() + "\n" + footer
}
