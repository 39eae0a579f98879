package ptysup

import (
	"bytes"
	"strings"
	"time"
)

// handshakeInspector buffers PTY output until the interactive AI-CLI has
// signaled full readiness (an initialization banner followed by a prompt
// character), then releases the buffered command for submission. It is
// the "temporary inspector" named in §4.C.
type handshakeInspector struct {
	buf          bytes.Buffer
	sawBanner    bool
	sawPrompt    bool
	command      string
	ready        bool
}

// bannerMarkers are substrings that indicate the child has printed its
// startup banner. The target CLI's banner text is not standardized across
// versions, so this list is intentionally permissive.
var bannerMarkers = []string{
	"Welcome to",
	"claude.ai",
	"? for shortcuts",
}

// promptMarkers indicate the child is now sitting at its input prompt.
var promptMarkers = []string{
	"❯", // ❯
	">",
}

func newHandshakeInspector(command string) *handshakeInspector {
	return &handshakeInspector{command: command}
}

// observe feeds a chunk of raw output and reports whether readiness has
// just been reached (i.e. the caller should now dispatch the command).
func (h *handshakeInspector) observe(data []byte) bool {
	if h.ready {
		return false
	}
	h.buf.Write(data)
	text := h.buf.String()

	if !h.sawBanner {
		for _, m := range bannerMarkers {
			if strings.Contains(text, m) {
				h.sawBanner = true
				break
			}
		}
	}
	if h.sawBanner && !h.sawPrompt {
		for _, m := range promptMarkers {
			if strings.Contains(text, m) {
				h.sawPrompt = true
				break
			}
		}
	}

	if h.sawBanner && h.sawPrompt {
		h.ready = true
		return true
	}
	return false
}

// dispatchHandshakeCommand writes the handshake's held command to w with the inter-
// character delay and the double-submission keystrokes described in
// §4.C: a short delay between characters, then two carriage returns
// spaced ~300ms apart.
func dispatchHandshakeCommand(write func([]byte) (int, error), command string) {
	for _, r := range command {
		_, _ = write([]byte(string(r)))
		time.Sleep(8 * time.Millisecond)
	}
	_, _ = write([]byte("\r"))
	time.Sleep(300 * time.Millisecond)
	_, _ = write([]byte("\r"))
}
