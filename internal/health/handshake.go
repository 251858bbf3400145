package health

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/mcpm/internal/model"
)

const requestID = 1

// maxFrameSize bounds a Content-Length framed body.
const maxFrameSize = 1 << 20

type initializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    mcp.ClientCapabilities `json:"capabilities"`
	ClientInfo      mcp.Implementation     `json:"clientInfo"`
}

type request struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int              `json:"id"`
	Method  string           `json:"method"`
	Params  initializeParams `json:"params"`
}

type response struct {
	ID     json.RawMessage `json:"id"`
	Result *struct {
		ProtocolVersion string             `json:"protocolVersion"`
		ServerInfo      mcp.Implementation `json:"serverInfo"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func initializeRequest(client mcp.Implementation) ([]byte, error) {
	data, err := json.Marshal(request{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      requestID,
		Method:  string(mcp.MethodInitialize),
		Params: initializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo:      client,
		},
	})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// exchanged is the result of one handshake attempt. exited means the
// process closed its streams before answering; status is unset then.
type exchanged struct {
	status model.HealthStatus
	exited bool
}

// exchange sends the initialize request and reads until the matching
// response. Messages that are not our response (notifications, log lines
// framed as JSON-RPC) are skipped; anything that is not JSON fails the probe.
func exchange(w io.Writer, r io.Reader, client mcp.Implementation) exchanged {
	req, err := initializeRequest(client)
	if err != nil {
		return exchanged{status: model.Failed("encoding initialize request: " + err.Error())}
	}
	if _, err := w.Write(req); err != nil {
		return exchanged{exited: true}
	}

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		msg := bytes.TrimSpace(line)

		if n, ok := contentLength(msg); ok {
			if n > maxFrameSize {
				return exchanged{status: model.Failed("framed response too large")}
			}
			body, ferr := readFramed(br, n)
			if ferr != nil {
				return exchanged{status: model.Failed("reading framed response: " + ferr.Error())}
			}
			msg = body
		}

		if len(msg) > 0 {
			if st, done := classify(msg); done {
				return exchanged{status: st}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return exchanged{exited: true}
			}
			return exchanged{status: model.Failed("reading response: " + err.Error())}
		}
	}
}

// classify inspects one message. done is false for messages to skip.
func classify(msg []byte) (model.HealthStatus, bool) {
	if !json.Valid(msg) {
		return model.Failed("unparseable response: " + clip(string(msg), 60)), true
	}
	var resp response
	if err := json.Unmarshal(msg, &resp); err != nil {
		// valid JSON but not an object, e.g. a bare string printed by the server
		return model.HealthStatus{}, false
	}
	if string(bytes.TrimSpace(resp.ID)) != strconv.Itoa(requestID) {
		return model.HealthStatus{}, false
	}
	if resp.Error != nil {
		return model.Failed(fmt.Sprintf("initialize rejected (%d): %s", resp.Error.Code, resp.Error.Message)), true
	}
	if resp.Result == nil {
		return model.Failed("initialize response has no result"), true
	}
	info := resp.Result.ServerInfo
	if info.Name == "" {
		return model.Failed("initialize response has no serverInfo.name"), true
	}
	return model.Healthy(info.Name, info.Version), true
}

// contentLength recognizes an LSP-style "Content-Length: N" header line.
func contentLength(line []byte) (int, bool) {
	k, v, ok := strings.Cut(string(line), ":")
	if !ok || !strings.EqualFold(strings.TrimSpace(k), "Content-Length") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// readFramed skips the remaining header lines and reads an n byte body.
func readFramed(br *bufio.Reader, n int) ([]byte, error) {
	for {
		line, err := br.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(line)) == 0 {
			break
		}
	}
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds %d", n, maxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, err
	}
	return bytes.TrimSpace(body), nil
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// tail keeps the last bytes written to a process's stderr.
type tail struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTail(max int) *tail { return &tail{max: max} }

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

// suffix renders the last stderr line for a diagnostic, or "".
func (t *tail) suffix() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := strings.TrimSpace(string(t.buf))
	if s == "" {
		return ""
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return ": " + clip(s, 80)
}
