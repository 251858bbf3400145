package health

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/mcpm/internal/model"
)

const fakeModeEnv = "MCPM_FAKE_SERVER"

// TestMain lets the test binary double as the server under probe.
func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeModeEnv); mode != "" {
		os.Exit(fakeServer(mode))
	}
	os.Exit(m.Run())
}

func fakeServer(mode string) int {
	in := bufio.NewReader(os.Stdin)
	switch mode {
	case "mcp":
		if err := server.ServeStdio(server.NewMCPServer("fake-server", "1.2.3")); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	case "sleep":
		time.Sleep(time.Minute)
	case "garbage":
		fmt.Println("Listening on stdio...")
		time.Sleep(time.Minute)
	case "exit":
		fmt.Fprintln(os.Stderr, "missing API_KEY")
		return 3
	case "error":
		in.ReadString('\n')
		fmt.Println(`{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"boom"}}`)
		time.Sleep(time.Minute)
	case "noisy":
		in.ReadString('\n')
		fmt.Println(`{"jsonrpc":"2.0","method":"notifications/message","params":{"level":"info"}}`)
		fmt.Println()
		fmt.Printf(`{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-06-18","serverInfo":{"name":"noisy","version":%q}}}`+"\n",
			os.Getenv("FAKE_VERSION"))
		time.Sleep(time.Minute)
	case "framed":
		in.ReadString('\n')
		body := `{"jsonrpc":"2.0","id":1,"result":{"serverInfo":{"name":"framed","version":"2.0"}}}`
		fmt.Printf("Content-Length: %d\r\n\r\n%s", len(body), body)
		time.Sleep(time.Minute)
	}
	return 0
}

func fake(mode string, env map[string]string) model.Server {
	e := map[string]string{fakeModeEnv: mode}
	for k, v := range env {
		e[k] = v
	}
	return model.Server{
		Name:   mode,
		Client: model.CursorGlobal,
		Transport: model.Transport{
			Kind:    model.TransportStdio,
			Command: os.Args[0],
			Args:    []string{"-test.run=^$"},
			Env:     e,
		},
	}
}

func newTestProber(timeout time.Duration) *Prober {
	return NewProber(Options{Timeout: timeout}, nil)
}

func TestProbeHealthyMCPServer(t *testing.T) {
	st := newTestProber(10*time.Second).Probe(context.Background(), fake("mcp", nil))
	require.Equal(t, model.HealthHealthy, st.State, st.Reason)
	assert.Equal(t, "fake-server", st.ServerName)
	assert.Equal(t, "1.2.3", st.ServerVersion)
}

func TestProbeSkipsNotificationsAndPassesEnv(t *testing.T) {
	st := newTestProber(10*time.Second).Probe(context.Background(), fake("noisy", map[string]string{"FAKE_VERSION": "9.9.9"}))
	require.Equal(t, model.HealthHealthy, st.State, st.Reason)
	assert.Equal(t, "noisy", st.ServerName)
	assert.Equal(t, "9.9.9", st.ServerVersion)
}

func TestProbeContentLengthFraming(t *testing.T) {
	st := newTestProber(10*time.Second).Probe(context.Background(), fake("framed", nil))
	require.Equal(t, model.HealthHealthy, st.State, st.Reason)
	assert.Equal(t, "framed", st.ServerName)
}

func TestProbeTimesOut(t *testing.T) {
	start := time.Now()
	st := newTestProber(300*time.Millisecond).Probe(context.Background(), fake("sleep", nil))
	assert.Equal(t, model.HealthTimedOut, st.State)
	assert.Less(t, time.Since(start), 5*time.Second, "deadline does not wait for the process")
}

func TestProbeFailures(t *testing.T) {
	tests := []struct {
		name   string
		srv    model.Server
		reason string
	}{
		{"garbage output", fake("garbage", nil), "unparseable response"},
		{"exits early", fake("exit", nil), "missing API_KEY"},
		{"rpc error", fake("error", nil), "boom"},
		{
			"missing command",
			model.Server{Name: "nope", Transport: model.Transport{Kind: model.TransportStdio, Command: "mcpm-no-such-command-xyz"}},
			"command not found",
		},
		{
			"missing absolute path",
			model.Server{Name: "nope", Transport: model.Transport{Kind: model.TransportStdio, Command: filepath.Join(t.TempDir(), "absent")}},
			"command not found",
		},
	}
	p := newTestProber(10 * time.Second)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := p.Probe(context.Background(), tt.srv)
			assert.Equal(t, model.HealthFailed, st.State)
			assert.Contains(t, st.Reason, tt.reason)
		})
	}
}

func TestProbeNetworkServerIsUnsupported(t *testing.T) {
	srv := model.Server{
		Name:      "remote",
		Transport: model.Transport{Kind: model.TransportHTTP, URL: "http://127.0.0.1:1/mcp"},
	}
	st := newTestProber(time.Second).Probe(context.Background(), srv)
	assert.Equal(t, model.HealthFailed, st.State)
	assert.Contains(t, st.Reason, "only supports stdio")
}

func TestLaunchDeliversOneTaggedOutcome(t *testing.T) {
	srv := fake("mcp", nil)
	ch := newTestProber(10*time.Second).Launch(context.Background(), srv, 7)

	select {
	case out := <-ch:
		assert.Equal(t, srv.ID(), out.ID)
		assert.Equal(t, uint64(7), out.Generation)
		assert.Equal(t, model.HealthHealthy, out.Status.State)
		assert.Positive(t, out.Elapsed)
	case <-time.After(15 * time.Second):
		t.Fatal("no outcome delivered")
	}
}

func TestProbeAllRunsConcurrently(t *testing.T) {
	p := NewProber(Options{Timeout: 500 * time.Millisecond, MaxConcurrent: 4}, nil)
	servers := []model.Server{fake("sleep", nil), fake("sleep", nil), fake("sleep", nil), fake("mcp", nil)}
	for i := range servers {
		servers[i].Name = fmt.Sprintf("s%d", i)
	}

	start := time.Now()
	outs := p.ProbeAll(context.Background(), servers)
	elapsed := time.Since(start)

	require.Len(t, outs, 4)
	for i, out := range outs[:3] {
		assert.Equal(t, servers[i].ID(), out.ID)
		assert.Equal(t, model.HealthTimedOut, out.Status.State)
	}
	assert.Equal(t, model.HealthHealthy, outs[3].Status.State)
	assert.Less(t, elapsed, 1500*time.Millisecond, "probes overlap instead of running one after another")
}

func TestBuildEnvAppendsConfiguredVars(t *testing.T) {
	t.Setenv("MCPM_TEST_SECRET", "s3cret")
	env := buildEnv(map[string]string{"B": "2", "A": "1", "C": "${MCPM_TEST_SECRET}"})
	n := len(env)
	require.GreaterOrEqual(t, n, 3)
	assert.Equal(t, []string{"A=1", "B=2", "C=s3cret"}, env[n-3:])
}

func TestClassify(t *testing.T) {
	_, done := classify([]byte(`{"jsonrpc":"2.0","id":2,"result":{}}`))
	assert.False(t, done, "responses to other ids are skipped")

	_, done = classify([]byte(`"just a string"`))
	assert.False(t, done)

	st, done := classify([]byte(`{"jsonrpc":"2.0","id":1,"result":{"serverInfo":{}}}`))
	assert.True(t, done)
	assert.Equal(t, model.HealthFailed, st.State)
	assert.True(t, strings.Contains(st.Reason, "serverInfo.name"))
}

func TestExchangeRejectsOversizedFrame(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "max int", header: "Content-Length: 9223372036854775807"},
		{name: "just over the cap", header: fmt.Sprintf("Content-Length: %d", maxFrameSize+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := exchange(&bytes.Buffer{}, strings.NewReader(tt.header+"\r\n\r\n{}"), mcp.Implementation{Name: "mcpm"})
			assert.False(t, out.exited)
			assert.Equal(t, model.HealthFailed, out.status.State)
			assert.Equal(t, "framed response too large", out.status.Reason)
		})
	}
}

func TestLaunchElapsedExcludesSlotWait(t *testing.T) {
	p := NewProber(Options{Timeout: 400 * time.Millisecond, MaxConcurrent: 1}, nil)
	slow := fake("sleep", nil)
	slow.Name = "slow"
	missing := model.Server{
		Name:      "missing",
		Client:    model.CursorGlobal,
		Transport: model.Transport{Kind: model.TransportStdio, Command: filepath.Join(t.TempDir(), "no-such-binary")},
	}

	first := p.Launch(context.Background(), slow, 1)
	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	second := p.Launch(context.Background(), missing, 2)

	out := <-second
	waited := time.Since(start)
	<-first

	assert.Equal(t, model.HealthFailed, out.Status.State)
	assert.GreaterOrEqual(t, waited, 200*time.Millisecond, "second probe waited for the only slot")
	assert.Less(t, out.Elapsed, waited/2)
}
