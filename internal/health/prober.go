// Package health probes stdio MCP servers by launching them and performing
// the initialize handshake under a deadline.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/semaphore"

	"github.com/michaelbrown/mcpm/internal/model"
)

const (
	DefaultTimeout       = 5 * time.Second
	DefaultMaxConcurrent = 8

	// how long a killed process may hold its pipes open before they are closed
	waitDelay = time.Second
)

// Options configures a Prober. Zero values select the defaults.
type Options struct {
	Timeout       time.Duration
	MaxConcurrent int
	ClientName    string
	ClientVersion string
}

// Prober runs health probes. It is safe for concurrent use.
type Prober struct {
	timeout time.Duration
	client  mcp.Implementation
	sem     *semaphore.Weighted
	log     *slog.Logger
}

// Outcome is the single message a launched probe delivers.
type Outcome struct {
	ID         model.ServerID
	Generation uint64
	Status     model.HealthStatus
	Elapsed    time.Duration
}

// NewProber creates a Prober. A nil logger uses slog.Default().
func NewProber(opts Options, log *slog.Logger) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.ClientName == "" {
		opts.ClientName = "mcpm"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "dev"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Prober{
		timeout: opts.Timeout,
		client:  mcp.Implementation{Name: opts.ClientName, Version: opts.ClientVersion},
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		log:     log.With("component", "health"),
	}
}

// Timeout is the deadline applied to each launch-plus-handshake.
func (p *Prober) Timeout() time.Duration { return p.timeout }

// Probe checks one server and returns a terminal status. Network servers are
// never contacted.
func (p *Prober) Probe(ctx context.Context, srv model.Server) model.HealthStatus {
	st, _ := p.probe(ctx, srv)
	return st
}

// probe is Probe plus the time spent running the server, excluding any
// wait for a concurrency slot.
func (p *Prober) probe(ctx context.Context, srv model.Server) (model.HealthStatus, time.Duration) {
	if !srv.Transport.IsStdio() {
		return model.Failed("health check only supports stdio servers"), 0
	}
	if srv.Transport.Command == "" {
		return model.Failed("no command configured"), 0
	}

	// waiting for a slot does not count against the deadline
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return model.Failed("probe cancelled: " + err.Error()), 0
	}
	defer p.sem.Release(1)

	start := time.Now()
	st := p.run(ctx, srv.Transport)
	elapsed := time.Since(start)
	p.log.Debug("probe finished", "server", srv.ID().String(), "state", st.State.String(),
		"reason", st.Reason, "elapsed", elapsed)
	return st, elapsed
}

// Launch starts Probe on its own goroutine. The returned channel receives
// exactly one Outcome and is never closed; it is buffered so the worker
// never blocks if nobody reads it.
func (p *Prober) Launch(ctx context.Context, srv model.Server, gen uint64) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		st, elapsed := p.probe(ctx, srv)
		ch <- Outcome{ID: srv.ID(), Generation: gen, Status: st, Elapsed: elapsed}
	}()
	return ch
}

// ProbeAll probes every server concurrently and returns the outcomes in the
// order of servers.
func (p *Prober) ProbeAll(ctx context.Context, servers []model.Server) []Outcome {
	chans := make([]<-chan Outcome, len(servers))
	for i, srv := range servers {
		chans[i] = p.Launch(ctx, srv, 0)
	}
	out := make([]Outcome, len(servers))
	for i, ch := range chans {
		out[i] = <-ch
	}
	return out
}

func (p *Prober) run(parent context.Context, t model.Transport) model.HealthStatus {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.Command, t.Args...)
	cmd.Env = buildEnv(t.Env)
	cmd.WaitDelay = waitDelay
	stderr := newTail(512)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return model.Failed("creating stdin pipe: " + err.Error())
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return model.Failed("creating stdout pipe: " + err.Error())
	}
	if err := cmd.Start(); err != nil {
		return model.Failed(launchReason(t.Command, err))
	}

	// the process is killed and reaped in the background once the outcome is
	// known; the outcome does not wait for it
	reaped := false
	defer func() {
		cancel()
		if !reaped {
			go cmd.Wait()
		}
	}()

	done := make(chan exchanged, 1)
	go func() { done <- exchange(stdin, stdout, p.client) }()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if !r.exited {
			return r.status
		}
		// collect the exit status and the rest of stderr for the diagnostic
		reaped = true
		waited := make(chan error, 1)
		go func() { waited <- cmd.Wait() }()
		select {
		case err := <-waited:
			return model.Failed(exitReason(err) + stderr.suffix())
		case <-timer.C:
			return model.TimedOut()
		}
	case <-timer.C:
		return model.TimedOut()
	case <-ctx.Done():
		return model.Failed("probe cancelled")
	}
}

func exitReason(err error) string {
	if err == nil {
		return "process exited before responding"
	}
	return fmt.Sprintf("process exited before responding (%v)", err)
}

func launchReason(command string, err error) string {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return "command not found: " + command
	case errors.Is(err, os.ErrPermission):
		return "command not executable: " + command
	default:
		return "launch failed: " + err.Error()
	}
}

// buildEnv layers the configured variables over the current environment.
// A value written as ${NAME} is taken from the current environment, the way
// clients expand it.
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := extra[k]
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			v = os.Getenv(v[2 : len(v)-1])
		}
		env = append(env, k+"="+v)
	}
	return env
}
