package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/mcpm/internal/health"
	"github.com/michaelbrown/mcpm/internal/model"
)

type staticScanner struct {
	results []*model.DiscoveryResult
	calls   int
}

func (s *staticScanner) Scan(model.Catalog) *model.DiscoveryResult {
	r := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return r
}

type launched struct {
	srv model.Server
	gen uint64
	ch  chan health.Outcome
}

// manualLauncher hands out channels the test resolves explicitly.
type manualLauncher struct {
	probes []*launched
}

func (l *manualLauncher) Launch(_ context.Context, srv model.Server, gen uint64) <-chan health.Outcome {
	p := &launched{srv: srv, gen: gen, ch: make(chan health.Outcome, 1)}
	l.probes = append(l.probes, p)
	return p.ch
}

func (p *launched) resolve(st model.HealthStatus) {
	p.ch <- health.Outcome{ID: p.srv.ID(), Generation: p.gen, Status: st}
}

func stdio(name string) model.Server {
	return model.Server{Name: name, Client: model.CursorGlobal, Transport: model.Transport{Kind: model.TransportStdio, Command: name}}
}

func remote(name string) model.Server {
	return model.Server{Name: name, Client: model.Windsurf, Transport: model.Transport{Kind: model.TransportHTTP, URL: "https://x"}}
}

func newModel(servers ...model.Server) (*Model, *manualLauncher, *staticScanner) {
	sc := &staticScanner{results: []*model.DiscoveryResult{{Servers: servers}}}
	l := &manualLauncher{}
	return New(nil, sc, l, nil), l, sc
}

func TestStatusStartsUnknown(t *testing.T) {
	m, _, _ := newModel(stdio("a"))
	assert.Equal(t, model.HealthUnknown, m.Status(stdio("a").ID()).State)
	assert.Equal(t, 1, m.Counts()[model.HealthUnknown])
}

func TestCheckMarksCheckingThenApplies(t *testing.T) {
	m, l, _ := newModel(stdio("a"))
	id := stdio("a").ID()

	require.NoError(t, m.Check(context.Background(), id))
	assert.Equal(t, model.HealthChecking, m.Status(id).State)
	assert.Equal(t, 0, m.Poll(), "nothing delivered yet")
	assert.Equal(t, 1, m.Pending())

	l.probes[0].resolve(model.Healthy("a", "1.0"))
	assert.Equal(t, 1, m.Poll())
	assert.Equal(t, model.Healthy("a", "1.0"), m.Status(id))
	assert.Zero(t, m.Pending())
}

func TestCheckUnknownServer(t *testing.T) {
	m, _, _ := newModel(stdio("a"))
	assert.Error(t, m.Check(context.Background(), model.ServerID{Client: model.Windsurf, Name: "a"}))
}

func TestStaleOutcomeIsDropped(t *testing.T) {
	m, l, _ := newModel(stdio("a"))
	id := stdio("a").ID()
	ctx := context.Background()

	require.NoError(t, m.Check(ctx, id))
	require.NoError(t, m.Check(ctx, id))
	require.Len(t, l.probes, 2)
	first, second := l.probes[0], l.probes[1]
	assert.Less(t, first.gen, second.gen)

	second.resolve(model.Healthy("a", "2.0"))
	m.Poll()
	assert.Equal(t, "2.0", m.Status(id).ServerVersion)

	first.resolve(model.Failed("old"))
	assert.Equal(t, 0, m.Poll())
	assert.Equal(t, "2.0", m.Status(id).ServerVersion, "older generation never overwrites")
}

func TestStaleOutcomeBeforeNewerResolves(t *testing.T) {
	m, l, _ := newModel(stdio("a"))
	id := stdio("a").ID()
	ctx := context.Background()

	require.NoError(t, m.Check(ctx, id))
	require.NoError(t, m.Check(ctx, id))

	l.probes[0].resolve(model.Failed("old"))
	m.Poll()
	assert.Equal(t, model.HealthChecking, m.Status(id).State)

	l.probes[1].resolve(model.TimedOut())
	m.Poll()
	assert.Equal(t, model.HealthTimedOut, m.Status(id).State)
}

func TestCheckAllSkipsNetworkServers(t *testing.T) {
	m, l, _ := newModel(stdio("a"), remote("r"), stdio("b"))

	assert.Equal(t, 2, m.CheckAll(context.Background()))
	require.Len(t, l.probes, 2)
	assert.Equal(t, "a", l.probes[0].srv.Name)
	assert.Equal(t, "b", l.probes[1].srv.Name)
	assert.Equal(t, model.HealthUnknown, m.Status(remote("r").ID()).State)
}

func TestRefreshDiscardsInFlightOutcomes(t *testing.T) {
	m, l, _ := newModel(stdio("a"))
	id := stdio("a").ID()

	require.NoError(t, m.Check(context.Background(), id))
	m.Refresh()
	assert.Equal(t, model.HealthUnknown, m.Status(id).State)

	l.probes[0].resolve(model.Healthy("a", "1"))
	assert.Equal(t, 0, m.Poll())
	assert.Equal(t, model.HealthUnknown, m.Status(id).State)
}

func TestWaitConsumesAllOutcomes(t *testing.T) {
	m, l, _ := newModel(stdio("a"), stdio("b"))
	var seen []model.ServerID
	m.OnOutcome = func(out health.Outcome) { seen = append(seen, out.ID) }

	m.CheckAll(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		l.probes[1].resolve(model.Failed("x"))
		l.probes[0].resolve(model.Healthy("a", "1"))
	}()

	n, err := m.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, m.Pending())
	assert.ElementsMatch(t, []model.ServerID{stdio("a").ID(), stdio("b").ID()}, seen)
}

func TestWaitHonoursContext(t *testing.T) {
	m, _, _ := newModel(stdio("a"))
	m.CheckAll(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, m.Pending())
}

func TestWithRealProber(t *testing.T) {
	srv := model.Server{Name: "missing", Client: model.CursorGlobal,
		Transport: model.Transport{Kind: model.TransportStdio, Command: "mcpm-no-such-binary"}}
	sc := &staticScanner{results: []*model.DiscoveryResult{{Servers: []model.Server{srv}}}}
	m := New(nil, sc, health.NewProber(health.Options{Timeout: time.Second}, nil), nil)

	m.CheckAll(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := m.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.HealthFailed, m.Status(srv.ID()).State)
}
