// Package dashboard owns the live view of discovered servers and their
// health. A Model is driven from a single goroutine: probe workers never
// touch it, they only deliver one Outcome each, which the owner applies on
// its own turn via Poll or Wait.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/michaelbrown/mcpm/internal/health"
	"github.com/michaelbrown/mcpm/internal/model"
)

// Scanner produces a discovery result for a catalog.
type Scanner interface {
	Scan(cat model.Catalog) *model.DiscoveryResult
}

// Launcher starts one background probe and returns its one-shot channel.
type Launcher interface {
	Launch(ctx context.Context, srv model.Server, gen uint64) <-chan health.Outcome
}

type probe struct {
	id  model.ServerID
	gen uint64
	ch  <-chan health.Outcome
}

// Model is the unified view. It is not safe for concurrent use.
type Model struct {
	cat      model.Catalog
	scanner  Scanner
	launcher Launcher
	log      *slog.Logger

	result *model.DiscoveryResult
	health map[model.ServerID]model.HealthStatus
	// current generation per server; outcomes with any other generation are stale
	gens    map[model.ServerID]uint64
	nextGen uint64
	pending []probe

	// OnOutcome, when set, is called for every outcome that is applied.
	OnOutcome func(health.Outcome)
}

// New creates a Model and runs the first discovery pass.
func New(cat model.Catalog, scanner Scanner, launcher Launcher, log *slog.Logger) *Model {
	if log == nil {
		log = slog.Default()
	}
	m := &Model{
		cat:      cat,
		scanner:  scanner,
		launcher: launcher,
		log:      log.With("component", "dashboard"),
	}
	m.Refresh()
	return m
}

// Refresh rebuilds the model from disk. Health resets to Unknown and the
// outcomes of probes still in flight are discarded when they arrive.
func (m *Model) Refresh() {
	m.result = m.scanner.Scan(m.cat)
	m.health = make(map[model.ServerID]model.HealthStatus, len(m.result.Servers))
	m.gens = make(map[model.ServerID]uint64)
	m.log.Debug("refreshed", "servers", len(m.result.Servers), "errors", len(m.result.Errors))
}

// Catalog is the catalog the model scans.
func (m *Model) Catalog() model.Catalog { return m.cat }

// Result is the latest discovery result. Callers must not modify it.
func (m *Model) Result() *model.DiscoveryResult { return m.result }

// Servers is shorthand for Result().Servers.
func (m *Model) Servers() []model.Server { return m.result.Servers }

// Errors is shorthand for Result().Errors.
func (m *Model) Errors() []model.SourceError { return m.result.Errors }

// Status returns the current health of id; Unknown if never checked.
func (m *Model) Status(id model.ServerID) model.HealthStatus {
	return m.health[id]
}

// Pending is the number of launched probes whose outcome has not been
// consumed yet, stale ones included.
func (m *Model) Pending() int { return len(m.pending) }

// Check launches a probe for one server and marks it Checking, superseding
// any earlier probe of the same server.
func (m *Model) Check(ctx context.Context, id model.ServerID) error {
	srv, ok := m.result.Find(id)
	if !ok {
		return fmt.Errorf("no server %s", id)
	}
	m.launch(ctx, srv)
	return nil
}

// CheckAll launches one probe per stdio server and returns how many were
// started. Network servers keep their current status.
func (m *Model) CheckAll(ctx context.Context) int {
	servers := m.result.StdioServers()
	for _, srv := range servers {
		m.launch(ctx, srv)
	}
	return len(servers)
}

func (m *Model) launch(ctx context.Context, srv model.Server) {
	m.nextGen++
	gen := m.nextGen
	id := srv.ID()
	m.gens[id] = gen
	m.health[id] = model.Checking()
	m.pending = append(m.pending, probe{id: id, gen: gen, ch: m.launcher.Launch(ctx, srv, gen)})
	m.log.Debug("probe launched", "server", id.String(), "generation", gen)
}

// Poll applies every outcome that is already available without blocking and
// returns the number of statuses that changed.
func (m *Model) Poll() int {
	applied := 0
	kept := m.pending[:0]
	for _, p := range m.pending {
		select {
		case out := <-p.ch:
			if m.apply(out) {
				applied++
			}
		default:
			kept = append(kept, p)
		}
	}
	clear(m.pending[len(kept):])
	m.pending = kept
	return applied
}

// Wait blocks until every pending probe has delivered or ctx is done, then
// returns the number of statuses that changed.
func (m *Model) Wait(ctx context.Context) (int, error) {
	applied := 0
	for len(m.pending) > 0 {
		p := m.pending[0]
		select {
		case out := <-p.ch:
			m.pending = m.pending[1:]
			if m.apply(out) {
				applied++
			}
		case <-ctx.Done():
			return applied, ctx.Err()
		}
	}
	m.pending = nil
	return applied, nil
}

// apply records out unless it is stale.
func (m *Model) apply(out health.Outcome) bool {
	if cur, ok := m.gens[out.ID]; !ok || cur != out.Generation {
		m.log.Debug("stale outcome dropped", "server", out.ID.String(), "generation", out.Generation)
		return false
	}
	if _, ok := m.result.Find(out.ID); !ok {
		return false
	}
	m.health[out.ID] = out.Status
	if m.OnOutcome != nil {
		m.OnOutcome(out)
	}
	return true
}

// Counts tallies the current states of all servers.
func (m *Model) Counts() map[model.HealthState]int {
	counts := make(map[model.HealthState]int)
	for _, s := range m.result.Servers {
		counts[m.Status(s.ID()).State]++
	}
	return counts
}
