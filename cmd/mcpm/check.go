package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/mcpm/internal/dashboard"
	"github.com/michaelbrown/mcpm/internal/health"
	"github.com/michaelbrown/mcpm/internal/model"
)

var checkCmd = &cobra.Command{
	Use:   "check [server...]",
	Short: "Start stdio servers and verify they answer the MCP handshake",
	Long: `Launch each stdio server, send an initialize request and wait for its
reply. With no arguments every stdio server is checked; otherwise only the
named ones (either "name" or "Client/name").

Exits 0 when every checked server is healthy and 1 otherwise.

Examples:
  mcpm check
  mcpm check filesystem Cursor/github`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}

	store := a.openHistory()
	if store != nil {
		defer store.Close()
	}

	m := dashboard.New(a.cat, a.scanner, a.prober, a.log)
	printSourceErrors(m.Errors())

	targets, err := selectServers(m.Result(), args)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Println("No stdio servers to check.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	elapsed := make(map[model.ServerID]time.Duration)
	record := a.recorder(store)
	m.OnOutcome = func(out health.Outcome) {
		elapsed[out.ID] = out.Elapsed
		record(out)
	}

	for _, s := range targets {
		if err := m.Check(ctx, s.ID()); err != nil {
			return err
		}
	}

	var sp *spinner.Spinner
	if isTerminal(os.Stderr) {
		sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		sp.Suffix = fmt.Sprintf(" Checking %s...", plural(len(targets), "server"))
		sp.Start()
	}
	_, waitErr := m.Wait(ctx)
	if sp != nil {
		sp.Stop()
	}
	if waitErr != nil {
		return fmt.Errorf("check interrupted: %w", waitErr)
	}

	healthy := 0
	for _, s := range targets {
		st := m.Status(s.ID())
		if st.State == model.HealthHealthy {
			healthy++
		}
		fmt.Printf("%s %-30s %s %s\n", statusCell(st), s.ID(), st, durationNote(elapsed[s.ID()]))
	}

	fmt.Printf("\n%d of %s healthy\n", healthy, plural(len(targets), "server"))
	if healthy != len(targets) {
		return exitCode(1)
	}
	return nil
}

// selectServers resolves check arguments. No arguments selects every stdio
// server; an explicit name may also select a network server, which then
// fails as unsupported.
func selectServers(res *model.DiscoveryResult, args []string) ([]model.Server, error) {
	if len(args) == 0 {
		return res.StdioServers(), nil
	}

	var out []model.Server
	seen := make(map[model.ServerID]bool)
	for _, arg := range args {
		matches, err := matchServers(res, arg)
		if err != nil {
			return nil, err
		}
		for _, s := range matches {
			if !seen[s.ID()] {
				seen[s.ID()] = true
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// matchServers finds the servers an argument names: "Client/name" or a bare name.
func matchServers(res *model.DiscoveryResult, arg string) ([]model.Server, error) {
	if label, name, ok := strings.Cut(arg, "/"); ok {
		if kind, err := model.ParseClientKind(label); err == nil {
			if s, found := res.Find(model.ServerID{Client: kind, Name: name}); found {
				return []model.Server{s}, nil
			}
			return nil, fmt.Errorf("no server %q in %s", name, kind.Label())
		}
	}
	matches := res.Named(arg)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no server named %q", arg)
	}
	return matches, nil
}

func durationNote(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return fmt.Sprintf("(%s)", d.Round(time.Millisecond))
}
