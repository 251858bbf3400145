package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/michaelbrown/mcpm/internal/model"
	"github.com/michaelbrown/mcpm/internal/storage"
)

var (
	outputFlag     string
	listHealthFlag bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List every configured MCP server",
	Long: `List the servers found in all known client config files, in catalog order
and then file order. Config files that cannot be read or parsed are reported on
stderr; the command always exits 0.

Examples:
  mcpm list
  mcpm list --output plain
  mcpm list --output json --health`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output format: table, plain, yaml or json (default: table on a terminal, plain otherwise)")
	listCmd.Flags().BoolVar(&listHealthFlag, "health", false, "Include the last recorded health check")
}

// listEntry is the structured form of one server.
type listEntry struct {
	Client    string            `json:"client" yaml:"client"`
	Name      string            `json:"name" yaml:"name"`
	Transport string            `json:"transport" yaml:"transport"`
	Command   string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args      []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	URL       string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Source    string            `json:"source" yaml:"source"`
	Health    *healthEntry      `json:"health,omitempty" yaml:"health,omitempty"`
}

type healthEntry struct {
	State     string `json:"state" yaml:"state"`
	Detail    string `json:"detail,omitempty" yaml:"detail,omitempty"`
	CheckedAt string `json:"checked_at" yaml:"checked_at"`
}

type errorEntry struct {
	Client  string `json:"client" yaml:"client"`
	Path    string `json:"path" yaml:"path"`
	Kind    string `json:"kind" yaml:"kind"`
	Entry   string `json:"entry,omitempty" yaml:"entry,omitempty"`
	Message string `json:"message" yaml:"message"`
}

type listing struct {
	Servers []listEntry  `json:"servers" yaml:"servers"`
	Errors  []errorEntry `json:"errors" yaml:"errors"`
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		// listing is best effort by contract
		fmt.Fprintln(os.Stderr, "Error:", err)
		return nil
	}

	res := a.scan()
	var latest map[model.ServerID]storage.CheckRecord
	if listHealthFlag {
		latest = a.latestChecks()
	}

	format := outputFlag
	if format == "" {
		format = "plain"
		if isTerminal(os.Stdout) {
			format = "table"
		}
	}
	if err := renderListing(os.Stdout, format, res, latest); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return nil
	}
	if format != "json" && format != "yaml" {
		printSourceErrors(res.Errors)
	}
	return nil
}

func (a *app) latestChecks() map[model.ServerID]storage.CheckRecord {
	store := a.openHistory()
	if store == nil {
		return nil
	}
	defer store.Close()

	recs, err := store.LatestChecks(context.Background())
	if err != nil {
		a.log.Warn("reading history failed", "error", err)
		return nil
	}
	out := make(map[model.ServerID]storage.CheckRecord, len(recs))
	for _, r := range recs {
		if id, err := r.ServerID(); err == nil {
			out[id] = r
		}
	}
	return out
}

func renderListing(w io.Writer, format string, res *model.DiscoveryResult, latest map[model.ServerID]storage.CheckRecord) error {
	switch format {
	case "plain":
		for _, s := range res.Servers {
			line := fmt.Sprintf("%-10s %-24s %-5s %s", s.Client.Label(), s.Name, s.Transport.Kind, s.Transport.Target())
			if rec, ok := latest[s.ID()]; ok {
				line += "  [" + rec.State + "]"
			}
			fmt.Fprintln(w, line)
		}
		return nil
	case "table":
		renderTable(w, res, latest)
		return nil
	case "json":
		data, err := json.MarshalIndent(buildListing(res, latest), "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(buildListing(res, latest)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (table, plain, yaml, json)", format)
	}
}

func renderTable(w io.Writer, res *model.DiscoveryResult, latest map[model.ServerID]storage.CheckRecord) {
	if len(res.Servers) == 0 {
		fmt.Fprintln(w, "No MCP servers found.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)

	header := table.Row{"CLIENT", "NAME", "TRANSPORT", "TARGET"}
	if latest != nil {
		header = append(header, "LAST CHECK")
	}
	t.AppendHeader(header)

	for _, s := range res.Servers {
		row := table.Row{s.Client.Label(), s.Name, string(s.Transport.Kind), truncate(s.Transport.Target(), 60)}
		if latest != nil {
			cell := ""
			if rec, ok := latest[s.ID()]; ok {
				cell = statusCell(rec.Status()) + " " + text.FgHiBlack.Sprint(rec.CheckedAt.Local().Format("01-02 15:04"))
			}
			row = append(row, cell)
		}
		t.AppendRow(row)
	}
	t.Render()
}

func buildListing(res *model.DiscoveryResult, latest map[model.ServerID]storage.CheckRecord) listing {
	out := listing{Servers: []listEntry{}, Errors: []errorEntry{}}
	for _, s := range res.Servers {
		e := listEntry{
			Client:    s.Client.Label(),
			Name:      s.Name,
			Transport: string(s.Transport.Kind),
			Command:   s.Transport.Command,
			Args:      s.Transport.Args,
			Env:       s.Transport.Env,
			URL:       s.Transport.URL,
			Headers:   s.Transport.Headers,
			Source:    s.Source,
		}
		if rec, ok := latest[s.ID()]; ok {
			e.Health = &healthEntry{
				State:     rec.State,
				Detail:    storage.Detail(rec),
				CheckedAt: rec.CheckedAt.Format("2006-01-02T15:04:05Z07:00"),
			}
		}
		out.Servers = append(out.Servers, e)
	}
	for _, se := range res.Errors {
		out.Errors = append(out.Errors, errorEntry{
			Client:  se.Client.Label(),
			Path:    se.Path,
			Kind:    string(se.Kind),
			Entry:   se.Entry,
			Message: se.Message,
		})
	}
	return out
}

// statusCell is the coloured glyph plus state name.
func statusCell(st model.HealthStatus) string {
	g := st.Glyph() + " " + st.State.String()
	switch st.State {
	case model.HealthHealthy:
		return text.FgGreen.Sprint(g)
	case model.HealthFailed:
		return text.FgRed.Sprint(g)
	case model.HealthTimedOut, model.HealthChecking:
		return text.FgYellow.Sprint(g)
	default:
		return text.FgHiBlack.Sprint(g)
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

func isTerminal(f *os.File) bool {
	return readline.IsTerminal(int(f.Fd()))
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func joinLabels(kinds []model.ClientKind) string {
	labels := make([]string, len(kinds))
	for i, k := range kinds {
		labels[i] = k.Label()
	}
	return strings.Join(labels, ", ")
}
