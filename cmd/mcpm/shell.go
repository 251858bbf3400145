package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/mcpm/internal/configwriter"
	"github.com/michaelbrown/mcpm/internal/dashboard"
	"github.com/michaelbrown/mcpm/internal/health"
	"github.com/michaelbrown/mcpm/internal/model"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive dashboard (default when no subcommand is given)",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

const shellHelp = `Commands:
  ls                    List servers with their health
  check <ref|all>       Probe a server (runs in the background)
  wait                  Wait for running probes to finish
  refresh               Re-read every config file
  errors                Show config files that could not be read
  rm <ref>              Remove a server (an index removes that entry only)
  sync <ref>            Copy a server to every writable client that lacks it
  edit <ref>            Open the server's config file in $EDITOR
  help                  Show this help
  quit                  Exit

A <ref> is an index from the last listing, Client/name, or a name.`

// shell is the interactive front end. It owns the dashboard model and is
// the only goroutine that touches it.
type shell struct {
	app *app
	m   *dashboard.Model
	out io.Writer
}

func runShell(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}

	store := a.openHistory()
	if store != nil {
		defer store.Close()
	}

	sh := &shell{app: a, m: dashboard.New(a.cat, a.scanner, a.prober, a.log), out: os.Stdout}
	record := a.recorder(store)
	sh.m.OnOutcome = func(out health.Outcome) {
		record(out)
		st := out.Status
		fmt.Fprintf(sh.out, "  %s %s: %s\n", statusCell(st), out.ID, st)
	}

	fmt.Fprintf(sh.out, "mcpm %s - %s found", version, plural(len(sh.m.Servers()), "server"))
	if n := len(sh.m.Errors()); n > 0 {
		fmt.Fprintf(sh.out, ", %s (type errors)", plural(n, "unreadable source"))
	}
	fmt.Fprintln(sh.out, "\nType help for commands, quit to exit")
	fmt.Fprintln(sh.out)
	sh.list()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mmcpm>\033[0m ",
		HistoryFile:     historyFile(a.cfg.HomeDir),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("ls"), readline.PcItem("check"), readline.PcItem("wait"),
			readline.PcItem("refresh"), readline.PcItem("errors"), readline.PcItem("rm"),
			readline.PcItem("sync"), readline.PcItem("edit"), readline.PcItem("help"), readline.PcItem("quit"),
		),
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	for {
		sh.m.Poll()
		if n := sh.m.Pending(); n > 0 {
			rl.SetPrompt(fmt.Sprintf("\033[36mmcpm\033[0m \033[33m(%d running)\033[0m\033[36m>\033[0m ", n))
		} else {
			rl.SetPrompt("\033[36mmcpm>\033[0m ")
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			fmt.Fprintln(sh.out, shellHelp)
		case "ls", "list":
			sh.m.Poll()
			sh.list()
		case "refresh", "r":
			sh.m.Refresh()
			fmt.Fprintf(sh.out, "Reloaded: %s, %s\n", plural(len(sh.m.Servers()), "server"), plural(len(sh.m.Errors()), "error"))
		case "errors":
			sh.errors()
		case "check":
			sh.check(fields[1:])
		case "wait":
			// Ctrl+C cancels the wait, not the shell
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			n, err := sh.m.Wait(ctx)
			stop()
			if err != nil {
				fmt.Fprintln(sh.out, "(interrupted)")
			}
			fmt.Fprintf(sh.out, "%s updated\n", plural(n, "status"))
		case "rm", "remove":
			sh.remove(rl, fields[1:])
		case "sync":
			sh.sync(fields[1:])
		case "edit", "e":
			sh.edit(fields[1:])
		default:
			fmt.Fprintf(sh.out, "Unknown command %q (type help)\n", fields[0])
		}
	}
}

func historyFile(home string) string {
	dir := filepath.Join(home, ".mcpm")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, "shell_history")
}

func (sh *shell) list() {
	servers := sh.m.Servers()
	if len(servers) == 0 {
		fmt.Fprintln(sh.out, "No MCP servers found.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(sh.out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "CLIENT", "NAME", "TRANSPORT", "TARGET", "HEALTH"})
	for i, s := range servers {
		st := sh.m.Status(s.ID())
		detail := statusCell(st)
		switch st.State {
		case model.HealthHealthy:
			detail += " " + strings.TrimSpace(st.ServerName+" "+st.ServerVersion)
		case model.HealthFailed:
			detail += " " + truncate(st.Reason, 40)
		}
		t.AppendRow(table.Row{i + 1, s.Client.Label(), s.Name, string(s.Transport.Kind), truncate(s.Transport.Target(), 40), detail})
	}
	t.Render()
}

func (sh *shell) errors() {
	errs := sh.m.Errors()
	if len(errs) == 0 {
		fmt.Fprintln(sh.out, "No errors.")
		return
	}
	for _, e := range errs {
		fmt.Fprintf(sh.out, "  %s %s\n", statusCell(model.Failed("")), e.Error())
	}
}

// resolve maps a reference to servers. An index selects exactly one entry.
func (sh *shell) resolve(ref string) ([]model.Server, bool, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		servers := sh.m.Servers()
		if n < 1 || n > len(servers) {
			return nil, false, fmt.Errorf("no server #%d", n)
		}
		return []model.Server{servers[n-1]}, true, nil
	}
	matches, err := matchServers(sh.m.Result(), ref)
	return matches, false, err
}

func (sh *shell) check(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(sh.out, "usage: check <ref|all>")
		return
	}
	if args[0] == "all" {
		n := sh.m.CheckAll(context.Background())
		fmt.Fprintf(sh.out, "Checking %s...\n", plural(n, "server"))
		return
	}
	for _, ref := range args {
		servers, _, err := sh.resolve(ref)
		if err != nil {
			fmt.Fprintln(sh.out, err)
			continue
		}
		for _, s := range servers {
			if err := sh.m.Check(context.Background(), s.ID()); err != nil {
				fmt.Fprintln(sh.out, err)
				continue
			}
			fmt.Fprintf(sh.out, "Checking %s...\n", s.ID())
		}
	}
}

func (sh *shell) remove(rl *readline.Instance, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: rm <ref>")
		return
	}
	servers, _, err := sh.resolve(args[0])
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}
	name := servers[0].Name
	var kinds []model.ClientKind
	for _, s := range servers {
		cl, _ := sh.m.Catalog().Lookup(s.Client)
		if !cl.Writable {
			fmt.Fprintf(sh.out, "%s is read-only for mcpm; edit %s by hand.\n", s.Client.Label(), cl.Path)
			continue
		}
		kinds = append(kinds, s.Client)
	}
	if len(kinds) == 0 {
		return
	}

	rl.SetPrompt(fmt.Sprintf("Remove %q from %s? [y/N] ", name, joinLabels(kinds)))
	answer, err := rl.Readline()
	if err != nil || !isYes(answer) {
		fmt.Fprintln(sh.out, "Aborted.")
		return
	}

	n, err := sh.app.applyEach(kinds, func(model.ClientKind) configwriter.Change { return configwriter.Remove(name) })
	sh.report("Removed", name, n, err)
}

func (sh *shell) sync(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: sync <ref>")
		return
	}
	servers, _, err := sh.resolve(args[0])
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}
	src := servers[0]
	targets := without(sh.m.Result().WritableClientsWithout(sh.m.Catalog(), src.Name), src.Client)
	if len(targets) == 0 {
		fmt.Fprintf(sh.out, "Every writable client already has %q.\n", src.Name)
		return
	}
	n, err := sh.app.applyEach(targets, func(model.ClientKind) configwriter.Change {
		return configwriter.SetPresence(src.Name, &src)
	})
	sh.report("Synced", src.Name, n, err)
}

// report prints a mutation summary and re-reads the configs.
func (sh *shell) report(verb, name string, n int, err error) {
	if n > 0 {
		fmt.Fprintf(sh.out, "%s %q in %s\n", verb, name, plural(n, "client"))
	}
	if err != nil {
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			for _, e := range joined.Unwrap() {
				fmt.Fprintf(sh.out, "  error: %v\n", e)
			}
		} else {
			fmt.Fprintf(sh.out, "  error: %v\n", err)
		}
	}
	sh.m.Refresh()
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}

// edit opens the config file a server came from in the user's editor and
// re-reads every config afterwards.
func (sh *shell) edit(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: edit <ref>")
		return
	}
	servers, _, err := sh.resolve(args[0])
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}
	path, err := editTarget(servers[0])
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}

	cmd := editorCommand(os.Getenv("EDITOR"), path)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(sh.out, "editor: %v\n", err)
	}
	sh.m.Refresh()
	fmt.Fprintf(sh.out, "Reloaded: %s\n", plural(len(sh.m.Servers()), "server"))
}

// editTarget is the existing config file srv was read from.
func editTarget(srv model.Server) (string, error) {
	if srv.Source == "" {
		return "", fmt.Errorf("no config file known for %s", srv.ID())
	}
	info, err := os.Stat(srv.Source)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("config file doesn't exist: %s", srv.Source)
	}
	return srv.Source, nil
}

// editorCommand builds the editor invocation. editor may carry its own
// arguments ("code -w"); an empty value falls back to vi.
func editorCommand(editor, path string) *exec.Cmd {
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		parts = []string{"vi"}
	}
	return exec.Command(parts[0], append(parts[1:], path)...)
}
