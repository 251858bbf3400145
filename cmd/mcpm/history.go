package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/michaelbrown/mcpm/internal/storage"
	"github.com/michaelbrown/mcpm/internal/storage/sqlite"
)

var (
	historyServer string
	historyClient string
	historyLimit  int
	historyFormat string
	olderThan     time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded health checks",
	Long: `Show the results of earlier health checks, newest first.

Examples:
  mcpm history
  mcpm history --server filesystem --limit 5
  mcpm history --format md > checks.md`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <check-id>",
	Short: "Show one recorded check (ID or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete recorded health checks",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd, historyClearCmd)

	historyCmd.Flags().StringVar(&historyServer, "server", "", "Only this server name")
	historyCmd.Flags().StringVar(&historyClient, "client", "", "Only this client label")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Max checks to show")
	historyCmd.Flags().StringVar(&historyFormat, "format", "table", "Output format: table, json, md or yaml")

	historyClearCmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only delete checks older than this (e.g. 168h)")
}

func openStore() (storage.Store, error) {
	a, err := setup()
	if err != nil {
		return nil, err
	}
	if !a.cfg.History.Enabled {
		return nil, errors.New("history is disabled (history.enabled: false)")
	}
	return sqlite.Open(a.cfg.History.DBPath)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := storage.CheckListOptions{Server: historyServer, Limit: historyLimit}
	if historyClient != "" {
		kinds, err := parseClients([]string{historyClient})
		if err != nil {
			return err
		}
		opts.Client = kinds[0].Label()
	}

	records, err := store.ListChecks(context.Background(), opts)
	if err != nil {
		return err
	}

	switch historyFormat {
	case "json":
		data, err := storage.ExportJSON(records)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "md":
		fmt.Print(storage.ExportMarkdown(records))
	case "yaml":
		out, err := yaml.Marshal(map[string][]storage.CheckRecord{"checks": records})
		if err != nil {
			return err
		}
		fmt.Print(string(out))
	case "table":
		if len(records) == 0 {
			fmt.Println("No checks recorded.")
			return nil
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"ID", "CHECKED", "SERVER", "STATUS", "DETAIL", "ELAPSED"})
		for _, r := range records {
			t.AppendRow(table.Row{
				shortID(r.ID),
				r.CheckedAt.Local().Format("2006-01-02 15:04:05"),
				r.Client + "/" + r.Server,
				statusCell(r.Status()),
				truncate(storage.Detail(r), 50),
				fmt.Sprintf("%dms", r.ElapsedMS),
			})
		}
		t.Render()
	default:
		return fmt.Errorf("unknown format %q (table, json, md, yaml)", historyFormat)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := store.GetCheck(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:       %s\n", r.ID)
	fmt.Printf("Server:   %s/%s\n", r.Client, r.Server)
	fmt.Printf("Checked:  %s\n", r.CheckedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Status:   %s\n", r.Status())
	fmt.Printf("Elapsed:  %dms\n", r.ElapsedMS)
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// a zero duration clears everything up to now
	before := time.Now().Add(-olderThan)
	n, err := store.DeleteChecks(context.Background(), before)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %s.\n", plural(int(n), "check"))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
