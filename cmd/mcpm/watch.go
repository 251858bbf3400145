package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/mcpm/internal/model"
)

const watchDebounce = 300 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reprint the server list whenever a client config changes",
	Long: `Print the server list, then print it again every time one of the client
config files is created, written, renamed or removed. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	addWatches(a, watcher)

	show := func() {
		res := a.scan()
		fmt.Printf("\n── %s ──\n", time.Now().Format("15:04:05"))
		if err := renderListing(os.Stdout, "plain", res, nil); err != nil {
			a.log.Warn("rendering listing failed", "error", err)
		}
		printSourceErrors(res.Errors)
	}
	show()

	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				// a new directory may be a parent of a config file
				addWatches(a, watcher)
			}
			if !isCatalogPath(a.cat, event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			a.log.Debug("config changed", "path", event.Name, "op", event.Op.String())
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			show()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.log.Warn("watch error", "error", err)
		}
	}
}

func addWatches(a *app, watcher *fsnotify.Watcher) {
	for _, dir := range watchDirs(a.cat) {
		if err := watcher.Add(dir); err != nil {
			a.log.Debug("skipping watch", "dir", dir, "error", err)
		}
	}
}

// watchDirs returns, for every catalog file, its nearest existing ancestor
// directory.
func watchDirs(cat model.Catalog) []string {
	seen := make(map[string]bool)
	var out []string
	for _, cl := range cat {
		dir := filepath.Dir(cl.Path)
		for {
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
		if !seen[dir] {
			seen[dir] = true
			out = append(out, dir)
		}
	}
	sort.Strings(out)
	return out
}

func isCatalogPath(cat model.Catalog, name string) bool {
	name = filepath.Clean(name)
	for _, cl := range cat {
		if filepath.Clean(cl.Path) == name {
			return true
		}
	}
	return false
}
