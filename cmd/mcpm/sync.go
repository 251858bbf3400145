package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/mcpm/internal/configwriter"
	"github.com/michaelbrown/mcpm/internal/model"
)

var (
	syncFrom string
	syncTo   []string
)

var syncCmd = &cobra.Command{
	Use:   "sync <name>",
	Short: "Copy a server entry to other clients",
	Long: `Copy the named entry from one client to others. The source defaults to the
first client (in catalog order) that has the entry; targets default to every
writable client that lacks it. Unknown fields of the entry are copied as-is.

Examples:
  mcpm sync filesystem
  mcpm sync github --from cursor --to vscode --to windsurf`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncFrom, "from", "", "Source client label")
	syncCmd.Flags().StringArrayVar(&syncTo, "to", nil, "Target client label (repeatable)")
}

func runSync(cmd *cobra.Command, args []string) error {
	name := args[0]
	a, err := setup()
	if err != nil {
		return err
	}
	res := a.scan()

	src, err := syncSource(res, name, syncFrom)
	if err != nil {
		return err
	}

	targets, err := parseClients(syncTo)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		targets = res.WritableClientsWithout(a.cat, name)
	}
	targets = without(targets, src.Client)
	if len(targets) == 0 {
		fmt.Printf("Every writable client already has %q.\n", name)
		return nil
	}

	n, err := a.applyEach(targets, func(model.ClientKind) configwriter.Change {
		return configwriter.SetPresence(name, &src)
	})
	if n > 0 {
		fmt.Printf("Synced %q from %s to %s\n", name, src.Client.Label(), plural(n, "client"))
	}
	return err
}

func syncSource(res *model.DiscoveryResult, name, from string) (model.Server, error) {
	if from == "" {
		matches := res.Named(name)
		if len(matches) == 0 {
			return model.Server{}, fmt.Errorf("no server named %q", name)
		}
		return matches[0], nil
	}
	kind, err := model.ParseClientKind(from)
	if err != nil {
		return model.Server{}, err
	}
	srv, ok := res.Find(model.ServerID{Client: kind, Name: name})
	if !ok {
		return model.Server{}, fmt.Errorf("no server %q in %s", name, kind.Label())
	}
	return srv, nil
}

func without(kinds []model.ClientKind, drop model.ClientKind) []model.ClientKind {
	var out []model.ClientKind
	for _, k := range kinds {
		if k != drop {
			out = append(out, k)
		}
	}
	return out
}
