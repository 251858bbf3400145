package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/mcpm/internal/configwriter"
	"github.com/michaelbrown/mcpm/internal/model"
)

var removeClients []string

var removeCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a server from one or more clients",
	Long: `Delete the named entry from each --client, or from every writable client
that has it when --client is not given. Claude Code's global config also loses
the entry from its per-project sections.

Examples:
  mcpm remove filesystem
  mcpm remove github --client cursor --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
	removeCmd.Flags().StringArrayVarP(&removeClients, "client", "c", nil, "Client label to remove from (repeatable; default: every writable client that has it)")
	removeCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip confirmation")
}

func runRemove(cmd *cobra.Command, args []string) error {
	name := args[0]
	a, err := setup()
	if err != nil {
		return err
	}

	kinds, err := parseClients(removeClients)
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		kinds = a.removalTargets(a.scan(), name)
		if len(kinds) == 0 {
			fmt.Printf("No writable client has %q.\n", name)
			return nil
		}
	}

	if !yesFlag {
		ok, err := confirm(fmt.Sprintf("Remove %q from %s?", name, joinLabels(kinds)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	n, err := a.applyEach(kinds, func(model.ClientKind) configwriter.Change { return configwriter.Remove(name) })
	if n > 0 {
		fmt.Printf("Removed %q from %s\n", name, plural(n, "client"))
	}
	return err
}

// removalTargets lists the writable clients that have name and notes the
// read-only ones, which must be edited by hand.
func (a *app) removalTargets(res *model.DiscoveryResult, name string) []model.ClientKind {
	var out []model.ClientKind
	for _, k := range res.ClientsWithServer(name) {
		cl, ok := a.cat.Lookup(k)
		if !ok {
			continue
		}
		if !cl.Writable {
			fmt.Printf("Note: %s (%s) is read-only for mcpm and keeps %q.\n", k.Label(), cl.Path, name)
			continue
		}
		out = append(out, k)
	}
	return out
}
