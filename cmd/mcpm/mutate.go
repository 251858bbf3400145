package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/michaelbrown/mcpm/internal/configwriter"
	"github.com/michaelbrown/mcpm/internal/model"
)

// applyEach runs one change per client and reports per-client results. All
// clients are attempted; the returned error joins the failures.
func (a *app) applyEach(kinds []model.ClientKind, change func(model.ClientKind) configwriter.Change) (int, error) {
	var errs []error
	ok := 0
	for _, k := range kinds {
		if err := a.writer.Apply(k, change(k)); err != nil {
			errs = append(errs, describeMutationError(err))
			continue
		}
		ok++
	}
	return ok, errors.Join(errs...)
}

// describeMutationError turns a writer error into an actionable message.
func describeMutationError(err error) error {
	var nw *configwriter.NotWritableError
	if errors.As(err, &nw) {
		return err
	}
	var me *configwriter.MutationError
	if errors.As(err, &me) {
		switch {
		case errors.Is(err, configwriter.ErrBackupFailed):
			return fmt.Errorf("%s: could not write backup %s, file left unchanged: %w",
				me.Client.Label(), configwriter.BackupPath(me.Path), me.Err)
		case errors.Is(err, configwriter.ErrSourceParse):
			return fmt.Errorf("%s: %s is not valid JSON, fix it before editing: %w", me.Client.Label(), me.Path, me.Err)
		}
	}
	return err
}

// parseClients resolves --client/--to labels, rejecting duplicates.
func parseClients(labels []string) ([]model.ClientKind, error) {
	var out []model.ClientKind
	seen := make(map[model.ClientKind]bool)
	for _, l := range labels {
		for _, part := range strings.Split(l, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			k, err := model.ParseClientKind(part)
			if err != nil {
				return nil, err
			}
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out, nil
}

// parsePairs turns KEY=VALUE flags into a map.
func parsePairs(flag string, pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("--%s %q: expected KEY=VALUE", flag, p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

// confirm asks a yes/no question on the terminal. Anything but y/yes is no.
func confirm(question string) (bool, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          question + " [y/N] ",
		InterruptPrompt: "^C",
		EOFPrompt:       "n",
	})
	if err != nil {
		return false, fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err == readline.ErrInterrupt || err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
