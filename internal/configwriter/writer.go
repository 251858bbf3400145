// Package configwriter applies single-server changes to client config files.
//
// Every change follows the same sequence: read the whole document, edit only
// the target entry in memory, write a backup of the untouched bytes, write
// the result to a temp file in the same directory and rename it over the
// original. A change that leaves the bytes as they were writes nothing. The
// rename is the only destructive step.
package configwriter

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/michaelbrown/mcpm/internal/model"
)

const (
	BackupSuffix = ".bak"
	TempSuffix   = ".tmp"
)

// Op is the kind of change.
type Op int

const (
	OpAdd Op = iota
	OpRemove
	OpSetPresence
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	default:
		return "sync"
	}
}

// Change is one requested edit of a single named entry.
type Change struct {
	Op     Op
	Name   string
	Server *model.Server
}

// Add writes srv under its name, replacing an existing entry of that name.
func Add(srv model.Server) Change {
	return Change{Op: OpAdd, Name: srv.Name, Server: &srv}
}

// Remove deletes the named entry. Removing an absent entry succeeds.
func Remove(name string) Change {
	return Change{Op: OpRemove, Name: name}
}

// SetPresence makes the document contain srv under name, or no entry of that
// name when srv is nil.
func SetPresence(name string, srv *model.Server) Change {
	return Change{Op: OpSetPresence, Name: name, Server: srv}
}

// Writer applies changes to the clients of a catalog.
type Writer struct {
	cat model.Catalog
	log *slog.Logger

	// file operations, replaceable in tests
	writeFile func(name string, data []byte, perm os.FileMode) error
	rename    func(oldpath, newpath string) error
}

// New creates a Writer for cat. A nil logger uses slog.Default().
func New(cat model.Catalog, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{
		cat:       cat,
		log:       log.With("component", "configwriter"),
		writeFile: writeFileSync,
		rename:    os.Rename,
	}
}

// BackupPath is where the pre-mutation copy of path is kept.
func BackupPath(path string) string { return path + BackupSuffix }

// TempPath is the staging file renamed onto path.
func TempPath(path string) string { return path + TempSuffix }

// Apply performs ch against the config file of client kind.
func (w *Writer) Apply(kind model.ClientKind, ch Change) error {
	cl, ok := w.cat.Lookup(kind)
	if !ok {
		return &MutationError{Step: StepGuard, Client: kind, Err: fmt.Errorf("client not in catalog")}
	}
	if !cl.Writable {
		return &NotWritableError{Client: cl.Kind, Path: cl.Path, Alternate: cl.Alternate}
	}
	if ch.Name == "" {
		return &MutationError{Step: StepGuard, Client: kind, Path: cl.Path, Err: fmt.Errorf("server name is empty")}
	}
	if ch.Op == OpAdd && ch.Server == nil {
		return &MutationError{Step: StepGuard, Client: kind, Path: cl.Path, Err: fmt.Errorf("add requires a server")}
	}

	fail := func(step Step, err error) error {
		w.log.Warn("mutation failed", "client", kind.Label(), "path", cl.Path, "step", step, "error", err)
		return &MutationError{Step: step, Client: kind, Path: cl.Path, Err: err}
	}

	// 1. read
	original, perm, existed, err := readDocument(cl.Path)
	if err != nil {
		return fail(StepRead, err)
	}

	// 2. edit in memory
	doc := newDocument(original, existed)
	if err := doc.apply(cl, ch); err != nil {
		return fail(StepEdit, err)
	}
	updated := doc.bytes()
	if !doc.changed || existed && bytes.Equal(updated, original) {
		w.log.Debug("no change needed", "client", kind.Label(), "op", ch.Op, "server", ch.Name)
		return nil
	}

	// 3. backup the untouched bytes before anything touches the disk
	if existed {
		if err := w.writeFile(BackupPath(cl.Path), original, perm); err != nil {
			return fail(StepBackup, fmt.Errorf("%w: %w", ErrBackupFailed, err))
		}
	}

	// 4. stage next to the original
	if err := os.MkdirAll(filepath.Dir(cl.Path), 0o755); err != nil {
		return fail(StepTempWrite, fmt.Errorf("%w: creating directory: %w", ErrCommitFailed, err))
	}
	tmp := TempPath(cl.Path)
	if err := w.writeFile(tmp, updated, perm); err != nil {
		os.Remove(tmp)
		return fail(StepTempWrite, fmt.Errorf("%w: %w", ErrCommitFailed, err))
	}

	// 5. atomic replace
	if err := w.rename(tmp, cl.Path); err != nil {
		os.Remove(tmp)
		return fail(StepCommit, fmt.Errorf("%w: %w", ErrCommitFailed, err))
	}

	w.log.Info("config updated", "client", kind.Label(), "path", cl.Path, "op", ch.Op, "server", ch.Name)
	return nil
}

// readDocument returns the file's bytes and permissions. A missing file is
// reported with existed=false; a blank file is accepted as an empty document.
func readDocument(path string) ([]byte, os.FileMode, bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0o644, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, false, err
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := validateObject(data); err != nil {
			return nil, 0, false, fmt.Errorf("%w: %w", ErrSourceParse, err)
		}
	}
	return data, info.Mode().Perm(), true, nil
}

func writeFileSync(name string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
