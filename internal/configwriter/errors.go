package configwriter

import (
	"errors"
	"fmt"

	"github.com/michaelbrown/mcpm/internal/model"
)

var (
	// ErrWriteNotPermitted is returned for mutations against a read-only client.
	ErrWriteNotPermitted = errors.New("client config is not writable")
	// ErrBackupFailed means the safety copy could not be written; nothing was changed.
	ErrBackupFailed = errors.New("backup failed")
	// ErrCommitFailed means the temp write or the rename failed; the original is intact.
	ErrCommitFailed = errors.New("atomic commit failed")
	// ErrSourceParse means the existing document could not be edited safely.
	ErrSourceParse = errors.New("config document is not editable")
)

// Step names the stage of a mutation that failed.
type Step string

const (
	StepGuard     Step = "guard"
	StepRead      Step = "read"
	StepEdit      Step = "edit"
	StepBackup    Step = "backup"
	StepTempWrite Step = "temp-write"
	StepCommit    Step = "commit"
)

// MutationError reports which step of Apply failed. The original file is
// untouched for every step.
type MutationError struct {
	Step   Step
	Client model.ClientKind
	Path   string
	Err    error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Client.Label(), e.Path, e.Step, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// NotWritableError is returned when the target client is read-only.
type NotWritableError struct {
	Client    model.ClientKind
	Path      string
	Alternate model.ClientKind
}

func (e *NotWritableError) Error() string {
	return fmt.Sprintf("%s config %s is read-only for mcpm; target %s instead",
		e.Client.Label(), e.Path, e.Alternate.Label())
}

func (e *NotWritableError) Is(target error) bool { return target == ErrWriteNotPermitted }
