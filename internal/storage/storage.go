package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/michaelbrown/mcpm/internal/model"
)

// CheckRecord is one persisted probe outcome.
type CheckRecord struct {
	ID            string    `json:"id" yaml:"id"`
	Client        string    `json:"client" yaml:"client"`
	Server        string    `json:"server" yaml:"server"`
	State         string    `json:"state" yaml:"state"`
	ServerName    string    `json:"server_name,omitempty" yaml:"server_name,omitempty"`
	ServerVersion string    `json:"server_version,omitempty" yaml:"server_version,omitempty"`
	Reason        string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	ElapsedMS     int64     `json:"elapsed_ms" yaml:"elapsed_ms"`
	CheckedAt     time.Time `json:"checked_at" yaml:"checked_at"`
}

// NewCheckRecord builds a record for a terminal status with a fresh ID.
func NewCheckRecord(id model.ServerID, st model.HealthStatus, elapsed time.Duration) *CheckRecord {
	return &CheckRecord{
		ID:            uuid.NewString(),
		Client:        id.Client.Label(),
		Server:        id.Name,
		State:         st.State.String(),
		ServerName:    st.ServerName,
		ServerVersion: st.ServerVersion,
		Reason:        st.Reason,
		ElapsedMS:     elapsed.Milliseconds(),
	}
}

// ServerID resolves the record's client label back to an identity.
func (r CheckRecord) ServerID() (model.ServerID, error) {
	kind, err := model.ParseClientKind(r.Client)
	if err != nil {
		return model.ServerID{}, err
	}
	return model.ServerID{Client: kind, Name: r.Server}, nil
}

// Status reconstructs the recorded health status.
func (r CheckRecord) Status() model.HealthStatus {
	state, err := model.ParseHealthState(r.State)
	if err != nil {
		return model.HealthStatus{}
	}
	return model.HealthStatus{State: state, ServerName: r.ServerName, ServerVersion: r.ServerVersion, Reason: r.Reason}
}

// CheckListOptions controls filtering and pagination for ListChecks.
type CheckListOptions struct {
	Server string
	Client string
	Limit  int
	Offset int
}

// Store is the persistence interface for probe history.
type Store interface {
	// RecordCheck inserts a record. The ID field must be set by the caller;
	// CheckedAt defaults to now.
	RecordCheck(ctx context.Context, r *CheckRecord) error

	// GetCheck returns a record by ID or ID prefix.
	GetCheck(ctx context.Context, id string) (*CheckRecord, error)

	// ListChecks returns records ordered by checked_at descending.
	ListChecks(ctx context.Context, opts CheckListOptions) ([]CheckRecord, error)

	// LatestChecks returns the newest record of every (client, server) pair.
	LatestChecks(ctx context.Context) ([]CheckRecord, error)

	// DeleteChecks removes records older than before and reports how many.
	DeleteChecks(ctx context.Context, before time.Time) (int64, error)

	// Close releases resources.
	Close() error
}
