package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/michaelbrown/mcpm/internal/model"
	"github.com/michaelbrown/mcpm/internal/storage"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(t *testing.T, s *SQLiteStore, id, client, server, state string, at time.Time) {
	t.Helper()
	r := &storage.CheckRecord{ID: id, Client: client, Server: server, State: state, CheckedAt: at}
	if err := s.RecordCheck(context.Background(), r); err != nil {
		t.Fatalf("RecordCheck: %v", err)
	}
}

func TestRecordAndGetCheck(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id := model.ServerID{Client: model.CursorGlobal, Name: "fs"}
	rec := storage.NewCheckRecord(id, model.Healthy("filesystem", "0.6.2"), 420*time.Millisecond)
	if err := s.RecordCheck(ctx, rec); err != nil {
		t.Fatalf("RecordCheck: %v", err)
	}
	if rec.CheckedAt.IsZero() {
		t.Error("checked_at should default to now")
	}

	got, err := s.GetCheck(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetCheck: %v", err)
	}
	if got.Client != "Cursor" || got.Server != "fs" {
		t.Errorf("got %s/%s, want Cursor/fs", got.Client, got.Server)
	}
	if got.ElapsedMS != 420 {
		t.Errorf("elapsed = %d, want 420", got.ElapsedMS)
	}
	if st := got.Status(); st != model.Healthy("filesystem", "0.6.2") {
		t.Errorf("status = %v", st)
	}
	sid, err := got.ServerID()
	if err != nil || sid != id {
		t.Errorf("ServerID = %v, %v; want %v", sid, err, id)
	}
	if !got.CheckedAt.Equal(rec.CheckedAt.Truncate(time.Microsecond)) {
		t.Errorf("checked_at = %s, want %s", got.CheckedAt, rec.CheckedAt)
	}
}

func TestRecordRequiresID(t *testing.T) {
	s := testStore(t)
	if err := s.RecordCheck(context.Background(), &storage.CheckRecord{State: "failed"}); err == nil {
		t.Fatal("expected error for a record without id")
	}
}

func TestRejectsNonTerminalState(t *testing.T) {
	s := testStore(t)
	r := &storage.CheckRecord{ID: "x", Client: "Cursor", Server: "a", State: "checking"}
	if err := s.RecordCheck(context.Background(), r); err == nil {
		t.Fatal("expected constraint violation for a non-terminal state")
	}
}

func TestGetCheckByPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	record(t, s, "abc12345-0000", "Cursor", "a", "healthy", now)
	record(t, s, "abd99999-0000", "Cursor", "b", "failed", now)

	got, err := s.GetCheck(ctx, "abc")
	if err != nil {
		t.Fatalf("GetCheck by prefix: %v", err)
	}
	if got.ID != "abc12345-0000" {
		t.Errorf("got ID %q", got.ID)
	}

	_, err = s.GetCheck(ctx, "ab")
	if err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("expected ambiguous error, got %v", err)
	}

	if _, err := s.GetCheck(ctx, "zzz"); err == nil {
		t.Error("expected not found error")
	}
}

func TestListChecksOrderAndFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	record(t, s, "1", "Cursor", "a", "healthy", base)
	record(t, s, "2", "Cursor", "b", "failed", base.Add(time.Minute))
	record(t, s, "3", "Windsurf", "a", "timeout", base.Add(2*time.Minute))
	record(t, s, "4", "Cursor", "a", "failed", base.Add(3*time.Minute))

	all, err := s.ListChecks(ctx, storage.CheckListOptions{})
	if err != nil {
		t.Fatalf("ListChecks: %v", err)
	}
	var ids []string
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	if got := strings.Join(ids, ","); got != "4,3,2,1" {
		t.Errorf("order = %s, want 4,3,2,1", got)
	}

	byServer, err := s.ListChecks(ctx, storage.CheckListOptions{Server: "a"})
	if err != nil {
		t.Fatalf("ListChecks: %v", err)
	}
	if len(byServer) != 3 {
		t.Errorf("server filter: got %d, want 3", len(byServer))
	}

	both, err := s.ListChecks(ctx, storage.CheckListOptions{Server: "a", Client: "Cursor", Limit: 1})
	if err != nil {
		t.Fatalf("ListChecks: %v", err)
	}
	if len(both) != 1 || both[0].ID != "4" {
		t.Errorf("client+server+limit: got %+v", both)
	}

	page, err := s.ListChecks(ctx, storage.CheckListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListChecks: %v", err)
	}
	if len(page) != 2 || page[0].ID != "2" {
		t.Errorf("offset page: got %+v", page)
	}
}

func TestLatestChecks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	record(t, s, "old", "Cursor", "a", "failed", base)
	record(t, s, "new", "Cursor", "a", "healthy", base.Add(time.Hour))
	record(t, s, "other", "Windsurf", "a", "timeout", base)

	latest, err := s.LatestChecks(ctx)
	if err != nil {
		t.Fatalf("LatestChecks: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("got %d records, want 2", len(latest))
	}
	if latest[0].ID != "new" || latest[1].ID != "other" {
		t.Errorf("latest = %s, %s", latest[0].ID, latest[1].ID)
	}
}

func TestDeleteChecks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	record(t, s, "1", "Cursor", "a", "healthy", base)
	record(t, s, "2", "Cursor", "a", "healthy", base.Add(24*time.Hour))

	n, err := s.DeleteChecks(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteChecks: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	left, _ := s.ListChecks(ctx, storage.CheckListOptions{})
	if len(left) != 1 || left[0].ID != "2" {
		t.Errorf("remaining = %+v", left)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	record(t, s, "1", "Cursor", "a", "healthy", time.Now())
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.ListChecks(context.Background(), storage.CheckListOptions{})
	if err != nil {
		t.Fatalf("ListChecks: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d records after reopen, want 1", len(got))
	}
}
