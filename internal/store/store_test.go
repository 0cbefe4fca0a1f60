package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"feedtrack/internal/record"
	"feedtrack/internal/resolve"
)

func writeCollection(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestStore(t *testing.T, candidates []string) *RecordStore {
	t.Helper()
	return New(resolve.New(nil), candidates, "errors.json", nil)
}

func TestLoad_SticksToWorkingPath(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "unreachable")
	good := t.TempDir()
	writeCollection(t, good, "errors.json", `{"errors":[{"id":"1","user_id":"u","date":"2025/04/19","time":"13:00:00","violation":"v"}]}`)

	s := newTestStore(t, []string{bad, good})

	coll, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(coll.Errors) != 1 {
		t.Fatalf("records = %d, want 1", len(coll.Errors))
	}
	if got := s.CurrentPath(); got != good {
		t.Errorf("CurrentPath = %q, want %q", got, good)
	}

	// Second load goes straight to the sticky path even though the bad
	// path is still first in the candidate list.
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := s.CurrentPath(); got != good {
		t.Errorf("CurrentPath = %q, want %q", got, good)
	}
}

func TestLoad_AllPathsFail_CurrentPathUnchanged(t *testing.T) {
	base := t.TempDir()
	s := newTestStore(t, []string{filepath.Join(base, "a"), filepath.Join(base, "b")})

	_, err := s.Load(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := s.CurrentPath(); got != "" {
		t.Errorf("CurrentPath = %q, want empty", got)
	}
}

func TestLoad_MalformedData(t *testing.T) {
	dir := t.TempDir()
	writeCollection(t, dir, "errors.json", "this is not json")

	s := newTestStore(t, []string{dir})
	_, err := s.Load(context.Background())
	if !errors.Is(err, ErrMalformedData) {
		t.Fatalf("err = %v, want ErrMalformedData", err)
	}
	// Decode failure is not an I/O failure: the path still becomes sticky.
	if got := s.CurrentPath(); got != dir {
		t.Errorf("CurrentPath = %q, want %q", got, dir)
	}
}

func TestLoad_NormalizesRecords(t *testing.T) {
	dir := t.TempDir()
	writeCollection(t, dir, "errors.json",
		`{"errors":[{"id":"1","user_id":"u","date":"2025/04/19","time":"13:00:00","violation":"v","feedback_status":"DONE"}]}`)

	s := newTestStore(t, []string{dir})
	coll, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	r := coll.Errors[0]
	if r.FeedbackStatus != record.StatusDone {
		t.Errorf("status = %q, want %q", r.FeedbackStatus, record.StatusDone)
	}
	if r.Quantity != 1 {
		t.Errorf("quantity = %d, want 1", r.Quantity)
	}
	if len(r.Occurrences) != 1 {
		t.Errorf("occurrences = %d, want 1", len(r.Occurrences))
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, []string{dir})

	coll := record.SampleCollection()
	if err := s.Save(context.Background(), coll); err != nil {
		t.Fatal(err)
	}
	if got := s.CurrentPath(); got != dir {
		t.Errorf("CurrentPath = %q, want %q", got, dir)
	}

	loaded, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Errors) != len(coll.Errors) {
		t.Fatalf("records = %d, want %d", len(loaded.Errors), len(coll.Errors))
	}
	if loaded.Errors[0].ID != coll.Errors[0].ID {
		t.Errorf("id = %q, want %q", loaded.Errors[0].ID, coll.Errors[0].ID)
	}
}

func TestSave_FailsOverToWritablePath(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "deep")
	good := t.TempDir()

	s := newTestStore(t, []string{bad, good})
	if err := s.Save(context.Background(), &record.Collection{Errors: []record.Record{}}); err != nil {
		t.Fatal(err)
	}
	if got := s.CurrentPath(); got != good {
		t.Errorf("CurrentPath = %q, want %q", got, good)
	}
}

func TestLoad_EmptyCandidates(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := s.Load(context.Background())
	if !errors.Is(err, resolve.ErrNoPaths) {
		t.Fatalf("err = %v, want ErrNoPaths", err)
	}
}

func TestBusyRejection(t *testing.T) {
	dir := t.TempDir()
	writeCollection(t, dir, "errors.json", `{"errors":[]}`)
	s := newTestStore(t, []string{dir})

	// Hold the state machine in Loading and verify a second operation is
	// rejected immediately rather than queued.
	_, _, release, err := s.acquire()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Load err = %v, want ErrBusy", err)
	}
	if err := s.Save(context.Background(), &record.Collection{}); !errors.Is(err, ErrBusy) {
		t.Errorf("Save err = %v, want ErrBusy", err)
	}

	release()
	if _, err := s.Load(context.Background()); err != nil {
		t.Errorf("Load after release failed: %v", err)
	}
}

func TestSetCandidates_DropsStaleStickyPath(t *testing.T) {
	dir := t.TempDir()
	writeCollection(t, dir, "errors.json", `{"errors":[]}`)

	s := newTestStore(t, []string{dir})
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.CurrentPath() != dir {
		t.Fatal("expected sticky path after load")
	}

	other := t.TempDir()
	s.SetCandidates([]string{other})
	if got := s.CurrentPath(); got != "" {
		t.Errorf("CurrentPath = %q, want empty after candidate swap", got)
	}

	// Sticky path survives a reload that still lists it.
	s.SetCandidates([]string{dir, other})
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := s.CurrentPath(); got != dir {
		t.Errorf("CurrentPath = %q, want %q", got, dir)
	}
}

func TestSetResource(t *testing.T) {
	dir := t.TempDir()
	writeCollection(t, dir, "renamed.json", `{"errors":[]}`)

	s := newTestStore(t, []string{dir})
	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("expected error before rename")
	}

	s.SetResource("renamed.json")
	if _, err := s.Load(context.Background()); err != nil {
		t.Errorf("Load after SetResource failed: %v", err)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, []string{dir})
	if s.Exists(context.Background()) {
		t.Error("Exists = true before any write")
	}
	writeCollection(t, dir, "errors.json", `{"errors":[]}`)
	if !s.Exists(context.Background()) {
		t.Error("Exists = false after write")
	}
}
