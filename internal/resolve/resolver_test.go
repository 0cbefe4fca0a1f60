package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReadFirst_EmptyPaths(t *testing.T) {
	r := New(nil)
	_, _, err := r.ReadFirst(context.Background(), nil, "errors.json")
	if !errors.Is(err, ErrNoPaths) {
		t.Fatalf("err = %v, want ErrNoPaths", err)
	}
}

func TestReadFirst_FallsThroughToGoodPath(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist")
	good := t.TempDir()
	if err := os.WriteFile(filepath.Join(good, "errors.json"), []byte(`{"errors":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(nil)
	data, pathUsed, err := r.ReadFirst(context.Background(), []string{bad, good}, "errors.json")
	if err != nil {
		t.Fatal(err)
	}
	if pathUsed != good {
		t.Errorf("pathUsed = %q, want %q", pathUsed, good)
	}
	if string(data) != `{"errors":[]}` {
		t.Errorf("data = %q", data)
	}
}

func TestReadFirst_AllPathsFail(t *testing.T) {
	r := New(nil)
	base := t.TempDir()
	paths := []string{filepath.Join(base, "a"), filepath.Join(base, "b")}

	_, _, err := r.ReadFirst(context.Background(), paths, "errors.json")
	if err == nil {
		t.Fatal("expected error when no path has the resource")
	}
	if errors.Is(err, ErrNoPaths) {
		t.Error("exhaustion must not be reported as a configuration error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped last path error, got %v", err)
	}
}

func TestReadFirst_SkipsBlankEntries(t *testing.T) {
	good := t.TempDir()
	if err := os.WriteFile(filepath.Join(good, "r.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(nil)
	_, pathUsed, err := r.ReadFirst(context.Background(), []string{"", good}, "r.json")
	if err != nil {
		t.Fatal(err)
	}
	if pathUsed != good {
		t.Errorf("pathUsed = %q, want %q", pathUsed, good)
	}
}

func TestWriteFirst_SkipsUnwritablePath(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "nested")
	good := t.TempDir()

	r := New(nil)
	pathUsed, err := r.WriteFirst(context.Background(), []string{bad, good}, "out.json", []byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if pathUsed != good {
		t.Errorf("pathUsed = %q, want %q", pathUsed, good)
	}

	data, err := os.ReadFile(filepath.Join(good, "out.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{}" {
		t.Errorf("data = %q", data)
	}
}

func TestWriteFirst_EmptyPaths(t *testing.T) {
	r := New(nil)
	_, err := r.WriteFirst(context.Background(), []string{}, "out.json", []byte("{}"))
	if !errors.Is(err, ErrNoPaths) {
		t.Fatalf("err = %v, want ErrNoPaths", err)
	}
}

func TestWriteFirst_AtomicOverwrite(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "out.json"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(nil)
	if _, err := r.WriteFirst(context.Background(), []string{dir}, "out.json", []byte("new")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Errorf("data = %q, want %q", data, "new")
	}

	// No temp debris left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry in dir, got %d", len(entries))
	}
}

func TestExists(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	good := t.TempDir()
	if err := os.WriteFile(filepath.Join(good, "r.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(nil)
	path, ok := r.Exists(context.Background(), []string{missing, good}, "r.json")
	if !ok || path != good {
		t.Errorf("Exists = (%q, %v), want (%q, true)", path, ok, good)
	}

	if _, ok := r.Exists(context.Background(), []string{missing}, "r.json"); ok {
		t.Error("Exists reported a missing resource as present")
	}
}

func TestReadFirst_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(nil)
	_, _, err := r.ReadFirst(ctx, []string{t.TempDir()}, "r.json")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
