package protocoldir

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteConfigProducesReadableYAML(t *testing.T) {
	root := t.TempDir()
	m := New(root)

	if err := m.WriteConfig(Config{Version: 1, SpecDir: "specs", Parallelism: 3}); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, dirName, "config.yaml"))
	if err != nil {
		t.Fatalf("read config.yaml: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty config.yaml")
	}
	if _, err := os.Stat(filepath.Join(root, dirName, "config.yaml.tmp")); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be renamed away, got err=%v", err)
	}
}

func TestWriteDependencyGraphProducesJSON(t *testing.T) {
	root := t.TempDir()
	m := New(root)

	g := DependencyGraph{Plans: []string{"01-01"}, Completed: []string{"01-01"}, Timestamp: time.Now().UTC()}
	if err := m.WriteDependencyGraph(g); err != nil {
		t.Fatalf("WriteDependencyGraph: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, dirName, "dependency-graph.json")); err != nil {
		t.Fatalf("expected dependency-graph.json to exist: %v", err)
	}
}

func TestRegisterActiveFileDetectsWriteConflict(t *testing.T) {
	root := t.TempDir()
	m := New(root)

	if err := m.RegisterActiveFile(ActiveFile{Path: "a.go", SessionID: "s1", Operation: "write", StartedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("first register: %v", err)
	}

	err := m.RegisterActiveFile(ActiveFile{Path: "a.go", SessionID: "s2", Operation: "write", StartedAt: time.Now().UTC()})
	if err != ErrWriteConflict {
		t.Fatalf("expected ErrWriteConflict, got %v", err)
	}
}

func TestRegisterActiveFileAllowsConcurrentReads(t *testing.T) {
	root := t.TempDir()
	m := New(root)

	if err := m.RegisterActiveFile(ActiveFile{Path: "a.go", SessionID: "s1", Operation: "read", StartedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := m.RegisterActiveFile(ActiveFile{Path: "a.go", SessionID: "s2", Operation: "read", StartedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("expected concurrent reads to be allowed, got %v", err)
	}
}

func TestReleaseActiveFileRemovesEntry(t *testing.T) {
	root := t.TempDir()
	m := New(root)

	if err := m.RegisterActiveFile(ActiveFile{Path: "a.go", SessionID: "s1", Operation: "write", StartedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.ReleaseActiveFile("a.go", "s1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	// A second write registration for the now-released path must succeed.
	if err := m.RegisterActiveFile(ActiveFile{Path: "a.go", SessionID: "s2", Operation: "write", StartedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("expected write registration after release to succeed, got %v", err)
	}
}

func TestWriteSessionFilesProduceSeparateDirectories(t *testing.T) {
	root := t.TempDir()
	m := New(root)

	if err := m.WriteSessionStatus("s1", SessionStatus{SessionID: "s1", Status: "running", UpdatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("WriteSessionStatus: %v", err)
	}
	if err := m.WriteCheckpoint("s1", Checkpoint{Type: "decision", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("WriteCheckpoint: %v", err)
	}
	if err := m.WriteResult("s1", Result{Status: "completed", EndedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}

	dir := filepath.Join(root, dirName, "sessions", "s1")
	for _, name := range []string{"status.json", "checkpoint.json", "result.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}
}
