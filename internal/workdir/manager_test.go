package workdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/process"
	"github.com/haasonsaas/agentkit/pkg/models"
)

func TestCreateMakesSessionDirectory(t *testing.T) {
	root := t.TempDir()
	m := New(Config{Root: root}, nil)

	sessionID := uuid.New()
	path, err := m.Create(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %s", path)
	}
}

func TestCloneCopiesTreePreservingContent(t *testing.T) {
	root := t.TempDir()
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0o755); err != nil {
		t.Fatalf("seed nested dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "nested", "b.txt"), []byte("world"), 0o644); err != nil {
		t.Fatalf("seed nested file: %v", err)
	}

	m := New(Config{Root: root}, nil)
	dest, err := m.Clone(context.Background(), src, uuid.New())
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "nested", "b.txt"))
	if err != nil {
		t.Fatalf("read cloned file: %v", err)
	}
	if string(got) != "world" {
		t.Errorf("cloned content = %q, want %q", got, "world")
	}
}

func TestArchiveAndExtractRoundTrip(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("mkdir src: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "file.txt"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	queue := process.NewCommandQueue()
	m := New(Config{Root: root}, queue)
	sessionID := uuid.New()
	archivePath := filepath.Join(root, "archive.tar.gz")

	archive, err := m.Archive(context.Background(), sessionID, src, archivePath, models.CompressionGzip)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if len(archive.Manifest) != 1 || archive.Manifest[0].RelPath != "file.txt" {
		t.Fatalf("Manifest = %+v, want one entry for file.txt", archive.Manifest)
	}
	if archive.Manifest[0].SHA256 == "" {
		t.Errorf("expected non-empty sha256 in manifest")
	}

	dest := filepath.Join(root, "restored")
	if err := m.Extract(context.Background(), archivePath, dest, models.CompressionGzip); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "file.txt"))
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("restored content = %q, want %q", got, "payload")
	}
}

func TestArchiveZipRoundTrip(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("mkdir src: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "doc.md"), []byte("# notes"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	m := New(Config{Root: root}, nil)
	archivePath := filepath.Join(root, "archive.zip")

	if _, err := m.Archive(context.Background(), uuid.New(), src, archivePath, models.CompressionZip); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	dest := filepath.Join(root, "restored-zip")
	if err := m.Extract(context.Background(), archivePath, dest, models.CompressionZip); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "doc.md")); err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}
}

func TestDeleteRemovesDirectory(t *testing.T) {
	root := t.TempDir()
	m := New(Config{Root: root}, nil)
	sessionID := uuid.New()
	path, err := m.Create(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := m.Delete(context.Background(), path); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected directory to be removed")
	}
}

func TestResolveRejectsEscape(t *testing.T) {
	root := t.TempDir()
	r := resolver{root: root}
	if _, err := r.resolve("../outside"); err == nil {
		t.Fatalf("expected error for path escaping root")
	}
}
