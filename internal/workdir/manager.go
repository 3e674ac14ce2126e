package workdir

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/process"
)

// Config tunes the manager's root layout and archive concurrency.
type Config struct {
	Root               string
	ArchiveConcurrency int
}

// Manager implements create/clone/archive/extract/delete of session
// working directories under one root, grounded in the teacher's
// internal/tools/exec path-resolution style and internal/workspace's
// bootstrap/loader split.
type Manager struct {
	root  resolver
	queue *process.CommandQueue
}

// New returns a Manager rooted at cfg.Root, enqueuing archive/extract
// work onto queue's LaneArchive with the configured concurrency.
func New(cfg Config, queue *process.CommandQueue) *Manager {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	if queue != nil {
		concurrency := cfg.ArchiveConcurrency
		if concurrency < 1 {
			concurrency = 2
		}
		queue.SetLaneConcurrency(process.LaneArchive, concurrency)
	}
	return &Manager{root: resolver{root: root}, queue: queue}
}

// sessionPath returns the canonical active-session directory path,
// without creating it.
func (m *Manager) sessionPath(sessionID uuid.UUID) (string, error) {
	return m.root.resolve(filepath.Join("active", sessionID.String()))
}

// Create makes a fresh, empty working directory for sessionID.
func (m *Manager) Create(_ context.Context, sessionID uuid.UUID) (string, error) {
	path, err := m.sessionPath(sessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("workdir: create %s: %w", path, err)
	}
	return path, nil
}

// Clone deep-copies sourcePath's tree into a fresh working directory
// for sessionID, preserving file mode bits. It copies rather than
// reflinks so the result is portable across filesystems.
func (m *Manager) Clone(_ context.Context, sourcePath string, sessionID uuid.UUID) (string, error) {
	destPath, err := m.sessionPath(sessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destPath, 0o755); err != nil {
		return "", fmt.Errorf("workdir: create %s: %w", destPath, err)
	}

	err = filepath.WalkDir(sourcePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourcePath, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destPath, rel)
		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target, d)
	})
	if err != nil {
		return "", fmt.Errorf("workdir: clone %s into %s: %w", sourcePath, destPath, err)
	}
	return destPath, nil
}

func copyFile(srcPath, dstPath string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// Delete removes a session's working directory entirely.
func (m *Manager) Delete(_ context.Context, path string) error {
	resolved, err := m.root.resolve(path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(resolved); err != nil {
		return fmt.Errorf("workdir: delete %s: %w", resolved, err)
	}
	return nil
}
