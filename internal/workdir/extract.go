package workdir

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/agentkit/internal/process"
	"github.com/haasonsaas/agentkit/pkg/models"
)

// Extract reverses Archive, writing archivePath's contents into
// destPath. Runs on process.LaneArchive alongside Archive so the two
// never race for the same lane's concurrency budget.
func (m *Manager) Extract(ctx context.Context, archivePath, destPath string, compression models.Compression) error {
	if m.queue == nil {
		return m.extractNow(archivePath, destPath, compression)
	}
	_, err := process.EnqueueInLane(m.queue, process.LaneArchive, func(_ context.Context) (struct{}, error) {
		return struct{}{}, m.extractNow(archivePath, destPath, compression)
	}, &process.EnqueueOptions{Context: ctx})
	return err
}

func (m *Manager) extractNow(archivePath, destPath string, compression models.Compression) error {
	if err := os.MkdirAll(destPath, 0o755); err != nil {
		return fmt.Errorf("workdir: create %s: %w", destPath, err)
	}
	if compression == models.CompressionZip {
		return extractZip(archivePath, destPath)
	}
	return extractTarGzip(archivePath, destPath)
}

func extractTarGzip(archivePath, destPath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("workdir: open %s: %w", archivePath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("workdir: gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("workdir: tar read: %w", err)
		}
		target, err := safeJoin(destPath, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

func extractZip(archivePath, destPath string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("workdir: open %s: %w", archivePath, err)
	}
	defer zr.Close()

	for _, file := range zr.File {
		target, err := safeJoin(destPath, file.Name)
		if err != nil {
			return err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := file.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, file.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// safeJoin guards against a maliciously-crafted archive entry (e.g.
// "../../etc/passwd") extracting outside destPath.
func safeJoin(destPath, name string) (string, error) {
	target := filepath.Join(destPath, filepath.FromSlash(name))
	rel, err := filepath.Rel(destPath, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("workdir: archive entry %q escapes destination", name)
	}
	return target, nil
}
