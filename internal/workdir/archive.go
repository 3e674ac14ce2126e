package workdir

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/process"
	"github.com/haasonsaas/agentkit/pkg/models"
)

// Archive streams sourcePath's tree into a compressed blob at
// destPath in sorted relpath order, hashing each file as it is copied
// to build a deterministic manifest. The work runs on
// process.LaneArchive so it never blocks session turn dispatch.
func (m *Manager) Archive(ctx context.Context, sessionID uuid.UUID, sourcePath, destPath string, compression models.Compression) (*models.Archive, error) {
	if m.queue == nil {
		return m.archiveNow(sourcePath, destPath, compression, sessionID)
	}
	return process.EnqueueInLane(m.queue, process.LaneArchive, func(_ context.Context) (*models.Archive, error) {
		return m.archiveNow(sourcePath, destPath, compression, sessionID)
	}, &process.EnqueueOptions{Context: ctx})
}

func (m *Manager) archiveNow(sourcePath, destPath string, compression models.Compression, sessionID uuid.UUID) (*models.Archive, error) {
	relpaths, err := sortedRelPaths(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("workdir: list %s: %w", sourcePath, err)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, fmt.Errorf("workdir: create archive dir: %w", err)
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("workdir: create %s: %w", destPath, err)
	}
	defer out.Close()

	var manifest []models.ManifestEntry
	switch compression {
	case models.CompressionZip:
		manifest, err = writeZip(out, sourcePath, relpaths)
	default:
		manifest, err = writeTarGzip(out, sourcePath, relpaths)
	}
	if err != nil {
		return nil, fmt.Errorf("workdir: archive %s: %w", sourcePath, err)
	}

	info, err := out.Stat()
	if err != nil {
		return nil, fmt.Errorf("workdir: stat %s: %w", destPath, err)
	}

	now := time.Now()
	comp := compression
	if comp == "" {
		comp = models.CompressionGzip
	}
	return &models.Archive{
		ID:          uuid.New(),
		SessionID:   sessionID,
		Path:        destPath,
		SizeBytes:   info.Size(),
		Compression: comp,
		Manifest:    manifest,
		Status:      models.ArchiveStatusCompleted,
		CreatedAt:   now,
		ArchivedAt:  &now,
	}, nil
}

func sortedRelPaths(root string) ([]string, error) {
	var rels []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(rels)
	return rels, nil
}

func writeTarGzip(w io.Writer, root string, relpaths []string) ([]models.ManifestEntry, error) {
	gz := gzip.NewWriter(w)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	manifest := make([]models.ManifestEntry, 0, len(relpaths))
	for _, rel := range relpaths {
		full := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			return nil, err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return nil, err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}

		f, err := os.Open(full)
		if err != nil {
			return nil, err
		}
		sum := sha256.New()
		if _, err := io.Copy(tw, io.TeeReader(f, sum)); err != nil {
			f.Close()
			return nil, err
		}
		f.Close()

		manifest = append(manifest, models.ManifestEntry{
			RelPath: rel,
			Size:    info.Size(),
			SHA256:  hex.EncodeToString(sum.Sum(nil)),
		})
	}
	return manifest, nil
}

func writeZip(w io.Writer, root string, relpaths []string) ([]models.ManifestEntry, error) {
	zw := zip.NewWriter(w)
	defer zw.Close()

	manifest := make([]models.ManifestEntry, 0, len(relpaths))
	for _, rel := range relpaths {
		full := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			return nil, err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return nil, err
		}
		hdr.Name = rel
		hdr.Method = zip.Deflate
		zf, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, err
		}

		f, err := os.Open(full)
		if err != nil {
			return nil, err
		}
		sum := sha256.New()
		if _, err := io.Copy(zf, io.TeeReader(f, sum)); err != nil {
			f.Close()
			return nil, err
		}
		f.Close()

		manifest = append(manifest, models.ManifestEntry{
			RelPath: rel,
			Size:    info.Size(),
			SHA256:  hex.EncodeToString(sum.Sum(nil)),
		})
	}
	return manifest, nil
}
