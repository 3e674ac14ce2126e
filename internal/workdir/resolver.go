// Package workdir implements the WorkDir Manager (C2): create/clone of
// a session's working directory, streaming archive/extract with a
// sha256 manifest, and deletion.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolver resolves a path against root and refuses to return anything
// outside it, grounded in the teacher's files.Resolver.
type resolver struct {
	root string
}

func (r resolver) resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("workdir: path is required")
	}
	root := strings.TrimSpace(r.root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("workdir: resolve root: %w", err)
	}

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("workdir: resolve path: %w", err)
	}

	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("workdir: resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("workdir: path %q escapes root %q", path, root)
	}
	return targetAbs, nil
}
