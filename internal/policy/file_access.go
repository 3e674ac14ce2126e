package policy

import (
	"context"
	"encoding/json"
	"fmt"
)

var fileTools = map[string]bool{
	"read_file": true, "write_file": true, "Read": true, "Write": true,
}

// FileAccessPolicy denies file tool calls whose target path falls
// under a restricted prefix, allows those under an explicitly allowed
// prefix, and abstains on everything else.
type FileAccessPolicy struct {
	RestrictedPaths []string
	AllowedPaths    []string
}

func NewFileAccessPolicy(restricted, allowed []string) *FileAccessPolicy {
	return &FileAccessPolicy{RestrictedPaths: restricted, AllowedPaths: allowed}
}

func (p *FileAccessPolicy) Name() string { return "FileAccessPolicy" }

func (p *FileAccessPolicy) Evaluate(_ context.Context, tool string, input []byte, _ Context) (Decision, error) {
	if !fileTools[tool] {
		return abstain(p.Name()), nil
	}
	target, ok := extractPath(input)
	if !ok {
		return abstain(p.Name()), nil
	}
	for _, restricted := range p.RestrictedPaths {
		if hasPathPrefix(target, restricted) {
			return deny(p.Name(), fmt.Sprintf("path %q is under restricted prefix %q", target, restricted), false), nil
		}
	}
	for _, allowed := range p.AllowedPaths {
		if hasPathPrefix(target, allowed) {
			return allow(p.Name(), fmt.Sprintf("path %q is under allowed prefix %q", target, allowed)), nil
		}
	}
	return abstain(p.Name()), nil
}

// extractPath pulls a target file path out of a tool call's raw JSON
// input, checking the field names in common use across file tools.
func extractPath(input []byte) (string, bool) {
	var fields struct {
		Path     string `json:"path"`
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(input, &fields); err != nil {
		return "", false
	}
	if fields.Path != "" {
		return fields.Path, true
	}
	if fields.FilePath != "" {
		return fields.FilePath, true
	}
	return "", false
}
