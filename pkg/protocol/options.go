package protocol

import "fmt"

// SpawnOptions configures the agent CLI subprocess invocation. Fields
// map directly to command-line flags; see Args.
type SpawnOptions struct {
	Model                string
	AllowedTools         []string
	PermissionMode       string // "default" | "acceptEdits" | "bypassPermissions"
	IncludePartial       bool
	ResumeSessionID       string
	PermissionPromptTool string // always "stdio" for this module
}

// DefaultSpawnOptions returns the baseline options shared by every
// session mode.
func DefaultSpawnOptions() SpawnOptions {
	return SpawnOptions{
		PermissionMode:       "default",
		PermissionPromptTool: "stdio",
	}
}

// Args renders the subprocess command-line arguments for these
// options, matching the flag set used by the Claude-CLI wrapper
// reference: --output-format/--input-format stream-json,
// --permission-prompt-tool stdio, --include-partial-messages, and an
// optional --resume.
func (o SpawnOptions) Args() []string {
	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
		"--permission-prompt-tool", o.PermissionPromptTool,
		"--permission-mode", o.PermissionMode,
	}
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if len(o.AllowedTools) > 0 {
		for _, t := range o.AllowedTools {
			args = append(args, "--allowedTools", t)
		}
	}
	if o.IncludePartial {
		args = append(args, "--include-partial-messages")
	}
	if o.ResumeSessionID != "" {
		args = append(args, "--resume", o.ResumeSessionID)
	}
	return args
}

// Validate reports whether the options are well-formed enough to spawn.
func (o SpawnOptions) Validate() error {
	switch o.PermissionMode {
	case "default", "acceptEdits", "bypassPermissions":
	default:
		return fmt.Errorf("protocol: invalid permission mode %q", o.PermissionMode)
	}
	if o.PermissionPromptTool != "stdio" {
		return fmt.Errorf("protocol: unsupported permission prompt tool %q", o.PermissionPromptTool)
	}
	return nil
}
