package policy

import (
	"context"

	"github.com/haasonsaas/agentkit/pkg/models"
)

// PermissionModePolicy is the shorthand for a session's global
// permission_mode: DEFAULT abstains (deferring to other policies),
// ACCEPT_EDITS allows edit tools, BYPASS allows everything.
type PermissionModePolicy struct{}

func NewPermissionModePolicy() *PermissionModePolicy { return &PermissionModePolicy{} }

func (p *PermissionModePolicy) Name() string { return "PermissionModePolicy" }

func (p *PermissionModePolicy) Evaluate(_ context.Context, tool string, _ []byte, pctx Context) (Decision, error) {
	switch models.PermissionMode(pctx.PermissionMode) {
	case models.PermissionModeBypass:
		return allow(p.Name(), "permission_mode is BYPASS"), nil
	case models.PermissionModeAcceptEdits:
		if pctx.EditTools[tool] {
			return allow(p.Name(), "permission_mode is ACCEPT_EDITS and tool is an edit tool"), nil
		}
		return abstain(p.Name()), nil
	default:
		return abstain(p.Name()), nil
	}
}
