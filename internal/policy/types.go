// Package policy evaluates ordered permission policies for a
// (tool, input) tuple (C3), grounded in the teacher's internal/policy
// activation-command parser for the ordered, first-match-wins
// evaluation shape, and in internal/agent.ApprovalChecker's pattern
// glob matching for path/command prefix checks.
package policy

import "context"

// Result is the outcome of one policy's evaluation.
type Result string

const (
	Allow   Result = "ALLOW"
	Deny    Result = "DENY"
	Abstain Result = "ABSTAIN"
)

// Decision is what a Policy returns for one (tool, input) evaluation.
type Decision struct {
	Result     Result
	Reason     string
	Interrupt  bool
	PolicyName string
}

// Context carries the session-scoped facts a Policy may need beyond
// the tool name and input, kept separate from context.Context so
// policies stay pure functions of their inputs.
type Context struct {
	SessionID      string
	PermissionMode string
	EditTools      map[string]bool
}

// Policy is a named, priority-ordered rule evaluated against a tool
// call. Implementations must be side-effect free: Evaluate may be
// called once and its result cached for the remainder of the
// session's lifetime.
type Policy interface {
	Name() string
	Evaluate(ctx context.Context, tool string, input []byte, pctx Context) (Decision, error)
}

func abstain(name string) Decision {
	return Decision{Result: Abstain, PolicyName: name}
}

func deny(name, reason string, interrupt bool) Decision {
	return Decision{Result: Deny, Reason: reason, Interrupt: interrupt, PolicyName: name}
}

func allow(name, reason string) Decision {
	return Decision{Result: Allow, Reason: reason, PolicyName: name}
}
