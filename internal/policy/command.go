package policy

import (
	"context"
	"encoding/json"
	"fmt"
)

var commandTools = map[string]bool{"bash": true, "Bash": true}

// CommandPolicy denies bash/Bash calls whose command contains any of
// a configured list of blocked substrings.
type CommandPolicy struct {
	BlockedSubstrings []string
}

func NewCommandPolicy(blocked []string) *CommandPolicy {
	return &CommandPolicy{BlockedSubstrings: blocked}
}

func (p *CommandPolicy) Name() string { return "CommandPolicy" }

func (p *CommandPolicy) Evaluate(_ context.Context, tool string, input []byte, _ Context) (Decision, error) {
	if !commandTools[tool] {
		return abstain(p.Name()), nil
	}
	var fields struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &fields); err != nil || fields.Command == "" {
		return abstain(p.Name()), nil
	}
	if substr, hit := containsAny(fields.Command, p.BlockedSubstrings); hit {
		return deny(p.Name(), fmt.Sprintf("command contains blocked substring %q", substr), false), nil
	}
	return abstain(p.Name()), nil
}
