package models

import (
	"time"

	"github.com/google/uuid"
)

// Direction identifies who produced a Message.
type Direction string

const (
	DirectionUserToAgent Direction = "USER_TO_AGENT"
	DirectionAgentToUser Direction = "AGENT_TO_USER"
)

// BlockType discriminates ContentBlock's closed set of variants. Treat
// this as a sum type: every switch over Type must be exhaustive, never
// fall through to a silent default.
type BlockType string

const (
	BlockText       BlockType = "TEXT"
	BlockToolUse    BlockType = "TOOL_USE"
	BlockToolResult BlockType = "TOOL_RESULT"
	BlockThinking   BlockType = "THINKING"
)

// ContentBlock is one element of Message.Blocks. Only the fields
// relevant to Type are populated; callers must switch on Type rather
// than probe for non-zero fields.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// TEXT / THINKING
	Text      string `json:"text,omitempty"`
	Signature string `json:"signature,omitempty"`

	// TOOL_USE
	ToolUseID string `json:"tool_use_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	InputJSON []byte `json:"input_json,omitempty"`

	// TOOL_RESULT
	Output  string `json:"output,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message is one append-only log entry in a session's ordered history.
type Message struct {
	ID              uuid.UUID      `json:"id"`
	SessionID       uuid.UUID      `json:"session_id"`
	Sequence        int64          `json:"sequence"`
	Direction       Direction      `json:"direction"`
	Blocks          []ContentBlock `json:"blocks"`
	Model           string         `json:"model,omitempty"`
	TokensIn        *int64         `json:"tokens_in,omitempty"`
	TokensOut       *int64         `json:"tokens_out,omitempty"`
	CostUSD         *float64       `json:"cost_usd,omitempty"`
	IsPartial       bool           `json:"is_partial"`
	ParentMessageID *uuid.UUID     `json:"parent_message_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ToolUseIDs returns the tool_use_id of every TOOL_USE block in the
// message, in block order.
func (m *Message) ToolUseIDs() []string {
	var ids []string
	for _, b := range m.Blocks {
		if b.Type == BlockToolUse {
			ids = append(ids, b.ToolUseID)
		}
	}
	return ids
}
