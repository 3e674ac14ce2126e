// Package protocol defines the newline-delimited JSON wire types
// exchanged with the agent CLI subprocess over stdin/stdout. Frame is a
// closed tagged union: always switch on Type, never fall through to a
// silent default.
package protocol

import "encoding/json"

// FrameType discriminates the known frame shapes emitted on the
// subprocess's stdout stream.
type FrameType string

const (
	FrameSystem         FrameType = "system"
	FrameAssistant      FrameType = "assistant"
	FrameUser           FrameType = "user"
	FrameResult         FrameType = "result"
	FrameControlRequest FrameType = "control_request"
	FrameStreamEvent    FrameType = "stream_event"
)

// Frame is the envelope for every line read from the subprocess's
// stdout. Payload is decoded lazily into the variant matching Type.
type Frame struct {
	Type      FrameType       `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Errors    []string        `json:"errors,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
	Cost      *FrameCost      `json:"cost,omitempty"`
}

// FrameCost carries the per-turn usage/cost summary attached to a
// "result" frame.
type FrameCost struct {
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	CacheReadTokens  int64   `json:"cache_read_tokens"`
	CacheWriteTokens int64   `json:"cache_write_tokens"`
	TotalUSD         float64 `json:"total_usd"`
}

// AssistantMessage is the decoded payload of an "assistant" frame's
// Message field.
type AssistantMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model,omitempty"`
	Content []ContentBlock  `json:"content"`
	Usage   *json.RawMessage `json:"usage,omitempty"`
}

// ContentBlockType discriminates ContentBlock's closed set of variants.
type ContentBlockType string

const (
	BlockTypeText       ContentBlockType = "text"
	BlockTypeToolUse    ContentBlockType = "tool_use"
	BlockTypeToolResult ContentBlockType = "tool_result"
	BlockTypeThinking   ContentBlockType = "thinking"
)

// ContentBlock mirrors the agent CLI's content block shape (grounded in
// the Claude-CLI wrapper reference's ContentBlock struct).
type ContentBlock struct {
	Type      ContentBlockType `json:"type"`
	Text      string           `json:"text,omitempty"`
	Signature string           `json:"signature,omitempty"`
	ID        string           `json:"id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Input     json.RawMessage  `json:"input,omitempty"`
	ToolUseID string           `json:"tool_use_id,omitempty"`
	Content   string           `json:"content,omitempty"`
	IsError   bool             `json:"is_error,omitempty"`
}

// ControlRequest is the decoded payload of a "control_request" frame:
// the subprocess pausing to ask for a tool-use permission decision.
type ControlRequest struct {
	RequestID string          `json:"request_id"`
	ToolName  string          `json:"tool_name"`
	ToolUseID string          `json:"tool_use_id"`
	Input     json.RawMessage `json:"input"`
}

// ControlResponse answers a ControlRequest; it is written back to the
// subprocess's stdin as its own NDJSON line.
type ControlResponse struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Decision  string `json:"decision"` // "allow" | "deny"
	Reason    string `json:"reason,omitempty"`
}
