package protocol

// UserMessage is the NDJSON frame written to the subprocess's stdin to
// submit a user turn (grounded in the Claude-CLI wrapper's
// stdinUserMessage/stdinMessageInner pair).
type UserMessage struct {
	Type    string          `json:"type"`
	Message UserMessageBody `json:"message"`
}

// UserMessageBody is the inner payload of a UserMessage.
type UserMessageBody struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewUserTextMessage builds a single-block text UserMessage, the common
// case for submitting a plain prompt.
func NewUserTextMessage(text string) UserMessage {
	return UserMessage{
		Type: "user",
		Message: UserMessageBody{
			Role: "user",
			Content: []ContentBlock{
				{Type: BlockTypeText, Text: text},
			},
		},
	}
}

// InterruptMessage is written to stdin to request cooperative
// cancellation of the in-flight turn.
type InterruptMessage struct {
	Type string `json:"type"`
}

// NewInterruptMessage builds the standard interrupt control frame.
func NewInterruptMessage() InterruptMessage {
	return InterruptMessage{Type: "control_interrupt"}
}
