// Package types holds the message and model types shared by the LLM
// providers, the session store and the front-ends.
package types

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"    // RoleSystem carries instructions and grounding content.
	RoleUser      MessageRole = "user"      // RoleUser is a message typed by the user.
	RoleAssistant MessageRole = "assistant" // RoleAssistant is a reply produced by the LLM.
)

// Message is a single role-tagged entry sent to or received from an LLM.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// CloneMessages returns a deep copy of msgs.
func CloneMessages(msgs []*Message) []*Message {
	cloned := make([]*Message, len(msgs))
	for i, msg := range msgs {
		m := *msg
		cloned[i] = &m
	}
	return cloned
}
