package llm

// ContentType distinguishes reasoning output from the visible reply.
type ContentType string

const (
	// ContentTypeMessage is reply text shown to the user and kept in history.
	ContentTypeMessage ContentType = "message"

	// ContentTypeThinking is reasoning emitted inside <thinking> or <think> tags.
	ContentTypeThinking ContentType = "thinking"
)

// StreamChunk is one piece of a streamed completion.
type StreamChunk struct {
	// Error is set when the stream failed; no further chunks follow.
	Error error

	// Content is the text delta carried by this chunk.
	Content string

	// Role is set on the first chunk of a reply.
	Role string

	// Type marks Content as reply text or reasoning.
	Type ContentType

	// Finished is true on the last chunk of a successful stream.
	Finished bool
}

// IsError reports whether the chunk carries a stream error.
func (c *StreamChunk) IsError() bool {
	return c.Error != nil
}

// IsThinking reports whether the chunk carries reasoning content.
func (c *StreamChunk) IsThinking() bool {
	return c.Type == ContentTypeThinking
}
