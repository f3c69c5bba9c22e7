// Package parser separates reasoning markup from reply text in LLM streams.
package parser

import (
	"strings"
	"unicode"

	"github.com/entrhq/aqlmind/pkg/llm"
)

// reasoningTags maps opening and closing reasoning tags to the state they set.
// Models served through OpenAI-compatible gateways use either spelling.
var reasoningTags = map[string]bool{
	"<thinking>":  true,
	"</thinking>": false,
	"<think>":     true,
	"</think>":    false,
}

// maxTagLen is the longest tag in reasoningTags. Anything longer after a
// '<' is ordinary text.
const maxTagLen = len("</thinking>")

// ThinkingParser splits streamed content into reasoning and reply text.
// It keeps state across chunks so tags split between two deltas are still
// recognised.
//
// Only a reasoning block that opens the reply is recognised; tags quoted
// later in the answer are ordinary text. Reasoning is held back until its
// closing tag arrives, and a block still open when the stream ends is
// released as reply text.
type ThinkingParser struct {
	// pending holds a possible tag, from '<' up to the current rune
	pending strings.Builder

	// reasoning holds the open block, starting with its opening tag
	reasoning  strings.Builder
	openTagLen int
	inThinking bool

	// replied is set once reply text other than whitespace was produced
	replied bool
}

// NewThinkingParser creates a new thinking parser.
func NewThinkingParser() *ThinkingParser {
	return &ThinkingParser{}
}

// split collects the text produced by one Parse or Flush call.
type split struct {
	thinking strings.Builder
	message  strings.Builder
}

func (s *split) chunks() (thinkingChunk, messageChunk *llm.StreamChunk) {
	if s.thinking.Len() > 0 {
		thinkingChunk = &llm.StreamChunk{Content: s.thinking.String(), Type: llm.ContentTypeThinking}
	}
	if s.message.Len() > 0 {
		messageChunk = &llm.StreamChunk{Content: s.message.String(), Type: llm.ContentTypeMessage}
	}
	return thinkingChunk, messageChunk
}

// text routes ordinary text to the open block or to the reply.
func (p *ThinkingParser) text(out *split, t string) {
	if p.inThinking {
		p.reasoning.WriteString(t)
		return
	}
	if strings.TrimSpace(t) != "" {
		p.replied = true
	}
	out.message.WriteString(t)
}

// tag handles a complete "<...>" token.
func (p *ThinkingParser) tag(out *split, t string) {
	opens, known := reasoningTags[strings.ToLower(t)]
	switch {
	case known && opens && !p.inThinking && !p.replied:
		p.inThinking = true
		p.reasoning.WriteString(t)
		p.openTagLen = len(t)
	case known && !opens && p.inThinking:
		out.thinking.WriteString(p.reasoning.String()[p.openTagLen:])
		p.reasoning.Reset()
		p.inThinking = false
	default:
		p.text(out, t)
	}
}

// Parse consumes a content delta. Either result may be nil, for example
// while a possible tag or a reasoning block is still incomplete.
func (p *ThinkingParser) Parse(content string) (thinkingChunk, messageChunk *llm.StreamChunk) {
	var out split

	for _, ch := range content {
		switch {
		case ch == '<':
			p.release(&out)
			p.pending.WriteRune(ch)

		case p.pending.Len() == 0:
			p.text(&out, string(ch))

		case ch == '>':
			p.pending.WriteRune(ch)
			t := p.pending.String()
			p.pending.Reset()
			p.tag(&out, t)

		default:
			p.pending.WriteRune(ch)
			if unicode.IsSpace(ch) || p.pending.Len() > maxTagLen {
				p.release(&out)
			}
		}
	}

	return out.chunks()
}

// release gives up on the pending text being a tag.
func (p *ThinkingParser) release(out *split) {
	if p.pending.Len() == 0 {
		return
	}
	t := p.pending.String()
	p.pending.Reset()
	p.text(out, t)
}

// Flush returns everything still held back. Call it at the end of a stream.
func (p *ThinkingParser) Flush() (thinkingChunk, messageChunk *llm.StreamChunk) {
	var out split
	p.release(&out)
	if p.inThinking {
		// Never closed, so it was not a reasoning block.
		out.message.WriteString(p.reasoning.String())
		p.reasoning.Reset()
		p.inThinking = false
	}
	return out.chunks()
}
