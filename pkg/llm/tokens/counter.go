// Package tokens estimates how many tokens a conversation history occupies.
package tokens

import (
	"sync"
	"sync/atomic"

	"github.com/entrhq/aqlmind/pkg/types"
	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultEncoding is the BPE used for counting. It is close enough for
	// budget reporting across providers.
	DefaultEncoding = "cl100k_base"

	// perMessageOverhead approximates the role and separator tokens each
	// chat message adds on the wire.
	perMessageOverhead = 4
)

// Counter counts tokens with tiktoken.
//
// tiktoken downloads its BPE ranks on first use with no deadline, so the
// encoding is loaded in the background. Until it is ready, or if it never
// loads (e.g. offline), counts use a four-characters-per-token estimate.
// Count never blocks on the network.
type Counter struct {
	encoding string
	loader   func(encoding string) (*tiktoken.Tiktoken, error)
	once     sync.Once
	enc      atomic.Pointer[tiktoken.Tiktoken]
}

// NewCounter creates a counter for the default encoding.
func NewCounter() *Counter {
	return &Counter{encoding: DefaultEncoding, loader: tiktoken.GetEncoding}
}

// NewEstimatingCounter creates a counter that never loads a tokenizer and
// always uses Estimate.
func NewEstimatingCounter() *Counter {
	return &Counter{}
}

// encoder returns the tokenizer if it has finished loading, starting the
// load on first call.
func (c *Counter) encoder() *tiktoken.Tiktoken {
	if c.loader == nil {
		return nil
	}
	c.once.Do(func() {
		go func() {
			if enc, err := c.loader(c.encoding); err == nil {
				c.enc.Store(enc)
			}
		}()
	})
	return c.enc.Load()
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// CountMessages returns the token count of a full message history.
func (c *Counter) CountMessages(messages []*types.Message) int {
	total := 0
	for _, msg := range messages {
		total += perMessageOverhead + c.Count(msg.Content)
	}
	return total
}

// Estimate approximates a token count from character length.
func Estimate(text string) int {
	return (len(text) + 3) / 4
}
