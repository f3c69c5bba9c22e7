// Package llm defines the provider abstraction used to ask an LLM for the
// next assistant turn of a page-grounded conversation.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := provider.Complete(ctx, []*types.Message{
//	    types.NewSystemMessage("Answer from this page: ..."),
//	    types.NewUserMessage("What does it say?"),
//	})
package llm

import (
	"context"

	"github.com/entrhq/aqlmind/pkg/types"
)

// Provider defines the interface for LLM integrations.
//
// Providers only translate a message history into an API call and return the
// reply. Conversation state lives in the session store; providers never keep
// history between calls.
type Provider interface {
	// Complete sends messages to the LLM and returns the full reply.
	// Reasoning content is not part of the returned message, and an empty
	// reply is an error.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// GetModel returns the model name being used.
	GetModel() string
}
