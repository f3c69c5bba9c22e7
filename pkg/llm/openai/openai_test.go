package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/entrhq/aqlmind/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseServer serves the given data payloads as a chat completions stream and
// records the last request body.
func sseServer(t *testing.T, payloads []string, body *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if body != nil {
			*body = raw
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func delta(role, content string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"role":%q,"content":%q},"finish_reason":null}]}`, role, content)
}

func TestNewProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	_, err := NewProvider("")
	assert.Error(t, err)

	p, err := NewProvider("test-key", WithModel("gemini-2.0-flash"), WithBaseURL("https://example.test/v1/"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", p.GetModel())
	assert.Equal(t, "https://example.test/v1", p.baseURL)
}

func TestNewProvider_EnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OPENAI_BASE_URL", "https://env.test/v1")

	p, err := NewProvider("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.test/v1", p.baseURL)
	assert.Equal(t, DefaultModel, p.GetModel())
}

func TestComplete(t *testing.T) {
	var body []byte
	srv := sseServer(t, []string{
		delta("assistant", ""),
		delta("", "It says "),
		delta("", "Hi"),
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	}, &body)
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL), WithModel("test-model"))
	require.NoError(t, err)

	history := []*types.Message{
		types.NewSystemMessage("page: <html>Hi</html>"),
		types.NewUserMessage("What does it say?"),
	}
	reply, err := p.Complete(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAssistant, reply.Role)
	assert.Equal(t, "It says Hi", reply.Content)

	var req struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, "test-model", req.Model)
	assert.True(t, req.Stream)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Contains(t, string(body), "What does it say?")
}

func TestComplete_DropsReasoning(t *testing.T) {
	srv := sseServer(t, []string{
		delta("assistant", "<think>the page has one word"),
		delta("", "</think>"),
		delta("", "It says Hi"),
	}, nil)
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	reply, err := p.Complete(context.Background(), []*types.Message{types.NewUserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, "It says Hi", reply.Content)
}

func TestComplete_QuotedTagKept(t *testing.T) {
	const answer = "The page explains the <think> tag used by reasoning models, then lists three examples."
	srv := sseServer(t, []string{delta("assistant", answer)}, nil)
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	reply, err := p.Complete(context.Background(), []*types.Message{types.NewUserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, answer, reply.Content)
}

func TestComplete_EmptyReply(t *testing.T) {
	tests := []struct {
		name     string
		payloads []string
	}{
		{"no content", nil},
		{"role only", []string{delta("assistant", ""), `{"choices":[{"delta":{},"finish_reason":"stop"}]}`}},
		{"whitespace", []string{delta("assistant", "  \n ")}},
		{"reasoning only", []string{delta("assistant", "<think>nothing to say</think>")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := sseServer(t, tt.payloads, nil)
			defer srv.Close()

			p, err := NewProvider("test-key", WithBaseURL(srv.URL))
			require.NoError(t, err)

			reply, err := p.Complete(context.Background(), []*types.Message{types.NewUserMessage("q")})
			assert.ErrorIs(t, err, ErrEmptyCompletion)
			assert.Nil(t, reply)
		})
	}
}

func TestComplete_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []*types.Message{types.NewUserMessage("q")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestComplete_StreamError(t *testing.T) {
	srv := sseServer(t, []string{
		delta("assistant", "partial"),
		`{"error":{"message":"quota exceeded"}}`,
	}, nil)
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []*types.Message{types.NewUserMessage("q")})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "quota exceeded"))
}

func TestDataField(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{line: `data: {"x":1}`, want: `{"x":1}`, ok: true},
		{line: `data:[DONE]`, want: "[DONE]", ok: true},
		{line: "", ok: false},
		{line: ": keep-alive", ok: false},
		{line: "event: message", ok: false},
	}

	for _, tt := range tests {
		got, ok := dataField(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestStreamCompletion_Chunks(t *testing.T) {
	srv := sseServer(t, []string{
		delta("assistant", "<think>hmm</think>It says "),
		delta("", "Hi"),
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	}, nil)
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	stream, err := p.StreamCompletion(context.Background(), []*types.Message{types.NewUserMessage("q")})
	require.NoError(t, err)

	var chunks []string
	var thinking, role string
	finished := 0
	for c := range stream {
		require.False(t, c.IsError(), "unexpected error: %v", c.Error)
		if c.Role != "" && role == "" {
			role = c.Role
		}
		if c.Finished {
			finished++
			continue
		}
		if c.IsThinking() {
			thinking += c.Content
			continue
		}
		chunks = append(chunks, c.Content)
	}

	assert.Equal(t, "assistant", role)
	assert.Equal(t, "hmm", thinking)
	assert.Equal(t, "It says Hi", strings.Join(chunks, ""))
	assert.Equal(t, 2, finished, "finish_reason stop and [DONE] both mark the end")
}
