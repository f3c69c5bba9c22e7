package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/entrhq/aqlmind/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_RequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewProvider("")
	assert.Error(t, err)

	p, err := NewProvider("sk-ant-test", WithModel("claude-test"))
	require.NoError(t, err)
	assert.Equal(t, "claude-test", p.GetModel())
	assert.Empty(t, p.baseURL, "SDK default host")
}

func TestConvertMessages(t *testing.T) {
	system, params := convertMessages([]*types.Message{
		types.NewSystemMessage("page content"),
		types.NewUserMessage("q1"),
		types.NewAssistantMessage("a1"),
		types.NewUserMessage("q2"),
	})

	require.Len(t, system, 1)
	assert.Equal(t, "page content", system[0].Text)
	assert.Len(t, params, 3)
}

func TestComplete(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &received)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "It says Hi"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`)
	}))
	defer srv.Close()

	p, err := NewProvider("sk-ant-test", WithBaseURL(srv.URL), WithModel("claude-test"))
	require.NoError(t, err)

	reply, err := p.Complete(context.Background(), []*types.Message{
		types.NewSystemMessage("page: <html>Hi</html>"),
		types.NewUserMessage("What does it say?"),
	})
	require.NoError(t, err)
	assert.Equal(t, "It says Hi", reply.Content)
	assert.Equal(t, types.RoleAssistant, reply.Role)

	assert.Equal(t, "claude-test", received["model"])
	assert.NotNil(t, received["system"])
	assert.Len(t, received["messages"], 1)
}

func TestComplete_RequiresUserTurn(t *testing.T) {
	p, err := NewProvider("sk-ant-test")
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []*types.Message{types.NewSystemMessage("only system")})
	assert.Error(t, err)
}
