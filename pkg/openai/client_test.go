package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)

		json.NewEncoder(w).Encode(ChatCompletionResponse{
			ID: "chatcmpl-1",
			Choices: []Choice{{
				Message: ChoiceMessage{Role: "assistant", Content: `{"item_name":"vase"}`},
			}},
			Usage: Usage{PromptTokens: 10, CompletionTokens: 5},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{TextMessage("user", "appraise this")},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, `{"item_name":"vase"}`, resp.Choices[0].Message.Content)
}

func TestChatCompletion_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 429")
}

func TestVisionMessage_ImagePartsPrecedeText(t *testing.T) {
	m := VisionMessage("identify", [][]byte{{1, 2}, {3, 4}})
	require.Len(t, m.Content, 3)
	assert.Equal(t, "image_url", m.Content[0].Type)
	assert.Equal(t, "image_url", m.Content[1].Type)
	assert.Equal(t, "text", m.Content[2].Type)
	assert.Contains(t, m.Content[0].ImageURL.URL, "data:image/jpeg;base64,")
}
