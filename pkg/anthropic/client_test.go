package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost_KnownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 500_000}
	cost := u.EstimateCost("claude-sonnet-4-5-20250929")
	// 1M input at $3 + 0.5M output at $15 = 10.50
	assert.InDelta(t, 10.50, cost, 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1000, OutputTokens: 1000}
	assert.Equal(t, 0.0, u.EstimateCost("some-future-model"))
}

func TestToSDKMessages_RolesAndImages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Text: "what is this item?", Images: [][]byte{{0xFF, 0xD8}}},
		{Role: "assistant", Text: "a watch"},
	})

	assert.Len(t, msgs, 2)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	// image block precedes the text block
	assert.Len(t, msgs[0].Content, 2)
	assert.Len(t, msgs[1].Content, 1)
}
