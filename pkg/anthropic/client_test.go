package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "hello"},
			{Type: "text", Text: ""},
			{Type: "text", Text: "world"},
		},
	}
	assert.Equal(t, "hello\nworld", resp.Text())
}

func TestMessageResponse_Text_Nil(t *testing.T) {
	var resp *MessageResponse
	assert.Equal(t, "", resp.Text())
}

func TestToSDKMessages_Roles(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "", Content: "defaults to user"},
	})
	assert.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
}

func TestToSDKSystemBlocks_CacheControl(t *testing.T) {
	blocks := toSDKSystemBlocks(BuildCachedSystemBlocks("system prompt"))
	assert.Len(t, blocks, 1)
	assert.Equal(t, "system prompt", blocks[0].Text)
	assert.Equal(t, "5m", string(blocks[0].CacheControl.TTL))
}

func TestToSDKParams_Temperature(t *testing.T) {
	temp := 0.7
	params := toSDKParams(MessageRequest{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   256,
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: &temp,
	})
	assert.Equal(t, int64(256), params.MaxTokens)
	assert.True(t, params.Temperature.Valid())
	assert.InDelta(t, 0.7, params.Temperature.Value, 0.001)
}
