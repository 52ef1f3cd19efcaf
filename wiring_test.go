package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiPoolKeepsKeysApart(t *testing.T) {
	ctx := context.Background()
	pool := &geminiPool{}

	embed, err := pool.clientFor(ctx, "gemini", "embed-key")
	require.NoError(t, err)
	chat, err := pool.clientFor(ctx, "gemini", "chat-key")
	require.NoError(t, err)
	again, err := pool.clientFor(ctx, "gemini", "embed-key")
	require.NoError(t, err)

	assert.NotSame(t, embed, chat)
	assert.Same(t, embed, again)
	assert.Equal(t, "chat-key", chat.ClientConfig().APIKey)

	none, err := pool.clientFor(ctx, "groq", "groq-key")
	require.NoError(t, err)
	assert.Nil(t, none)
}
