package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leoalsantos/custosmart-chat/internal/types"
)

func TestPrintCursorUnseen(t *testing.T) {
	t.Run("returns only appended messages", func(t *testing.T) {
		var cur printCursor
		msgs := []types.ChatMessage{{Id: 1, Content: "a"}, {Id: 2, Content: "b"}}

		out := cur.unseen(1, msgs)
		require.Len(t, out, 2)

		out = cur.unseen(1, msgs)
		assert.Empty(t, out, "expected no repeats without new messages")

		msgs = append(msgs, types.ChatMessage{Id: 3, Content: "c"})
		out = cur.unseen(1, msgs)
		require.Len(t, out, 1)
		assert.Equal(t, "c", out[0].Content)
	})

	t.Run("optimistic echo does not block later messages", func(t *testing.T) {
		var cur printCursor

		// a locally sent message carries a timestamp id until the
		// server echo replaces it in place with a small sequential id
		optimistic := types.ChatMessage{Id: 1756600000000, UserId: 1, Content: "mine", CorrelationId: "c1"}
		out := cur.unseen(1, []types.ChatMessage{optimistic})
		require.Len(t, out, 1)

		confirmed := optimistic
		confirmed.Id = 1
		out = cur.unseen(1, []types.ChatMessage{confirmed})
		assert.Empty(t, out, "in-place replacement is not a new message")

		peer := types.ChatMessage{Id: 2, UserId: 2, Content: "theirs"}
		out = cur.unseen(1, []types.ChatMessage{confirmed, peer})
		require.Len(t, out, 1, "expected the peer's message despite its smaller id")
		assert.Equal(t, "theirs", out[0].Content)
	})

	t.Run("room switch resets the position", func(t *testing.T) {
		var cur printCursor
		cur.unseen(1, []types.ChatMessage{{Id: 1}, {Id: 2}})

		out := cur.unseen(2, []types.ChatMessage{{Id: 3}})
		require.Len(t, out, 1)
		assert.Equal(t, 3, out[0].Id)
	})

	t.Run("shrunk history resets the position", func(t *testing.T) {
		var cur printCursor
		cur.unseen(1, []types.ChatMessage{{Id: 1}, {Id: 2}, {Id: 3}})

		out := cur.unseen(1, []types.ChatMessage{{Id: 1}})
		require.Len(t, out, 1)
	})
}
