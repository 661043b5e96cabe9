package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/model"
	"github.com/kanephamphu/connex-agi/store/sqlite"
)

func TestShortTermRingEviction(t *testing.T) {
	st := NewShortTerm(2, nil)
	st.Add(apitypes.ConversationTurn{Goal: "a", Result: "1"})
	st.Add(apitypes.ConversationTurn{Goal: "b", Result: "2"})
	st.Add(apitypes.ConversationTurn{Goal: "c", Result: "3"})

	wm := st.WorkingMemory()
	require.Len(t, wm.Turns, 2)
	require.Equal(t, "b", wm.Turns[0].Goal)
	require.Equal(t, "c", wm.Turns[1].Goal)
}

type fakeSummarizer struct {
	chatReply string
	vectors   map[string][]float32
}

func (f *fakeSummarizer) Chat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int) (string, error) {
	return f.chatReply, nil
}

func (f *fakeSummarizer) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vectors[text], nil
}

func TestShortTermUpdateSummary(t *testing.T) {
	fs := &fakeSummarizer{chatReply: "condensed"}
	st := NewShortTerm(5, fs)
	st.Add(apitypes.ConversationTurn{Goal: "hello", Result: "hi there"})

	require.NoError(t, st.UpdateSummary(context.Background()))
	require.Equal(t, "condensed", st.WorkingMemory().Summary)
}

func TestLongTermStoreAndRecall(t *testing.T) {
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer db.Close()

	fs := &fakeSummarizer{vectors: map[string][]float32{
		"the sky is blue":        {1, 0, 0},
		"oceans are full of fish": {0, 1, 0},
		"sky":                    {1, 0, 0},
	}}
	lt := NewLongTerm(db, fs)
	ctx := context.Background()

	_, err = lt.Store(ctx, "the sky is blue", nil)
	require.NoError(t, err)
	_, err = lt.Store(ctx, "oceans are full of fish", nil)
	require.NoError(t, err)

	results, err := lt.Recall(ctx, "sky", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "the sky is blue", results[0].Content)
}

func TestLongTermDelete(t *testing.T) {
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer db.Close()

	lt := NewLongTerm(db, nil)
	ctx := context.Background()
	id, err := lt.Store(ctx, "ephemeral note", nil)
	require.NoError(t, err)
	require.NoError(t, lt.Delete(ctx, id))

	all, err := db.AllMemories(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}
