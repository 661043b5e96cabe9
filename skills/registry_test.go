package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/store/sqlite"
)

type stubSkill struct {
	meta apitypes.SkillMetadata
}

func (s stubSkill) Metadata() apitypes.SkillMetadata                 { return s.meta }
func (s stubSkill) ValidateInputs(map[string]any) error              { return nil }
func (s stubSkill) CheckConfig() error                               { return nil }
func (s stubSkill) Execute(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func newTestRegistry(t *testing.T) (*Registry, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil, t.TempDir(), nil), db
}

// TestRetrieveRelevantDiversity mirrors the spec's worked example: three
// "web" skills and one "io" skill. With no category filter, retrieval
// must never return two web skills ahead of the relevant io skill.
func TestRetrieveRelevantDiversity(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	register := func(name, category, description string) {
		require.NoError(t, r.Register(ctx, stubSkill{meta: apitypes.SkillMetadata{
			Name: name, Category: category, Description: description,
		}}))
	}
	register("web-summarize", "web", "summarise document content from the web")
	register("web-fetch", "web", "fetch document pages from the web")
	register("web-render", "web", "render document preview from the web")
	register("io-read", "io", "read and summarise a local document file")

	results, err := r.RetrieveRelevant(ctx, "summarise this document", 3, "", "")
	require.NoError(t, err)

	categories := make(map[string]int)
	for _, m := range results {
		categories[m.Category]++
	}
	for cat, count := range categories {
		require.LessOrEqualf(t, count, 1, "category %s returned more than once", cat)
	}
	require.Contains(t, categories, "io")
}

func TestRegisterAndGet(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, stubSkill{meta: apitypes.SkillMetadata{Name: "echo", Description: "echoes input"}}))

	got, err := r.Get("echo")
	require.NoError(t, err)
	require.Equal(t, "echo", got.Metadata().Name)

	_, err = r.Get("missing")
	require.Error(t, err)
}

func TestUpdateConfigMerges(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, stubSkill{meta: apitypes.SkillMetadata{Name: "cfg", Description: "configurable"}}))

	merged, err := r.UpdateConfig(ctx, "cfg", map[string]any{"timeout": float64(30)})
	require.NoError(t, err)
	require.Equal(t, float64(30), merged["timeout"])

	merged, err = r.UpdateConfig(ctx, "cfg", map[string]any{"retries": float64(2)})
	require.NoError(t, err)
	require.Equal(t, float64(30), merged["timeout"])
	require.Equal(t, float64(2), merged["retries"])
}
