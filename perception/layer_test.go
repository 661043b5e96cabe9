package perception

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/store/sqlite"
)

type stubModule struct {
	meta   apitypes.PerceptionMetadata
	result any
}

func (m stubModule) Metadata() apitypes.PerceptionMetadata  { return m.meta }
func (m stubModule) Connect(context.Context) error          { return nil }
func (m stubModule) Disconnect(context.Context) error       { return nil }
func (m stubModule) Perceive(context.Context, string) (any, error) {
	return m.result, nil
}

func newTestLayer(t *testing.T) *Layer {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil, nil)
}

func TestRegisterAndPerceive(t *testing.T) {
	l := newTestLayer(t)
	ctx := context.Background()

	require.NoError(t, l.Register(ctx, stubModule{
		meta:   apitypes.PerceptionMetadata{Name: "system_monitor", Description: "system health"},
		result: map[string]any{"cpu": 10},
	}))

	result, err := l.Perceive(ctx, "system_monitor", "")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"cpu": 10}, result)
}

func TestPerceiveUnknownModuleErrors(t *testing.T) {
	l := newTestLayer(t)
	_, err := l.Perceive(context.Background(), "missing", "")
	require.Error(t, err)
}

func TestSearchSensorsDiversityAcrossCategories(t *testing.T) {
	l := newTestLayer(t)
	ctx := context.Background()

	register := func(name, category, description string) {
		require.NoError(t, l.Register(ctx, stubModule{
			meta: apitypes.PerceptionMetadata{Name: name, Category: category, Description: description},
		}))
	}
	register("weather_monitor", "environment", "monitors local weather conditions")
	register("weather_alt", "environment", "monitors regional weather patterns")
	register("system_monitor", "system", "provides real time system metrics")

	results, err := l.SearchSensors(ctx, "weather conditions", 2)
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 2)

	categories := make(map[string]bool)
	for _, name := range results {
		for _, m := range []apitypes.PerceptionMetadata{
			{Name: "weather_monitor", Category: "environment"},
			{Name: "weather_alt", Category: "environment"},
			{Name: "system_monitor", Category: "system"},
		} {
			if m.Name == name {
				require.False(t, categories[m.Category], "diversity filter must not return two sensors from the same category")
				categories[m.Category] = true
			}
		}
	}
}

func TestSearchSensorsEmptyQueryReturnsAll(t *testing.T) {
	l := newTestLayer(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, stubModule{meta: apitypes.PerceptionMetadata{Name: "a"}}))
	require.NoError(t, l.Register(ctx, stubModule{meta: apitypes.PerceptionMetadata{Name: "b"}}))

	results, err := l.SearchSensors(ctx, "", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestGroundingCallbackDoesNotBlockOrFailPerceive(t *testing.T) {
	l := newTestLayer(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, stubModule{
		meta:   apitypes.PerceptionMetadata{Name: "system_monitor"},
		result: map[string]any{"ok": true},
	}))

	l.SetGroundingCallback(func(name string, result any) {
		panic("grounding callback failures must never surface to Perceive")
	})

	result, err := l.Perceive(ctx, "system_monitor", "")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"ok": true}, result)
}

func TestAvailableSensorsListsRegisteredModules(t *testing.T) {
	l := newTestLayer(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, stubModule{meta: apitypes.PerceptionMetadata{Name: "a", Description: "desc a"}}))

	sensors := l.AvailableSensors()
	require.Equal(t, "desc a", sensors["a"])
}
