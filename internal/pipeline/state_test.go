package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stitcher/internal/design"
)

func TestStateStore_LoadMissingFileDefaults(t *testing.T) {
	store := NewStateStore(t.TempDir())

	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state.CompletedSteps)
	assert.Empty(t, state.CachedPlan)
	assert.Nil(t, state.CachedVariantSet)
}

func TestStateStore_MarkCompletePersistsBeforeReturning(t *testing.T) {
	ws := t.TempDir()
	store := NewStateStore(ws)

	plan := LayoutPlan{"hero", "pricing"}
	require.NoError(t, store.MarkComplete("ORCHESTRATE", plan))

	// A fresh store against the same path must see the committed stage and
	// payload: the write is synchronous, not deferred.
	fresh := NewStateStore(ws)
	state, err := fresh.Load()
	require.NoError(t, err)
	assert.Contains(t, state.CompletedSteps, "ORCHESTRATE")
	if diff := cmp.Diff(plan, state.CachedPlan); diff != "" {
		t.Errorf("cached plan mismatch (-want +got):\n%s", diff)
	}
}

func TestStateStore_PayloadRouting(t *testing.T) {
	ws := t.TempDir()
	store := NewStateStore(ws)

	variants := design.VariantSet{design.FallbackToken(0), design.FallbackToken(1)}
	require.NoError(t, store.MarkComplete("DESIGN_SELECT", variants))
	require.NoError(t, store.MarkComplete("ORCHESTRATE", []string{"hero"}))
	require.NoError(t, store.MarkComplete("FINALIZE", nil))

	state, err := NewStateStore(ws).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"DESIGN_SELECT", "ORCHESTRATE", "FINALIZE"}, state.CompletedSteps)
	assert.Equal(t, LayoutPlan{"hero"}, state.CachedPlan)
	assert.Len(t, state.CachedVariantSet, 2)
	assert.Equal(t, "Stable_Default_1", state.CachedVariantSet[1].VariantName)
}

func TestStateStore_UncacheablePayloadRejected(t *testing.T) {
	store := NewStateStore(t.TempDir())
	assert.Error(t, store.MarkComplete("ORCHESTRATE", 42))
}

func TestStateStore_MarkCompleteIdempotent(t *testing.T) {
	store := NewStateStore(t.TempDir())

	require.NoError(t, store.MarkComplete("INGEST", nil))
	require.NoError(t, store.MarkComplete("INGEST", nil))

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"INGEST"}, state.CompletedSteps)
}

func TestStateStore_IsComplete(t *testing.T) {
	ws := t.TempDir()
	store := NewStateStore(ws)

	assert.False(t, store.IsComplete("ORCHESTRATE"))
	require.NoError(t, store.MarkComplete("ORCHESTRATE", LayoutPlan{"hero"}))
	assert.True(t, store.IsComplete("ORCHESTRATE"))

	// Visible across store instances, i.e. across runs.
	assert.True(t, NewStateStore(ws).IsComplete("ORCHESTRATE"))
}

func TestStateStore_CachedPlanAcceptsBothDocumentedShapes(t *testing.T) {
	write := func(t *testing.T, doc string) string {
		t.Helper()
		ws := t.TempDir()
		path := filepath.Join(ws, ".stitcher", "pipeline_state.json")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
		return ws
	}

	t.Run("array form", func(t *testing.T) {
		ws := write(t, `{"completed_steps":["ORCHESTRATE"],"cached_plan":["hero","pricing"],"cached_variant_set":null}`)
		state, err := NewStateStore(ws).Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"ORCHESTRATE"}, state.CompletedSteps)
		assert.Equal(t, LayoutPlan{"hero", "pricing"}, state.CachedPlan)
	})

	// A string-valued cached_plan must not take the completed-steps record
	// down with it: the plan is coerced, resumability survives.
	t.Run("string form", func(t *testing.T) {
		ws := write(t, `{"completed_steps":["ORCHESTRATE"],"cached_plan":"[hero, pricing]","cached_variant_set":null}`)
		state, err := NewStateStore(ws).Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"ORCHESTRATE"}, state.CompletedSteps)
		assert.Equal(t, LayoutPlan{"hero", "pricing"}, state.CachedPlan)
		assert.True(t, NewStateStore(ws).IsComplete("ORCHESTRATE"))
	})
}

func TestStateStore_CorruptFileDefaultsWithError(t *testing.T) {
	ws := t.TempDir()
	path := filepath.Join(ws, ".stitcher", "pipeline_state.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	state, err := NewStateStore(ws).Load()
	assert.Error(t, err)
	require.NotNil(t, state)
	assert.Empty(t, state.CompletedSteps)
}

func TestStateStore_LastWriterWins(t *testing.T) {
	ws := t.TempDir()

	require.NoError(t, NewStateStore(ws).MarkComplete("ORCHESTRATE", LayoutPlan{"hero"}))
	require.NoError(t, NewStateStore(ws).MarkComplete("ORCHESTRATE", LayoutPlan{"footer"}))

	state, err := NewStateStore(ws).Load()
	require.NoError(t, err)
	assert.Equal(t, LayoutPlan{"footer"}, state.CachedPlan)
	assert.Equal(t, []string{"ORCHESTRATE"}, state.CompletedSteps)
}
