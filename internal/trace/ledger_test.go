package trace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cognitive_trace.json")
}

func TestLedger_RecordAndSnapshotOrder(t *testing.T) {
	l := NewLedger(ledgerPath(t))

	l.Record("PIPELINE", "INGEST_START", LevelInfo, nil)
	l.Record("SECURITY", "PATTERN_STRIPPED", LevelWarning, map[string]any{"pattern": "<script>"})
	l.Record("PIPELINE", "RUN_FAILED", LevelCritical, nil)

	got := l.Snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, "INGEST_START", got[0].Event)
	assert.Equal(t, "PATTERN_STRIPPED", got[1].Event)
	assert.Equal(t, "RUN_FAILED", got[2].Event)
	assert.Equal(t, LevelCritical, got[2].Level)
	assert.GreaterOrEqual(t, got[2].ElapsedMS, got[0].ElapsedMS)
}

func TestLedger_ConcurrentRecordIsSafe(t *testing.T) {
	l := NewLedger(ledgerPath(t))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l.Record("DESIGN", "VARIANT_SYNTHESIS", LevelInfo, map[string]any{"slot": n})
		}(i)
	}
	wg.Wait()

	assert.Len(t, l.Snapshot(), 50)
}

func TestLedger_FlushWritesWrappedShape(t *testing.T) {
	path := ledgerPath(t)
	l := NewLedger(path)
	l.Record("PIPELINE", "FINALIZE", LevelInfo, nil)
	require.NoError(t, l.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	_, ok := doc["logs"]
	assert.True(t, ok, "writer must emit the wrapped form")
}

func TestLedger_DoubleFlushDoesNotDuplicate(t *testing.T) {
	path := ledgerPath(t)
	l := NewLedger(path)
	l.Record("PIPELINE", "INGEST", LevelInfo, nil)
	require.NoError(t, l.Flush())
	l.Record("PIPELINE", "FINALIZE", LevelInfo, nil)
	require.NoError(t, l.Flush())

	entries, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "INGEST", entries[0].Event)
	assert.Equal(t, "FINALIZE", entries[1].Event)
}

func TestLedger_FlushMergesPriorRuns(t *testing.T) {
	path := ledgerPath(t)

	first := NewLedger(path)
	first.Record("PIPELINE", "OLD_RUN", LevelInfo, nil)
	require.NoError(t, first.Flush())

	second := NewLedger(path)
	second.Record("PIPELINE", "NEW_RUN", LevelInfo, nil)
	require.NoError(t, second.Flush())

	entries, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "OLD_RUN", entries[0].Event)
	assert.Equal(t, "NEW_RUN", entries[1].Event)
}

func TestReadFile_AcceptsBareArrayAndWrappedObject(t *testing.T) {
	want := []Entry{{Agent: "UI_UX_DESIGNER", Event: "SELF_HEALING_TRIGGER", Level: LevelWarning}}

	bare, err := json.Marshal(want)
	require.NoError(t, err)
	wrappedDoc, err := json.Marshal(map[string]any{"logs": want})
	require.NoError(t, err)

	for name, payload := range map[string][]byte{"bare": bare, "wrapped": wrappedDoc} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "trace.json")
			require.NoError(t, os.WriteFile(path, payload, 0644))

			got, err := ReadFile(path)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("normalized entries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadFile_MissingFileIsEmpty(t *testing.T) {
	got, err := ReadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadFile_GarbageIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	_, err := ReadFile(path)
	assert.Error(t, err)
}
