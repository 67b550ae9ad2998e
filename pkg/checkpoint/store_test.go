package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserpilot/pkg/action"
)

func sampleCheckpoint() *Checkpoint {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	click := action.New(action.ClickAt, map[string]any{"x": 500, "y": 250})

	return &Checkpoint{
		SessionID:         "sess-1",
		Goal:              "Resume me later",
		Provider:          "gemini",
		Model:             "gemini-2.5-computer-use-preview-10-2025",
		CreatedAt:         created,
		UpdatedAt:         created.Add(3 * time.Second),
		Steps:             1,
		MaxSteps:          3,
		LastURL:           "https://example.com/",
		URLStabilityCount: 1,
		Actions:           []string{"navigate https://example.com/", click.String()},
		PagesVisited:      []string{"https://example.com/"},
		ActionHistory: []HistoryEntry{
			NewHistoryEntry(click, "https://example.com/", created.Add(2*time.Second)),
		},
	}
}

func TestFileStore_RoundTripIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a", FileName)
	second := filepath.Join(dir, "b", FileName)
	store := NewFileStore()

	require.NoError(t, store.Save(first, sampleCheckpoint()))
	loaded := store.Load(first)
	require.NotNil(t, loaded)
	require.NoError(t, store.Save(second, loaded))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestFileStore_LoadRestoresFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	store := NewFileStore()
	want := sampleCheckpoint()

	require.NoError(t, store.Save(path, want))
	got := store.Load(path)
	require.NotNil(t, got)

	assert.Equal(t, Version, got.Version)
	// Numbers come back from JSON as float64; signatures do not change.
	opts := cmp.Options{
		cmp.FilterPath(func(p cmp.Path) bool { return p.Last().String() == ".Args" }, cmp.Ignore()),
		cmp.FilterPath(func(p cmp.Path) bool { return p.Last().String() == ".Version" }, cmp.Ignore()),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("loaded checkpoint mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, float64(500), got.ActionHistory[0].Args["x"])
}

func TestFileStore_SaveDoesNotMutate(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cp := sampleCheckpoint()
	cp.Version = 0

	require.NoError(t, NewFileStore().Save(path, cp))
	assert.Equal(t, 0, cp.Version)
}

func TestFileStore_SaveCreatesParentsAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := DefaultPath(filepath.Join(dir, "sessions"), "abc")

	require.NoError(t, NewFileStore().Save(path, sampleCheckpoint()))
	assert.FileExists(t, path)
	assert.NoFileExists(t, path+".tmp")
}

func TestFileStore_SaveRejectsBadInput(t *testing.T) {
	store := NewFileStore()
	assert.Error(t, store.Save("", sampleCheckpoint()))
	assert.Error(t, store.Save(filepath.Join(t.TempDir(), FileName), nil))
}

func TestFileStore_LoadReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore()

	t.Run("missing", func(t *testing.T) {
		assert.Nil(t, store.Load(filepath.Join(dir, "nope.json")))
	})

	t.Run("corrupt", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
		assert.Nil(t, store.Load(path))
	})

	t.Run("version mismatch", func(t *testing.T) {
		path := filepath.Join(dir, "v2.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"version":2,"goal":"x"}`), 0o600))
		assert.Nil(t, store.Load(path))
	})

	t.Run("directory", func(t *testing.T) {
		assert.Nil(t, store.Load(dir))
	})
}

func TestResumable(t *testing.T) {
	cp := sampleCheckpoint()

	assert.True(t, Resumable(cp, "Resume me later"))
	assert.False(t, Resumable(cp, "Resume me later please"))
	assert.False(t, Resumable(nil, "Resume me later"))

	cp.Completed = true
	assert.False(t, Resumable(cp, "Resume me later"))
}

func TestEffectiveMaxSteps(t *testing.T) {
	cp := &Checkpoint{MaxSteps: 10}

	assert.Equal(t, 10, EffectiveMaxSteps(3, cp))
	assert.Equal(t, 20, EffectiveMaxSteps(20, cp))
	assert.Equal(t, 7, EffectiveMaxSteps(7, nil))
}

func TestCheckpoint_VisitAndRecent(t *testing.T) {
	cp := &Checkpoint{}
	cp.Visit("https://a.example")
	cp.Visit("https://a.example")
	cp.Visit("")
	cp.Visit("https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cp.PagesVisited)

	for i := 0; i < 5; i++ {
		cp.ActionHistory = append(cp.ActionHistory, HistoryEntry{Action: "wait", Signature: "wait()"})
	}
	assert.Len(t, cp.Recent(3), 3)
	assert.Len(t, cp.Recent(10), 5)
	assert.Nil(t, cp.Recent(0))
}

func TestCheckpoint_CloneIsIndependent(t *testing.T) {
	cp := sampleCheckpoint()
	clone := cp.Clone()
	clone.Actions = append(clone.Actions, "extra")
	clone.PagesVisited[0] = "changed"

	assert.Len(t, cp.Actions, 2)
	assert.Equal(t, "https://example.com/", cp.PagesVisited[0])
	assert.Nil(t, (*Checkpoint)(nil).Clone())
}
