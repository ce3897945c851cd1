package prefs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManager_LoadMissingFileOK(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "gatechat", "prefs.json"))
	require.NoError(t, m.Load())
	s := m.Snapshot()
	require.Equal(t, CurrentVersion, s.Version)
	require.Empty(t, s.Drafts)
}

func TestManager_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	m := New(path)
	m.SetLastChat("5511999@c.us")
	m.SetLanguage("5511999@c.us", "en")
	m.SetDraft(Draft{ChatID: "5511999@c.us", Body: "see you", ReplyTo: "m7"})
	m.SetReadMarker("5511999@c.us", "m9")
	m.SetPreferences(Preferences{Theme: "dark", RelativeTime: true})
	require.NoError(t, m.Close())

	loaded := New(path)
	require.NoError(t, loaded.Load())
	require.Equal(t, "5511999@c.us", loaded.LastChat())
	require.Equal(t, "en", loaded.Language("5511999@c.us"))
	draft, ok := loaded.Draft("5511999@c.us")
	require.True(t, ok)
	require.Equal(t, "see you", draft.Body)
	require.Equal(t, "m7", draft.ReplyTo)
	require.Equal(t, "m9", loaded.ReadMarker("5511999@c.us"))
	require.Equal(t, "dark", loaded.Preferences().Theme)
}

func TestManager_EmptyDraftDeletes(t *testing.T) {
	m := New("")
	m.SetDraft(Draft{ChatID: "c1", Body: "hi"})
	_, ok := m.Draft("c1")
	require.True(t, ok)

	m.SetDraft(Draft{ChatID: "c1", Body: "  "})
	_, ok = m.Draft("c1")
	require.False(t, ok)
}

func TestManager_ClearLanguage(t *testing.T) {
	m := New("")
	m.SetLanguage("c1", "es")
	m.SetLanguage("c1", "")
	require.Equal(t, "", m.Language("c1"))
	require.NotContains(t, m.Snapshot().Languages, "c1")
}

func TestManager_PrunesStaleDraftsOnSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	m := New(path)
	m.SetDraft(Draft{ChatID: "old", Body: "x", UpdatedAt: time.Now().UTC().Add(-(draftMaxAge + time.Hour))})
	m.SetDraft(Draft{ChatID: "fresh", Body: "y"})
	require.NoError(t, m.SaveNow())

	loaded := New(path)
	require.NoError(t, loaded.Load())
	_, ok := loaded.Draft("old")
	require.False(t, ok)
	_, ok = loaded.Draft("fresh")
	require.True(t, ok)
	require.NoError(t, m.Close())
}

func TestManager_DebouncedSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	m := New(path)
	m.debounce = 10 * time.Millisecond
	m.SetLastChat("c1")

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Close())
}

func TestManager_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	require.Error(t, New(path).Load())
}
