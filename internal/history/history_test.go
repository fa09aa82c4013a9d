package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxd/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "history.db"), filepath.Join(dir, "secret"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, Entry{
		Duration: 2500 * time.Millisecond,
		Strategy: "clipboard",
		Text:     "the quick brown fox",
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "the quick brown fox", got.Text)
	assert.Equal(t, "clipboard", got.Strategy)
	assert.Equal(t, len("the quick brown fox"), got.Chars)
	assert.Equal(t, 2500*time.Millisecond, got.Duration)
}

func TestTextIsEncryptedAtRest(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	s, err := Open(dbPath, filepath.Join(dir, "secret"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Save(ctx, Entry{Text: "very private dictation", Strategy: "typing"})
	require.NoError(t, err)

	var box []byte
	require.NoError(t, s.db.QueryRow(`SELECT box FROM transcripts`).Scan(&box))
	assert.NotContains(t, string(box), "very private dictation")
	require.NoError(t, s.Close())

	// Reopening with the same secret decrypts.
	s2, err := Open(dbPath, filepath.Join(dir, "secret"))
	require.NoError(t, err)
	defer s2.Close()
	entries, err := s2.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "very private dictation", entries[0].Text)
}

func TestWrongSecretFailsToDecrypt(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	s, err := Open(dbPath, filepath.Join(dir, "secret-a"))
	require.NoError(t, err)
	_, err = s.Save(context.Background(), Entry{Text: "sealed"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(dbPath, filepath.Join(dir, "secret-b"))
	require.NoError(t, err)
	defer s2.Close()
	_, err = s2.List(context.Background(), 10, 0)
	require.Error(t, err)
}

func TestListOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := s.Save(ctx, Entry{
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Text:      string(rune('a' + i)),
		})
		require.NoError(t, err)
	}

	entries, err := s.List(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "e", entries[0].Text)
	assert.Equal(t, "c", entries[2].Text)
}

func TestSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, text := range []string{"meeting notes for monday", "grocery list", "notes on the design"} {
		_, err := s.Save(ctx, Entry{Text: text})
		require.NoError(t, err)
	}

	matches, err := s.Search(ctx, "NOTES", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	for i := 0; i < 3; i++ {
		_, err := s.Save(ctx, Entry{CreatedAt: old, Text: "old"})
		require.NoError(t, err)
	}
	_, err := s.Save(ctx, Entry{Text: "fresh"})
	require.NoError(t, err)

	removed, err := s.PruneOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	for i := 0; i < 4; i++ {
		_, err := s.Save(ctx, Entry{Text: "more"})
		require.NoError(t, err)
	}
	removed, err = s.PruneToCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Count)
}

func TestSaveTranscriptAdapter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.SaveTranscript(ctx, session.Transcript{
		Text:      "dictated through the controller",
		Strategy:  "accessibility",
		StartedAt: time.Now().Add(-3 * time.Second),
		Duration:  3 * time.Second,
	})
	require.NoError(t, err)

	entries, err := s.List(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "accessibility", entries[0].Strategy)
}
