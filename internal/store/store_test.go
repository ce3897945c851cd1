package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache", "starred.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetStarredRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetStarred(ctx, "chat-1", "m1", true))
	require.NoError(t, s.SetStarred(ctx, "chat-1", "m1", true))
	require.NoError(t, s.SetStarred(ctx, "chat-2", "m9", true))

	ids, err := s.Starred(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, ids)

	ok, err := s.IsStarred(ctx, "chat-2", "m9")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.SetStarred(ctx, "chat-1", "m1", false))
	ids, err = s.Starred(ctx, "chat-1")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestReplaceIsScopedToChat(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStarred(ctx, "chat-1", "old", true))
	require.NoError(t, s.SetStarred(ctx, "chat-2", "keep", true))

	require.NoError(t, s.Replace(ctx, "chat-1", []string{"b", "a", "b", " "}))

	ids, err := s.Starred(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)

	ids, err = s.Starred(ctx, "chat-2")
	require.NoError(t, err)
	require.Equal(t, []string{"keep"}, ids)

	chats, err := s.Chats(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"chat-1", "chat-2"}, chats)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starred.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.SetStarred(ctx, "chat-1", "m1", true))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	ids, err := s.Starred(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, ids)
}

func TestInMemoryStore(t *testing.T) {
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SetStarred(context.Background(), "c", "m", true))
	ok, err := s.IsStarred(context.Background(), "c", "m")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestClosedStore(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Starred(context.Background(), "chat-1")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.SetStarred(context.Background(), "chat-1", "m1", true), ErrClosed)
}

func TestValidation(t *testing.T) {
	s := openTestStore(t)
	require.Error(t, s.SetStarred(context.Background(), "", "m1", true))
	require.Error(t, s.Replace(context.Background(), " ", nil))
	_, err := s.Starred(context.Background(), "")
	require.Error(t, err)
}

func TestWithRetryRetriesOnBusy(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestWithRetryStopsOnOtherErrors(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestWithRetryStopsAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 2, time.Millisecond, func() error {
		attempts++
		return errors.New("SQLITE_BUSY")
	})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}
