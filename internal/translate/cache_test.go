package translate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/gatechat/internal/models"
	"github.com/tOgg1/gatechat/internal/scheduler"
)

type stubTranslator struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	block chan struct{}
}

func (s *stubTranslator) Translate(ctx context.Context, text, target, source string) (string, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, text)
	err := s.fail[text]
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return strings.ToUpper(text) + "@" + target, nil
}

func (s *stubTranslator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testMessages(bodies ...string) []models.Message {
	msgs := make([]models.Message, 0, len(bodies))
	for i, body := range bodies {
		msgs = append(msgs, models.Message{ID: string(rune('a' + i)), ChatID: "chat-1", Body: body})
	}
	return msgs
}

func newTestCache(tr Translator) (*Cache, *scheduler.FakeClock) {
	clock := scheduler.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return New(tr, scheduler.New(clock), Config{SourceLanguage: "pt"}), clock
}

func TestTranslateMemoizesPerRevision(t *testing.T) {
	tr := &stubTranslator{}
	c, _ := newTestCache(tr)
	msgs := testMessages("ola", "tudo bem")

	got, err := c.Translate(context.Background(), "chat-1", "en", msgs)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "OLA@en", "b": "TUDO BEM@en"}, got)
	require.Equal(t, 2, tr.callCount())

	_, err = c.Translate(context.Background(), "chat-1", "en", msgs)
	require.NoError(t, err)
	require.Equal(t, 2, tr.callCount())

	entry := c.Entry()
	require.NotNil(t, entry)
	require.Equal(t, 2, entry.SourceRevision)
	require.Equal(t, "OLA@en", c.Body(msgs[0]))
}

func TestInvalidateOnAppendTranslatesOnlyNewMessages(t *testing.T) {
	tr := &stubTranslator{}
	c, _ := newTestCache(tr)
	msgs := testMessages("ola", "tudo bem")
	_, err := c.Translate(context.Background(), "chat-1", "en", msgs)
	require.NoError(t, err)

	msgs = append(msgs, models.Message{ID: "c", ChatID: "chat-1", Body: "tchau"})
	require.True(t, c.Invalidate(len(msgs)))
	require.Nil(t, c.Entry())
	require.Equal(t, "ola", c.Body(msgs[0]))

	got, err := c.Translate(context.Background(), "chat-1", "en", msgs)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 3, tr.callCount())
	require.Equal(t, 3, c.Entry().SourceRevision)
}

func TestEditedMessageIsRetranslated(t *testing.T) {
	tr := &stubTranslator{}
	c, _ := newTestCache(tr)
	msgs := testMessages("ola")
	_, err := c.Translate(context.Background(), "chat-1", "en", msgs)
	require.NoError(t, err)

	msgs[0].Body = "ola de novo"
	require.Equal(t, "ola de novo", c.Body(msgs[0]))

	msgs = append(msgs, models.Message{ID: "z", Body: "fim"})
	c.Invalidate(len(msgs))
	got, err := c.Translate(context.Background(), "chat-1", "en", msgs)
	require.NoError(t, err)
	require.Equal(t, "OLA DE NOVO@en", got["a"])
}

func TestSourceLanguageClearsCache(t *testing.T) {
	tr := &stubTranslator{}
	c, _ := newTestCache(tr)
	msgs := testMessages("ola")
	_, err := c.Translate(context.Background(), "chat-1", "en", msgs)
	require.NoError(t, err)
	c.ToggleMessage("a")

	got, err := c.Translate(context.Background(), "chat-1", "PT", msgs)
	require.NoError(t, err)
	require.Nil(t, got)
	require.Nil(t, c.Entry())
	require.False(t, c.Hidden("a"))
	require.Equal(t, "ola", c.Body(msgs[0]))
}

func TestSwitchingLanguageDropsOldEntry(t *testing.T) {
	tr := &stubTranslator{}
	c, _ := newTestCache(tr)
	msgs := testMessages("ola")
	_, err := c.Translate(context.Background(), "chat-1", "en", msgs)
	require.NoError(t, err)

	got, err := c.Translate(context.Background(), "chat-1", "es", msgs)
	require.NoError(t, err)
	require.Equal(t, "OLA@es", got["a"])
	require.Equal(t, "es", c.Entry().LanguageCode)
}

func TestToggleMessageKeepsRestOfCache(t *testing.T) {
	tr := &stubTranslator{}
	c, _ := newTestCache(tr)
	msgs := testMessages("ola", "tchau")
	_, err := c.Translate(context.Background(), "chat-1", "en", msgs)
	require.NoError(t, err)

	require.False(t, c.ToggleMessage("a"))
	require.Equal(t, "ola", c.Body(msgs[0]))
	require.Equal(t, "TCHAU@en", c.Body(msgs[1]))
	require.NotNil(t, c.Entry())

	require.True(t, c.ToggleMessage("a"))
	require.Equal(t, "OLA@en", c.Body(msgs[0]))
}

func TestFailureMarkerExpires(t *testing.T) {
	boom := errors.New("quota exceeded")
	tr := &stubTranslator{fail: map[string]error{"tchau": boom}}
	c, clock := newTestCache(tr)
	var changes atomic.Int32
	c.onChange = func() { changes.Add(1) }
	msgs := testMessages("ola", "tchau")

	got, err := c.Translate(context.Background(), "chat-1", "en", msgs)
	require.NoError(t, err)
	require.Equal(t, "OLA@en", got["a"])
	require.NotContains(t, got, "b")
	require.ErrorIs(t, c.Err("b"), boom)
	require.Equal(t, "tchau", c.Body(msgs[1]))

	clock.Advance(DefaultErrorTTL - time.Millisecond)
	require.Error(t, c.Err("b"))
	clock.Advance(time.Millisecond)
	require.NoError(t, c.Err("b"))
	require.Equal(t, "tchau", c.Body(msgs[1]))
	require.Equal(t, int32(1), changes.Load())
}

func TestClearCancelsErrorTimers(t *testing.T) {
	tr := &stubTranslator{fail: map[string]error{"ola": errors.New("nope")}}
	c, clock := newTestCache(tr)
	_, err := c.Translate(context.Background(), "chat-1", "en", testMessages("ola"))
	require.NoError(t, err)
	require.Equal(t, 1, clock.Pending())

	c.Clear()
	require.Zero(t, c.sched.Len())
	require.NoError(t, c.Err("a"))
}

func TestConcurrentCallsShareOneFlight(t *testing.T) {
	tr := &stubTranslator{block: make(chan struct{})}
	c, _ := newTestCache(tr)
	msgs := testMessages("ola")

	var wg sync.WaitGroup
	results := make([]map[string]string, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := c.Translate(context.Background(), "chat-1", "en", msgs)
			if err == nil {
				results[i] = got
			}
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(tr.block)
	wg.Wait()

	for _, got := range results {
		require.Equal(t, "OLA@en", got["a"])
	}
	require.LessOrEqual(t, tr.callCount(), 3)
	require.GreaterOrEqual(t, tr.callCount(), 1)
}

func TestEmptyBodiesAreNotSent(t *testing.T) {
	tr := &stubTranslator{}
	c, _ := newTestCache(tr)
	got, err := c.Translate(context.Background(), "chat-1", "en", testMessages("", "  "))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "", "b": "  "}, got)
	require.Zero(t, tr.callCount())
}

func TestCancelledContextFailsTranslate(t *testing.T) {
	tr := &stubTranslator{block: make(chan struct{})}
	c, _ := newTestCache(tr)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Translate(ctx, "chat-1", "en", testMessages("ola"))
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, c.Entry())
}
