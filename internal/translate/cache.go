// Package translate memoizes translated message bodies for one chat.
package translate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tOgg1/gatechat/internal/logging"
	"github.com/tOgg1/gatechat/internal/models"
	"github.com/tOgg1/gatechat/internal/scheduler"
)

const (
	// DefaultErrorTTL is how long a per-message failure marker stays visible.
	DefaultErrorTTL = 3 * time.Second
	// DefaultConcurrency bounds simultaneous per-message requests.
	DefaultConcurrency = 4
	// DefaultSourceLanguage is the conversation language when none is configured.
	DefaultSourceLanguage = "auto"

	errorTaskPrefix = "translate.error."
)

// Translator translates one text.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage, sourceLanguage string) (string, error)
}

// TranslatorFunc adapts a function to Translator.
type TranslatorFunc func(ctx context.Context, text, targetLanguage, sourceLanguage string) (string, error)

// Translate calls f.
func (f TranslatorFunc) Translate(ctx context.Context, text, targetLanguage, sourceLanguage string) (string, error) {
	return f(ctx, text, targetLanguage, sourceLanguage)
}

// Config configures a Cache.
type Config struct {
	SourceLanguage string
	ErrorTTL       time.Duration
	Concurrency    int
	// OnChange fires when an error marker expires, so renderers can refresh.
	OnChange func()
	Logger   *zerolog.Logger
}

// Cache holds the translation entry of the open chat.
type Cache struct {
	translator  Translator
	sched       *scheduler.Scheduler
	source      string
	errorTTL    time.Duration
	concurrency int
	onChange    func()
	logger      zerolog.Logger
	group       singleflight.Group

	mu         sync.Mutex
	generation uint64
	entry      *models.TranslationEntry
	// memo keeps the translations of an invalidated entry for reuse.
	memo     map[string]string
	memoChat string
	memoLang string
	// sources remembers the body each memoized translation was made from.
	sources map[string]string
	hidden  map[string]bool
	errors  map[string]error
}

// New creates a Cache. Error markers expire on sched.
func New(translator Translator, sched *scheduler.Scheduler, cfg Config) *Cache {
	source := strings.TrimSpace(cfg.SourceLanguage)
	if source == "" {
		source = DefaultSourceLanguage
	}
	ttl := cfg.ErrorTTL
	if ttl <= 0 {
		ttl = DefaultErrorTTL
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logger := logging.Component("translate")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Cache{
		translator:  translator,
		sched:       sched,
		source:      source,
		errorTTL:    ttl,
		concurrency: concurrency,
		onChange:    cfg.OnChange,
		logger:      logger,
		sources:     make(map[string]string),
		hidden:      make(map[string]bool),
		errors:      make(map[string]error),
	}
}

// SourceLanguage returns the conversation's source language.
func (c *Cache) SourceLanguage() string { return c.source }

// IsSource reports whether language means "show the original".
func (c *Cache) IsSource(language string) bool {
	language = strings.TrimSpace(language)
	return language == "" || strings.EqualFold(language, c.source)
}

// Translate returns the translations of msgs into language, keyed by message
// id. The result is memoized until the log length changes. Concurrent calls
// for the same chat, language and revision share one flight. Choosing the
// source language clears the cache and returns nil.
func (c *Cache) Translate(ctx context.Context, chatID, language string, msgs []models.Message) (map[string]string, error) {
	if c.IsSource(language) {
		c.Clear()
		return nil, nil
	}
	revision := len(msgs)

	c.mu.Lock()
	if c.entry != nil && (c.entry.ChatID != chatID || c.entry.LanguageCode != language) {
		c.resetLocked()
	} else if c.memo != nil && (c.memoChat != chatID || c.memoLang != language) {
		c.resetLocked()
	}
	if c.entry.ValidFor(chatID, language, revision) {
		out := copyMap(c.entry.ByMessageID)
		c.mu.Unlock()
		return out, nil
	}
	generation := c.generation
	c.mu.Unlock()

	key := fmt.Sprintf("%s|%s|%d", chatID, language, revision)
	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.fill(ctx, chatID, language, msgs, generation)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug().Str("chat", chatID).Str("lang", language).Msg("joined in-flight translation")
	}
	return copyMap(v.(map[string]string)), nil
}

func (c *Cache) fill(ctx context.Context, chatID, language string, msgs []models.Message, generation uint64) (map[string]string, error) {
	// Reuse memoized translations whose source body has not changed.
	c.mu.Lock()
	known := make(map[string]string)
	if c.entry != nil && c.entry.ChatID == chatID && c.entry.LanguageCode == language {
		for id, text := range c.entry.ByMessageID {
			known[id] = text
		}
	} else if c.memoChat == chatID && c.memoLang == language {
		for id, text := range c.memo {
			known[id] = text
		}
	}
	sources := copyMap(c.sources)
	c.mu.Unlock()

	results := make(map[string]string, len(msgs))
	var (
		resultsMu sync.Mutex
		failed    = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, msg := range msgs {
		if strings.TrimSpace(msg.Body) == "" {
			results[msg.ID] = msg.Body
			continue
		}
		if text, ok := known[msg.ID]; ok && sources[msg.ID] == msg.Body {
			results[msg.ID] = text
			continue
		}
		msg := msg
		g.Go(func() error {
			text, err := c.translator.Translate(gctx, msg.Body, language, c.source)
			resultsMu.Lock()
			defer resultsMu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed[msg.ID] = err
				return nil
			}
			results[msg.ID] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("translate chat %s: %w", chatID, err)
	}

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		return results, nil
	}
	bodies := make(map[string]string, len(msgs))
	for _, msg := range msgs {
		bodies[msg.ID] = msg.Body
	}
	c.entry = &models.TranslationEntry{
		ChatID:         chatID,
		LanguageCode:   language,
		SourceRevision: len(msgs),
		ByMessageID:    results,
	}
	c.sources = bodies
	c.memo, c.memoChat, c.memoLang = nil, "", ""
	for id, err := range failed {
		c.markErrorLocked(id, err)
	}
	c.mu.Unlock()

	if len(failed) > 0 {
		c.logger.Warn().
			Str("chat", chatID).
			Str("lang", language).
			Int("failed", len(failed)).
			Msg("some messages could not be translated")
	}
	c.logger.Info().
		Str("chat", chatID).
		Str("lang", language).
		Int("revision", len(msgs)).
		Int("translated", len(results)).
		Msg("translation cached")
	return results, nil
}

func (c *Cache) markErrorLocked(id string, err error) {
	c.errors[id] = err
	generation := c.generation
	c.sched.Schedule(errorTaskPrefix+id, c.errorTTL, func() {
		c.mu.Lock()
		if c.generation != generation {
			c.mu.Unlock()
			return
		}
		delete(c.errors, id)
		fn := c.onChange
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

// Invalidate drops the entry when it no longer matches a log of length
// revision. Memoized bodies are kept so unchanged messages are not
// requested again.
func (c *Cache) Invalidate(revision int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil || c.entry.SourceRevision == revision {
		return false
	}
	c.memo = c.entry.ByMessageID
	c.memoChat = c.entry.ChatID
	c.memoLang = c.entry.LanguageCode
	c.entry = nil
	return true
}

// Entry returns a copy of the current entry, or nil.
func (c *Cache) Entry() *models.TranslationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return nil
	}
	clone := *c.entry
	clone.ByMessageID = copyMap(c.entry.ByMessageID)
	return &clone
}

// Body returns the text to display for msg: the translation when one is
// cached, visible and not failed, else the original body.
func (c *Cache) Body(msg models.Message) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil || c.hidden[msg.ID] || c.errors[msg.ID] != nil {
		return msg.Body
	}
	if c.sources[msg.ID] != msg.Body {
		return msg.Body
	}
	if text, ok := c.entry.ByMessageID[msg.ID]; ok {
		return text
	}
	return msg.Body
}

// ToggleMessage hides or shows the translation of one message and reports
// whether it is now shown. The rest of the cache is untouched.
func (c *Cache) ToggleMessage(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hidden[id] {
		delete(c.hidden, id)
		return true
	}
	c.hidden[id] = true
	return false
}

// Hidden reports whether the translation of id is toggled off.
func (c *Cache) Hidden(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hidden[id]
}

// Err returns the pending failure marker of id.
func (c *Cache) Err(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors[id]
}

// Clear discards everything, including toggles and error markers.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Cache) resetLocked() {
	for id := range c.errors {
		c.sched.Cancel(errorTaskPrefix + id)
	}
	c.generation++
	c.entry = nil
	c.memo, c.memoChat, c.memoLang = nil, "", ""
	c.sources = make(map[string]string)
	c.hidden = make(map[string]bool)
	c.errors = make(map[string]error)
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
