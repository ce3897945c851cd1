// Package session is the chat session view-model. A Session owns the state
// of one open conversation: its log, history window, scroll policy,
// optimistic mutations, translations and typing signals. Opening another
// chat tears all of it down.
//
// Every state change is serialized under one lock. Remote calls run on
// goroutines and re-enter through that lock; results that belong to a chat
// that is no longer open are dropped by comparing chat epochs.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/gatechat/internal/classify"
	"github.com/tOgg1/gatechat/internal/gateway"
	"github.com/tOgg1/gatechat/internal/history"
	"github.com/tOgg1/gatechat/internal/logging"
	"github.com/tOgg1/gatechat/internal/metrics"
	"github.com/tOgg1/gatechat/internal/models"
	"github.com/tOgg1/gatechat/internal/mutation"
	"github.com/tOgg1/gatechat/internal/prefs"
	"github.com/tOgg1/gatechat/internal/scheduler"
	"github.com/tOgg1/gatechat/internal/store"
	"github.com/tOgg1/gatechat/internal/translate"
	"github.com/tOgg1/gatechat/internal/typing"
)

// DefaultNoticeTTL is how long a notice stays visible.
const DefaultNoticeTTL = 3 * time.Second

// Session errors.
var (
	ErrClosed         = errors.New("session closed")
	ErrNoChat         = errors.New("no chat open")
	ErrChatChanged    = errors.New("chat changed while request was in flight")
	ErrUnknownMessage = errors.New("unknown message")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrNotEditable    = errors.New("only own text messages can be edited")
)

// Gateway is the subset of the gateway client a session uses.
type Gateway interface {
	Messages(ctx context.Context, chatID string) ([]models.RawMessage, error)
	Starred(ctx context.Context, chatID string) ([]string, error)
	SendText(ctx context.Context, req gateway.SendTextRequest) (string, error)
	SendMedia(ctx context.Context, chatID, filename string, content io.Reader) (string, error)
	SetStarred(ctx context.Context, chatID, messageID string, starred bool) error
	Edit(ctx context.Context, chatID, messageID, text string) error
	MarkSeen(ctx context.Context, chatID string) error
	translate.Translator
	typing.Signaler
}

// Options configures a Session. Zero values fall back to package defaults.
type Options struct {
	InitialWindow        int
	BatchSize            int
	BottomThreshold      int
	ScrollIdle           time.Duration
	TypingIdle           time.Duration
	ErrorTTL             time.Duration
	NoticeTTL            time.Duration
	MutationTimeout      time.Duration
	SourceLanguage       string
	TranslateConcurrency int

	// Clock drives every timer of the session. Defaults to the wall clock.
	Clock scheduler.Clock
	// Store is the starred write-ahead cache. Optional.
	Store *store.Store
	// Prefs persists languages and drafts. Optional.
	Prefs   *prefs.Manager
	Metrics *metrics.Metrics
	// OnChange is called, without any session lock held, whenever the
	// snapshot may have changed.
	OnChange func()
}

func (o Options) withDefaults() Options {
	if o.NoticeTTL <= 0 {
		o.NoticeTTL = DefaultNoticeTTL
	}
	if o.MutationTimeout <= 0 {
		o.MutationTimeout = mutation.DefaultTimeout
	}
	if o.Clock == nil {
		o.Clock = scheduler.RealClock()
	}
	return o
}

// Session is the view-model of one open chat.
type Session struct {
	gw      Gateway
	opts    Options
	sched   *scheduler.Scheduler
	window  *history.Window
	scroll  *history.AutoScroll
	view    *view
	stars   *mutation.Coordinator[bool]
	edits   *mutation.Coordinator[string]
	cache   *translate.Cache
	typing  *typing.Debouncer
	signals *signalQueue
	store   *store.Store
	prefs   *prefs.Manager
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu          sync.Mutex
	closed      bool
	epoch       uint64
	chatID      string
	log         []models.Message
	index       map[string]int
	loading     bool
	language    string
	translating bool
	replyTo     string
	draft       string
	notices     []Notice
	nextNotice  uint64
	intents     map[string]uint64
}

// New creates a Session with no chat open.
func New(gw Gateway, opts Options) *Session {
	opts = opts.withDefaults()
	logger := logging.Component("session")

	s := &Session{
		gw:      gw,
		opts:    opts,
		sched:   scheduler.New(opts.Clock),
		store:   opts.Store,
		prefs:   opts.Prefs,
		metrics: opts.Metrics,
		logger:  logger,
		index:   make(map[string]int),
		intents: make(map[string]uint64),
	}
	s.window = history.NewWindow(opts.InitialWindow, opts.BatchSize)
	s.scroll = history.NewAutoScroll(s.sched, opts.BottomThreshold, opts.ScrollIdle)
	s.scroll.OnIdle(s.notify)
	s.view = newView(opts.Store)

	mutationLogger := logging.Component("mutation")
	s.stars = mutation.New[bool](starState{v: s.view}, mutation.Config{
		Timeout:    opts.MutationTimeout,
		OnResolved: s.mutationResolved,
		Logger:     &mutationLogger,
	})
	s.edits = mutation.New[string](bodyState{v: s.view}, mutation.Config{
		Timeout:    opts.MutationTimeout,
		OnResolved: s.mutationResolved,
		Logger:     &mutationLogger,
	})
	s.cache = translate.New(gw, s.sched, translate.Config{
		SourceLanguage: opts.SourceLanguage,
		ErrorTTL:       opts.ErrorTTL,
		Concurrency:    opts.TranslateConcurrency,
		OnChange:       s.notify,
	})
	s.signals = newSignalQueue(gw, logging.Component("typing"))
	s.typing = typing.New(s.signals, s.sched, opts.TypingIdle)
	return s
}

func (s *Session) notify() {
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}

// ChatID returns the open chat, or "".
func (s *Session) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Open switches the session to chatID. Timers and in-flight intents of the
// previous chat are cancelled, every sub-state is reset, and the log and
// the gateway's starred set are fetched. Opening the chat that is already
// open only refreshes it.
func (s *Session) Open(ctx context.Context, chatID string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return models.ErrMissingChatID
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.chatID == chatID && !s.loading {
		s.mu.Unlock()
		_, err := s.Refresh(ctx)
		return err
	}
	first := s.chatID == ""
	s.teardownLocked()
	s.epoch++
	epoch := s.epoch
	s.chatID = chatID
	s.view.reset(chatID)
	s.loading = true
	s.typing.Reset(chatID)
	if s.prefs != nil {
		s.language = s.prefs.Language(chatID)
		if draft, ok := s.prefs.Draft(chatID); ok {
			s.draft = draft.Body
			s.replyTo = draft.ReplyTo
		}
	}
	s.mu.Unlock()

	if first {
		s.metrics.ChatOpened()
	}
	logger := logging.WithChat("session", chatID)
	logger.Info().Uint64("epoch", epoch).Msg("opening chat")
	s.notify()

	raws, err := s.gw.Messages(ctx, chatID)
	if err != nil {
		s.mu.Lock()
		if s.epoch == epoch {
			s.loading = false
			s.addNoticeLocked(NoticeError, "Could not load messages: %v", err)
		}
		s.mu.Unlock()
		s.notify()
		return fmt.Errorf("open chat %s: %w", chatID, err)
	}
	starred, fromServer := s.fetchStarred(ctx, chatID)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrChatChanged
	}
	msgs := classify.Apply(models.NormalizeAll(chatID, raws))
	for _, msg := range msgs {
		if _, dup := s.index[msg.ID]; dup {
			continue
		}
		if err := msg.Validate(); err != nil {
			logger.Warn().Err(err).Str("message", msg.ID).Msg("dropping malformed message")
			continue
		}
		msg.Starred = starred[msg.ID]
		s.appendLocked(msg)
	}
	s.window.SetTotal(len(s.log))
	s.loading = false
	language := s.language
	total := len(s.log)
	s.mu.Unlock()

	if fromServer {
		s.syncStarredCache(ctx, chatID)
	}
	if s.prefs != nil {
		s.prefs.SetLastChat(chatID)
	}
	s.metrics.VisibleMessages(s.window.VisibleCount())
	logger.Info().Int("messages", total).Int("starred", len(starred)).Msg("chat opened")

	if language != "" {
		if err := s.translate(ctx, epoch); err != nil {
			logger.Warn().Err(err).Str("lang", language).Msg("restoring translation failed")
		}
	}
	if err := s.MarkSeen(ctx); err != nil {
		logger.Debug().Err(err).Msg("mark seen failed")
	}
	s.notify()
	return nil
}

// fetchStarred returns the gateway's canonical starred set. When the
// gateway cannot answer, the local cache is used instead and fromServer is
// false.
func (s *Session) fetchStarred(ctx context.Context, chatID string) (set map[string]bool, fromServer bool) {
	ids, err := s.gw.Starred(ctx, chatID)
	if err == nil {
		return toSet(ids), true
	}
	s.logger.Warn().Err(err).Str("chat", chatID).Msg("starred set unavailable, using local cache")
	if s.store == nil {
		return map[string]bool{}, false
	}
	local, lerr := s.store.Starred(ctx, chatID)
	if lerr != nil {
		s.logger.Warn().Err(lerr).Str("chat", chatID).Msg("read starred cache")
		return map[string]bool{}, false
	}
	return toSet(local), false
}

// syncStarredCache makes the local cache mirror the reconciled view.
func (s *Session) syncStarredCache(ctx context.Context, chatID string) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	if s.chatID != chatID {
		s.mu.Unlock()
		return
	}
	ids := s.view.starredIDs()
	s.mu.Unlock()
	if err := s.store.Replace(ctx, chatID, ids); err != nil {
		s.logger.Warn().Err(err).Str("chat", chatID).Msg("update starred cache")
	}
}

// Refresh re-reads the open chat without resetting it: new messages are
// ingested, delivery status moves forward, and the starred set is
// reconciled. Messages with an unresolved star intent keep their local
// value.
func (s *Session) Refresh(ctx context.Context) (IngestResult, error) {
	s.mu.Lock()
	chatID, epoch, closed := s.chatID, s.epoch, s.closed
	s.mu.Unlock()
	if closed {
		return IngestResult{}, ErrClosed
	}
	if chatID == "" {
		return IngestResult{}, ErrNoChat
	}

	raws, err := s.gw.Messages(ctx, chatID)
	if err != nil {
		return IngestResult{}, fmt.Errorf("refresh chat %s: %w", chatID, err)
	}
	ids, starErr := s.gw.Starred(ctx, chatID)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return IngestResult{}, ErrChatChanged
	}
	result := s.ingestLocked(raws)
	if starErr == nil {
		server := toSet(ids)
		for _, msg := range s.log {
			if s.stars.Pending(msg.ID) {
				continue
			}
			s.view.overwriteStarred(msg.ID, server[msg.ID])
		}
	}
	s.mu.Unlock()

	if starErr != nil {
		s.logger.Debug().Err(starErr).Str("chat", chatID).Msg("starred refresh skipped")
	} else {
		s.syncStarredCache(ctx, chatID)
	}
	s.afterIngest(result, epoch)
	return result, nil
}

// IngestResult reports what an inbound batch changed.
type IngestResult struct {
	Appended int
	Updated  int
	Action   history.Action
}

// Ingest appends inbound gateway records to the open chat. Known ids only
// advance their delivery status.
func (s *Session) Ingest(raws ...models.RawMessage) IngestResult {
	s.mu.Lock()
	if s.closed || s.chatID == "" {
		s.mu.Unlock()
		return IngestResult{}
	}
	epoch := s.epoch
	result := s.ingestLocked(raws)
	s.mu.Unlock()

	s.afterIngest(result, epoch)
	return result
}

func (s *Session) ingestLocked(raws []models.RawMessage) IngestResult {
	var result IngestResult
	msgs := classify.Apply(models.NormalizeAll(s.chatID, raws))
	for _, msg := range msgs {
		if err := msg.Validate(); err != nil {
			s.logger.Warn().Err(err).Str("message", msg.ID).Msg("dropping malformed message")
			continue
		}
		if msg.FromMe() && msg.Media.HasURL() {
			s.adoptLocked(localMediaID(msg.Media.URL), msg.ID)
		}
		if i, ok := s.index[msg.ID]; ok {
			if msg.Status.Rank() > s.log[i].Status.Rank() {
				s.log[i].Status = msg.Status
				result.Updated++
			}
			continue
		}
		s.appendLocked(msg)
		result.Appended++
		result.Action = mergeAction(result.Action, s.scroll.OnMessageAppended())
	}
	if result.Appended > 0 {
		s.window.SetTotal(len(s.log))
		s.cache.Invalidate(len(s.log))
	}
	return result
}

func (s *Session) afterIngest(result IngestResult, epoch uint64) {
	if result.Appended == 0 && result.Updated == 0 {
		return
	}
	s.metrics.MessagesIngested(result.Appended)
	s.logger.Debug().
		Int("appended", result.Appended).
		Int("updated", result.Updated).
		Bool("scroll_to_bottom", result.Action.ScrollToBottom).
		Bool("affordance", result.Action.ShowAffordance).
		Msg("ingested messages")

	if result.Appended > 0 {
		s.mu.Lock()
		language := s.language
		s.mu.Unlock()
		if language != "" {
			go func() {
				if err := s.translate(context.Background(), epoch); err != nil {
					s.logger.Debug().Err(err).Msg("retranslate after ingest failed")
				}
			}()
		}
	}
	s.notify()
}

func (s *Session) appendLocked(msg models.Message) {
	s.index[msg.ID] = len(s.log)
	s.log = append(s.log, msg)
	s.view.add(msg.ID, msg.Body, msg.Starred)
}

// adoptLocked renames a locally appended message once the gateway reports
// it under its own id.
func (s *Session) adoptLocked(localID, id string) {
	i, ok := s.index[localID]
	if !ok {
		return
	}
	if _, taken := s.index[id]; taken {
		return
	}
	delete(s.index, localID)
	s.index[id] = i
	s.log[i].ID = id
	s.view.rename(localID, id)
}

// teardownLocked cancels every timer and in-flight intent and resets all
// per-chat state.
func (s *Session) teardownLocked() {
	s.typing.Stop()
	cancelled := s.sched.CancelAll()
	discarded := s.stars.DiscardAll() + s.edits.DiscardAll()
	if s.chatID != "" {
		s.logger.Debug().
			Str("chat", s.chatID).
			Int("timers", cancelled).
			Int("intents", discarded).
			Msg("chat torn down")
	}
	s.window.Reset()
	s.scroll.Reset()
	s.cache.Clear()
	s.typing.Reset("")
	s.view.reset("")
	s.chatID = ""
	s.log = nil
	s.index = make(map[string]int)
	s.loading = false
	s.language = ""
	s.translating = false
	s.replyTo = ""
	s.draft = ""
	s.notices = nil
	s.intents = make(map[string]uint64)
}

// Close tears the session down. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasOpen := s.chatID != ""
	s.teardownLocked()
	s.mu.Unlock()

	s.stars.Close()
	s.edits.Close()
	s.sched.Close()
	s.signals.stop()
	if wasOpen {
		s.metrics.ChatClosed()
	}
	return nil
}

func mergeAction(a, b history.Action) history.Action {
	return history.Action{
		ScrollToBottom: b.ScrollToBottom || (a.ScrollToBottom && !b.ShowAffordance),
		ShowAffordance: b.ShowAffordance || (a.ShowAffordance && !b.ScrollToBottom),
		ExpandHistory:  a.ExpandHistory || b.ExpandHistory,
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
