package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/tOgg1/gatechat/internal/classify"
	"github.com/tOgg1/gatechat/internal/gateway"
	"github.com/tOgg1/gatechat/internal/history"
	"github.com/tOgg1/gatechat/internal/models"
	"github.com/tOgg1/gatechat/internal/mutation"
	"github.com/tOgg1/gatechat/internal/prefs"
)

// openLocked returns the open chat or an error.
func (s *Session) openLocked() (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	if s.chatID == "" {
		return "", ErrNoChat
	}
	return s.chatID, nil
}

// ToggleStar flips the starred flag of messageID optimistically. The
// returned intent resolves once the gateway answers.
func (s *Session) ToggleStar(ctx context.Context, messageID string) (*mutation.Intent[bool], error) {
	s.mu.Lock()
	chatID, err := s.openLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if _, ok := s.index[messageID]; !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	desired := !s.view.isStarred(messageID)
	kind := models.MutationUnstar
	if desired {
		kind = models.MutationStar
	}
	intent := s.stars.Apply(ctx, messageID, kind, desired, func(rctx context.Context) error {
		return s.gw.SetStarred(rctx, chatID, messageID, desired)
	})
	s.intents[intent.ID] = s.epoch
	s.mu.Unlock()

	s.notify()
	return intent, nil
}

// Edit replaces the body of one of the agent's own text messages
// optimistically.
func (s *Session) Edit(ctx context.Context, messageID, text string) (*mutation.Intent[string], error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	s.mu.Lock()
	chatID, err := s.openLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	i, ok := s.index[messageID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	if msg := s.log[i]; !msg.FromMe() || msg.Media != nil {
		s.mu.Unlock()
		return nil, ErrNotEditable
	}
	intent := s.edits.Apply(ctx, messageID, models.MutationEdit, text, func(rctx context.Context) error {
		return s.gw.Edit(rctx, chatID, messageID, text)
	})
	s.intents[intent.ID] = s.epoch
	s.mu.Unlock()

	s.notify()
	return intent, nil
}

// mutationResolved turns coordinator results into notices. Discarded
// intents arrive synchronously from teardown, with the session locked, and
// are only counted.
func (s *Session) mutationResolved(r mutation.Result) {
	s.metrics.MutationResolved(string(r.Kind), string(r.Status), r.Superseded)
	if errors.Is(r.Err, mutation.ErrDiscarded) || errors.Is(r.Err, mutation.ErrClosed) {
		return
	}

	s.mu.Lock()
	epoch, ok := s.intents[r.IntentID]
	delete(s.intents, r.IntentID)
	if !ok || epoch != s.epoch || s.closed {
		s.mu.Unlock()
		return
	}
	retranslate := false
	switch {
	case r.Superseded:
	case r.Status == models.IntentRolledBack:
		s.addNoticeLocked(NoticeError, "%s failed: %v", describeKind(r.Kind), r.Err)
	case r.Kind == models.MutationStar:
		s.addNoticeLocked(NoticeInfo, "Message starred")
	case r.Kind == models.MutationEdit && s.language != "":
		// Same revision, new body: force a refill for the edited message.
		s.cache.Invalidate(-1)
		retranslate = true
	}
	s.mu.Unlock()

	if retranslate {
		go func() {
			if err := s.translate(context.Background(), epoch); err != nil {
				s.logger.Debug().Err(err).Msg("retranslate after edit failed")
			}
		}()
	}
	s.notify()
}

func describeKind(kind models.MutationKind) string {
	switch kind {
	case models.MutationStar:
		return "Starring message"
	case models.MutationUnstar:
		return "Unstarring message"
	case models.MutationEdit:
		return "Editing message"
	default:
		return string(kind)
	}
}

// SetLanguage shows the chat translated into language. The source language,
// or "", restores the original bodies and drops the cached translations.
func (s *Session) SetLanguage(ctx context.Context, language string) error {
	language = strings.TrimSpace(language)
	s.mu.Lock()
	chatID, err := s.openLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	epoch := s.epoch
	if s.cache.IsSource(language) {
		s.language = ""
		s.translating = false
		s.cache.Clear()
		s.mu.Unlock()
		if s.prefs != nil {
			s.prefs.SetLanguage(chatID, "")
		}
		s.metrics.Translation("cleared")
		s.notify()
		return nil
	}
	s.language = language
	s.mu.Unlock()

	if s.prefs != nil {
		s.prefs.SetLanguage(chatID, language)
	}
	return s.translate(ctx, epoch)
}

// translate fills the cache for the current log and language.
func (s *Session) translate(ctx context.Context, epoch uint64) error {
	s.mu.Lock()
	if s.epoch != epoch || s.language == "" || s.closed {
		s.mu.Unlock()
		return nil
	}
	chatID, language := s.chatID, s.language
	msgs := s.messagesLocked()
	s.translating = true
	s.mu.Unlock()
	s.notify()

	_, err := s.cache.Translate(ctx, chatID, language, msgs)

	s.mu.Lock()
	current := s.epoch == epoch
	if current {
		s.translating = false
		if err != nil {
			s.addNoticeLocked(NoticeError, "Translation failed: %v", err)
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.metrics.Translation("failed")
	} else {
		s.metrics.Translation("filled")
	}
	s.notify()
	if err != nil && current {
		return fmt.Errorf("translate chat %s: %w", chatID, err)
	}
	return nil
}

// ToggleMessageTranslation shows or hides the translation of one message and
// reports whether it is now shown.
func (s *Session) ToggleMessageTranslation(messageID string) bool {
	shown := s.cache.ToggleMessage(messageID)
	s.notify()
	return shown
}

// InputChanged records the composer text and drives typing signals.
func (s *Session) InputChanged(text string) {
	s.mu.Lock()
	if _, err := s.openLocked(); err != nil {
		s.mu.Unlock()
		return
	}
	s.draft = text
	chatID, replyTo := s.chatID, s.replyTo
	s.mu.Unlock()

	s.typing.InputChanged(text)
	if s.prefs != nil {
		s.prefs.SetDraft(prefs.Draft{ChatID: chatID, Body: text, ReplyTo: replyTo})
	}
	s.notify()
}

// SetReplyTo marks the next sent text as a reply to messageID. An empty id
// clears the reply target.
func (s *Session) SetReplyTo(messageID string) error {
	s.mu.Lock()
	chatID, err := s.openLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if messageID != "" {
		if _, ok := s.index[messageID]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
		}
	}
	s.replyTo = messageID
	draft := s.draft
	s.mu.Unlock()

	if s.prefs != nil {
		s.prefs.SetDraft(prefs.Draft{ChatID: chatID, Body: draft, ReplyTo: messageID})
	}
	s.notify()
	return nil
}

// Send sends text, as a reply when a reply target is set, and appends the
// sent message to the log.
func (s *Session) Send(ctx context.Context, text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	s.mu.Lock()
	chatID, err := s.openLocked()
	if err != nil {
		s.mu.Unlock()
		return models.Message{}, err
	}
	epoch, replyTo := s.epoch, s.replyTo
	s.mu.Unlock()

	s.typing.Stop()
	id, err := s.gw.SendText(ctx, gateway.SendTextRequest{ChatID: chatID, Text: text, ReplyTo: replyTo})
	if err != nil {
		s.failed(epoch, "Message not sent: %v", err)
		return models.Message{}, fmt.Errorf("send to %s: %w", chatID, err)
	}

	msg := models.Message{
		ID:         id,
		ChatID:     chatID,
		SenderRole: models.SenderAgent,
		Body:       text,
		Timestamp:  s.sched.Now().UTC(),
		Status:     models.StatusSent,
		ReplyToID:  replyTo,
	}
	msg.RenderKind = classify.Classify(msg)
	if err := s.appendSent(epoch, msg); err != nil {
		return msg, err
	}
	if s.prefs != nil {
		s.prefs.DeleteDraft(chatID)
	}
	return msg, nil
}

// SendMedia uploads content as filename and appends the sent attachment.
func (s *Session) SendMedia(ctx context.Context, filename string, content io.Reader) (models.Message, error) {
	s.mu.Lock()
	chatID, err := s.openLocked()
	if err != nil {
		s.mu.Unlock()
		return models.Message{}, err
	}
	epoch := s.epoch
	s.mu.Unlock()

	url, err := s.gw.SendMedia(ctx, chatID, filename, content)
	if err != nil {
		s.failed(epoch, "Upload failed: %v", err)
		return models.Message{}, fmt.Errorf("send media to %s: %w", chatID, err)
	}

	name := filepath.Base(filename)
	msg := models.Message{
		ID:         localMediaID(url),
		ChatID:     chatID,
		SenderRole: models.SenderAgent,
		Timestamp:  s.sched.Now().UTC(),
		Status:     models.StatusSent,
		Media: &models.Media{
			URL:      url,
			Filename: name,
			Mimetype: mime.TypeByExtension(filepath.Ext(name)),
		},
	}
	msg.RenderKind = classify.Classify(msg)
	if err := s.appendSent(epoch, msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// localMediaID names a sent attachment until the gateway reports it with
// its own id.
func localMediaID(url string) string {
	return "media:" + url
}

func (s *Session) appendSent(epoch uint64, msg models.Message) error {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrChatChanged
	}
	if _, dup := s.index[msg.ID]; !dup {
		s.appendLocked(msg)
		s.window.SetTotal(len(s.log))
		s.cache.Invalidate(len(s.log))
	}
	if msg.Body != "" {
		s.replyTo = ""
		s.draft = ""
	}
	s.scroll.JumpToBottom()
	language := s.language
	s.mu.Unlock()

	s.metrics.MessagesIngested(1)
	if language != "" {
		go func() {
			if err := s.translate(context.Background(), epoch); err != nil {
				s.logger.Debug().Err(err).Msg("retranslate after send failed")
			}
		}()
	}
	s.notify()
	return nil
}

func (s *Session) failed(epoch uint64, format string, err error) {
	s.mu.Lock()
	if s.epoch == epoch && !s.closed {
		s.addNoticeLocked(NoticeError, format, err)
	}
	s.mu.Unlock()
	s.notify()
}

// MarkSeen tells the gateway the open chat was read and remembers the last
// message as the read marker.
func (s *Session) MarkSeen(ctx context.Context) error {
	s.mu.Lock()
	chatID, err := s.openLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	last := ""
	if n := len(s.log); n > 0 {
		last = s.log[n-1].ID
	}
	s.mu.Unlock()

	if err := s.gw.MarkSeen(ctx, chatID); err != nil {
		return fmt.Errorf("mark %s seen: %w", chatID, err)
	}
	if s.prefs != nil && last != "" {
		s.prefs.SetReadMarker(chatID, last)
	}
	return nil
}

// Scroll handles a user scroll event. Reaching the top edge while older
// messages are hidden expands the window.
func (s *Session) Scroll(vp history.Viewport) history.Action {
	s.mu.Lock()
	if s.chatID == "" {
		s.mu.Unlock()
		return history.Action{}
	}
	action := s.scroll.OnScroll(vp, s.window.CanExpand())
	s.mu.Unlock()

	if action.ExpandHistory {
		s.Expand()
	}
	s.notify()
	return action
}

// JumpToBottom handles a tap on the new-message affordance.
func (s *Session) JumpToBottom() history.Action {
	action := s.scroll.JumpToBottom()
	s.notify()
	return action
}

// Expand reveals one more batch of older messages. It reports false when an
// expansion is already running or nothing is hidden.
func (s *Session) Expand() bool {
	if !s.window.BeginExpand() {
		return false
	}
	count := s.window.CompleteExpand()
	s.metrics.VisibleMessages(count)
	s.logger.Debug().Int("visible", count).Int("total", s.window.Total()).Msg("history expanded")
	s.notify()
	return true
}

// messagesLocked returns the log with coordinator-owned fields applied.
func (s *Session) messagesLocked() []models.Message {
	out := make([]models.Message, len(s.log))
	for i, msg := range s.log {
		msg = msg.Clone()
		msg.Starred = s.view.isStarred(msg.ID)
		msg.Body = s.view.body(msg.ID)
		out[i] = msg
	}
	return out
}
