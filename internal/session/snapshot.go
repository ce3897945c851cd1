package session

import (
	"github.com/tOgg1/gatechat/internal/classify"
	"github.com/tOgg1/gatechat/internal/history"
	"github.com/tOgg1/gatechat/internal/models"
)

// MessageView is one visible message as a renderer should draw it.
type MessageView struct {
	models.Message
	// DisplayBody is the translation when one is shown, else Body.
	DisplayBody string
	Translated  bool
	// TranslationErr is set while a failed translation marker is live.
	TranslationErr error
	// StarPending and EditPending report unresolved intents.
	StarPending bool
	EditPending bool
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	ChatID  string
	Epoch   uint64
	Loading bool

	Total        int
	VisibleCount int
	Visible      []MessageView
	CanExpand    bool

	ScrollState     history.ScrollState
	IsUserScrolling bool
	// ShowNewMessageAffordance is raised when messages arrived while the
	// view was away from the bottom.
	ShowNewMessageAffordance bool
	PendingNew               int

	Language    string
	Translating bool
	Translation *models.TranslationEntry

	Typing  models.TypingState
	Draft   string
	ReplyTo *models.Message
	Notices []Notice
}

// Snapshot returns the current state with only the visible window of the
// log materialized.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ChatID:                   s.chatID,
		Epoch:                    s.epoch,
		Loading:                  s.loading,
		Total:                    len(s.log),
		VisibleCount:             s.window.VisibleCount(),
		CanExpand:                s.window.CanExpand(),
		ScrollState:              s.scroll.State(),
		IsUserScrolling:          s.scroll.IsUserScrolling(),
		ShowNewMessageAffordance: s.scroll.ShowAffordance(),
		PendingNew:               s.scroll.PendingNew(),
		Language:                 s.language,
		Translating:              s.translating,
		Translation:              s.cache.Entry(),
		Typing:                   s.typing.State(),
		Draft:                    s.draft,
		Notices:                  append([]Notice(nil), s.notices...),
	}

	visible := history.Tail(s.log, snap.VisibleCount)
	snap.Visible = make([]MessageView, 0, len(visible))
	for _, msg := range visible {
		snap.Visible = append(snap.Visible, s.messageViewLocked(msg))
	}
	if s.replyTo != "" {
		if i, ok := s.index[s.replyTo]; ok {
			target := s.messageViewLocked(s.log[i]).Message
			snap.ReplyTo = &target
		}
	}
	return snap
}

func (s *Session) messageViewLocked(msg models.Message) MessageView {
	msg = msg.Clone()
	msg.Starred = s.view.isStarred(msg.ID)
	if body := s.view.body(msg.ID); body != msg.Body {
		msg.Body = body
		msg.RenderKind = classify.Classify(msg)
	}
	out := MessageView{
		Message:        msg,
		DisplayBody:    msg.Body,
		TranslationErr: s.cache.Err(msg.ID),
		StarPending:    s.stars.Pending(msg.ID),
		EditPending:    s.edits.Pending(msg.ID),
	}
	if s.language != "" {
		out.DisplayBody = s.cache.Body(msg)
		out.Translated = out.DisplayBody != msg.Body
	}
	return out
}

// Message returns one message of the open chat as it is currently shown.
func (s *Session) Message(id string) (MessageView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return MessageView{}, false
	}
	return s.messageViewLocked(s.log[i]), true
}
