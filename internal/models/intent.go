package models

import "time"

// MutationKind names an optimistic mutation.
type MutationKind string

const (
	MutationStar      MutationKind = "star"
	MutationUnstar    MutationKind = "unstar"
	MutationEdit      MutationKind = "edit"
	MutationTranslate MutationKind = "translate"
)

// IntentStatus is the lifecycle state of a mutation intent.
type IntentStatus string

const (
	IntentPending    IntentStatus = "pending"
	IntentConfirmed  IntentStatus = "confirmed"
	IntentRolledBack IntentStatus = "rolled_back"
)

// Terminal reports whether the status is final.
func (s IntentStatus) Terminal() bool {
	return s == IntentConfirmed || s == IntentRolledBack
}

// TranslationEntry memoizes translated bodies for one chat and language.
type TranslationEntry struct {
	ChatID         string            `json:"chatId"`
	LanguageCode   string            `json:"languageCode"`
	SourceRevision int               `json:"sourceRevision"`
	ByMessageID    map[string]string `json:"byMessageId"`
}

// ValidFor reports whether the entry still matches a log of length revision.
func (e *TranslationEntry) ValidFor(chatID, language string, revision int) bool {
	if e == nil {
		return false
	}
	return e.ChatID == chatID && e.LanguageCode == language && e.SourceRevision == revision
}

// TypingState is the debouncer state exposed to renderers.
type TypingState struct {
	IsTyping        bool      `json:"isTyping"`
	LastKeystrokeAt time.Time `json:"lastKeystrokeAt"`
	StopPending     bool      `json:"stopPending"`
}
