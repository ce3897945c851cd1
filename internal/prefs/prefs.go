// Package prefs persists client-side UI preferences: the last open chat,
// the preferred translation language per chat, and reply drafts.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	CurrentVersion = 1

	defaultDebounce = 1 * time.Second
	draftMaxAge     = 30 * 24 * time.Hour
)

type State struct {
	Version     int               `json:"version"`
	LastChat    string            `json:"last_chat,omitempty"`
	Languages   map[string]string `json:"languages,omitempty"`    // chat -> preferred translation language
	Drafts      map[string]Draft  `json:"drafts,omitempty"`       // chat -> composer draft
	ReadMarkers map[string]string `json:"read_markers,omitempty"` // chat -> last seen message ID
	Preferences Preferences       `json:"preferences,omitempty"`
}

type Draft struct {
	ChatID    string    `json:"chat_id"`
	Body      string    `json:"body,omitempty"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Preferences struct {
	Theme        string `json:"theme,omitempty"`
	RelativeTime bool   `json:"relative_time,omitempty"`
}

type Manager struct {
	path     string
	lockPath string

	mu       sync.Mutex
	state    State
	dirty    bool
	timer    *time.Timer
	debounce time.Duration
}

func New(path string) *Manager {
	path = strings.TrimSpace(path)
	lockPath := ""
	if path != "" {
		lockPath = path + ".lock"
	}
	return &Manager{
		path:     path,
		lockPath: lockPath,
		state:    emptyState(),
		debounce: defaultDebounce,
	}
}

func emptyState() State {
	return State{
		Version:     CurrentVersion,
		Languages:   make(map[string]string),
		Drafts:      make(map[string]Draft),
		ReadMarkers: make(map[string]string),
	}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path == "" {
		return nil
	}
	loaded, err := m.loadLocked()
	if err != nil {
		return err
	}
	m.state = loaded
	m.dirty = false
	return nil
}

func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneState(m.state)
}

func (m *Manager) LastChat() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastChat
}

func (m *Manager) SetLastChat(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chatID = strings.TrimSpace(chatID)
	if chatID == "" || chatID == m.state.LastChat {
		return
	}
	m.state.LastChat = chatID
	m.markDirtyLocked()
}

// Language returns the preferred translation language of chatID, or "".
func (m *Manager) Language(chatID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Languages[strings.TrimSpace(chatID)]
}

// SetLanguage stores the preferred language of chatID. An empty language
// removes the preference.
func (m *Manager) SetLanguage(chatID, language string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chatID = strings.TrimSpace(chatID)
	language = strings.TrimSpace(language)
	if chatID == "" {
		return
	}
	if m.state.Languages == nil {
		m.state.Languages = make(map[string]string)
	}
	if m.state.Languages[chatID] == language {
		return
	}
	if language == "" {
		delete(m.state.Languages, chatID)
	} else {
		m.state.Languages[chatID] = language
	}
	m.markDirtyLocked()
}

func (m *Manager) Draft(chatID string) (Draft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chatID = strings.TrimSpace(chatID)
	if chatID == "" || len(m.state.Drafts) == 0 {
		return Draft{}, false
	}
	draft, ok := m.state.Drafts[chatID]
	return draft, ok
}

// SetDraft stores draft. A draft with neither body nor reply target is
// deleted instead.
func (m *Manager) SetDraft(draft Draft) {
	chatID := strings.TrimSpace(draft.ChatID)
	if chatID == "" {
		return
	}
	if strings.TrimSpace(draft.Body) == "" && strings.TrimSpace(draft.ReplyTo) == "" {
		m.DeleteDraft(chatID)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Drafts == nil {
		m.state.Drafts = make(map[string]Draft)
	}
	draft.ChatID = chatID
	if draft.UpdatedAt.IsZero() {
		draft.UpdatedAt = time.Now().UTC()
	}
	m.state.Drafts[chatID] = draft
	m.markDirtyLocked()
}

func (m *Manager) DeleteDraft(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chatID = strings.TrimSpace(chatID)
	if _, ok := m.state.Drafts[chatID]; !ok {
		return
	}
	delete(m.state.Drafts, chatID)
	m.markDirtyLocked()
}

func (m *Manager) ReadMarker(chatID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ReadMarkers[strings.TrimSpace(chatID)]
}

func (m *Manager) SetReadMarker(chatID, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chatID = strings.TrimSpace(chatID)
	messageID = strings.TrimSpace(messageID)
	if chatID == "" || messageID == "" || m.state.ReadMarkers[chatID] == messageID {
		return
	}
	if m.state.ReadMarkers == nil {
		m.state.ReadMarkers = make(map[string]string)
	}
	m.state.ReadMarkers[chatID] = messageID
	m.markDirtyLocked()
}

func (m *Manager) Preferences() Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Preferences
}

func (m *Manager) SetPreferences(p Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Preferences == p {
		return
	}
	m.state.Preferences = p
	m.markDirtyLocked()
}

func (m *Manager) Close() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	needsSave := m.dirty
	m.mu.Unlock()
	if !needsSave {
		return nil
	}
	return m.SaveNow()
}

func (m *Manager) SaveNow() error {
	m.mu.Lock()
	if m.path == "" {
		m.dirty = false
		m.mu.Unlock()
		return nil
	}
	state := cloneState(m.state)
	m.dirty = false
	m.mu.Unlock()

	state.Version = CurrentVersion
	state = normalizeState(state, time.Now().UTC())

	if err := withFileLock(m.lockPath, func() error {
		return writeAtomicJSON(m.path, state)
	}); err != nil {
		m.mu.Lock()
		m.dirty = true
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) markDirtyLocked() {
	m.dirty = true
	if m.path == "" {
		return
	}
	if m.timer == nil {
		m.timer = time.AfterFunc(m.debounce, func() {
			_ = m.SaveNow()
		})
		return
	}
	_ = m.timer.Reset(m.debounce)
}

func (m *Manager) loadLocked() (State, error) {
	var out State
	if err := withFileLock(m.lockPath, func() error {
		payload, err := os.ReadFile(m.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				out = emptyState()
				return nil
			}
			return err
		}
		if len(payload) == 0 {
			out = emptyState()
			return nil
		}
		if err := json.Unmarshal(payload, &out); err != nil {
			return fmt.Errorf("parse %s: %w", m.path, err)
		}
		return nil
	}); err != nil {
		return State{}, err
	}
	if out.Version <= 0 {
		out.Version = CurrentVersion
	}
	return normalizeState(out, time.Now().UTC()), nil
}

func withFileLock(lockPath string, fn func() error) error {
	if strings.TrimSpace(lockPath) == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()
	return fn()
}

func writeAtomicJSON(path string, state State) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// normalizeState drops empty keys and drafts older than draftMaxAge.
func normalizeState(state State, now time.Time) State {
	languages := make(map[string]string, len(state.Languages))
	for chat, lang := range state.Languages {
		chat, lang = strings.TrimSpace(chat), strings.TrimSpace(lang)
		if chat == "" || lang == "" {
			continue
		}
		languages[chat] = lang
	}
	state.Languages = languages

	drafts := make(map[string]Draft, len(state.Drafts))
	for chat, draft := range state.Drafts {
		chat = strings.TrimSpace(chat)
		if chat == "" {
			continue
		}
		if !draft.UpdatedAt.IsZero() && now.Sub(draft.UpdatedAt) > draftMaxAge {
			continue
		}
		draft.ChatID = chat
		drafts[chat] = draft
	}
	state.Drafts = drafts

	if state.ReadMarkers == nil {
		state.ReadMarkers = make(map[string]string)
	}
	return state
}

func cloneState(state State) State {
	out := state
	out.Languages = make(map[string]string, len(state.Languages))
	for k, v := range state.Languages {
		out.Languages[k] = v
	}
	out.Drafts = make(map[string]Draft, len(state.Drafts))
	for k, v := range state.Drafts {
		out.Drafts[k] = v
	}
	out.ReadMarkers = make(map[string]string, len(state.ReadMarkers))
	for k, v := range state.ReadMarkers {
		out.ReadMarkers[k] = v
	}
	return out
}
