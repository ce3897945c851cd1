// Package chattui is the terminal renderer of a chat session.
package chattui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/tOgg1/gatechat/internal/history"
	"github.com/tOgg1/gatechat/internal/logging"
	"github.com/tOgg1/gatechat/internal/session"
)

const (
	defaultPollInterval = 5 * time.Second
	opTimeout           = 15 * time.Second
	attachPrefix        = "/attach "
)

type mode int

const (
	modeNormal mode = iota
	modeCompose
	modeLanguage
	modeEdit
)

// Config configures a Model.
type Config struct {
	ChatID         string
	PollInterval   time.Duration
	Theme          string
	ShowTimestamps bool
	RelativeTime   bool
	// Now is used for relative timestamps. Defaults to time.Now.
	Now func() time.Time
}

type (
	openedMsg    struct{ err error }
	refreshedMsg struct {
		result session.IngestResult
		err    error
	}
	sentMsg     struct{ err error }
	languageMsg struct{ err error }
	pollTickMsg struct{}
)

// Model is the bubbletea model of one chat.
type Model struct {
	sess   *session.Session
	cfg    Config
	styles styles
	logger zerolog.Logger

	width  int
	height int

	mode     mode
	input    []rune
	editID   string
	selected string
	// offset counts body lines scrolled up from the bottom.
	offset     int
	lineCount  int
	snap       session.Snapshot
	err        error
	openedOnce bool
}

// NewModel creates a Model for sess.
func NewModel(sess *session.Session, cfg Config) *Model {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Model{
		sess:   sess,
		cfg:    cfg,
		styles: newStyles(PaletteByName(cfg.Theme)),
		logger: logging.Component("tui"),
		width:  80,
		height: 24,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.openCmd(), m.pollCmd())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.refreshSnapshot()
		return m, nil
	case sessionChangedMsg:
		m.refreshSnapshot()
		return m, nil
	case openedMsg:
		m.openedOnce = true
		m.err = msg.err
		m.offset = 0
		m.selected = ""
		m.refreshSnapshot()
		return m, m.markSeenCmd()
	case refreshedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			if msg.result.Action.ScrollToBottom {
				m.offset = 0
			}
		}
		m.refreshSnapshot()
		if msg.result.Appended > 0 && m.offset == 0 {
			return m, m.markSeenCmd()
		}
		return m, nil
	case sentMsg:
		if msg.err != nil && !errors.Is(msg.err, session.ErrEmptyMessage) {
			m.err = msg.err
		}
		m.offset = 0
		m.refreshSnapshot()
		return m, nil
	case languageMsg:
		m.err = msg.err
		m.refreshSnapshot()
		return m, nil
	case pollTickMsg:
		return m, tea.Batch(m.refreshCmd(), m.pollCmd())
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	switch m.mode {
	case modeCompose:
		return m.handleComposeKey(msg)
	case modeLanguage, modeEdit:
		return m.handlePromptKey(msg)
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "j", "down":
		m.moveSelection(1)
	case "k", "up":
		m.moveSelection(-1)
	case "pgup", "ctrl+u":
		m.scrollBy(m.bodyHeight() / 2)
	case "pgdown", "ctrl+d":
		m.scrollBy(-m.bodyHeight() / 2)
	case "home":
		m.scrollBy(m.lineCount)
	case "G", "end":
		m.offset = 0
		m.sess.JumpToBottom()
		m.selected = ""
		m.refreshSnapshot()
		return m, m.markSeenCmd()
	case "s":
		if id := m.selectedID(); id != "" {
			if _, err := m.sess.ToggleStar(context.Background(), id); err != nil {
				m.err = err
			}
		}
	case "t":
		if id := m.selectedID(); id != "" {
			m.sess.ToggleMessageTranslation(id)
		}
	case "L":
		m.mode = modeLanguage
		m.input = []rune(m.snap.Language)
	case "e":
		view, ok := m.selectedView()
		if ok && view.FromMe() && view.Media == nil {
			m.mode = modeEdit
			m.editID = view.ID
			m.input = []rune(view.Body)
		}
	case "r":
		if id := m.selectedID(); id != "" {
			if err := m.sess.SetReplyTo(id); err != nil {
				m.err = err
			}
			m.enterCompose()
		}
	case "i", "enter":
		m.enterCompose()
	case "x":
		if len(m.snap.Notices) > 0 {
			m.sess.DismissNotice(m.snap.Notices[0].ID)
		}
	case "R":
		return m, m.refreshCmd()
	}
	m.refreshSnapshot()
	return m, nil
}

func (m *Model) enterCompose() {
	m.mode = modeCompose
	m.input = []rune(m.snap.Draft)
}

func (m *Model) handleComposeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeNormal
		return m, nil
	case tea.KeyCtrlX:
		_ = m.sess.SetReplyTo("")
		m.refreshSnapshot()
		return m, nil
	case tea.KeyEnter:
		text := strings.TrimSpace(string(m.input))
		if text == "" {
			return m, nil
		}
		m.input = nil
		m.mode = modeNormal
		if strings.HasPrefix(text, attachPrefix) {
			return m, m.sendMediaCmd(strings.TrimSpace(strings.TrimPrefix(text, attachPrefix)))
		}
		return m, m.sendCmd(text)
	}
	if m.editInput(msg) {
		m.sess.InputChanged(string(m.input))
		m.refreshSnapshot()
	}
	return m, nil
}

func (m *Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeNormal
		m.input = nil
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(string(m.input))
		prompt := m.mode
		m.mode = modeNormal
		m.input = nil
		if prompt == modeLanguage {
			return m, m.languageCmd(value)
		}
		if value == "" {
			return m, nil
		}
		if _, err := m.sess.Edit(context.Background(), m.editID, value); err != nil {
			m.err = err
		}
		m.refreshSnapshot()
		return m, nil
	}
	m.editInput(msg)
	return m, nil
}

// editInput applies a line-editing key to the input buffer and reports
// whether the buffer changed.
func (m *Model) editInput(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyBackspace:
		if len(m.input) == 0 {
			return false
		}
		m.input = m.input[:len(m.input)-1]
		return true
	case tea.KeyCtrlU:
		if len(m.input) == 0 {
			return false
		}
		m.input = nil
		return true
	case tea.KeySpace:
		m.input = append(m.input, ' ')
		return true
	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
		return true
	}
	return false
}

func (m *Model) moveSelection(delta int) {
	visible := m.snap.Visible
	if len(visible) == 0 {
		return
	}
	idx := len(visible) - 1
	for i, v := range visible {
		if v.ID == m.selected {
			idx = i
			break
		}
	}
	if m.selected == "" && delta > 0 {
		return
	}
	idx += delta
	if idx < 0 {
		idx = 0
		if m.snap.CanExpand {
			m.sess.Expand()
		}
	}
	if idx >= len(visible) {
		idx = len(visible) - 1
	}
	m.selected = visible[idx].ID
}

// scrollBy moves the body up by delta lines (down when negative) and
// reports the new position to the session.
func (m *Model) scrollBy(delta int) {
	height := m.bodyHeight()
	maxOffset := m.lineCount - height
	if maxOffset < 0 {
		maxOffset = 0
	}
	m.offset += delta
	if m.offset > maxOffset {
		m.offset = maxOffset
	}
	if m.offset < 0 {
		m.offset = 0
	}
	top := m.lineCount - height - m.offset
	if top < 0 {
		top = 0
	}
	action := m.sess.Scroll(history.Viewport{Offset: top, BottomDistance: m.offset})
	if action.ExpandHistory {
		m.logger.Debug().Int("offset", m.offset).Msg("expanded history at top edge")
	}
}

func (m *Model) selectedID() string {
	if m.selected != "" {
		return m.selected
	}
	if n := len(m.snap.Visible); n > 0 {
		return m.snap.Visible[n-1].ID
	}
	return ""
}

func (m *Model) selectedView() (session.MessageView, bool) {
	id := m.selectedID()
	for _, v := range m.snap.Visible {
		if v.ID == id {
			return v, true
		}
	}
	return session.MessageView{}, false
}

func (m *Model) refreshSnapshot() {
	m.snap = m.sess.Snapshot()
	if m.selected == "" {
		return
	}
	for _, v := range m.snap.Visible {
		if v.ID == m.selected {
			return
		}
	}
	m.selected = ""
}

func (m *Model) openCmd() tea.Cmd {
	sess, chatID := m.sess, m.cfg.ChatID
	return func() tea.Msg {
		if chatID == "" {
			return openedMsg{err: session.ErrNoChat}
		}
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return openedMsg{err: sess.Open(ctx, chatID)}
	}
}

func (m *Model) refreshCmd() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		result, err := sess.Refresh(ctx)
		if errors.Is(err, session.ErrNoChat) {
			err = nil
		}
		return refreshedMsg{result: result, err: err}
	}
}

func (m *Model) markSeenCmd() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		_ = sess.MarkSeen(ctx)
		return nil
	}
}

func (m *Model) sendCmd(text string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		_, err := sess.Send(ctx, text)
		return sentMsg{err: err}
	}
}

func (m *Model) sendMediaCmd(path string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return sentMsg{err: err}
		}
		defer f.Close()
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		_, err = sess.SendMedia(ctx, filepath.Base(path), f)
		return sentMsg{err: err}
	}
}

func (m *Model) languageCmd(language string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return languageMsg{err: sess.SetLanguage(ctx, language)}
	}
}

func (m *Model) pollCmd() tea.Cmd {
	return tea.Tick(m.cfg.PollInterval, func(time.Time) tea.Msg { return pollTickMsg{} })
}

// Run starts the full-screen program and blocks until the user quits.
func Run(ctx context.Context, sess *session.Session, bridge *Bridge, cfg Config) error {
	model := NewModel(sess, cfg)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if bridge != nil {
		bridge.attach(p)
		defer bridge.Close()
	}
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
