package chattui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/tOgg1/gatechat/internal/models"
	"github.com/tOgg1/gatechat/internal/session"
)

const composerHeight = 3

var kindBadges = map[models.RenderKind]string{
	models.RenderLocation: "[location]",
	models.RenderPoll:     "[poll]",
	models.RenderImage:    "[image]",
	models.RenderAudio:    "[audio]",
	models.RenderVideo:    "[video]",
	models.RenderDocument: "[document]",
}

func (m *Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	var sections []string
	sections = append(sections, m.renderHeader())

	body := m.renderBody()
	sections = append(sections, body)

	if m.snap.ShowNewMessageAffordance {
		label := "new messages"
		if m.snap.PendingNew > 0 {
			label = fmt.Sprintf("%d new %s", m.snap.PendingNew, plural(m.snap.PendingNew, "message", "messages"))
		}
		sections = append(sections, m.styles.affordance.Render("↓ "+label+" (G)"))
	}
	for _, n := range m.snap.Notices {
		style := m.styles.infoNotice
		if n.Level == session.NoticeError {
			style = m.styles.errNotice
		}
		sections = append(sections, style.Render(truncate.StringWithTail(n.Text, uint(max(m.width, 4)), "…")))
	}
	if m.err != nil {
		sections = append(sections, m.styles.errNotice.Render(truncate.StringWithTail(m.err.Error(), uint(max(m.width, 4)), "…")))
	}
	sections = append(sections, m.renderComposer(), m.renderHelp())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader() string {
	snap := m.snap
	if snap.ChatID == "" {
		if !m.openedOnce {
			return m.styles.header.Render("gatechat · connecting…")
		}
		return m.styles.header.Render("gatechat · no chat")
	}
	parts := []string{
		m.styles.header.Render(snap.ChatID),
		m.styles.muted.Render(fmt.Sprintf("%d/%d", snap.VisibleCount, snap.Total)),
	}
	if snap.Loading {
		parts = append(parts, m.styles.muted.Render("loading…"))
	}
	if snap.Language != "" {
		lang := "→ " + snap.Language
		if snap.Translating {
			lang += " …"
		}
		parts = append(parts, m.styles.kind.Render(lang))
	}
	if snap.Typing.IsTyping {
		parts = append(parts, m.styles.muted.Render("typing"))
	}
	return strings.Join(parts, m.styles.muted.Render(" · "))
}

// messageLines renders every visible message into display lines.
func (m *Model) messageLines() []string {
	width := m.width - 2
	if width < 10 {
		width = 10
	}
	selected := m.selectedID()
	var lines []string
	if m.snap.CanExpand {
		lines = append(lines, m.styles.muted.Render(fmt.Sprintf("  ↑ %d older (pgup)", m.snap.Total-m.snap.VisibleCount)))
	}
	for _, v := range m.snap.Visible {
		header := m.messageHeader(v)
		if m.selected != "" && v.ID == selected {
			header = m.styles.selected.Render("› " + header)
		} else {
			header = "  " + header
		}
		lines = append(lines, header)
		if v.ReplyToID != "" {
			lines = append(lines, "    "+m.styles.replyMarker.Render("↳ "+m.replySnippet(v.ReplyToID)))
		}
		for _, line := range strings.Split(wordwrap.String(m.messageBody(v), width-4), "\n") {
			lines = append(lines, "    "+m.styles.body.Render(line))
		}
		if v.TranslationErr != nil {
			lines = append(lines, "    "+m.styles.errNotice.Render("translation failed"))
		}
	}
	return lines
}

func (m *Model) renderBody() string {
	lines := m.messageLines()
	m.lineCount = len(lines)
	height := m.bodyHeight()

	end := len(lines) - m.offset
	if end < 0 {
		end = 0
	}
	start := end - height
	if start < 0 {
		start = 0
	}
	view := lines[start:end]
	for len(view) < height {
		view = append([]string{""}, view...)
	}
	return strings.Join(view, "\n")
}

func (m *Model) messageHeader(v session.MessageView) string {
	var b strings.Builder
	if v.Starred {
		star := "★ "
		if v.StarPending {
			star = "☆ "
		}
		b.WriteString(m.styles.star.Render(star))
	} else if v.StarPending {
		b.WriteString(m.styles.star.Render("☆ "))
	}
	if v.FromMe() {
		b.WriteString(m.styles.own.Render("me"))
	} else {
		b.WriteString(m.styles.other.Render("them"))
	}
	if m.cfg.ShowTimestamps && !v.Timestamp.IsZero() {
		b.WriteString(" ")
		b.WriteString(m.styles.muted.Render(m.formatTime(v)))
	}
	if badge, ok := kindBadges[v.RenderKind]; ok {
		b.WriteString(" ")
		b.WriteString(m.styles.kind.Render(badge))
	}
	if v.FromMe() {
		b.WriteString(" ")
		b.WriteString(m.styles.muted.Render(statusTicks(v.Status)))
	}
	if v.Translated {
		b.WriteString(" ")
		b.WriteString(m.styles.kind.Render("(translated)"))
	}
	if v.EditPending {
		b.WriteString(" ")
		b.WriteString(m.styles.muted.Render("(saving)"))
	}
	return b.String()
}

func (m *Model) formatTime(v session.MessageView) string {
	if m.cfg.RelativeTime {
		return humanize.RelTime(v.Timestamp, m.cfg.Now(), "ago", "from now")
	}
	return v.Timestamp.Local().Format("15:04")
}

func (m *Model) messageBody(v session.MessageView) string {
	switch v.RenderKind {
	case models.RenderLocation:
		if v.Location != nil {
			label := v.Location.Title
			if label == "" {
				label = v.Location.Address
			}
			coords := fmt.Sprintf("%.5f, %.5f", v.Location.Lat, v.Location.Lng)
			if label == "" {
				return coords
			}
			return label + " (" + coords + ")"
		}
	case models.RenderPoll:
		if v.Poll != nil {
			var b strings.Builder
			b.WriteString(v.Poll.Title)
			for _, opt := range v.Poll.Options {
				b.WriteString("\n  ○ ")
				b.WriteString(opt)
			}
			return b.String()
		}
	case models.RenderImage, models.RenderAudio, models.RenderVideo, models.RenderDocument:
		name := ""
		if v.Media != nil {
			name = v.Media.Filename
		}
		if strings.TrimSpace(v.DisplayBody) == "" {
			return name
		}
		if name != "" {
			return name + "\n" + v.DisplayBody
		}
	}
	return v.DisplayBody
}

func (m *Model) replySnippet(id string) string {
	for _, v := range m.snap.Visible {
		if v.ID == id {
			return truncate.StringWithTail(strings.ReplaceAll(v.DisplayBody, "\n", " "), 40, "…")
		}
	}
	return "earlier message"
}

func (m *Model) renderComposer() string {
	prompt := "› "
	text := string(m.input)
	switch m.mode {
	case modeNormal:
		text = m.snap.Draft
		prompt = "  "
	case modeLanguage:
		prompt = "language: "
	case modeEdit:
		prompt = "edit: "
	}
	if m.mode != modeNormal {
		text += "█"
	}
	if m.mode != modeLanguage && m.mode != modeEdit && m.snap.ReplyTo != nil {
		prompt = "reply › "
	}
	width := m.width - 2
	if width < 10 {
		width = 10
	}
	line := truncate.StringWithTail(prompt+text, uint(width), "…")
	return m.styles.composer.Width(width).Render(line)
}

func (m *Model) renderHelp() string {
	var help string
	switch m.mode {
	case modeCompose:
		help = "enter send · esc back · ctrl+x clear reply · /attach <path>"
	case modeLanguage:
		help = "enter apply (empty restores original) · esc cancel"
	case modeEdit:
		help = "enter save · esc cancel"
	default:
		help = "j/k select · pgup/pgdn scroll · G bottom · s star · t translate · L language · e edit · r reply · i compose · q quit"
	}
	return m.styles.muted.Render(truncate.StringWithTail(help, uint(max(m.width, 4)), "…"))
}

// bodyHeight is the number of message lines that fit between the chrome.
func (m *Model) bodyHeight() int {
	chrome := 1 + composerHeight + 1 + len(m.snap.Notices)
	if m.snap.ShowNewMessageAffordance {
		chrome++
	}
	if m.err != nil {
		chrome++
	}
	h := m.height - chrome
	if h < 1 {
		h = 1
	}
	return h
}

func statusTicks(status models.MessageStatus) string {
	switch status {
	case models.StatusRead:
		return "✓✓ read"
	case models.StatusDelivered:
		return "✓✓"
	default:
		return "✓"
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
