// Package models defines the core data types for gatechat.
package models

import (
	"strings"
	"time"
)

// SenderRole identifies which side of the conversation sent a message.
type SenderRole string

const (
	SenderAgent       SenderRole = "agent"
	SenderCounterpart SenderRole = "counterpart"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses so that delivery state only moves forward.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// ParseMessageStatus maps gateway status strings onto MessageStatus.
// Gateways report acks either by name or by numeric level.
func ParseMessageStatus(raw string) MessageStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "read", "played", "3", "4":
		return StatusRead
	case "delivered", "device", "received", "2":
		return StatusDelivered
	default:
		return StatusSent
	}
}

// RenderKind is the display variant assigned to a message.
type RenderKind string

const (
	RenderLocation  RenderKind = "location"
	RenderPoll      RenderKind = "poll"
	RenderImage     RenderKind = "image"
	RenderAudio     RenderKind = "audio"
	RenderVideo     RenderKind = "video"
	RenderDocument  RenderKind = "document"
	RenderPlainText RenderKind = "text"
)

// Media describes an attachment carried by a message.
type Media struct {
	URL      string `json:"url,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	Filename string `json:"filename,omitempty"`
	// Type is the gateway's own type tag (ptt, image, document, ...).
	Type string `json:"type,omitempty"`
}

// HasURL reports whether the attachment can actually be fetched.
func (m *Media) HasURL() bool {
	return m != nil && strings.TrimSpace(m.URL) != ""
}

// Poll is an explicit poll payload.
type Poll struct {
	Title           string   `json:"title"`
	Options         []string `json:"options"`
	MultipleAnswers bool     `json:"multipleAnswers"`
}

// Location is an explicit location payload.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Title   string  `json:"title,omitempty"`
	Address string  `json:"address,omitempty"`
}

// Message is one entry of a conversation log.
type Message struct {
	ID         string        `json:"id"`
	ChatID     string        `json:"chatId"`
	SenderRole SenderRole    `json:"senderRole"`
	Body       string        `json:"body"`
	Timestamp  time.Time     `json:"timestamp"`
	RenderKind RenderKind    `json:"renderKind"`
	Media      *Media        `json:"media,omitempty"`
	Poll       *Poll         `json:"poll,omitempty"`
	Location   *Location     `json:"location,omitempty"`
	Starred    bool          `json:"starred"`
	Status     MessageStatus `json:"status"`
	ReplyToID  string        `json:"replyToId,omitempty"`
	// Type is the gateway's type tag, kept for records without media
	// (location, poll).
	Type string `json:"type,omitempty"`
}

// FromMe reports whether the local agent sent the message.
func (m Message) FromMe() bool {
	return m.SenderRole == SenderAgent
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Media != nil {
		media := *m.Media
		out.Media = &media
	}
	if m.Poll != nil {
		poll := *m.Poll
		poll.Options = append([]string(nil), m.Poll.Options...)
		out.Poll = &poll
	}
	if m.Location != nil {
		loc := *m.Location
		out.Location = &loc
	}
	return out
}
