package models

import (
	"strings"
	"time"
)

// RawLocation is the location block of a gateway record.
type RawLocation struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description,omitempty"`
	Address     string  `json:"address,omitempty"`
}

// RawPoll is the poll block of a gateway record.
type RawPoll struct {
	Name                   string   `json:"name"`
	Options                []string `json:"options"`
	SelectableOptionsCount int      `json:"selectableOptionsCount,omitempty"`
}

// RawMessage is a message record as delivered by the messaging gateway.
type RawMessage struct {
	ID        string       `json:"id"`
	Body      string       `json:"body"`
	Timestamp int64        `json:"timestamp"`
	FromMe    bool         `json:"fromMe"`
	Type      string       `json:"type,omitempty"`
	HasMedia  bool         `json:"hasMedia,omitempty"`
	MediaURL  string       `json:"mediaUrl,omitempty"`
	Filename  string       `json:"filename,omitempty"`
	Mimetype  string       `json:"mimetype,omitempty"`
	Status    string       `json:"status,omitempty"`
	ReplyTo   string       `json:"replyTo,omitempty"`
	Location  *RawLocation `json:"location,omitempty"`
	Poll      *RawPoll     `json:"poll,omitempty"`
}

// Normalize converts a gateway record into a Message for chatID.
// RenderKind is left empty; the classifier owns it.
func (r RawMessage) Normalize(chatID string) Message {
	msg := Message{
		ID:         strings.TrimSpace(r.ID),
		ChatID:     strings.TrimSpace(chatID),
		SenderRole: SenderCounterpart,
		Body:       r.Body,
		Timestamp:  unixTime(r.Timestamp),
		Status:     ParseMessageStatus(r.Status),
		ReplyToID:  strings.TrimSpace(r.ReplyTo),
	}
	if r.FromMe {
		msg.SenderRole = SenderAgent
	}

	mediaURL := strings.TrimSpace(r.MediaURL)
	mimetype := strings.TrimSpace(r.Mimetype)
	filename := strings.TrimSpace(r.Filename)
	typ := strings.ToLower(strings.TrimSpace(r.Type))
	msg.Type = typ
	if mediaURL != "" || mimetype != "" || filename != "" || r.HasMedia || isMediaType(typ) {
		msg.Media = &Media{
			URL:      mediaURL,
			Mimetype: mimetype,
			Filename: filename,
			Type:     typ,
		}
	}

	if r.Location != nil {
		msg.Location = &Location{
			Lat:     r.Location.Latitude,
			Lng:     r.Location.Longitude,
			Title:   strings.TrimSpace(r.Location.Description),
			Address: strings.TrimSpace(r.Location.Address),
		}
	}
	if r.Poll != nil {
		msg.Poll = &Poll{
			Title:           strings.TrimSpace(r.Poll.Name),
			Options:         append([]string(nil), r.Poll.Options...),
			MultipleAnswers: r.Poll.SelectableOptionsCount != 1,
		}
	}
	return msg
}

// NormalizeAll converts a batch of records, dropping entries without an id.
func NormalizeAll(chatID string, raws []RawMessage) []Message {
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		if strings.TrimSpace(raw.ID) == "" {
			continue
		}
		out = append(out, raw.Normalize(chatID))
	}
	return out
}

func isMediaType(typ string) bool {
	switch typ {
	case "image", "sticker", "audio", "ptt", "voice", "video", "gif_video", "document":
		return true
	default:
		return false
	}
}

func unixTime(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	// Some gateways report milliseconds.
	if ts > 1e12 {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}
