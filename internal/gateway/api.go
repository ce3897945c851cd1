package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/tOgg1/gatechat/internal/models"
)

// StarAction is the action field of a star request.
type StarAction string

const (
	ActionStar   StarAction = "star"
	ActionUnstar StarAction = "unstar"
)

// SendTextRequest sends a text message, optionally as a reply.
type SendTextRequest struct {
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	ReplyTo string `json:"replyTo,omitempty"`
}

type sendTextResponse struct {
	ID string `json:"id"`
}

type starRequest struct {
	MessageID string     `json:"messageId"`
	ChatID    string     `json:"chatId"`
	Action    StarAction `json:"action"`
}

type editRequest struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	Text      string `json:"text"`
}

type translateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage"`
	SourceLanguage string `json:"sourceLanguage"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

type chatRequest struct {
	ChatID string `json:"chatId"`
}

type starredResponse struct {
	MessageIDs []string `json:"messageIds"`
}

type mediaResponse struct {
	URL string `json:"url"`
}

// Messages returns the ordered message records of chatID.
func (c *Client) Messages(ctx context.Context, chatID string) ([]models.RawMessage, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, models.ErrMissingChatID
	}
	var out []models.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("api", "chats", chatID, "messages"), nil, &out); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

// Starred returns the canonical starred message ids of chatID.
func (c *Client) Starred(ctx context.Context, chatID string) ([]string, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, models.ErrMissingChatID
	}
	var out starredResponse
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("api", "chats", chatID, "starred"), nil, &out); err != nil {
		return nil, fmt.Errorf("list starred: %w", err)
	}
	return out.MessageIDs, nil
}

// SendText sends a text or reply and returns the new message id.
func (c *Client) SendText(ctx context.Context, req SendTextRequest) (string, error) {
	if strings.TrimSpace(req.ChatID) == "" {
		return "", models.ErrMissingChatID
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", errors.New("text is required")
	}
	var out sendTextResponse
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("api", "messages", "text"), req, &out); err != nil {
		return "", fmt.Errorf("send text: %w", err)
	}
	return out.ID, nil
}

// SendMedia uploads content as a multipart file and returns the media url.
func (c *Client) SendMedia(ctx context.Context, chatID, filename string, content io.Reader) (string, error) {
	if strings.TrimSpace(chatID) == "" {
		return "", models.ErrMissingChatID
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chatId", chatID); err != nil {
		return "", fmt.Errorf("write chatId field: %w", err)
	}
	if err := writer.WriteField("session", c.session); err != nil {
		return "", fmt.Errorf("write session field: %w", err)
	}
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "messages", "media"), &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out mediaResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("send media: %w", err)
	}
	return out.URL, nil
}

// SetStarred stars or unstars messageID.
func (c *Client) SetStarred(ctx context.Context, chatID, messageID string, starred bool) error {
	action := ActionUnstar
	if starred {
		action = ActionStar
	}
	req := starRequest{MessageID: messageID, ChatID: chatID, Action: action}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("api", "messages", "star"), req, nil); err != nil {
		return fmt.Errorf("%s message %s: %w", action, messageID, err)
	}
	return nil
}

// Edit replaces the body of messageID.
func (c *Client) Edit(ctx context.Context, chatID, messageID, text string) error {
	req := editRequest{MessageID: messageID, ChatID: chatID, Text: text}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("api", "messages", "edit"), req, nil); err != nil {
		return fmt.Errorf("edit message %s: %w", messageID, err)
	}
	return nil
}

// Translate translates text. It satisfies translate.Translator.
func (c *Client) Translate(ctx context.Context, text, targetLanguage, sourceLanguage string) (string, error) {
	req := translateRequest{Text: text, TargetLanguage: targetLanguage, SourceLanguage: sourceLanguage}
	var out translateResponse
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("api", "translate"), req, &out); err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return out.TranslatedText, nil
}

// StartTyping signals that the agent started typing in chatID.
func (c *Client) StartTyping(ctx context.Context, chatID string) error {
	return c.doJSON(ctx, http.MethodPost, c.endpoint("api", "chats", chatID, "typing", "start"), chatRequest{ChatID: chatID}, nil)
}

// StopTyping signals that the agent stopped typing in chatID.
func (c *Client) StopTyping(ctx context.Context, chatID string) error {
	return c.doJSON(ctx, http.MethodPost, c.endpoint("api", "chats", chatID, "typing", "stop"), chatRequest{ChatID: chatID}, nil)
}

// MarkSeen marks every message of chatID as seen.
func (c *Client) MarkSeen(ctx context.Context, chatID string) error {
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("api", "chats", chatID, "seen"), chatRequest{ChatID: chatID}, nil); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// Chats lists the chat ids the gateway knows about.
func (c *Client) Chats(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("api", "chats"), nil, &out); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return out, nil
}
