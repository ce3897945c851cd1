// Package gatewaytest provides an in-memory messaging gateway for tests and
// demo mode.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tOgg1/gatechat/internal/models"
)

// Failure makes matching requests answer with Status after Delay.
type Failure struct {
	Status int
	Delay  time.Duration
	// Times limits how many requests fail; zero means until cleared.
	Times int
}

// TypingEvent is one recorded typing signal.
type TypingEvent struct {
	ChatID string
	Start  bool
	At     time.Time
}

// Server is a fake gateway.
type Server struct {
	// Token, when set, is required as a bearer token.
	Token string

	mu          sync.Mutex
	chats       map[string][]models.RawMessage
	starred     map[string]map[string]bool
	failures    map[string]*Failure
	delays      map[string]time.Duration
	calls       map[string]int
	typing      []TypingEvent
	seen        map[string]int
	uploads     map[string][]byte
	requestIDs  []string
	nextID      int
	translateFn func(text, target string) (string, error)

	router chi.Router
	http   *httptest.Server
}

// New creates a Server. Call Start to listen, or use Handler directly.
func New() *Server {
	s := &Server{
		chats:    make(map[string][]models.RawMessage),
		starred:  make(map[string]map[string]bool),
		failures: make(map[string]*Failure),
		delays:   make(map[string]time.Duration),
		calls:    make(map[string]int),
		seen:     make(map[string]int),
		uploads:  make(map[string][]byte),
	}
	s.router = s.routes()
	return s
}

// Start listens on a loopback port.
func (s *Server) Start() *Server {
	s.http = httptest.NewServer(s.router)
	return s
}

// URL returns the base URL of a started server.
func (s *Server) URL() string {
	if s.http == nil {
		return ""
	}
	return s.http.URL
}

// Close stops a started server.
func (s *Server) Close() {
	if s.http != nil {
		s.http.Close()
	}
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.authenticate)
	r.Use(s.inject)

	r.Route("/api", func(r chi.Router) {
		r.Get("/chats", s.handleChats)
		r.Get("/chats/{chatID}/messages", s.handleMessages)
		r.Get("/chats/{chatID}/starred", s.handleStarred)
		r.Post("/chats/{chatID}/typing/{action}", s.handleTyping)
		r.Post("/chats/{chatID}/seen", s.handleSeen)
		r.Post("/messages/text", s.handleSendText)
		r.Post("/messages/media", s.handleSendMedia)
		r.Post("/messages/star", s.handleStar)
		r.Post("/messages/edit", s.handleEdit)
		r.Post("/translate", s.handleTranslate)
	})
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// inject records the call and applies configured delays and failures.
func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.calls[key]++
		if id := r.Header.Get("X-Request-ID"); id != "" {
			s.requestIDs = append(s.requestIDs, id)
		}
		delay := s.delays[key]
		var status int
		if f, ok := s.failures[key]; ok {
			status = f.Status
			if f.Delay > delay {
				delay = f.Delay
			}
			if f.Times > 0 {
				f.Times--
				if f.Times == 0 {
					delete(s.failures, key)
				}
			}
		}
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AddChat replaces the messages of chatID.
func (s *Server) AddChat(chatID string, msgs ...models.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chatID] = append([]models.RawMessage(nil), msgs...)
}

// Append adds inbound messages to chatID.
func (s *Server) Append(chatID string, msgs ...models.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chatID] = append(s.chats[chatID], msgs...)
}

// SetStarred replaces the canonical starred set of chatID.
func (s *Server) SetStarred(chatID string, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	s.starred[chatID] = set
}

// StarredIDs returns the canonical starred set of chatID, sorted.
func (s *Server) StarredIDs(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.starred[chatID])
}

// Fail injects a failure for "METHOD /path".
func (s *Server) Fail(method, path string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	failure := f
	s.failures[method+" "+path] = &failure
}

// Delay slows every request to "METHOD /path".
func (s *Server) Delay(method, path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[method+" "+path] = d
}

// SetTranslator overrides the default "[lang] text" translation.
func (s *Server) SetTranslator(fn func(text, target string) (string, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.translateFn = fn
}

// Calls returns how many times "METHOD /path" was requested.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// TypingEvents returns the recorded typing signals.
func (s *Server) TypingEvents() []TypingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TypingEvent(nil), s.typing...)
}

// SeenCount returns how many times chatID was marked seen.
func (s *Server) SeenCount(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[chatID]
}

// RequestIDs returns every X-Request-ID received.
func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestIDs...)
}

// Messages returns a copy of the stored records of chatID.
func (s *Server) Messages(chatID string) []models.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RawMessage(nil), s.chats[chatID]...)
}

// Upload returns the bytes stored for a media url.
func (s *Server) Upload(url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.uploads[url]
	return b, ok
}

func (s *Server) handleChats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.chats))
	for id := range s.chats {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	s.mu.Lock()
	msgs, ok := s.chats[chatID]
	out := append([]models.RawMessage(nil), msgs...)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStarred(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	s.mu.Lock()
	ids := sortedKeys(s.starred[chatID])
	s.mu.Unlock()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"messageIds": ids})
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if action != "start" && action != "stop" {
		writeError(w, http.StatusNotFound, "unknown typing action")
		return
	}
	s.mu.Lock()
	s.typing = append(s.typing, TypingEvent{ChatID: chi.URLParam(r, "chatID"), Start: action == "start", At: time.Now()})
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSeen(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	s.mu.Lock()
	s.seen[chatID]++
	for i := range s.chats[chatID] {
		if !s.chats[chatID][i].FromMe {
			s.chats[chatID][i].Status = string(models.StatusRead)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID  string `json:"chatId"`
		Text    string `json:"text"`
		ReplyTo string `json:"replyTo"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ChatID == "" || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "chatId and text are required")
		return
	}
	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("out-%d", s.nextID)
	s.chats[req.ChatID] = append(s.chats[req.ChatID], models.RawMessage{
		ID:        id,
		Body:      req.Text,
		Timestamp: time.Now().Unix(),
		FromMe:    true,
		Type:      "chat",
		Status:    string(models.StatusSent),
		ReplyTo:   req.ReplyTo,
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleSendMedia(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	chatID := r.FormValue("chatId")
	file, header, err := r.FormFile("file")
	if err != nil || chatID == "" {
		writeError(w, http.StatusBadRequest, "chatId and file are required")
		return
	}
	defer file.Close()
	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("out-%d", s.nextID)
	url := fmt.Sprintf("/media/%s/%s", id, header.Filename)
	s.uploads[url] = payload
	s.chats[chatID] = append(s.chats[chatID], models.RawMessage{
		ID:        id,
		Timestamp: time.Now().Unix(),
		FromMe:    true,
		HasMedia:  true,
		MediaURL:  url,
		Filename:  header.Filename,
		Mimetype:  header.Header.Get("Content-Type"),
		Status:    string(models.StatusSent),
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleStar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID string `json:"messageId"`
		ChatID    string `json:"chatId"`
		Action    string `json:"action"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Action != "star" && req.Action != "unstar" {
		writeError(w, http.StatusBadRequest, "action must be star or unstar")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.starred[req.ChatID]; !ok {
		s.starred[req.ChatID] = make(map[string]bool)
	}
	if req.Action == "star" {
		s.starred[req.ChatID][req.MessageID] = true
	} else {
		delete(s.starred[req.ChatID], req.MessageID)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID string `json:"messageId"`
		ChatID    string `json:"chatId"`
		Text      string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, msg := range s.chats[req.ChatID] {
		if msg.ID == req.MessageID {
			s.chats[req.ChatID][i].Body = req.Text
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
			return
		}
	}
	writeError(w, http.StatusNotFound, "message not found")
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text           string `json:"text"`
		TargetLanguage string `json:"targetLanguage"`
		SourceLanguage string `json:"sourceLanguage"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	fn := s.translateFn
	s.mu.Unlock()

	translated := fmt.Sprintf("[%s] %s", req.TargetLanguage, req.Text)
	if fn != nil {
		out, err := fn(req.Text, req.TargetLanguage)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		translated = out
	}
	writeJSON(w, http.StatusOK, map[string]string{"translatedText": translated})
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id, ok := range set {
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
