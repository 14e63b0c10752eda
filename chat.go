package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrChatBusy     = errors.New("a reply is already being generated")
)

type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (m Message) IsUser() bool { return m.Role == RoleUser }

// GenerationParams are the sampling settings sent with every chat call.
type GenerationParams struct {
	Temperature float32
	TopP        float32
	TopK        float32
}

var defaultGenerationParams = GenerationParams{Temperature: 0.7, TopP: 0.8, TopK: 40}

// Generator produces one model reply for an ordered list of turns.
type Generator interface {
	Generate(ctx context.Context, contents []Message, params GenerationParams) (string, error)
}

// TurnRecorder persists the outcome of each chat turn for the admin dashboard.
type TurnRecorder interface {
	RecordChatTurn(ctx context.Context, outcome string) error
}

// ChatService keeps one transcript per visitor session and relays each new
// question to the Generator. A session has at most one call in flight.
type ChatService struct {
	store       SessionStore
	gen         Generator
	system      string
	greeting    string
	maxMessages int
	timeout     time.Duration
	metrics     *Metrics
	turns       TurnRecorder
	now         func() time.Time

	mu      sync.Mutex
	loading map[string]bool
}

func NewChatService(store SessionStore, gen Generator, profile *Profile, cfg ChatConfig, metrics *Metrics, turns TurnRecorder) *ChatService {
	return &ChatService{
		store:       store,
		gen:         gen,
		system:      BuildSystemInstruction(profile),
		greeting:    Greeting(profile),
		maxMessages: cfg.MaxMessages,
		timeout:     cfg.Timeout,
		metrics:     metrics,
		turns:       turns,
		now:         time.Now,
		loading:     make(map[string]bool),
	}
}

// Transcript returns the session's messages, seeding new sessions with the greeting.
func (s *ChatService) Transcript(ctx context.Context, sessionID string) ([]Message, error) {
	msgs, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if len(msgs) == 0 {
		msgs = []Message{{Role: RoleModel, Text: s.greeting, Timestamp: s.now()}}
	}
	return msgs, nil
}

func (s *ChatService) IsLoading(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading[sessionID]
}

// Send appends the user's message and the model's reply to the transcript.
// Generator failures never surface as errors: the reply becomes ChatApology.
func (s *ChatService) Send(ctx context.Context, sessionID, input string) ([]Message, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyMessage
	}
	if !s.acquire(sessionID) {
		s.metrics.chatRequest("busy")
		return nil, ErrChatBusy
	}
	defer s.release(sessionID)

	history, err := s.Transcript(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user := Message{Role: RoleUser, Text: input, Timestamp: s.now()}
	contents := make([]Message, 0, len(history)+2)
	contents = append(contents, Message{Role: RoleUser, Text: s.system})
	contents = append(contents, history...)
	contents = append(contents, user)

	reply, outcome := s.generate(ctx, sessionID, contents)
	s.metrics.chatRequest(outcome)
	if s.turns != nil {
		if err := s.turns.RecordChatTurn(ctx, outcome); err != nil {
			slog.Warn("record chat turn", "error", err)
		}
	}

	msgs := append(history, user, Message{Role: RoleModel, Text: reply, Timestamp: s.now()})
	msgs = trimTranscript(msgs, s.maxMessages)
	if err := s.store.Save(ctx, sessionID, msgs); err != nil {
		return nil, fmt.Errorf("save transcript: %w", err)
	}
	return msgs, nil
}

func (s *ChatService) generate(ctx context.Context, sessionID string, contents []Message) (string, string) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := s.gen.Generate(ctx, contents, defaultGenerationParams)
	s.metrics.observeChatLatency(time.Since(start))
	if err != nil {
		slog.Error("chat generation failed", "session", sessionID, "error", err)
		return ChatApology, "error"
	}
	if strings.TrimSpace(reply) == "" {
		return ChatEmptyReply, "empty"
	}
	return reply, "ok"
}

// Reset drops the transcript. It fails with ErrChatBusy while a reply is
// being generated, since that turn would save the old history back.
func (s *ChatService) Reset(ctx context.Context, sessionID string) error {
	if !s.acquire(sessionID) {
		return ErrChatBusy
	}
	defer s.release(sessionID)

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("reset transcript: %w", err)
	}
	return nil
}

func (s *ChatService) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading[sessionID] {
		return false
	}
	s.loading[sessionID] = true
	return true
}

func (s *ChatService) release(sessionID string) {
	s.mu.Lock()
	delete(s.loading, sessionID)
	s.mu.Unlock()
}

// minTranscript is the greeting plus one user/model pair.
const minTranscript = 3

// trimTranscript keeps the greeting and the newest messages, dropping whole
// user/model pairs so the transcript never starts mid-exchange. The newest
// pair always survives.
func trimTranscript(msgs []Message, limit int) []Message {
	if limit <= 0 || len(msgs) <= limit {
		return msgs
	}
	if limit < minTranscript {
		limit = minTranscript
		if len(msgs) <= limit {
			return msgs
		}
	}
	drop := len(msgs) - limit
	if drop%2 == 1 {
		drop++
	}
	out := make([]Message, 0, len(msgs)-drop)
	out = append(out, msgs[0])
	return append(out, msgs[1+drop:]...)
}
