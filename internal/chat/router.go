// Package chat routes free-form messages to the orchestrator agent.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/mindx/internal/agent"
	"github.com/ashureev/mindx/internal/domain"
)

// Fixed replies used when the orchestrator gives nothing usable.
const (
	DefaultReply  = "I understand. Let me help you with that."
	FallbackReply = "I'm here to support you. How are you feeling today?"
	TimeoutReply  = "I'm here for you. Please tell me more about what you're experiencing."
)

// CrisisNotice is shown next to a reply flagged as a crisis.
const CrisisNotice = "If you're in crisis, please reach out: National Suicide Prevention Lifeline: 1-800-273-8255"

// Suggestions are offered while the log is empty.
var Suggestions = []string{
	"I'm feeling stressed",
	"Struggling with studies",
	"Need motivation",
	"Feeling anxious",
}

var replyRule = agent.TextRule{
	Fields:  []string{"response_message", "context_summary"},
	Default: DefaultReply,
}

// Config configures a Router.
type Config struct {
	Agents    *agent.Service
	ConvLog   agent.ConversationLogger
	Logger    *slog.Logger
	SessionID string

	// Username returns the label recorded in the conversation log.
	Username func() string
	Now      func() time.Time
}

// Router owns the append-only conversation log.
type Router struct {
	agents    *agent.Service
	convLog   agent.ConversationLogger
	logger    *slog.Logger
	sessionID string
	username  func() string
	now       func() time.Time

	inflight sync.Mutex

	mu       sync.RWMutex
	messages []domain.ChatMessage
}

// View is the conversation as served to clients.
type View struct {
	Messages     []domain.ChatMessage `json:"messages"`
	Pending      bool                 `json:"pending"`
	Suggestions  []string             `json:"suggestions,omitempty"`
	CrisisNotice string               `json:"crisisNotice"`
}

// NewRouter creates a router.
func NewRouter(cfg Config) *Router {
	r := &Router{
		agents:    cfg.Agents,
		convLog:   cfg.ConvLog,
		logger:    cfg.Logger,
		sessionID: cfg.SessionID,
		username:  cfg.Username,
		now:       cfg.Now,
		messages:  []domain.ChatMessage{},
	}
	if r.convLog == nil {
		r.convLog = agent.NopConversationLogger()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.username == nil {
		r.username = func() string { return domain.DefaultUsername }
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Send appends the user's message, asks the orchestrator, and appends exactly
// one assistant reply. Gateway errors never reach the caller; they select a
// fixed reply instead.
func (r *Router) Send(ctx context.Context, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}
	if !r.inflight.TryLock() {
		return domain.ChatMessage{}, domain.ErrBusy
	}
	defer r.inflight.Unlock()

	r.append(domain.ChatMessage{Role: domain.RoleUser, Content: text, CreatedAt: r.now()})
	r.record("inbound", "chat_user_message", text, nil)

	out := r.agents.Invoke(ctx, agent.RoleOrchestrator, text)

	reply := domain.ChatMessage{Role: domain.RoleAssistant}
	meta := map[string]any{"outcome": out.Kind.String(), "duration_ms": out.Duration.Milliseconds()}
	switch {
	case out.OK():
		content, field := replyRule.Resolve(out.Verdict)
		reply.Content = content
		reply.Crisis = out.Verdict.Flag("crisis_detected")
		meta["source_field"] = field
		if reply.Crisis {
			r.logger.Warn("crisis signal in chat reply", "session_id", r.sessionID)
		}
	case out.Kind == agent.OutcomeTimeout:
		reply.Content = TimeoutReply
	default:
		reply.Content = FallbackReply
	}
	meta["crisis"] = reply.Crisis

	reply.CreatedAt = r.now()
	r.append(reply)
	r.record("outbound", "chat_assistant_message", reply.Content, meta)
	return reply, nil
}

// Pending reports whether a send is in flight.
func (r *Router) Pending() bool {
	if r.inflight.TryLock() {
		r.inflight.Unlock()
		return false
	}
	return true
}

// Messages returns a copy of the log.
func (r *Router) Messages() []domain.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ChatMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// View returns the log with presentation hints.
func (r *Router) View() View {
	v := View{
		Messages:     r.Messages(),
		Pending:      r.Pending(),
		CrisisNotice: CrisisNotice,
	}
	if len(v.Messages) == 0 {
		v.Suggestions = Suggestions
	}
	return v
}

func (r *Router) append(m domain.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *Router) record(direction, eventType, content string, meta map[string]any) {
	r.convLog.Log(agent.ConversationLogEvent{
		Timestamp:  r.now().UTC().Format(time.RFC3339Nano),
		UserID:     r.username(),
		SessionID:  r.sessionID,
		Channel:    "chat",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Meta:       meta,
	})
}
