// Package pods holds the peer-support threads and moderates what is posted to them.
package pods

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/mindx/internal/agent"
	"github.com/ashureev/mindx/internal/domain"
	"github.com/google/uuid"
)

// Event types published to subscribers.
const (
	EventMessage = "message"
	EventFlagged = "flagged"
)

// Event is a change to one pod.
type Event struct {
	Type    string            `json:"type"`
	PodID   string            `json:"podId"`
	Message domain.PodMessage `json:"message"`
}

// Summary is a pod without its messages.
type Summary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Topic        string   `json:"topic"`
	Participants int      `json:"participants"`
	Tags         []string `json:"tags"`
	MessageCount int      `json:"messageCount"`
	Active       bool     `json:"active"`
}

// ModerationPrompt builds the moderator prompt for a message.
func ModerationPrompt(text string) string {
	return "Pod message: '" + text + "'"
}

// Config configures a Registry.
type Config struct {
	Agents   *agent.Service
	ConvLog  agent.ConversationLogger
	Logger   *slog.Logger
	Username func() string
	Now      func() time.Time
	NewID    func() string
}

// Registry owns the pods. Messages are appended synchronously; moderation
// runs afterwards and can only ever set a message's flag.
type Registry struct {
	agents   *agent.Service
	convLog  agent.ConversationLogger
	logger   *slog.Logger
	username func() string
	now      func() time.Time
	newID    func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	pods   map[string]*domain.Pod
	order  []string
	active string
	closed bool

	hub *hub
}

// NewRegistry seeds a registry with pods.
func NewRegistry(seed []domain.Pod, cfg Config) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		agents:   cfg.Agents,
		convLog:  cfg.ConvLog,
		logger:   cfg.Logger,
		username: cfg.Username,
		now:      cfg.Now,
		newID:    cfg.NewID,
		ctx:      ctx,
		cancel:   cancel,
		pods:     make(map[string]*domain.Pod, len(seed)),
		hub:      newHub(),
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
	if r.newID == nil {
		r.newID = func() string { return uuid.NewString() }
	}
	for _, p := range seed {
		pod := p
		pod.Tags = append([]string(nil), p.Tags...)
		pod.Messages = append([]domain.PodMessage{}, p.Messages...)
		r.pods[pod.ID] = &pod
		r.order = append(r.order, pod.ID)
	}
	return r
}

// List returns every pod in seed order.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.order))
	for _, id := range r.order {
		p := r.pods[id]
		out = append(out, Summary{
			ID:           p.ID,
			Name:         p.Name,
			Topic:        p.Topic,
			Participants: p.Participants,
			Tags:         append([]string(nil), p.Tags...),
			MessageCount: len(p.Messages),
			Active:       p.ID == r.active,
		})
	}
	return out
}

// Get returns a copy of one pod with its messages.
func (r *Registry) Get(id string) (domain.Pod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pods[id]
	if !ok {
		return domain.Pod{}, fmt.Errorf("%w: pod %q", domain.ErrNotFound, id)
	}
	return copyPod(p), nil
}

// Open makes id the active pod.
func (r *Registry) Open(id string) (domain.Pod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pods[id]
	if !ok {
		return domain.Pod{}, fmt.Errorf("%w: pod %q", domain.ErrNotFound, id)
	}
	r.active = id
	return copyPod(p), nil
}

// CloseActive leaves the active pod, if any.
func (r *Registry) CloseActive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = ""
}

// Active returns the active pod id, or "".
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// PostMessage appends text to the active pod and starts moderation in the
// background. The returned message is already visible to readers.
func (r *Registry) PostMessage(podID, text string) (domain.PodMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.PodMessage{}, fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return domain.PodMessage{}, fmt.Errorf("%w: registry closed", domain.ErrInvalidState)
	}
	p, ok := r.pods[podID]
	if !ok {
		r.mu.Unlock()
		return domain.PodMessage{}, fmt.Errorf("%w: pod %q", domain.ErrNotFound, podID)
	}
	if r.active != podID {
		r.mu.Unlock()
		return domain.PodMessage{}, fmt.Errorf("%w: pod %q is not open", domain.ErrInvalidState, podID)
	}
	msg := domain.PodMessage{
		ID:        r.newID(),
		Username:  r.username(),
		Content:   text,
		Timestamp: r.now(),
	}
	p.Messages = append(p.Messages, msg)
	r.wg.Add(1)
	r.mu.Unlock()

	r.hub.publish(Event{Type: EventMessage, PodID: podID, Message: msg})
	r.record(podID, "inbound", "pod_message", text, map[string]any{"message_id": msg.ID})

	go func() {
		defer r.wg.Done()
		r.moderate(podID, msg.ID, text)
	}()
	return msg, nil
}

// moderate flags the message when the moderator rates it critical. Failures
// leave it unflagged and are never retried.
func (r *Registry) moderate(podID, msgID, text string) {
	out := r.agents.Invoke(r.ctx, agent.RoleModerator, ModerationPrompt(text))
	if !out.OK() {
		r.logger.Debug("moderation skipped", "pod_id", podID, "message_id", msgID, "outcome", out.Kind.String())
		return
	}
	severity, _ := out.Verdict.Text("severity_level")
	if !out.Verdict.Is("severity_level", "critical") {
		return
	}

	msg, ok := r.flag(podID, msgID)
	if !ok {
		return
	}
	r.logger.Warn("pod message flagged", "pod_id", podID, "message_id", msgID)
	r.hub.publish(Event{Type: EventFlagged, PodID: podID, Message: msg})
	r.record(podID, "outbound", "pod_message_flagged", text, map[string]any{
		"message_id": msgID,
		"severity":   severity,
	})
}

func (r *Registry) flag(podID, msgID string) (domain.PodMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pods[podID]
	if !ok {
		return domain.PodMessage{}, false
	}
	for i := range p.Messages {
		if p.Messages[i].ID == msgID {
			p.Messages[i].Flagged = true
			return p.Messages[i], true
		}
	}
	return domain.PodMessage{}, false
}

// Subscribe streams events for podID until cancel is called or the registry closes.
func (r *Registry) Subscribe(podID string) (<-chan Event, func(), error) {
	r.mu.RLock()
	_, ok := r.pods[podID]
	closed := r.closed
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: pod %q", domain.ErrNotFound, podID)
	}
	if closed {
		return nil, nil, fmt.Errorf("%w: registry closed", domain.ErrInvalidState)
	}
	ch, cancel := r.hub.subscribe(podID)
	return ch, cancel, nil
}

// Wait blocks until every moderation call started so far has finished.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Close cancels pending moderation, waits for it, and ends every subscription.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	r.hub.close()
}

func (r *Registry) record(podID, direction, eventType, content string, meta map[string]any) {
	meta["pod_id"] = podID
	r.convLog.Log(agent.ConversationLogEvent{
		Timestamp:  r.now().UTC().Format(time.RFC3339Nano),
		UserID:     r.username(),
		SessionID:  podID,
		Channel:    "pod",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Meta:       meta,
	})
}

func copyPod(p *domain.Pod) domain.Pod {
	c := *p
	c.Tags = append([]string(nil), p.Tags...)
	c.Messages = append([]domain.PodMessage{}, p.Messages...)
	return c
}
