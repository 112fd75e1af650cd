package pods

import "sync"

// subscriberBuffer bounds each subscriber's queue. Slow subscribers miss events.
const subscriberBuffer = 32

type hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan Event]struct{})}
}

func (h *hub) subscribe(podID string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.subs[podID] == nil {
		h.subs[podID] = make(map[chan Event]struct{})
	}
	h.subs[podID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[podID][ch]; ok {
				delete(h.subs[podID], ch)
				close(ch)
			}
		})
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.PodID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for podID, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, podID)
	}
}
