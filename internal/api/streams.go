package api

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// streamRegistry tracks open pod streams so shutdown can close them.
type streamRegistry struct {
	mu     sync.Mutex
	active map[string]map[*websocket.Conn]struct{}
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{active: make(map[string]map[*websocket.Conn]struct{})}
}

func (s *streamRegistry) register(podID string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[podID] == nil {
		s.active[podID] = make(map[*websocket.Conn]struct{})
	}
	s.active[podID][conn] = struct{}{}
	slog.Debug("Pod stream registered", "pod_id", podID, "streams", len(s.active[podID]))
}

func (s *streamRegistry) unregister(podID string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns, ok := s.active[podID]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(s.active, podID)
	}
}

func (s *streamRegistry) count(podID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active[podID])
}

func (s *streamRegistry) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for podID, conns := range s.active {
		for conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(s.active, podID)
	}
}
