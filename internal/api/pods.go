package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

// streamWriteTimeout bounds a single event write to a pod stream.
const streamWriteTimeout = 5 * time.Second

type postMessageRequest struct {
	Content string `json:"content"`
}

// ListPods lists the pods without their messages.
func (h *Handler) ListPods(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.session.PodList())
}

// GetPod returns a pod with its messages.
func (h *Handler) GetPod(w http.ResponseWriter, r *http.Request) {
	pod, err := h.session.Pod(chi.URLParam(r, "podID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, pod)
}

// OpenPod makes a pod the active one.
func (h *Handler) OpenPod(w http.ResponseWriter, r *http.Request) {
	pod, err := h.session.OpenPod(chi.URLParam(r, "podID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, pod)
}

// ClosePod leaves the active pod.
func (h *Handler) ClosePod(w http.ResponseWriter, _ *http.Request) {
	h.session.ClosePod()
	JSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// PostPodMessage appends a message to the open pod. Moderation runs after
// the response; a flag arrives on the pod stream.
func (h *Handler) PostPodMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	msg, err := h.session.PostPodMessage(chi.URLParam(r, "podID"), req.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, msg)
}

// PodStream upgrades to a websocket and streams the pod's events until
// either side closes.
func (h *Handler) PodStream(w http.ResponseWriter, r *http.Request) {
	podID := chi.URLParam(r, "podID")
	events, cancel, err := h.session.SubscribePod(podID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer cancel()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "pod_id", podID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "pod_id", podID)
		}
	}()

	h.streams.register(podID, ws)
	defer h.streams.unregister(podID, ws)

	// Clients only listen; CloseRead handles their close frame.
	ctx := ws.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.writeEvent(ctx, ws, ev); err != nil {
				h.logger.Debug("Pod stream write failed", "error", err, "pod_id", podID)
				return
			}
		}
	}
}

func (h *Handler) writeEvent(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
