package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type loginRequest struct {
	Username string `json:"username"`
}

type navigateRequest struct {
	Screen string `json:"screen"`
}

type answerRequest struct {
	Index *int `json:"index"`
	Value *int `json:"value"`
}

type chatRequest struct {
	Message string `json:"message"`
}

// GetSession returns the current screen and progress.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.session.Snapshot())
}

// Login records the username and moves to the home screen. The save is not
// tied to the client connection.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.session.Login(context.WithoutCancel(r.Context()), req.Username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

// Navigate switches between the dashboard and its screens.
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.session.Navigate(req.Screen)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

// GetConfig reports which agent transport is wired.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"agent_transport":    h.transport,
		"agents_enabled":     h.transport != "" && h.transport != "disabled",
		"max_evidence_bytes": h.maxEvidence,
	})
}

// GetLeaderboard ranks the community with the current user.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.session.Leaderboard())
}

// GetAssessment returns the questionnaire state.
func (h *Handler) GetAssessment(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.session.AssessmentView())
}

// StartAssessment leaves the home screen.
func (h *Handler) StartAssessment(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.StartAssessment()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

// AnswerAssessment records an answer. Without an index the current item is answered.
func (h *Handler) AnswerAssessment(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Value == nil {
		Error(w, http.StatusBadRequest, "value is required")
		return
	}
	view, err := h.session.Answer(req.Index, *req.Value)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// AdvanceAssessment moves to the next item or completes the questionnaire.
func (h *Handler) AdvanceAssessment(w http.ResponseWriter, r *http.Request) {
	view, err := h.session.Advance(context.WithoutCancel(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// RetreatAssessment moves back one item.
func (h *Handler) RetreatAssessment(w http.ResponseWriter, r *http.Request) {
	view, err := h.session.Retreat()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// ListChallenges lists the community challenges.
func (h *Handler) ListChallenges(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.session.Challenges())
}

// JoinChallenge joins a challenge. Joining twice is a no-op.
func (h *Handler) JoinChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.session.JoinChallenge(context.WithoutCancel(r.Context()), chi.URLParam(r, "challengeID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, c)
}

// GetChat returns the conversation.
func (h *Handler) GetChat(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.session.ChatView())
}

// SendChat sends a message to the orchestrator and returns its reply. The
// exchange completes even if the client goes away.
func (h *Handler) SendChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	reply, err := h.session.SendChat(context.WithoutCancel(r.Context()), req.Message)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, reply)
}
