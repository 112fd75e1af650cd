package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ashureev/mindx/internal/domain"
)

// multipartOverhead covers form boundaries and headers around the evidence file.
const multipartOverhead = 64 << 10

type selectTaskRequest struct {
	Index *int `json:"index"`
}

// GetTasks returns the task flow.
func (h *Handler) GetTasks(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.session.TaskView())
}

// RecommendTasks asks the recommender for candidates.
func (h *Handler) RecommendTasks(w http.ResponseWriter, r *http.Request) {
	view, err := h.session.RecommendTasks(context.WithoutCancel(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// SelectTask opens a candidate's detail.
func (h *Handler) SelectTask(w http.ResponseWriter, r *http.Request) {
	var req selectTaskRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Index == nil {
		Error(w, http.StatusBadRequest, "index is required")
		return
	}
	view, err := h.session.SelectTask(*req.Index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// AttachEvidence reads the multipart "file" field and attaches it to the selected task.
func (h *Handler) AttachEvidence(w http.ResponseWriter, r *http.Request) {
	limit := h.maxEvidence + multipartOverhead
	if r.ContentLength > limit {
		Error(w, http.StatusRequestEntityTooLarge, "evidence too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(h.maxEvidence); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "evidence too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Debug("Failed to remove multipart temp files", "error", err)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, h.maxEvidence+1))
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		contentType = ""
	}
	view, err := h.session.AttachEvidence(domain.Evidence{
		FileName:    header.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// ClearEvidence removes the attached evidence.
func (h *Handler) ClearEvidence(w http.ResponseWriter, r *http.Request) {
	view, err := h.session.ClearEvidence()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// SubmitEvidence uploads the evidence and asks the verifier. The attempt
// completes even if the client goes away.
func (h *Handler) SubmitEvidence(w http.ResponseWriter, r *http.Request) {
	view, err := h.session.SubmitEvidence(context.WithoutCancel(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// BackFromTask returns from the detail to the candidate list.
func (h *Handler) BackFromTask(w http.ResponseWriter, r *http.Request) {
	view, err := h.session.BackFromTask()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// LeaveTasks clears the selection and evidence.
func (h *Handler) LeaveTasks(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.session.LeaveTasks())
}
