package domain

import (
	"encoding/base64"
	"net/http"
)

// TaskCandidate is a recommended task. It is never persisted.
type TaskCandidate struct {
	Title                 string `json:"task_title"`
	Description           string `json:"task_description"`
	Category              string `json:"category"`
	Difficulty            string `json:"difficulty"`
	EstimatedTime         string `json:"estimated_time"`
	Points                int    `json:"points_value"`
	VerificationMethod    string `json:"verification_method"`
	ExpectedBenefit       string `json:"expected_benefit"`
	PersonalizationReason string `json:"personalization_reason"`
}

// Evidence is an attachment submitted as proof of a completed task.
type Evidence struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"-"`
}

// ContentTypeOrSniff returns the declared content type or one sniffed from the bytes.
func (e Evidence) ContentTypeOrSniff() string {
	if e.ContentType != "" {
		return e.ContentType
	}
	return http.DetectContentType(e.Data)
}

// Preview renders the evidence as a data URL suitable for an <img> tag.
func (e Evidence) Preview() string {
	if len(e.Data) == 0 {
		return ""
	}
	return "data:" + e.ContentTypeOrSniff() + ";base64," + base64.StdEncoding.EncodeToString(e.Data)
}
