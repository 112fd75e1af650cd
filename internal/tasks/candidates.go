package tasks

import (
	"github.com/ashureev/mindx/internal/agent"
	"github.com/ashureev/mindx/internal/domain"
)

// parseCandidates reads recommended_tasks element by element. Each field is
// optional; elements without a title are dropped.
func parseCandidates(v agent.Verdict) ([]domain.TaskCandidate, int) {
	items, dropped, ok := v.List("recommended_tasks")
	if !ok {
		return nil, 0
	}

	out := make([]domain.TaskCandidate, 0, len(items))
	for _, tv := range items {
		title, ok := tv.Text("task_title")
		if !ok {
			dropped++
			continue
		}
		c := domain.TaskCandidate{Title: title}
		c.Description, _ = tv.Text("task_description")
		c.Category, _ = tv.Text("category")
		c.Difficulty, _ = tv.Text("difficulty")
		c.EstimatedTime, _ = tv.Text("estimated_time")
		c.Points, _ = tv.Number("points_value")
		c.VerificationMethod, _ = tv.Text("verification_method")
		c.ExpectedBenefit, _ = tv.Text("expected_benefit")
		c.PersonalizationReason, _ = tv.Text("personalization_reason")
		out = append(out, c)
	}
	return out, dropped
}
