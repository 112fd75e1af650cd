package tasks

import "github.com/ashureev/mindx/internal/domain"

// EvidenceView describes the attached file without its bytes.
type EvidenceView struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Preview     string `json:"preview"`
}

// View is a snapshot of the flow.
type View struct {
	State         State                  `json:"state"`
	Candidates    []domain.TaskCandidate `json:"candidates"`
	SelectedIndex int                    `json:"selectedIndex"`
	Selected      *domain.TaskCandidate  `json:"selected,omitempty"`
	Evidence      *EvidenceView          `json:"evidence,omitempty"`
	Result        Result                 `json:"result,omitempty"`
	Feedback      string                 `json:"feedback,omitempty"`
	PointsAwarded int                    `json:"pointsAwarded,omitempty"`
}

// View returns a snapshot.
func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) viewLocked() View {
	v := View{
		State:         f.state,
		Candidates:    append([]domain.TaskCandidate{}, f.candidates...),
		SelectedIndex: f.selected,
		Result:        f.result,
		Feedback:      f.feedback,
		PointsAwarded: f.awarded,
	}
	if f.selected >= 0 && f.selected < len(f.candidates) {
		task := f.candidates[f.selected]
		v.Selected = &task
	}
	if f.evidence != nil {
		v.Evidence = &EvidenceView{
			FileName:    f.evidence.FileName,
			ContentType: f.evidence.ContentTypeOrSniff(),
			Size:        len(f.evidence.Data),
			Preview:     f.evidence.Preview(),
		}
	}
	return v
}
