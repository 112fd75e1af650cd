package session

import (
	"context"

	"github.com/ashureev/mindx/internal/chat"
	"github.com/ashureev/mindx/internal/domain"
	"github.com/ashureev/mindx/internal/pods"
	"github.com/ashureev/mindx/internal/tasks"
)

// Flow operations that change state are only accepted on their own screen.
// Views stay readable from anywhere.

// ChatView returns the conversation.
func (s *Session) ChatView() chat.View {
	return s.chat.View()
}

// SendChat sends a message to the orchestrator from the chat screen.
func (s *Session) SendChat(ctx context.Context, text string) (domain.ChatMessage, error) {
	if err := s.requireScreen(ScreenChat, "send chat"); err != nil {
		return domain.ChatMessage{}, err
	}
	return s.chat.Send(ctx, text)
}

// TaskView returns the task flow.
func (s *Session) TaskView() tasks.View {
	return s.tasks.View()
}

// RecommendTasks asks the recommender for candidates.
func (s *Session) RecommendTasks(ctx context.Context) (tasks.View, error) {
	if err := s.requireScreen(ScreenTasks, "request recommendations"); err != nil {
		return tasks.View{}, err
	}
	return s.tasks.RequestRecommendations(ctx)
}

// SelectTask opens a candidate's detail.
func (s *Session) SelectTask(index int) (tasks.View, error) {
	if err := s.requireScreen(ScreenTasks, "select task"); err != nil {
		return tasks.View{}, err
	}
	return s.tasks.SelectTask(index)
}

// AttachEvidence attaches a file to the selected task.
func (s *Session) AttachEvidence(ev domain.Evidence) (tasks.View, error) {
	if err := s.requireScreen(ScreenTasks, "attach evidence"); err != nil {
		return tasks.View{}, err
	}
	return s.tasks.AttachEvidence(ev)
}

// ClearEvidence removes the attached file.
func (s *Session) ClearEvidence() (tasks.View, error) {
	if err := s.requireScreen(ScreenTasks, "clear evidence"); err != nil {
		return tasks.View{}, err
	}
	return s.tasks.ClearEvidence()
}

// SubmitEvidence uploads the evidence and asks the verifier.
func (s *Session) SubmitEvidence(ctx context.Context) (tasks.View, error) {
	if err := s.requireScreen(ScreenTasks, "submit evidence"); err != nil {
		return tasks.View{}, err
	}
	return s.tasks.SubmitEvidence(ctx)
}

// BackFromTask returns from the task detail to the candidate list.
func (s *Session) BackFromTask() (tasks.View, error) {
	if err := s.requireScreen(ScreenTasks, "go back"); err != nil {
		return tasks.View{}, err
	}
	return s.tasks.Back()
}

// LeaveTasks clears the selection and evidence. The candidate list is kept.
func (s *Session) LeaveTasks() tasks.View {
	return s.tasks.Leave()
}

// PodList lists the pods without their messages.
func (s *Session) PodList() []pods.Summary {
	return s.pods.List()
}

// Pod returns a pod with its messages.
func (s *Session) Pod(id string) (domain.Pod, error) {
	return s.pods.Get(id)
}

// OpenPod makes a pod the active one.
func (s *Session) OpenPod(id string) (domain.Pod, error) {
	if err := s.requireScreen(ScreenPods, "open pod"); err != nil {
		return domain.Pod{}, err
	}
	return s.pods.Open(id)
}

// ClosePod leaves the active pod.
func (s *Session) ClosePod() {
	s.pods.CloseActive()
}

// PostPodMessage posts to the open pod. Moderation runs in the background.
func (s *Session) PostPodMessage(podID, text string) (domain.PodMessage, error) {
	if err := s.requireScreen(ScreenPods, "post message"); err != nil {
		return domain.PodMessage{}, err
	}
	return s.pods.PostMessage(podID, text)
}

// SubscribePod streams a pod's events until cancel is called.
func (s *Session) SubscribePod(podID string) (<-chan pods.Event, func(), error) {
	return s.pods.Subscribe(podID)
}
