package memory

import (
	"context"
	"sort"
	"sync"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.QuizAttempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[string]domain.QuizAttempt)}
}

func (s *AttemptStore) Create(_ context.Context, attempt domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attempt.ID]; ok {
		return domain.Errorf(domain.KindConflict, "attempt %s already exists", attempt.ID)
	}
	s.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (s *AttemptStore) Get(_ context.Context, id string) (domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(attempt), nil
}

func (s *AttemptStore) Complete(_ context.Context, attempt domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.attempts[attempt.ID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if existing.Completed {
		return domain.ErrAttemptCompleted
	}
	next := cloneAttempt(attempt)
	next.QuizID = existing.QuizID
	next.UserID = existing.UserID
	next.StartedAt = existing.StartedAt
	next.Completed = true
	s.attempts[attempt.ID] = next
	return nil
}

func (s *AttemptStore) List(_ context.Context, filter app.AttemptFilter) ([]domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizAttempt, 0)
	for _, attempt := range s.attempts {
		if filter.UserID != "" && attempt.UserID != filter.UserID {
			continue
		}
		if filter.QuizID != "" && attempt.QuizID != filter.QuizID {
			continue
		}
		if filter.CompletedOnly && !attempt.Completed {
			continue
		}
		out = append(out, cloneAttempt(attempt))
	}
	sort.Slice(out, func(i, j int) bool { return attemptLess(out[i], out[j]) })
	return out, nil
}

func (s *AttemptStore) DeleteByQuiz(_ context.Context, quizID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, attempt := range s.attempts {
		if attempt.QuizID == quizID {
			delete(s.attempts, id)
			removed++
		}
	}
	return removed, nil
}

// attemptLess orders completed attempts newest-completed first, then
// in-progress attempts newest-started first.
func attemptLess(a, b domain.QuizAttempt) bool {
	if a.Completed != b.Completed {
		return a.Completed
	}
	if a.Completed && !a.CompletedAt.Equal(*b.CompletedAt) {
		return a.CompletedAt.After(*b.CompletedAt)
	}
	if !a.StartedAt.Equal(b.StartedAt) {
		return a.StartedAt.After(b.StartedAt)
	}
	return a.ID < b.ID
}

func cloneAttempt(a domain.QuizAttempt) domain.QuizAttempt {
	out := a
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	if a.Responses != nil {
		out.Responses = make([]domain.QuestionResponse, len(a.Responses))
		for i, r := range a.Responses {
			r.SelectedOptions = cloneStrings(r.SelectedOptions)
			out.Responses[i] = r
		}
	}
	return out
}
