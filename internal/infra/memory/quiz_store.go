package memory

import (
	"context"
	"sort"
	"sync"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizStore.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewQuizStore() *QuizStore {
	return &QuizStore{quizzes: make(map[string]domain.Quiz)}
}

func (s *QuizStore) Create(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quiz.ID]; ok {
		return domain.Errorf(domain.KindConflict, "quiz %s already exists", quiz.ID)
	}
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (s *QuizStore) Get(_ context.Context, id string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(quiz), nil
}

func (s *QuizStore) Update(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.quizzes[quiz.ID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	next := cloneQuiz(quiz)
	next.CreatedBy = existing.CreatedBy
	next.CreatedAt = existing.CreatedAt
	next.Stats = existing.Stats
	s.quizzes[quiz.ID] = next
	return nil
}

func (s *QuizStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[id]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, id)
	return nil
}

func (s *QuizStore) List(_ context.Context, filter app.QuizFilter) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, quiz := range s.quizzes {
		if filter.CreatedBy != "" && quiz.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Category != "" && quiz.Category != filter.Category {
			continue
		}
		if filter.PublishedOnly && !quiz.Published {
			continue
		}
		out = append(out, cloneQuiz(quiz))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *QuizStore) IncrementStats(_ context.Context, id string, score int, passed bool) (domain.QuizStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.QuizStats{}, domain.ErrQuizNotFound
	}
	quiz.Stats = quiz.Stats.Record(score, passed)
	s.quizzes[id] = quiz
	return quiz.Stats, nil
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	out := q
	if q.Questions != nil {
		out.Questions = make([]domain.Question, len(q.Questions))
		for i, question := range q.Questions {
			question.Options = cloneStrings(question.Options)
			question.CorrectOptions = cloneStrings(question.CorrectOptions)
			out.Questions[i] = question
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}
