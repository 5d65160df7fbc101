package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"learnloop-service/internal/domain"
)

// QuizService owns quiz authoring, publishing and attempt scoring.
type QuizService struct {
	quizzes  QuizStore
	attempts AttemptStore
	rt       runtime
}

func NewQuizService(quizzes QuizStore, attempts AttemptStore, opts ...Option) *QuizService {
	return &QuizService{
		quizzes:  quizzes,
		attempts: attempts,
		rt:       newRuntime("quiz_service", opts),
	}
}

// ListQuery narrows ListQuizzes.
type ListQuery struct {
	Category domain.Category
	Mine     bool
}

// AttemptQuery narrows ListAttempts.
type AttemptQuery struct {
	UserID string
	QuizID string
}

// ResponseView is a scored response with its question text.
type ResponseView struct {
	domain.QuestionResponse
	QuestionText string `json:"questionText"`
}

// AttemptView is an attempt enriched with quiz details for display.
type AttemptView struct {
	domain.QuizAttempt
	QuizTitle string         `json:"quizTitle"`
	Responses []ResponseView `json:"responses"`
}

// CreateQuiz stores a new draft quiz authored by caller.
func (s *QuizService) CreateQuiz(ctx context.Context, caller domain.Caller, spec domain.QuizSpec) (domain.Quiz, error) {
	if !caller.IsAdmin() {
		return domain.Quiz{}, domain.ErrAdminRequired
	}
	questions, err := s.prepare(spec)
	if err != nil {
		return domain.Quiz{}, err
	}

	now := s.rt.now()
	quiz := domain.Quiz{
		ID:           s.rt.newID(),
		Title:        strings.TrimSpace(spec.Title),
		Description:  spec.Description,
		Category:     spec.Category,
		TimeLimit:    spec.TimeLimit,
		PassingScore: spec.PassingScore,
		Published:    false,
		CreatedBy:    caller.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Questions:    questions,
	}
	if err := s.quizzes.Create(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}

	s.rt.log.Info().Str("quiz_id", quiz.ID).Str("created_by", caller.UserID).Int("questions", len(questions)).Msg("quiz created")
	s.rt.publish(ctx, Event{Type: EventQuizCreated, EntityID: quiz.ID, ActorID: caller.UserID})
	return quiz, nil
}

// UpdateQuiz replaces the authored fields of a quiz. Identity, creator,
// creation time, statistics and the published flag are preserved.
func (s *QuizService) UpdateQuiz(ctx context.Context, caller domain.Caller, id string, spec domain.QuizSpec) (domain.Quiz, error) {
	questions, err := s.prepare(spec)
	if err != nil {
		return domain.Quiz{}, err
	}

	var updated domain.Quiz
	err = s.withQuiz(ctx, caller, id, func(existing domain.Quiz) error {
		if existing.Published && len(questions) == 0 {
			return domain.ErrNoQuestions
		}
		updated = existing
		updated.Title = strings.TrimSpace(spec.Title)
		updated.Description = spec.Description
		updated.Category = spec.Category
		updated.TimeLimit = spec.TimeLimit
		updated.PassingScore = spec.PassingScore
		updated.Questions = questions
		updated.UpdatedAt = s.rt.now()
		return s.quizzes.Update(ctx, updated)
	})
	if err != nil {
		return domain.Quiz{}, err
	}

	s.rt.log.Info().Str("quiz_id", id).Str("updated_by", caller.UserID).Msg("quiz updated")
	s.rt.publish(ctx, Event{Type: EventQuizUpdated, EntityID: id, ActorID: caller.UserID})
	return updated, nil
}

// Publish makes a quiz visible and attemptable. Publishing a published quiz
// re-saves it.
func (s *QuizService) Publish(ctx context.Context, caller domain.Caller, id string) (domain.Quiz, error) {
	return s.setPublished(ctx, caller, id, true)
}

// Unpublish returns a quiz to draft.
func (s *QuizService) Unpublish(ctx context.Context, caller domain.Caller, id string) (domain.Quiz, error) {
	return s.setPublished(ctx, caller, id, false)
}

func (s *QuizService) setPublished(ctx context.Context, caller domain.Caller, id string, published bool) (domain.Quiz, error) {
	var updated domain.Quiz
	err := s.withQuiz(ctx, caller, id, func(existing domain.Quiz) error {
		if published && len(existing.Questions) == 0 {
			return domain.ErrNoQuestions
		}
		updated = existing
		updated.Published = published
		updated.UpdatedAt = s.rt.now()
		return s.quizzes.Update(ctx, updated)
	})
	if err != nil {
		return domain.Quiz{}, err
	}

	eventType := EventQuizUnpublished
	if published {
		eventType = EventQuizPublished
	}
	s.rt.log.Info().Str("quiz_id", id).Bool("published", published).Msg("quiz visibility changed")
	s.rt.publish(ctx, Event{Type: eventType, EntityID: id, ActorID: caller.UserID})
	return updated, nil
}

// DeleteQuiz removes a quiz and all of its attempts. Attempts go first, so
// a retry after a partial failure finishes the cascade.
func (s *QuizService) DeleteQuiz(ctx context.Context, caller domain.Caller, id string) error {
	var removed int
	err := s.withQuiz(ctx, caller, id, func(domain.Quiz) error {
		n, err := s.attempts.DeleteByQuiz(ctx, id)
		if err != nil {
			return fmt.Errorf("delete attempts: %w", err)
		}
		removed = n
		return s.quizzes.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	if s.rt.hub != nil {
		s.rt.hub.Close(id)
	}
	s.rt.log.Info().Str("quiz_id", id).Int("attempts_removed", removed).Msg("quiz deleted")
	s.rt.publish(ctx, Event{Type: EventQuizDeleted, EntityID: id, ActorID: caller.UserID,
		Payload: map[string]any{"attemptsRemoved": removed}})
	return nil
}

// GetQuiz returns a quiz as caller may see it. Drafts are invisible to
// non-admins and correct answers are stripped for them.
func (s *QuizService) GetQuiz(ctx context.Context, caller domain.Caller, id string) (domain.Quiz, error) {
	quiz, err := s.quizzes.Get(ctx, id)
	if err != nil {
		return domain.Quiz{}, err
	}
	if caller.IsAdmin() {
		return quiz, nil
	}
	if !quiz.Published {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz.Redacted(), nil
}

// ListQuizzes returns every quiz to admins and published, redacted quizzes
// to everyone else.
func (s *QuizService) ListQuizzes(ctx context.Context, caller domain.Caller, q ListQuery) ([]domain.Quiz, error) {
	if q.Category != "" && !q.Category.Valid() {
		return nil, domain.ErrInvalidCategory
	}
	filter := QuizFilter{Category: q.Category}
	if q.Mine {
		if !caller.IsAdmin() {
			return nil, domain.ErrAdminRequired
		}
		filter.CreatedBy = caller.UserID
	}
	if !caller.IsAdmin() {
		filter.PublishedOnly = true
	}

	quizzes, err := s.quizzes.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	if !caller.IsAdmin() {
		for i := range quizzes {
			quizzes[i] = quizzes[i].Redacted()
		}
	}
	return quizzes, nil
}

// StartAttempt opens an in-progress attempt on a published quiz.
func (s *QuizService) StartAttempt(ctx context.Context, caller domain.Caller, quizID string) (domain.QuizAttempt, error) {
	unlock, err := s.rt.locker.Lock(ctx, quizKey(quizID))
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("lock quiz: %w", err)
	}
	defer unlock()

	quiz, err := s.quizzes.Get(ctx, quizID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if !quiz.Published {
		return domain.QuizAttempt{}, domain.ErrQuizNotPublished
	}

	attempt := domain.QuizAttempt{
		ID:        s.rt.newID(),
		QuizID:    quizID,
		UserID:    caller.UserID,
		StartedAt: s.rt.now(),
		Responses: []domain.QuestionResponse{},
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("create attempt: %w", err)
	}

	s.rt.log.Debug().Str("attempt_id", attempt.ID).Str("quiz_id", quizID).Str("user_id", caller.UserID).Msg("attempt started")
	s.rt.publish(ctx, Event{Type: EventAttemptStarted, EntityID: attempt.ID, ActorID: caller.UserID,
		Payload: map[string]any{"quizId": quizID}})
	return attempt, nil
}

// SubmitAttempt scores responses, completes the attempt and folds the result
// into the quiz statistics. An attempt can be submitted once.
func (s *QuizService) SubmitAttempt(ctx context.Context, caller domain.Caller, attemptID string, responses []domain.QuestionResponse) (domain.QuizAttempt, error) {
	unlock, err := s.rt.locker.Lock(ctx, attemptKey(attemptID))
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("lock attempt: %w", err)
	}
	defer unlock()

	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if attempt.UserID != caller.UserID {
		return domain.QuizAttempt{}, domain.ErrNotAttemptOwner
	}
	if attempt.Completed {
		return domain.QuizAttempt{}, domain.ErrAttemptCompleted
	}

	quiz, err := s.quizzes.Get(ctx, attempt.QuizID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}

	completedAt := s.rt.now()
	timeSpent := int(completedAt.Sub(attempt.StartedAt).Seconds())
	if timeSpent < 0 {
		timeSpent = 0
	}
	if limit := quiz.TimeLimitSeconds(); limit > 0 && timeSpent > limit {
		timeSpent = limit
	}

	result := scoreSubmission(quiz, responses)
	attempt.Responses = result.responses
	if attempt.Responses == nil {
		attempt.Responses = []domain.QuestionResponse{}
	}
	attempt.Score = result.score
	attempt.Passed = result.passed
	attempt.TimeSpent = timeSpent
	attempt.Completed = true
	attempt.CompletedAt = &completedAt

	stats, err := s.record(ctx, attempt)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if s.rt.hub != nil {
		s.rt.hub.Broadcast(quiz.ID, stats)
	}

	s.rt.log.Info().
		Str("attempt_id", attemptID).
		Str("quiz_id", quiz.ID).
		Int("score", result.score).
		Bool("passed", result.passed).
		Int("time_spent", timeSpent).
		Msg("attempt submitted")
	s.rt.publish(ctx, Event{Type: EventAttemptSubmitted, EntityID: attemptID, ActorID: caller.UserID,
		Payload: map[string]any{"quizId": quiz.ID, "score": result.score, "passed": result.passed}})
	return attempt, nil
}

// record persists a completed attempt and its effect on the quiz statistics.
func (s *QuizService) record(ctx context.Context, attempt domain.QuizAttempt) (domain.QuizStats, error) {
	if rec, ok := s.attempts.(AttemptRecorder); ok {
		stats, err := rec.CompleteAndRecord(ctx, attempt)
		if err != nil {
			return domain.QuizStats{}, err
		}
		if inv, ok := s.quizzes.(CacheInvalidator); ok {
			inv.Invalidate(ctx, attempt.QuizID)
		}
		return stats, nil
	}

	if err := s.attempts.Complete(ctx, attempt); err != nil {
		return domain.QuizStats{}, err
	}
	stats, err := s.quizzes.IncrementStats(ctx, attempt.QuizID, attempt.Score, attempt.Passed)
	if err != nil {
		s.rt.log.Error().Err(err).Str("attempt_id", attempt.ID).Str("quiz_id", attempt.QuizID).Msg("statistics update failed after completion")
		return domain.QuizStats{}, fmt.Errorf("record quiz statistics: %w", err)
	}
	return stats, nil
}

// GetAttempt returns an attempt with quiz title and question text filled in.
// Only the attempt's user or an admin may read it.
func (s *QuizService) GetAttempt(ctx context.Context, caller domain.Caller, id string) (AttemptView, error) {
	attempt, err := s.attempts.Get(ctx, id)
	if err != nil {
		return AttemptView{}, err
	}
	if attempt.UserID != caller.UserID && !caller.IsAdmin() {
		return AttemptView{}, domain.ErrNotAttemptOwner
	}
	return s.enrich(ctx, attempt), nil
}

// ListAttempts lists attempts. Non-admins only ever see their own.
func (s *QuizService) ListAttempts(ctx context.Context, caller domain.Caller, q AttemptQuery) ([]domain.QuizAttempt, error) {
	filter := AttemptFilter{UserID: q.UserID, QuizID: q.QuizID}
	if !caller.IsAdmin() {
		if filter.UserID != "" && filter.UserID != caller.UserID {
			return nil, domain.ErrNotAttemptOwner
		}
		filter.UserID = caller.UserID
	}
	attempts, err := s.attempts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

// SubscribeStats streams statistics updates for a quiz the caller can see.
func (s *QuizService) SubscribeStats(ctx context.Context, caller domain.Caller, quizID string) (<-chan StatsUpdate, func(), error) {
	if s.rt.hub == nil {
		return nil, nil, errors.New("statistics feed not enabled")
	}
	quiz, err := s.GetQuiz(ctx, caller, quizID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.rt.hub.Subscribe(quizID, quiz.Stats)
	return ch, cancel, nil
}

// withQuiz runs fn on a quiz caller may manage while holding the quiz lock.
func (s *QuizService) withQuiz(ctx context.Context, caller domain.Caller, id string, fn func(domain.Quiz) error) error {
	if !caller.IsAdmin() {
		return domain.ErrAdminRequired
	}
	unlock, err := s.rt.locker.Lock(ctx, quizKey(id))
	if err != nil {
		return fmt.Errorf("lock quiz: %w", err)
	}
	defer unlock()

	quiz, err := s.quizzes.Get(ctx, id)
	if err != nil {
		return err
	}
	if !caller.CanManage(quiz.CreatedBy) {
		return domain.ErrNotQuizOwner
	}
	return fn(quiz)
}

// prepare validates a spec and returns its questions with IDs assigned.
func (s *QuizService) prepare(spec domain.QuizSpec) ([]domain.Question, error) {
	if err := validateStruct(spec); err != nil {
		return nil, err
	}
	if !spec.Category.Valid() {
		return nil, domain.ErrInvalidCategory
	}

	questions := make([]domain.Question, 0, len(spec.Questions))
	ids := make(map[string]struct{}, len(spec.Questions))
	for i, q := range spec.Questions {
		if !q.Type.Valid() {
			return nil, domain.Errorf(domain.KindInvalidInput, "question %d: unknown type %q", i+1, q.Type)
		}
		if s.rt.strictAnswer {
			options := toSet(q.Options)
			for _, correct := range q.CorrectOptions {
				if _, ok := options[correct]; !ok {
					return nil, domain.Errorf(domain.KindInvalidInput, "question %d: correct option %q is not one of its options", i+1, correct)
				}
			}
		}
		if q.ID == "" {
			q.ID = s.rt.newID()
		}
		if _, dup := ids[q.ID]; dup {
			return nil, domain.Errorf(domain.KindInvalidInput, "question %d: duplicate id %q", i+1, q.ID)
		}
		ids[q.ID] = struct{}{}
		q.Options = append([]string{}, q.Options...)
		q.CorrectOptions = append([]string{}, q.CorrectOptions...)
		questions = append(questions, q)
	}
	return questions, nil
}

func (s *QuizService) enrich(ctx context.Context, attempt domain.QuizAttempt) AttemptView {
	view := AttemptView{QuizAttempt: attempt, Responses: make([]ResponseView, 0, len(attempt.Responses))}
	quiz, err := s.quizzes.Get(ctx, attempt.QuizID)
	if err != nil {
		s.rt.log.Debug().Err(err).Str("attempt_id", attempt.ID).Msg("quiz unavailable for attempt view")
	} else {
		view.QuizTitle = quiz.Title
	}
	for _, resp := range attempt.Responses {
		rv := ResponseView{QuestionResponse: resp}
		if q, ok := quiz.Question(resp.QuestionID); ok {
			rv.QuestionText = q.Text
		}
		view.Responses = append(view.Responses, rv)
	}
	return view
}

func quizKey(id string) string    { return "quiz:" + id }
func attemptKey(id string) string { return "attempt:" + id }
