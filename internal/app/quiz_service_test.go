package app_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
	"learnloop-service/internal/infra/memory"
)

var (
	admin      = domain.Caller{UserID: "admin-1", Role: domain.RoleAdmin}
	otherAdmin = domain.Caller{UserID: "admin-2", Role: domain.RoleAdmin}
	superAdmin = domain.Caller{UserID: "root", Role: domain.RoleSuperAdmin}
	alice      = domain.Caller{UserID: "u1", Role: domain.RoleUser}
	bob        = domain.Caller{UserID: "u2", Role: domain.RoleUser}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type quizFixture struct {
	svc      *app.QuizService
	attempts *memory.AttemptStore
	hub      *app.StatsHub
	clock    *clock
}

func newQuizFixture(opts ...app.Option) *quizFixture {
	f := &quizFixture{attempts: memory.NewAttemptStore(), hub: app.NewStatsHub(), clock: newClock()}
	opts = append([]app.Option{app.WithClock(f.clock.Now), app.WithStatsHub(f.hub)}, opts...)
	f.svc = app.NewQuizService(memory.NewQuizStore(), f.attempts, opts...)
	return f
}

func quizSpec() domain.QuizSpec {
	return domain.QuizSpec{
		Title:        "Basics",
		Description:  "warm-up",
		Category:     domain.CategoryMathematics,
		TimeLimit:    10,
		PassingScore: 50,
		Questions: []domain.Question{
			{ID: "q1", Text: "2 + 2?", Type: domain.QuestionSingle, Options: []string{"3", "4", "5"}, CorrectOptions: []string{"4"}, Explanation: "arithmetic"},
			{ID: "q2", Text: "Pick a and c", Type: domain.QuestionMulti, Options: []string{"a", "b", "c"}, CorrectOptions: []string{"a", "c"}},
		},
	}
}

func (f *quizFixture) published(t *testing.T, spec domain.QuizSpec) domain.Quiz {
	t.Helper()
	ctx := context.Background()
	quiz, err := f.svc.CreateQuiz(ctx, admin, spec)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	quiz, err = f.svc.Publish(ctx, admin, quiz.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return quiz
}

func (f *quizFixture) submit(t *testing.T, caller domain.Caller, quizID string, responses ...domain.QuestionResponse) domain.QuizAttempt {
	t.Helper()
	ctx := context.Background()
	attempt, err := f.svc.StartAttempt(ctx, caller, quizID)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	scored, err := f.svc.SubmitAttempt(ctx, caller, attempt.ID, responses)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return scored
}

func answer(questionID string, selected ...string) domain.QuestionResponse {
	return domain.QuestionResponse{QuestionID: questionID, SelectedOptions: selected}
}

func TestCreateQuizStartsAsDraft(t *testing.T) {
	f := newQuizFixture()
	spec := quizSpec()
	spec.Questions[1].ID = ""
	quiz, err := f.svc.CreateQuiz(context.Background(), admin, spec)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if quiz.Published || quiz.CreatedBy != "admin-1" || quiz.ID == "" {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
	if quiz.Questions[1].ID == "" {
		t.Fatalf("question id not assigned")
	}
	if !quiz.CreatedAt.Equal(f.clock.Now()) || quiz.Stats != (domain.QuizStats{}) {
		t.Fatalf("unexpected bookkeeping: %+v", quiz)
	}
}

func TestCreateQuizRejectsBadInput(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()

	if _, err := f.svc.CreateQuiz(ctx, alice, quizSpec()); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("user create: %v", err)
	}

	cases := map[string]func(*domain.QuizSpec){
		"missing title":     func(s *domain.QuizSpec) { s.Title = "" },
		"unknown category":  func(s *domain.QuizSpec) { s.Category = "Cooking" },
		"passing above 100": func(s *domain.QuizSpec) { s.PassingScore = 101 },
		"negative limit":    func(s *domain.QuizSpec) { s.TimeLimit = -1 },
		"unknown type":      func(s *domain.QuizSpec) { s.Questions[0].Type = "ESSAY" },
		"duplicate ids":     func(s *domain.QuizSpec) { s.Questions[1].ID = "q1" },
	}
	for name, mutate := range cases {
		spec := quizSpec()
		mutate(&spec)
		if _, err := f.svc.CreateQuiz(ctx, admin, spec); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
}

func TestCorrectOptionsOutsideOptions(t *testing.T) {
	spec := quizSpec()
	spec.Questions[0].CorrectOptions = []string{"four"}

	lenient := newQuizFixture()
	if _, err := lenient.svc.CreateQuiz(context.Background(), admin, spec); err != nil {
		t.Fatalf("permissive create: %v", err)
	}

	strict := newQuizFixture(app.WithStrictCorrectOptions(true))
	if _, err := strict.svc.CreateQuiz(context.Background(), admin, spec); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("strict create: %v", err)
	}
}

func TestPublishRequiresQuestions(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	spec := quizSpec()
	spec.Questions = nil
	quiz, err := f.svc.CreateQuiz(ctx, admin, spec)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Publish(ctx, admin, quiz.ID); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected no questions, got %v", err)
	}
	if _, err := f.svc.StartAttempt(ctx, alice, quiz.ID); !errors.Is(err, domain.ErrQuizNotPublished) {
		t.Fatalf("attempt on draft: %v", err)
	}
}

func TestUpdatePreservesIdentityAndStats(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	quiz := f.published(t, quizSpec())
	f.submit(t, alice, quiz.ID, answer("q1", "4"), answer("q2", "a", "c"))

	f.clock.Advance(time.Hour)
	spec := quizSpec()
	spec.Title = "Basics, revised"
	updated, err := f.svc.UpdateQuiz(ctx, admin, quiz.ID, spec)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, err := f.svc.GetQuiz(ctx, admin, quiz.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for _, got := range []domain.Quiz{updated, stored} {
		if got.ID != quiz.ID || got.CreatedBy != "admin-1" || !got.CreatedAt.Equal(quiz.CreatedAt) || !got.Published {
			t.Fatalf("identity lost: %+v", got)
		}
		if got.Stats.TotalAttempts != 1 || got.Stats.AverageScore != 100 {
			t.Fatalf("stats lost: %+v", got.Stats)
		}
		if got.Title != "Basics, revised" || !got.UpdatedAt.After(got.CreatedAt) {
			t.Fatalf("update not applied: %+v", got)
		}
	}

	spec.Questions = nil
	if _, err := f.svc.UpdateQuiz(ctx, admin, quiz.ID, spec); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("emptying a published quiz: %v", err)
	}
}

func TestOnlyCreatorOrSuperAdminMutates(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	quiz := f.published(t, quizSpec())

	if _, err := f.svc.UpdateQuiz(ctx, otherAdmin, quiz.ID, quizSpec()); !errors.Is(err, domain.ErrNotQuizOwner) {
		t.Fatalf("other admin update: %v", err)
	}
	if _, err := f.svc.Unpublish(ctx, alice, quiz.ID); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("user unpublish: %v", err)
	}
	if err := f.svc.DeleteQuiz(ctx, otherAdmin, quiz.ID); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("other admin delete: %v", err)
	}
	if _, err := f.svc.Unpublish(ctx, superAdmin, quiz.ID); err != nil {
		t.Fatalf("super admin unpublish: %v", err)
	}
}

func TestVisibilityForUsers(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	visible := f.published(t, quizSpec())
	draft, err := f.svc.CreateQuiz(ctx, admin, quizSpec())
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}

	if _, err := f.svc.GetQuiz(ctx, alice, draft.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("draft visible: %v", err)
	}
	got, err := f.svc.GetQuiz(ctx, alice, visible.ID)
	if err != nil {
		t.Fatalf("get published: %v", err)
	}
	for _, q := range got.Questions {
		if len(q.CorrectOptions) != 0 || q.Explanation != "" {
			t.Fatalf("answers leaked: %+v", q)
		}
	}

	list, err := f.svc.ListQuizzes(ctx, alice, app.ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != visible.ID || len(list[0].Questions[0].CorrectOptions) != 0 {
		t.Fatalf("user list: %+v", list)
	}

	all, err := f.svc.ListQuizzes(ctx, admin, app.ListQuery{Mine: true})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(all) != 2 || len(all[0].Questions[0].CorrectOptions) == 0 {
		t.Fatalf("admin list: %+v", all)
	}
	if _, err := f.svc.ListQuizzes(ctx, alice, app.ListQuery{Mine: true}); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("user mine: %v", err)
	}
	science, err := f.svc.ListQuizzes(ctx, admin, app.ListQuery{Category: domain.CategoryScience})
	if err != nil || len(science) != 0 {
		t.Fatalf("category filter: %v %v", science, err)
	}
}

func TestScoringRules(t *testing.T) {
	f := newQuizFixture()
	quiz := f.published(t, quizSpec())

	cases := []struct {
		name     string
		response domain.QuestionResponse
		correct  bool
	}{
		{"single exact", answer("q1", "4"), true},
		{"single wrong", answer("q1", "3"), false},
		{"single two picks", answer("q1", "4", "3"), false},
		{"single none", answer("q1"), false},
		{"single repeated pick", answer("q1", "4", "4"), true},
		{"multi exact", answer("q2", "a", "c"), true},
		{"multi any order", answer("q2", "c", "a"), true},
		{"multi subset", answer("q2", "a"), false},
		{"multi superset", answer("q2", "a", "b", "c"), false},
		{"multi repeated pick", answer("q2", "a", "c", "c"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scored := f.submit(t, alice, quiz.ID, tc.response)
			if len(scored.Responses) != 1 || scored.Responses[0].Correct != tc.correct {
				t.Fatalf("responses: %+v", scored.Responses)
			}
			want := 0
			if tc.correct {
				want = 50
			}
			if scored.Score != want || scored.Passed != tc.correct {
				t.Fatalf("score %d passed %v, want %d", scored.Score, scored.Passed, want)
			}
		})
	}
}

func TestScoringEdgeCases(t *testing.T) {
	f := newQuizFixture()
	spec := quizSpec()
	spec.PassingScore = 67
	spec.Questions = append(spec.Questions, domain.Question{ID: "q3", Text: "1 + 1?", Type: domain.QuestionSingle, Options: []string{"2"}, CorrectOptions: []string{"2"}})
	quiz := f.published(t, spec)

	scored := f.submit(t, alice, quiz.ID,
		answer("q1", "4"),
		answer("q1", "3"),
		answer("ghost", "x"),
		answer("q3", "2"),
	)
	if scored.Score != 66 || scored.Passed {
		t.Fatalf("expected round-down 66 failing, got %d %v", scored.Score, scored.Passed)
	}
	if len(scored.Responses) != 2 || !scored.Responses[0].Correct {
		t.Fatalf("first answer should win and unknown questions drop: %+v", scored.Responses)
	}

	empty := f.submit(t, alice, quiz.ID)
	if empty.Score != 0 || empty.Responses == nil || len(empty.Responses) != 0 {
		t.Fatalf("empty submission: %+v", empty)
	}
}

func TestSubmitOnceByOwner(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	quiz := f.published(t, quizSpec())
	attempt, err := f.svc.StartAttempt(ctx, alice, quiz.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if attempt.Completed || attempt.UserID != "u1" {
		t.Fatalf("unexpected new attempt: %+v", attempt)
	}

	if _, err := f.svc.SubmitAttempt(ctx, bob, attempt.ID, nil); !errors.Is(err, domain.ErrNotAttemptOwner) {
		t.Fatalf("foreign submit: %v", err)
	}
	if _, err := f.svc.SubmitAttempt(ctx, alice, attempt.ID, []domain.QuestionResponse{answer("q1", "4")}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.SubmitAttempt(ctx, alice, attempt.ID, nil); !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("second submit: %v", err)
	}
	if _, err := f.svc.SubmitAttempt(ctx, alice, "missing", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown attempt: %v", err)
	}

	stored, _ := f.svc.GetQuiz(ctx, admin, quiz.ID)
	if stored.Stats.TotalAttempts != 1 {
		t.Fatalf("rejected submits changed stats: %+v", stored.Stats)
	}
}

func TestTimeSpentIsClampedToLimit(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	quiz := f.published(t, quizSpec())

	attempt, _ := f.svc.StartAttempt(ctx, alice, quiz.ID)
	f.clock.Advance(90 * time.Second)
	scored, err := f.svc.SubmitAttempt(ctx, alice, attempt.ID, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if scored.TimeSpent != 90 || scored.CompletedAt == nil || !scored.CompletedAt.Equal(f.clock.Now()) {
		t.Fatalf("unexpected timing: %+v", scored)
	}

	late, _ := f.svc.StartAttempt(ctx, alice, quiz.ID)
	f.clock.Advance(25 * time.Minute)
	scored, _ = f.svc.SubmitAttempt(ctx, alice, late.ID, nil)
	if scored.TimeSpent != 600 {
		t.Fatalf("expected clamp to 600s, got %d", scored.TimeSpent)
	}
}

func TestStatsAreRunningAverage(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	quiz := f.published(t, quizSpec())

	f.submit(t, alice, quiz.ID, answer("q1", "4"), answer("q2", "a", "c")) // 100
	f.submit(t, bob, quiz.ID, answer("q1", "4"))                           // 50
	f.submit(t, alice, quiz.ID)                                            // 0

	got, err := f.svc.GetQuiz(ctx, admin, quiz.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := domain.QuizStats{TotalAttempts: 3, PassCount: 2, AverageScore: 50}
	if got.Stats != want {
		t.Fatalf("stats %+v, want %+v", got.Stats, want)
	}
}

func TestConcurrentSubmitsOfOneAttempt(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	quiz := f.published(t, quizSpec())
	attempt, _ := f.svc.StartAttempt(ctx, alice, quiz.ID)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SubmitAttempt(ctx, alice, attempt.ID, []domain.QuestionResponse{answer("q1", "4")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrAttemptCompleted):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || conflicts != 9 {
		t.Fatalf("wins=%d conflicts=%d", wins, conflicts)
	}
	got, _ := f.svc.GetQuiz(ctx, admin, quiz.ID)
	if got.Stats.TotalAttempts != 1 {
		t.Fatalf("stats counted %d submissions", got.Stats.TotalAttempts)
	}
}

func TestConcurrentAttemptsAreAllCounted(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	quiz := f.published(t, quizSpec())

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := domain.Caller{UserID: "user-" + string(rune('a'+i)), Role: domain.RoleUser}
			attempt, err := f.svc.StartAttempt(ctx, user, quiz.ID)
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			responses := []domain.QuestionResponse{answer("q1", "4")}
			if i%2 == 0 {
				responses = append(responses, answer("q2", "a", "c"))
			}
			if _, err := f.svc.SubmitAttempt(ctx, user, attempt.ID, responses); err != nil {
				t.Errorf("submit: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := f.svc.GetQuiz(ctx, admin, quiz.ID)
	if got.Stats.TotalAttempts != n || got.Stats.PassCount != n || math.Abs(got.Stats.AverageScore-75) > 1e-9 {
		t.Fatalf("unexpected stats: %+v", got.Stats)
	}
}

func TestDeleteQuizCascades(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	quiz := f.published(t, quizSpec())
	scored := f.submit(t, alice, quiz.ID, answer("q1", "4"))
	if _, err := f.svc.StartAttempt(ctx, bob, quiz.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	updates, cancel, err := f.svc.SubscribeStats(ctx, alice, quiz.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-updates

	if err := f.svc.DeleteQuiz(ctx, admin, quiz.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.GetQuiz(ctx, admin, quiz.ID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("quiz still present: %v", err)
	}
	if _, err := f.svc.GetAttempt(ctx, alice, scored.ID); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("attempt survived: %v", err)
	}
	left, _ := f.attempts.List(ctx, app.AttemptFilter{QuizID: quiz.ID})
	if len(left) != 0 {
		t.Fatalf("attempts left: %d", len(left))
	}
	if _, open := <-updates; open {
		t.Fatalf("stats feed not closed on delete")
	}
	if err := f.svc.DeleteQuiz(ctx, admin, quiz.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestAttemptReadsAreScoped(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	quiz := f.published(t, quizSpec())
	mine := f.submit(t, alice, quiz.ID, answer("q1", "4"))
	f.clock.Advance(time.Minute)
	f.submit(t, bob, quiz.ID)
	f.clock.Advance(time.Minute)
	open, _ := f.svc.StartAttempt(ctx, alice, quiz.ID)

	view, err := f.svc.GetAttempt(ctx, alice, mine.ID)
	if err != nil {
		t.Fatalf("get own: %v", err)
	}
	if view.QuizTitle != "Basics" || len(view.Responses) != 1 || view.Responses[0].QuestionText != "2 + 2?" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if _, err := f.svc.GetAttempt(ctx, bob, mine.ID); !errors.Is(err, domain.ErrNotAttemptOwner) {
		t.Fatalf("foreign read: %v", err)
	}
	if _, err := f.svc.GetAttempt(ctx, admin, mine.ID); err != nil {
		t.Fatalf("admin read: %v", err)
	}

	list, err := f.svc.ListAttempts(ctx, alice, app.AttemptQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != mine.ID || list[1].ID != open.ID {
		t.Fatalf("expected completed first then open, got %+v", list)
	}
	if _, err := f.svc.ListAttempts(ctx, alice, app.AttemptQuery{UserID: "u2"}); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("foreign list: %v", err)
	}
	all, _ := f.svc.ListAttempts(ctx, admin, app.AttemptQuery{QuizID: quiz.ID})
	if len(all) != 3 {
		t.Fatalf("admin list: %d", len(all))
	}
}

func TestSubscribeStatsReceivesSubmissions(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	quiz := f.published(t, quizSpec())

	updates, cancel, err := f.svc.SubscribeStats(ctx, bob, quiz.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if first := <-updates; first.Stats.TotalAttempts != 0 {
		t.Fatalf("initial snapshot: %+v", first)
	}

	f.submit(t, alice, quiz.ID, answer("q1", "4"))
	select {
	case update := <-updates:
		if update.QuizID != quiz.ID || update.Stats.TotalAttempts != 1 || update.Stats.PassCount != 1 {
			t.Fatalf("unexpected update: %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatalf("no update after submit")
	}

	draft, _ := f.svc.CreateQuiz(ctx, admin, quizSpec())
	if _, _, err := f.svc.SubscribeStats(ctx, bob, draft.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("draft feed: %v", err)
	}
	noHub := app.NewQuizService(memory.NewQuizStore(), memory.NewAttemptStore())
	if _, _, err := noHub.SubscribeStats(ctx, bob, quiz.ID); err == nil {
		t.Fatalf("expected error without hub")
	}
}

// recordingAttempts completes attempts and bumps quiz stats as one step,
// the way a transactional store does. fail aborts before anything is written.
type recordingAttempts struct {
	*memory.AttemptStore
	quizzes app.QuizStore
	fail    error
}

func (s *recordingAttempts) CompleteAndRecord(ctx context.Context, attempt domain.QuizAttempt) (domain.QuizStats, error) {
	if s.fail != nil {
		return domain.QuizStats{}, s.fail
	}
	if err := s.AttemptStore.Complete(ctx, attempt); err != nil {
		return domain.QuizStats{}, err
	}
	return s.quizzes.IncrementStats(ctx, attempt.QuizID, attempt.Score, attempt.Passed)
}

func TestSubmitPrefersTransactionalRecorder(t *testing.T) {
	ctx := context.Background()
	rows := memory.NewQuizStore()
	// the recorder writes stats to rows directly, bypassing the cache
	cached := memory.NewCachedQuizStore(rows, time.Minute)
	attempts := &recordingAttempts{AttemptStore: memory.NewAttemptStore(), quizzes: rows, fail: errors.New("tx aborted")}
	svc := app.NewQuizService(cached, attempts, app.WithClock(newClock().Now))

	quiz, err := svc.CreateQuiz(ctx, admin, quizSpec())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Publish(ctx, admin, quiz.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	attempt, err := svc.StartAttempt(ctx, alice, quiz.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	responses := []domain.QuestionResponse{answer("q1", "4")}

	if _, err := svc.SubmitAttempt(ctx, alice, attempt.ID, responses); err == nil {
		t.Fatalf("expected the aborted submission to fail")
	}
	stored, _ := attempts.Get(ctx, attempt.ID)
	if stored.Completed {
		t.Fatalf("failed submission left the attempt completed")
	}

	attempts.fail = nil
	scored, err := svc.SubmitAttempt(ctx, alice, attempt.ID, responses)
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if scored.Score != 50 || !scored.Completed {
		t.Fatalf("unexpected attempt: %+v", scored)
	}
	got, err := svc.GetQuiz(ctx, admin, quiz.ID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if got.Stats.TotalAttempts != 1 || got.Stats.PassCount != 1 {
		t.Fatalf("cache not invalidated after recording: %+v", got.Stats)
	}
}
