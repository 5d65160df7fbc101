// Package storetest holds behavioural checks shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// Quiz returns a published two-question quiz owned by admin-1.
func Quiz(id string) domain.Quiz {
	return domain.Quiz{
		ID:           id,
		Title:        "Go basics",
		Description:  "Warm-up",
		Category:     domain.CategoryProgramming,
		TimeLimit:    10,
		PassingScore: 50,
		Published:    true,
		CreatedBy:    "admin-1",
		CreatedAt:    base,
		UpdatedAt:    base,
		Questions: []domain.Question{
			{ID: "q1", Text: "Zero value of int?", Type: domain.QuestionSingle, Options: []string{"0", "nil"}, CorrectOptions: []string{"0"}},
			{ID: "q2", Text: "Reference types?", Type: domain.QuestionMulti, Options: []string{"map", "chan", "int"}, CorrectOptions: []string{"map", "chan"}, Explanation: "int is a value type"},
		},
	}
}

// RunQuizStore exercises an empty QuizStore.
func RunQuizStore(t *testing.T, store app.QuizStore) {
	t.Helper()
	ctx := context.Background()

	quiz := Quiz("qs-1")
	if err := store.Create(ctx, quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	got, err := store.Get(ctx, "qs-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if got.Title != quiz.Title || len(got.Questions) != 2 || got.Questions[1].CorrectOptions[1] != "chan" {
		t.Fatalf("unexpected quiz round trip: %+v", got)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	stats, err := store.IncrementStats(ctx, "qs-1", 100, true)
	if err != nil {
		t.Fatalf("increment stats: %v", err)
	}
	stats, err = store.IncrementStats(ctx, "qs-1", 50, false)
	if err != nil {
		t.Fatalf("increment stats: %v", err)
	}
	if stats.TotalAttempts != 2 || stats.PassCount != 1 || stats.AverageScore != 75 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// Update never overwrites statistics or authorship.
	edited := quiz
	edited.Title = "Go basics v2"
	edited.Stats = domain.QuizStats{}
	edited.CreatedBy = "someone-else"
	edited.Published = false
	if err := store.Update(ctx, edited); err != nil {
		t.Fatalf("update quiz: %v", err)
	}
	got, _ = store.Get(ctx, "qs-1")
	if got.Title != "Go basics v2" || got.Published {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.Stats.TotalAttempts != 2 || got.CreatedBy != "admin-1" {
		t.Fatalf("update clobbered stats or owner: %+v", got)
	}
	if err := store.Update(ctx, Quiz("missing")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}

	other := Quiz("qs-2")
	other.Category = domain.CategoryHistory
	other.CreatedBy = "admin-2"
	other.CreatedAt = base.Add(time.Hour)
	if err := store.Create(ctx, other); err != nil {
		t.Fatalf("create second quiz: %v", err)
	}
	all, err := store.List(ctx, app.QuizFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "qs-2" {
		t.Fatalf("expected newest first, got %v", quizIDs(all))
	}
	published, _ := store.List(ctx, app.QuizFilter{PublishedOnly: true})
	if len(published) != 1 || published[0].ID != "qs-2" {
		t.Fatalf("published filter: %v", quizIDs(published))
	}
	history, _ := store.List(ctx, app.QuizFilter{Category: domain.CategoryHistory})
	if len(history) != 1 {
		t.Fatalf("category filter: %v", quizIDs(history))
	}
	mine, _ := store.List(ctx, app.QuizFilter{CreatedBy: "admin-1"})
	if len(mine) != 1 || mine[0].ID != "qs-1" {
		t.Fatalf("creator filter: %v", quizIDs(mine))
	}

	if err := store.Delete(ctx, "qs-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "qs-2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

// RunConcurrentStats checks that parallel increments are not lost.
func RunConcurrentStats(t *testing.T, store app.QuizStore) {
	t.Helper()
	ctx := context.Background()
	if err := store.Create(ctx, Quiz("qs-stats")); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.IncrementStats(ctx, "qs-stats", (i%2)*100, i%2 == 1); err != nil {
				t.Errorf("increment %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	got, err := store.Get(ctx, "qs-stats")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stats.TotalAttempts != n || got.Stats.PassCount != n/2 {
		t.Fatalf("lost updates: %+v", got.Stats)
	}
	if avg := got.Stats.AverageScore; avg < 49.999 || avg > 50.001 {
		t.Fatalf("expected average 50, got %v", avg)
	}
}

// RunAttemptStore exercises an empty AttemptStore.
func RunAttemptStore(t *testing.T, store app.AttemptStore) {
	t.Helper()
	ctx := context.Background()

	for i, id := range []string{"a-1", "a-2", "a-3"} {
		attempt := domain.QuizAttempt{ID: id, QuizID: "quiz-a", UserID: "user-1", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Create(ctx, attempt); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := store.Create(ctx, domain.QuizAttempt{ID: "a-4", QuizID: "quiz-b", UserID: "user-2", StartedAt: base}); err != nil {
		t.Fatalf("create a-4: %v", err)
	}

	completed := func(id string, at time.Time, score int) domain.QuizAttempt {
		return domain.QuizAttempt{
			ID: id, QuizID: "quiz-a", UserID: "user-1", StartedAt: base,
			CompletedAt: &at, Completed: true, Score: score, Passed: score >= 50, TimeSpent: 42,
			Responses: []domain.QuestionResponse{{QuestionID: "q1", SelectedOptions: []string{"0"}, Correct: true}},
		}
	}
	if err := store.Complete(ctx, completed("a-1", base.Add(10*time.Minute), 100)); err != nil {
		t.Fatalf("complete a-1: %v", err)
	}
	if err := store.Complete(ctx, completed("a-2", base.Add(5*time.Minute), 0)); err != nil {
		t.Fatalf("complete a-2: %v", err)
	}
	if err := store.Complete(ctx, completed("a-1", base.Add(20*time.Minute), 0)); !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("expected second completion to fail, got %v", err)
	}
	if err := store.Complete(ctx, completed("missing", base, 0)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	got, err := store.Get(ctx, "a-1")
	if err != nil {
		t.Fatalf("get a-1: %v", err)
	}
	if !got.Completed || got.Score != 100 || got.CompletedAt == nil || len(got.Responses) != 1 || got.TimeSpent != 42 {
		t.Fatalf("completion not stored: %+v", got)
	}
	if !got.StartedAt.Equal(base) {
		t.Fatalf("started at changed: %v", got.StartedAt)
	}

	list, err := store.List(ctx, app.AttemptFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if ids := attemptIDs(list); fmt.Sprint(ids) != "[a-1 a-2 a-3]" {
		t.Fatalf("unexpected order %v", ids)
	}
	done, _ := store.List(ctx, app.AttemptFilter{QuizID: "quiz-a", CompletedOnly: true})
	if len(done) != 2 {
		t.Fatalf("completed filter: %v", attemptIDs(done))
	}

	removed, err := store.DeleteByQuiz(ctx, "quiz-a")
	if err != nil || removed != 3 {
		t.Fatalf("delete by quiz: removed=%d err=%v", removed, err)
	}
	if removed, err := store.DeleteByQuiz(ctx, "quiz-a"); err != nil || removed != 0 {
		t.Fatalf("delete by quiz again: removed=%d err=%v", removed, err)
	}
	if _, err := store.Get(ctx, "a-4"); err != nil {
		t.Fatalf("other quiz attempt removed: %v", err)
	}
}

// RunConcurrentComplete checks that exactly one of many racing completions wins.
func RunConcurrentComplete(t *testing.T, store app.AttemptStore) {
	t.Helper()
	ctx := context.Background()
	if err := store.Create(ctx, domain.QuizAttempt{ID: "race", QuizID: "quiz-r", UserID: "user-1", StartedAt: base}); err != nil {
		t.Fatalf("create: %v", err)
	}
	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := base.Add(time.Duration(i) * time.Second)
			err := store.Complete(ctx, domain.QuizAttempt{ID: "race", QuizID: "quiz-r", UserID: "user-1", Completed: true, CompletedAt: &at, Score: i})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrAttemptCompleted):
				losses.Add(1)
			default:
				t.Errorf("complete %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 || losses.Load() != 9 {
		t.Fatalf("expected one winner, got wins=%d losses=%d", wins.Load(), losses.Load())
	}
}

// RunReportStore exercises an empty ReportStore.
func RunReportStore(t *testing.T, store app.ReportStore) {
	t.Helper()
	ctx := context.Background()

	report := domain.Report{ID: "r-1", PostID: "post-1", ReportedBy: "user-1", Reason: "spam link", Description: "links to a scam page", ReportedAt: base, Status: domain.ReportPending}
	if err := store.Create(ctx, report); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := report
	dup.ID = "r-2"
	if err := store.Create(ctx, dup); !errors.Is(err, domain.ErrDuplicateReport) {
		t.Fatalf("expected duplicate pending report, got %v", err)
	}
	if !errors.Is(domain.ErrDuplicateReport, domain.ErrConflict) {
		t.Fatalf("duplicate report must be a conflict")
	}

	pending, ok, err := store.FindPending(ctx, "post-1", "user-1")
	if err != nil || !ok || pending.ID != "r-1" {
		t.Fatalf("find pending: %+v ok=%v err=%v", pending, ok, err)
	}
	if _, ok, _ := store.FindPending(ctx, "post-1", "user-2"); ok {
		t.Fatalf("unexpected pending report for user-2")
	}

	resolved, err := store.Resolve(ctx, "r-1", domain.Resolution{Status: domain.ReportRejected, AdminComment: "fine", ReviewedAt: base.Add(time.Hour), ReviewedBy: "admin-1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != domain.ReportRejected || resolved.ReviewedBy != "admin-1" || resolved.ReviewedAt == nil {
		t.Fatalf("resolution not applied: %+v", resolved)
	}
	if _, err := store.Resolve(ctx, "r-1", domain.Resolution{Status: domain.ReportApproved, ReviewedAt: base, ReviewedBy: "admin-2"}); !errors.Is(err, domain.ErrReportResolved) {
		t.Fatalf("expected already resolved, got %v", err)
	}
	if _, err := store.Resolve(ctx, "missing", domain.Resolution{Status: domain.ReportApproved}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// Once resolved the reporter may file again.
	dup.ReportedAt = base.Add(2 * time.Hour)
	if err := store.Create(ctx, dup); err != nil {
		t.Fatalf("re-file after resolution: %v", err)
	}
	other := domain.Report{ID: "r-3", PostID: "post-2", ReportedBy: "user-1", Reason: "abusive", Description: "insults other users", ReportedAt: base.Add(3 * time.Hour), Status: domain.ReportPending}
	if err := store.Create(ctx, other); err != nil {
		t.Fatalf("create r-3: %v", err)
	}

	mine, err := store.List(ctx, app.ReportFilter{ReportedBy: "user-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if ids := reportIDs(mine); fmt.Sprint(ids) != "[r-3 r-2 r-1]" {
		t.Fatalf("expected newest first, got %v", ids)
	}
	onPost, _ := store.List(ctx, app.ReportFilter{PostID: "post-1"})
	if len(onPost) != 2 {
		t.Fatalf("post filter: %v", reportIDs(onPost))
	}
	open, _ := store.List(ctx, app.ReportFilter{Status: domain.ReportPending})
	if ids := reportIDs(open); fmt.Sprint(ids) != "[r-3 r-2]" {
		t.Fatalf("status filter: %v", ids)
	}
}

// RunConcurrentResolve checks that a report is resolved at most once.
func RunConcurrentResolve(t *testing.T, store app.ReportStore) {
	t.Helper()
	ctx := context.Background()
	report := domain.Report{ID: "r-race", PostID: "post-r", ReportedBy: "user-1", Reason: "spam link", Description: "links to a scam page", ReportedAt: base, Status: domain.ReportPending}
	if err := store.Create(ctx, report); err != nil {
		t.Fatalf("create: %v", err)
	}
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := domain.ReportApproved
			if i%2 == 0 {
				status = domain.ReportRejected
			}
			_, err := store.Resolve(ctx, "r-race", domain.Resolution{Status: status, ReviewedAt: base, ReviewedBy: fmt.Sprintf("admin-%d", i)})
			if err == nil {
				wins.Add(1)
			} else if !errors.Is(err, domain.ErrReportResolved) {
				t.Errorf("resolve %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected one resolution, got %d", wins.Load())
	}
}

// RunPostStore exercises an empty PostStore.
func RunPostStore(t *testing.T, store app.PostStore) {
	t.Helper()
	ctx := context.Background()
	if err := store.Create(ctx, domain.Post{ID: "p-1", UserID: "author-1", Title: "Hello"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	post, err := store.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if post.Status != domain.PostActive {
		t.Fatalf("expected default ACTIVE, got %q", post.Status)
	}
	for want := 1; want <= 3; want++ {
		count, err := store.IncrementReportCount(ctx, "p-1")
		if err != nil || count != want {
			t.Fatalf("increment: count=%d err=%v", count, err)
		}
	}
	if err := store.SetStatus(ctx, "p-1", domain.PostRemoved); err != nil {
		t.Fatalf("set status: %v", err)
	}
	post, _ = store.Get(ctx, "p-1")
	if post.Status != domain.PostRemoved || post.ReportCount != 3 {
		t.Fatalf("unexpected post %+v", post)
	}
	if _, err := store.IncrementReportCount(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.SetStatus(ctx, "missing", domain.PostRemoved); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func quizIDs(qs []domain.Quiz) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

func attemptIDs(as []domain.QuizAttempt) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}

func reportIDs(rs []domain.Report) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
