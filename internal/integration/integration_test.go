package integration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
	mongostore "learnloop-service/internal/infra/mongo"
	pgstore "learnloop-service/internal/infra/postgres"
	"learnloop-service/internal/infra/postgres/migrations"
	infraredis "learnloop-service/internal/infra/redis"
	"learnloop-service/internal/infra/storetest"
)

func TestPostgresStores(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	pool := migratedPool(t, ctx, pgURL)
	defer pool.Close()

	suites := map[string]func(*testing.T){
		"quizzes":          func(t *testing.T) { storetest.RunQuizStore(t, pgstore.NewQuizStore(pool)) },
		"concurrent stats": func(t *testing.T) { storetest.RunConcurrentStats(t, pgstore.NewQuizStore(pool)) },
		"attempts":         func(t *testing.T) { storetest.RunAttemptStore(t, pgstore.NewAttemptStore(pool)) },
		"concurrent complete": func(t *testing.T) {
			storetest.RunConcurrentComplete(t, pgstore.NewAttemptStore(pool))
		},
		"reports":            func(t *testing.T) { storetest.RunReportStore(t, pgstore.NewReportStore(pool)) },
		"concurrent resolve": func(t *testing.T) { storetest.RunConcurrentResolve(t, pgstore.NewReportStore(pool)) },
		"posts":              func(t *testing.T) { storetest.RunPostStore(t, pgstore.NewPostStore(pool)) },
		"complete and record": func(t *testing.T) {
			runCompleteAndRecord(t, ctx, pgstore.NewQuizStore(pool), pgstore.NewAttemptStore(pool))
		},
	}
	for name, run := range suites {
		truncate(t, ctx, pool)
		t.Run(name, run)
	}
}

func TestMongoStores(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	uri, cleanup := startMongo(t, ctx)
	defer cleanup()
	client, err := mongostore.Connect(ctx, uri)
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	defer client.Disconnect(ctx)

	i := 0
	freshDB := func(t *testing.T) string {
		t.Helper()
		i++
		name := fmt.Sprintf("learnloop_test_%d", i)
		if err := mongostore.EnsureIndexes(ctx, client.Database(name)); err != nil {
			t.Fatalf("ensure indexes: %v", err)
		}
		return name
	}

	t.Run("quizzes", func(t *testing.T) {
		db := client.Database(freshDB(t))
		storetest.RunQuizStore(t, mongostore.NewQuizStore(db))
		storetest.RunConcurrentStats(t, mongostore.NewQuizStore(db))
	})
	t.Run("attempts", func(t *testing.T) {
		db := client.Database(freshDB(t))
		storetest.RunAttemptStore(t, mongostore.NewAttemptStore(db))
		storetest.RunConcurrentComplete(t, mongostore.NewAttemptStore(db))
	})
	t.Run("reports", func(t *testing.T) {
		db := client.Database(freshDB(t))
		storetest.RunReportStore(t, mongostore.NewReportStore(db))
	})
	t.Run("concurrent resolve", func(t *testing.T) {
		db := client.Database(freshDB(t))
		storetest.RunConcurrentResolve(t, mongostore.NewReportStore(db))
	})
	t.Run("posts", func(t *testing.T) {
		db := client.Database(freshDB(t))
		storetest.RunPostStore(t, mongostore.NewPostStore(db))
	})
}

func TestSubmitAndModerateEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	pool := migratedPool(t, ctx, pgURL)
	defer pool.Close()
	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	locker := infraredis.NewLocker(redisClient, 5*time.Second)
	quizzes := infraredis.NewQuizCache(redisClient, pgstore.NewQuizStore(pool), 5*time.Minute, zerolog.Nop())
	service := app.NewQuizService(quizzes, pgstore.NewAttemptStore(pool), app.WithLocker(locker))

	admin := domain.Caller{UserID: "admin-1", Role: domain.RoleAdmin}
	quiz, err := service.CreateQuiz(ctx, admin, sampleSpec())
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if _, err := service.Publish(ctx, admin, quiz.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}

	const users = 8
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := domain.Caller{UserID: fmt.Sprintf("user-%d", i), Role: domain.RoleUser}
			attempt, err := service.StartAttempt(ctx, user, quiz.ID)
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			selected := "3"
			if i%2 == 0 {
				selected = "4"
			}
			responses := []domain.QuestionResponse{{QuestionID: "q1", SelectedOptions: []string{selected}}}
			if _, err := service.SubmitAttempt(ctx, user, attempt.ID, responses); err != nil {
				t.Errorf("submit: %v", err)
			}
			if _, err := service.SubmitAttempt(ctx, user, attempt.ID, responses); !errors.Is(err, domain.ErrAttemptCompleted) {
				t.Errorf("resubmit: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := service.GetQuiz(ctx, admin, quiz.ID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if got.Stats.TotalAttempts != users || got.Stats.PassCount != users/2 || math.Abs(got.Stats.AverageScore-50) > 1e-9 {
		t.Fatalf("unexpected stats: %+v", got.Stats)
	}

	posts := pgstore.NewPostStore(pool)
	if err := posts.Create(ctx, domain.Post{ID: "post-1", UserID: "author-1", Title: "hello", Status: domain.PostActive}); err != nil {
		t.Fatalf("create post: %v", err)
	}
	moderation := app.NewModerationService(pgstore.NewReportStore(pool), posts, app.WithLocker(locker))
	reporter := domain.Caller{UserID: "user-1", Role: domain.RoleUser}
	report, err := moderation.FileReport(ctx, reporter, app.ReportInput{PostID: "post-1", Reason: "spam link", Description: "links to a scam page"})
	if err != nil {
		t.Fatalf("file report: %v", err)
	}
	if _, err := moderation.FileReport(ctx, reporter, app.ReportInput{PostID: "post-1", Reason: "spam again", Description: "still linking to scams"}); !errors.Is(err, domain.ErrDuplicateReport) {
		t.Fatalf("duplicate report: %v", err)
	}
	if _, err := moderation.ResolveReport(ctx, admin, report.ID, domain.DecisionApprove, "confirmed"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	post, err := posts.Get(ctx, "post-1")
	if err != nil || post.Status != domain.PostRemoved || post.ReportCount != 1 {
		t.Fatalf("post after approval: %+v %v", post, err)
	}
}

func runCompleteAndRecord(t *testing.T, ctx context.Context, quizzes *pgstore.QuizStore, attempts *pgstore.AttemptStore) {
	if err := quizzes.Create(ctx, storetest.Quiz("qs-tx")); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	now := time.Now().UTC()
	finished := func(id, quizID string) domain.QuizAttempt {
		return domain.QuizAttempt{ID: id, QuizID: quizID, UserID: "user-1", StartedAt: now,
			Completed: true, CompletedAt: &now, Score: 100, Passed: true, Responses: []domain.QuestionResponse{}}
	}
	for _, a := range []domain.QuizAttempt{
		{ID: "tx-1", QuizID: "qs-tx", UserID: "user-1", StartedAt: now},
		{ID: "tx-orphan", QuizID: "gone", UserID: "user-1", StartedAt: now},
	} {
		if err := attempts.Create(ctx, a); err != nil {
			t.Fatalf("create attempt: %v", err)
		}
	}

	stats, err := attempts.CompleteAndRecord(ctx, finished("tx-1", "qs-tx"))
	if err != nil || stats.TotalAttempts != 1 || stats.PassCount != 1 {
		t.Fatalf("record: %+v %v", stats, err)
	}
	if _, err := attempts.CompleteAndRecord(ctx, finished("tx-1", "qs-tx")); !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("second record: %v", err)
	}
	if quiz, _ := quizzes.Get(ctx, "qs-tx"); quiz.Stats.TotalAttempts != 1 {
		t.Fatalf("stats counted twice: %+v", quiz.Stats)
	}

	// the stats update fails, so the completion must roll back
	if _, err := attempts.CompleteAndRecord(ctx, finished("tx-orphan", "gone")); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("orphan record: %v", err)
	}
	orphan, err := attempts.Get(ctx, "tx-orphan")
	if err != nil || orphan.Completed {
		t.Fatalf("orphan attempt left completed: %+v %v", orphan, err)
	}
}

func sampleSpec() domain.QuizSpec {
	return domain.QuizSpec{
		Title:        "Arithmetic",
		Category:     domain.CategoryMathematics,
		PassingScore: 100,
		Questions: []domain.Question{
			{ID: "q1", Text: "What is 2 + 2?", Type: domain.QuestionSingle, Options: []string{"3", "4", "5"}, CorrectOptions: []string{"4"}},
		},
	}
}

func migratedPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	if _, err := migrations.Apply(ctx, dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// a second run must be a no-op
	group, err := migrations.Apply(ctx, dsn)
	if err != nil || !group.IsZero() {
		t.Fatalf("re-migrate: %v %v", group, err)
	}
	pool, err := pgstore.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	return pool
}

func truncate(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(ctx, `TRUNCATE quizzes, quiz_attempts, reports, posts`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest, port nat.Port) (string, func()) {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("%s host: %v", req.Image, err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("%s port: %v", req.Image, err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	addr, cleanup := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")
	return fmt.Sprintf("postgres://quiz:quizpass@%s/quizdb?sslmode=disable", addr), cleanup
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	addr, cleanup := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}, "6379/tcp")
	return "redis://" + addr, cleanup
}

func startMongo(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	addr, cleanup := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}, "27017/tcp")
	return "mongodb://" + addr, cleanup
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
