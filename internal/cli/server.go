package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"learnloop-service/internal/app"
	"learnloop-service/internal/auth"
	"learnloop-service/internal/config"
	"learnloop-service/internal/domain"
	"learnloop-service/internal/infra/amqp"
	"learnloop-service/internal/infra/memory"
	mongostore "learnloop-service/internal/infra/mongo"
	pgstore "learnloop-service/internal/infra/postgres"
	rediscache "learnloop-service/internal/infra/redis"
	"learnloop-service/internal/logger"
	transport "learnloop-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// stores is one backend's set of app ports plus its teardown.
type stores struct {
	quizzes  app.QuizStore
	attempts app.AttemptStore
	reports  app.ReportStore
	posts    app.PostStore
	close    func()
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	backend, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.close()

	opts := []app.Option{app.WithLogger(log)}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		lockTTL := config.TTLDuration(cfg.Redis.LockTTL, 10*time.Second)
		opts = append(opts, app.WithLocker(rediscache.NewLocker(redisClient, lockTTL)))
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	quizzes := backend.quizzes
	if redisClient != nil {
		quizzes = rediscache.NewQuizCache(redisClient, quizzes, cacheTTL, log)
	} else if cfg.Storage.Driver != config.DriverMemory {
		quizzes = memory.NewCachedQuizStore(quizzes, cacheTTL)
	}

	if cfg.AMQP.URL != "" {
		publisher, err := amqp.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, app.WithEvents(publisher))
	} else {
		opts = append(opts, app.WithEvents(app.LogPublisher{Log: log}))
	}

	hub := app.NewStatsHub()
	quizService := app.NewQuizService(quizzes, backend.attempts,
		append(opts, app.WithStatsHub(hub), app.WithStrictCorrectOptions(cfg.Quiz.StrictAnswers))...)
	moderation := app.NewModerationService(backend.reports, backend.posts, opts...)

	if cfg.Quiz.SeedSampleData {
		if err := seedSampleData(ctx, quizService, backend.posts); err != nil {
			return err
		}
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenExpiry, 24*time.Hour))
	router := transport.NewRouter(transport.Deps{
		Quizzes:        quizService,
		Moderation:     moderation,
		Tokens:         tokens,
		Log:            log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// No write timeout: stats sockets are long-lived.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", finalPort).Str("storage", cfg.Storage.Driver).Msg("starting learnloop service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	}

	grace := config.TTLDuration(cfg.Server.ShutdownGrace, 5*time.Second)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg config.Config, log zerolog.Logger) (stores, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if err := runMigrations(ctx, cfg); err != nil {
			return stores{}, err
		}
		pool, err := pgstore.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return stores{}, err
		}
		return stores{
			quizzes:  pgstore.NewQuizStore(pool),
			attempts: pgstore.NewAttemptStore(pool),
			reports:  pgstore.NewReportStore(pool),
			posts:    pgstore.NewPostStore(pool),
			close:    pool.Close,
		}, nil

	case config.DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return stores{}, err
		}
		db := client.Database(cfg.Mongo.Database)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return stores{}, err
		}
		return stores{
			quizzes:  mongostore.NewQuizStore(db),
			attempts: mongostore.NewAttemptStore(db),
			reports:  mongostore.NewReportStore(db),
			posts:    mongostore.NewPostStore(db),
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					log.Warn().Err(err).Msg("mongo disconnect")
				}
			},
		}, nil
	}

	log.Warn().Msg("using in-memory storage; data is lost on restart")
	return stores{
		quizzes:  memory.NewQuizStore(),
		attempts: memory.NewAttemptStore(),
		reports:  memory.NewReportStore(),
		posts:    memory.NewPostStore(),
		close:    func() {},
	}, nil
}

// seedSampleData publishes a starter quiz and a couple of reportable posts.
// Existing posts are left alone so restarts against a database are safe.
func seedSampleData(ctx context.Context, quizzes *app.QuizService, posts app.PostStore) error {
	for _, post := range []domain.Post{
		{ID: "post-1", UserID: "user-1", Title: "Welcome to the study group", Status: domain.PostActive},
		{ID: "post-2", UserID: "user-2", Title: "Free answers here!!!", Status: domain.PostActive},
	} {
		if _, err := posts.Get(ctx, post.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("seed post %s: %w", post.ID, err)
		}
		if err := posts.Create(ctx, post); err != nil {
			return fmt.Errorf("seed post %s: %w", post.ID, err)
		}
	}

	author := domain.Caller{UserID: "admin-1", Role: domain.RoleAdmin}
	existing, err := quizzes.ListQuizzes(ctx, author, app.ListQuery{Mine: true})
	if err != nil {
		return fmt.Errorf("seed quiz: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	quiz, err := quizzes.CreateQuiz(ctx, author, domain.QuizSpec{
		Title:        "Arithmetic warm-up",
		Description:  "A short quiz to try the attempt flow.",
		Category:     domain.CategoryMathematics,
		TimeLimit:    5,
		PassingScore: 50,
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Type: domain.QuestionSingle, Options: []string{"3", "4", "5"}, CorrectOptions: []string{"4"}},
			{Text: "Which numbers are prime?", Type: domain.QuestionMulti, Options: []string{"2", "4", "7", "9"}, CorrectOptions: []string{"2", "7"}},
		},
	})
	if err != nil {
		return fmt.Errorf("seed quiz: %w", err)
	}
	_, err = quizzes.Publish(ctx, author, quiz.ID)
	return err
}
