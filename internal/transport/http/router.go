package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"learnloop-service/internal/app"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Quizzes        *app.QuizService
	Moderation     *app.ModerationService
	Tokens         TokenParser
	Log            zerolog.Logger
	AllowedOrigins []string
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(deps.AllowedOrigins)))
	router.Use(requestID())
	router.Use(requestLogger(deps.Log))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	quizzes := NewQuizHandler(deps.Quizzes)
	reports := NewReportHandler(deps.Moderation)
	ws := NewWSHandler(deps.Quizzes, deps.AllowedOrigins, deps.Log)

	api := router.Group("/api")
	api.Use(requireAuth(deps.Tokens, false))
	{
		api.GET("/quizzes", quizzes.List)
		api.POST("/quizzes", quizzes.Create)
		api.GET("/quizzes/:id", quizzes.Get)
		api.PUT("/quizzes/:id", quizzes.Update)
		api.DELETE("/quizzes/:id", quizzes.Delete)
		api.POST("/quizzes/:id/publish", quizzes.Publish)
		api.POST("/quizzes/:id/unpublish", quizzes.Unpublish)
		api.POST("/quizzes/:id/attempts", quizzes.StartAttempt)

		api.GET("/attempts", quizzes.ListAttempts)
		api.GET("/attempts/:id", quizzes.GetAttempt)
		api.POST("/attempts/:id/submit", quizzes.SubmitAttempt)

		api.POST("/reports", reports.File)
		api.GET("/reports/mine", reports.Mine)
		api.GET("/posts/:id/reports", reports.ForPost)
	}

	admin := api.Group("/admin")
	admin.Use(requireAdmin())
	{
		admin.GET("/reports", reports.List)
		admin.GET("/reports/pending", reports.Pending)
		admin.GET("/reports/:id", reports.Get)
		admin.PUT("/reports/:id", reports.Resolve)
	}

	router.GET("/ws/quizzes/:id/stats", requireAuth(deps.Tokens, true), ws.Stats)
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			origins = nil
			break
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
