package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
)

type QuizHandler struct {
	service *app.QuizService
}

func NewQuizHandler(service *app.QuizService) *QuizHandler {
	return &QuizHandler{service: service}
}

func (h *QuizHandler) List(c *gin.Context) {
	mine, _ := strconv.ParseBool(c.Query("mine"))
	quizzes, err := h.service.ListQuizzes(c.Request.Context(), callerFrom(c), app.ListQuery{
		Category: domain.Category(c.Query("category")),
		Mine:     mine,
	})
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, quizzes)
}

func (h *QuizHandler) Create(c *gin.Context) {
	var spec domain.QuizSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
		return
	}
	quiz, err := h.service.CreateQuiz(c.Request.Context(), callerFrom(c), spec)
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusCreated, quiz)
}

func (h *QuizHandler) Get(c *gin.Context) {
	quiz, err := h.service.GetQuiz(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, quiz)
}

func (h *QuizHandler) Update(c *gin.Context) {
	var spec domain.QuizSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
		return
	}
	quiz, err := h.service.UpdateQuiz(c.Request.Context(), callerFrom(c), c.Param("id"), spec)
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, quiz)
}

func (h *QuizHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteQuiz(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (h *QuizHandler) Publish(c *gin.Context) {
	quiz, err := h.service.Publish(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, quiz)
}

func (h *QuizHandler) Unpublish(c *gin.Context) {
	quiz, err := h.service.Unpublish(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, quiz)
}

func (h *QuizHandler) StartAttempt(c *gin.Context) {
	attempt, err := h.service.StartAttempt(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusCreated, attempt)
}

type submitRequest struct {
	Responses []struct {
		QuestionID      string   `json:"questionId" binding:"required"`
		SelectedOptions []string `json:"selectedOptions"`
	} `json:"responses" binding:"dive"`
}

func (h *QuizHandler) SubmitAttempt(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
		return
	}
	responses := make([]domain.QuestionResponse, 0, len(req.Responses))
	for _, r := range req.Responses {
		responses = append(responses, domain.QuestionResponse{QuestionID: r.QuestionID, SelectedOptions: r.SelectedOptions})
	}
	attempt, err := h.service.SubmitAttempt(c.Request.Context(), callerFrom(c), c.Param("id"), responses)
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, attempt)
}

func (h *QuizHandler) GetAttempt(c *gin.Context) {
	view, err := h.service.GetAttempt(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, view)
}

func (h *QuizHandler) ListAttempts(c *gin.Context) {
	attempts, err := h.service.ListAttempts(c.Request.Context(), callerFrom(c), app.AttemptQuery{
		UserID: c.Query("userId"),
		QuizID: c.Query("quizId"),
	})
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, attempts)
}
