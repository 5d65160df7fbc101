package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
)

type ReportHandler struct {
	service *app.ModerationService
}

func NewReportHandler(service *app.ModerationService) *ReportHandler {
	return &ReportHandler{service: service}
}

func (h *ReportHandler) File(c *gin.Context) {
	var in app.ReportInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
		return
	}
	report, err := h.service.FileReport(c.Request.Context(), callerFrom(c), in)
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusCreated, report)
}

func (h *ReportHandler) Mine(c *gin.Context) {
	reports, err := h.service.ListMyReports(c.Request.Context(), callerFrom(c))
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, reports)
}

func (h *ReportHandler) ForPost(c *gin.Context) {
	reports, err := h.service.ListReportsForPost(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, reports)
}

func (h *ReportHandler) List(c *gin.Context) {
	status := domain.ReportStatus(strings.ToUpper(c.Query("status")))
	reports, err := h.service.ListReports(c.Request.Context(), callerFrom(c), status)
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, reports)
}

func (h *ReportHandler) Pending(c *gin.Context) {
	reports, err := h.service.ListReports(c.Request.Context(), callerFrom(c), domain.ReportPending)
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, reports)
}

func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.service.GetReport(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, report)
}

type resolveRequest struct {
	Decision     string `json:"decision" binding:"required"`
	AdminComment string `json:"adminComment"`
}

func (h *ReportHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
		return
	}
	decision := domain.Decision(strings.ToUpper(strings.TrimSpace(req.Decision)))
	report, err := h.service.ResolveReport(c.Request.Context(), callerFrom(c), c.Param("id"), decision, req.AdminComment)
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, report)
}
