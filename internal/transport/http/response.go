package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"learnloop-service/internal/domain"
)

// Envelope is the shape of every JSON response.
type Envelope struct {
	Data     any        `json:"data"`
	Error    *ErrorBody `json:"error,omitempty"`
	Metadata Metadata   `json:"metadata"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

const (
	CodeNotFound         = "NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidState     = "INVALID_STATE"
	CodeConflict         = "CONFLICT"
	CodeValidation       = "VALIDATION_ERROR"
	CodeInvalidPayload   = "INVALID_PAYLOAD"
	CodeTokenRequired    = "TOKEN_REQUIRED"
	CodeTokenInvalid     = "TOKEN_INVALID"
	CodeInternal         = "INTERNAL_ERROR"
)

const contextKeyRequestID = "request_id"

func success(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Data: data, Metadata: metadata(c)})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Envelope{Error: &ErrorBody{Code: code, Message: message}, Metadata: metadata(c)})
}

func abortFail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Envelope{Error: &ErrorBody{Code: code, Message: message}, Metadata: metadata(c)})
}

// failWith maps err onto a status by its domain kind. Unclassified errors
// are logged and hidden behind a generic message.
func failWith(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		message = "internal server error"
	} else {
		var de *domain.Error
		if errors.As(err, &de) {
			message = de.Error()
		}
	}
	fail(c, status, code, message)
}

func statusFor(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound, CodeNotFound
	case domain.KindPermissionDenied:
		return http.StatusForbidden, CodePermissionDenied
	case domain.KindInvalidState:
		return http.StatusConflict, CodeInvalidState
	case domain.KindConflict:
		return http.StatusConflict, CodeConflict
	case domain.KindInvalidInput:
		return http.StatusBadRequest, CodeValidation
	}
	return http.StatusInternalServerError, CodeInternal
}

func metadata(c *gin.Context) Metadata {
	id := c.GetString(contextKeyRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	return Metadata{RequestID: id, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}
