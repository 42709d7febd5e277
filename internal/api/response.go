package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/book-expert/audioguide-manuscript-service/internal/events"
	"github.com/book-expert/audioguide-manuscript-service/internal/pipeline"
)

// CodeInvalidRequest marks a body that could not be decoded.
const CodeInvalidRequest = "invalid_request"

type APIError struct {
	Message     string       `json:"message"`
	Code        string       `json:"code"`
	ReturnStage events.Stage `json:"returnStage,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, apiErr APIError) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: apiErr})
}

// respondFailure classifies a pipeline error and answers with its status.
func respondFailure(c *gin.Context, stage events.Stage, err error) {
	code := pipeline.Classify(err)

	respondError(c, statusFor(code), APIError{
		Message:     err.Error(),
		Code:        string(code),
		ReturnStage: events.ReturnStage(stage),
	})
}

func statusFor(code pipeline.FailureCode) int {
	switch code {
	case pipeline.CodeInvalidSession:
		return http.StatusBadRequest
	case pipeline.CodeGenerationTimeout:
		return http.StatusGatewayTimeout
	case pipeline.CodeThemeParseFailed, pipeline.CodeGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
