package pipeline

import (
	"context"
	"errors"

	"github.com/book-expert/audioguide-manuscript-service/internal/manuscript"
	"github.com/book-expert/audioguide-manuscript-service/internal/parser"
)

// FailureCode is the stable, client-facing name of a failure class.
type FailureCode string

const (
	CodeInvalidSession    FailureCode = "invalid_session"
	CodeThemeParseFailed  FailureCode = "theme_parse_failed"
	CodeGenerationTimeout FailureCode = "generation_timeout"
	CodeGenerationFailed  FailureCode = "generation_failed"
)

// Classify maps a ProposeThemes, Generate or Run error to its FailureCode.
func Classify(err error) FailureCode {
	switch {
	case errors.Is(err, manuscript.ErrInvalidSession):
		return CodeInvalidSession
	case errors.Is(err, parser.ErrNoJSONArray):
		return CodeThemeParseFailed
	case errors.Is(err, context.DeadlineExceeded):
		return CodeGenerationTimeout
	default:
		return CodeGenerationFailed
	}
}
