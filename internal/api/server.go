// Package api exposes theme proposal, source preview and manuscript
// generation over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/gin-gonic/gin"

	"github.com/book-expert/audioguide-manuscript-service/internal/events"
	"github.com/book-expert/audioguide-manuscript-service/internal/manuscript"
	"github.com/book-expert/audioguide-manuscript-service/internal/pipeline"
)

// Pipeline is the generation logic behind the handlers.
type Pipeline interface {
	ProposeThemes(ctx context.Context, session *manuscript.Session) ([]manuscript.Theme, error)
	Generate(ctx context.Context, session *manuscript.Session, progress pipeline.ProgressFunc) (*manuscript.Manuscript, error)
}

type Server struct {
	pipeline       Pipeline
	logger         *logger.Logger
	requestTimeout time.Duration
}

// NewServer creates a Server. A zero requestTimeout leaves requests bounded
// only by the client connection.
func NewServer(generationPipeline Pipeline, requestTimeout time.Duration, log *logger.Logger) *Server {
	return &Server{
		pipeline:       generationPipeline,
		logger:         log,
		requestTimeout: requestTimeout,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/source-material", s.sourceMaterial)
		v1.POST("/themes", s.proposeThemes)
		v1.POST("/manuscripts", s.generateManuscript)
	}

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) sourceMaterial(c *gin.Context) {
	session, ok := bindSession(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"sourceDocument": session.SourceDocument()})
}

func (s *Server) proposeThemes(c *gin.Context) {
	session, ok := bindSession(c)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	themes, err := s.pipeline.ProposeThemes(ctx, session)
	if err != nil {
		s.logger.Warnf("Theme proposal failed: %v", err)
		respondFailure(c, events.StageThemeProposal, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"themes": themes})
}

func (s *Server) generateManuscript(c *gin.Context) {
	session, ok := bindSession(c)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	result, err := s.pipeline.Generate(ctx, session, func(progress pipeline.Progress) {
		s.logger.Infof("Section %d/%d done: %s", progress.Completed, progress.Total, progress.Theme)
	})
	if err != nil {
		s.logger.Warnf("Manuscript generation failed: %v", err)
		respondFailure(c, events.StageManuscript, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"manuscript": result})
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}

	return context.WithTimeout(c.Request.Context(), s.requestTimeout)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		s.logger.Infof("%s %s -> %d in %s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(startTime).Round(time.Millisecond))
	}
}

func bindSession(c *gin.Context) (*manuscript.Session, bool) {
	var session manuscript.Session

	if err := c.ShouldBindJSON(&session); err != nil {
		respondError(c, http.StatusBadRequest, APIError{
			Message: fmt.Sprintf("decode session: %v", err),
			Code:    CodeInvalidRequest,
		})

		return nil, false
	}

	return &session, true
}
