/* DO EVERYTHING WITH LOVE, CARE, HONESTY, TRUTH, TRUST, KINDNESS, RELIABILITY, CONSISTENCY, DISCIPLINE, RESILIENCE, CRAFTSMANSHIP, HUMILITY, ALLIANCE, EXPLICITNESS */

// Package llm is the generation client: one system instruction plus one user
// instruction in, one text completion out, over the Gemini API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"google.golang.org/genai"
)

const (
	DefaultModel          = "gemini-2.5-flash"
	DefaultTimeoutSeconds = 120
)

var (
	// ErrTransport covers network failures and non-success statuses.
	ErrTransport = errors.New("generation transport failed")
	// ErrServiceContract means the response held no textual completion.
	ErrServiceContract = errors.New("generation response has no text completion")

	ErrAPIKeyRequired = errors.New("llm API key is required")
	ErrModelRequired  = errors.New("llm model is required")
)

// Config configures the Gemini client.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Temperature       float64
	TimeoutSeconds    int
	MaxRetries        int
	RetryDelaySeconds int
}

// Request is one independent generation call. Nothing carries over between
// requests, so each one must hold its full context.
type Request struct {
	SystemInstruction string
	UserInstruction   string
	MaxOutputTokens   int
}

// GenerationError is returned by Generate. It matches ErrTransport or
// ErrServiceContract under errors.Is, as well as the underlying cause.
type GenerationError struct {
	Model    string
	Attempts int
	Kind     error
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generate with %s (attempts %d): %v", e.Model, e.Attempts, e.Kind)
	}

	return fmt.Sprintf("generate with %s (attempts %d): %v: %v", e.Model, e.Attempts, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// Client calls Gemini generateContent. It holds no per-call state and is safe
// for concurrent use.
type Client struct {
	models     *genai.Models
	logger     *logger.Logger
	config     Config
	timeout    time.Duration
	retryDelay time.Duration
}

// NewClient validates the configuration and builds the underlying genai client.
func NewClient(ctx context.Context, config *Config, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, ErrAPIKeyRequired
	}

	if strings.TrimSpace(config.Model) == "" {
		return nil, ErrModelRequired
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	genaiClient, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = DefaultTimeoutSeconds
	}

	return &Client{
		models:     genaiClient.Models,
		logger:     log,
		config:     *config,
		timeout:    time.Duration(timeoutSeconds) * time.Second,
		retryDelay: time.Duration(config.RetryDelaySeconds) * time.Second,
	}, nil
}

// Model reports the configured model name.
func (client *Client) Model() string {
	return client.config.Model
}

// Generate sends one request and returns the completion text. Transport
// failures are retried up to MaxRetries attempts in total; a missing
// completion is never retried.
func (client *Client) Generate(ctx context.Context, request Request) (string, error) {
	maxAttempts := max(client.config.MaxRetries, 1)

	var lastErr *GenerationError

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := client.generateOnce(ctx, request)
		if err == nil {
			return text, nil
		}

		lastErr = &GenerationError{Model: client.config.Model, Attempts: attempt}
		if errors.Is(err, ErrServiceContract) {
			lastErr.Kind = ErrServiceContract

			return "", lastErr
		}

		lastErr.Kind = ErrTransport
		lastErr.Err = err

		if ctx.Err() != nil || attempt == maxAttempts {
			break
		}

		client.logger.Warnf("Generation attempt %d/%d with %s failed: %v", attempt, maxAttempts, client.config.Model, err)

		select {
		case <-ctx.Done():
			lastErr.Err = errors.Join(err, ctx.Err())

			return "", lastErr
		case <-time.After(client.retryDelay):
		}
	}

	return "", lastErr
}

func (client *Client) generateOnce(ctx context.Context, request Request) (string, error) {
	attemptContext, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	generateConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(request.SystemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(float32(client.config.Temperature)),
	}
	if request.MaxOutputTokens > 0 {
		generateConfig.MaxOutputTokens = int32(request.MaxOutputTokens)
	}

	response, err := client.models.GenerateContent(
		attemptContext,
		client.config.Model,
		genai.Text(request.UserInstruction),
		generateConfig,
	)
	if err != nil {
		if ctxErr := attemptContext.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return "", errors.Join(err, ctxErr)
		}

		return "", err
	}

	if !hasTextPart(response) {
		return "", ErrServiceContract
	}

	return response.Text(), nil
}

func hasTextPart(response *genai.GenerateContentResponse) bool {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return false
	}

	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			return true
		}
	}

	return false
}
