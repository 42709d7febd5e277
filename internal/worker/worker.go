/* DO EVERYTHING WITH LOVE, CARE, HONESTY, TRUTH, TRUST, KINDNESS, RELIABILITY, CONSISTENCY, DISCIPLINE, RESILIENCE, CRAFTSMANSHIP, HUMILITY, ALLIANCE, EXPLICITNESS */

// Package worker provides a NATS JetStream worker that serves theme proposal
// and manuscript generation requests.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/audioguide-manuscript-service/internal/events"
	"github.com/book-expert/audioguide-manuscript-service/internal/manuscript"
	"github.com/book-expert/audioguide-manuscript-service/internal/pipeline"
)

const (
	// NatsConnectTimeoutSeconds defines the timeout for NATS connection attempts.
	NatsConnectTimeoutSeconds = 10
	// NatsMaxReconnectAttempts defines the maximum number of reconnect attempts for NATS.
	NatsMaxReconnectAttempts = 5
	// NatsFetchMaxWaitSeconds defines the maximum time to wait for messages during a fetch operation.
	NatsFetchMaxWaitSeconds = 5
	// NatsRedeliveryDelaySeconds is how long a request whose outcome could not be
	// published waits before it is delivered again.
	NatsRedeliveryDelaySeconds = 5
)

var (
	// ErrMalformedRequest marks a message that was sent to the dead-letter subject.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrUnknownSubject marks a message on a subject the worker does not serve.
	ErrUnknownSubject = errors.New("unknown subject")
	// ErrMissingSession is returned for a request without a session.
	ErrMissingSession = errors.New("request has no session")
	// ErrIncompleteConfig is returned by New when a subject is missing.
	ErrIncompleteConfig = errors.New("incomplete worker configuration")
	// ErrPublishFailed marks a request whose outcome never reached the stream.
	// Such requests are redelivered instead of acknowledged.
	ErrPublishFailed = errors.New("outcome publish failed")
)

// Pipeline is the generation logic the worker drives.
type Pipeline interface {
	ProposeThemes(ctx context.Context, session *manuscript.Session) ([]manuscript.Theme, error)
	Generate(ctx context.Context, session *manuscript.Session, progress pipeline.ProgressFunc) (*manuscript.Manuscript, error)
}

// Publisher publishes JetStream messages. nats.JetStreamContext satisfies it.
type Publisher interface {
	Publish(subject string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// ObjectStore stores finished manuscripts. nats.ObjectStore satisfies it.
type ObjectStore interface {
	PutBytes(name string, data []byte, opts ...nats.ObjectOpt) (*nats.ObjectInfo, error)
	Delete(name string) error
}

// Subscriber creates the pull subscription. nats.JetStreamContext satisfies it.
type Subscriber interface {
	PullSubscribe(subject, durable string, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// Subjects lists every subject the worker reads or writes.
type Subjects struct {
	ThemesRequested     string
	ThemesProposed      string
	ManuscriptRequested string
	ManuscriptProgress  string
	ManuscriptCompleted string
	GenerationFailed    string
	DeadLetter          string
}

// Config describes the consumer and its subjects.
type Config struct {
	Subjects      Subjects
	StreamName    string
	FilterSubject string
	ConsumerName  string
	// JobTimeout bounds one request; zero means no limit.
	JobTimeout time.Duration
}

// StreamSubjects lists the subjects the stream must capture: the request
// filter plus every subject the worker publishes to that the filter does not
// already cover.
func (c Config) StreamSubjects() []string {
	subjects := []string{c.FilterSubject}

	outputs := []string{
		c.Subjects.ThemesRequested,
		c.Subjects.ManuscriptRequested,
		c.Subjects.ThemesProposed,
		c.Subjects.ManuscriptProgress,
		c.Subjects.ManuscriptCompleted,
		c.Subjects.GenerationFailed,
		c.Subjects.DeadLetter,
	}

	for _, subject := range outputs {
		if subject == "" || slices.Contains(subjects, subject) || subjectMatches(c.FilterSubject, subject) {
			continue
		}

		subjects = append(subjects, subject)
	}

	return subjects
}

// subjectMatches reports whether subject falls under pattern, which may use
// the "*" and ">" wildcards.
func subjectMatches(pattern, subject string) bool {
	patternTokens := strings.Split(pattern, ".")
	subjectTokens := strings.Split(subject, ".")

	for index, token := range patternTokens {
		if token == ">" {
			return len(subjectTokens) > index
		}

		if index >= len(subjectTokens) || (token != "*" && token != subjectTokens[index]) {
			return false
		}
	}

	return len(patternTokens) == len(subjectTokens)
}

// NatsWorker consumes generation requests and publishes their outcome.
type NatsWorker struct {
	publisher Publisher
	store     ObjectStore
	pipeline  Pipeline
	logger    *logger.Logger
	config    Config
}

// New creates a new NatsWorker.
func New(
	publisher Publisher,
	store ObjectStore,
	generationPipeline Pipeline,
	config Config,
	log *logger.Logger,
) (*NatsWorker, error) {
	subjects := config.Subjects
	required := []struct{ name, value string }{
		{"themes requested subject", subjects.ThemesRequested},
		{"themes proposed subject", subjects.ThemesProposed},
		{"manuscript requested subject", subjects.ManuscriptRequested},
		{"manuscript progress subject", subjects.ManuscriptProgress},
		{"manuscript completed subject", subjects.ManuscriptCompleted},
		{"generation failed subject", subjects.GenerationFailed},
		{"dead letter subject", subjects.DeadLetter},
	}

	for _, field := range required {
		if field.value == "" {
			return nil, fmt.Errorf("%w: %s", ErrIncompleteConfig, field.name)
		}
	}

	return &NatsWorker{
		publisher: publisher,
		store:     store,
		pipeline:  generationPipeline,
		logger:    log,
		config:    config,
	}, nil
}

// Run starts the worker's message processing loop. It returns nil when ctx is
// cancelled.
func (w *NatsWorker) Run(ctx context.Context, subscriber Subscriber) error {
	sub, err := subscriber.PullSubscribe(
		w.config.FilterSubject,
		w.config.ConsumerName,
		nats.BindStream(w.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("pull subscribe: %w", err)
	}

	defer func() {
		if unsubscribeErr := sub.Unsubscribe(); unsubscribeErr != nil {
			w.logger.Warnf("Unsubscribe consumer '%s': %v", w.config.ConsumerName, unsubscribeErr)
		}
	}()

	w.logger.Infof("Worker is running, listening for requests on '%s'...", w.config.FilterSubject)

	for {
		select {
		case <-ctx.Done():
			w.logger.Infof("Context canceled, worker shutting down.")

			return nil
		default:
			msgs, fetchErr := sub.Fetch(1, nats.MaxWait(NatsFetchMaxWaitSeconds*time.Second))
			if fetchErr != nil {
				if errors.Is(fetchErr, nats.ErrTimeout) {
					continue // No messages, just loop again.
				}

				w.logger.Errorf("Fetch messages: %v", fetchErr)

				continue
			}

			for _, msg := range msgs {
				w.handleMsg(ctx, msg)
			}
		}
	}
}

func (w *NatsWorker) handleMsg(ctx context.Context, msg *nats.Msg) {
	startTime := time.Now()

	err := w.Handle(ctx, msg.Subject, msg.Data)
	if errors.Is(err, ErrPublishFailed) {
		w.logger.Errorf("Request on '%s' will be redelivered: %v", msg.Subject, err)

		if nakErr := msg.NakWithDelay(NatsRedeliveryDelaySeconds * time.Second); nakErr != nil {
			w.logger.Errorf("failed to nak message on '%s': %v", msg.Subject, nakErr)
		}

		return
	}

	if err != nil {
		w.logger.Errorf("Request on '%s' failed: %v", msg.Subject, err)
	} else {
		w.logger.Successf("Handled request on '%s' in %s", msg.Subject, time.Since(startTime).Round(time.Millisecond))
	}

	if ackErr := msg.Ack(); ackErr != nil {
		w.logger.Errorf("failed to acknowledge message on '%s': %v", msg.Subject, ackErr)
	}
}

// Handle processes one request. Generation failures are reported with a
// GenerationFailedEvent and are not errors of Handle. Malformed payloads and
// unknown subjects are forwarded to the dead-letter subject and returned as
// ErrMalformedRequest. An outcome that could not be published is returned as
// ErrPublishFailed and leaves no stored manuscript behind.
func (w *NatsWorker) Handle(ctx context.Context, subject string, data []byte) error {
	if w.config.JobTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, w.config.JobTimeout)
		defer cancel()
	}

	switch subject {
	case w.config.Subjects.ThemesRequested:
		var event events.ThemesRequestedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return w.deadLetter(subject, data, fmt.Errorf("unmarshal ThemesRequestedEvent: %w", err))
		}

		if event.Session == nil {
			return w.deadLetter(subject, data, ErrMissingSession)
		}

		return w.handleThemesRequested(ctx, &event)
	case w.config.Subjects.ManuscriptRequested:
		var event events.ManuscriptRequestedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return w.deadLetter(subject, data, fmt.Errorf("unmarshal ManuscriptRequestedEvent: %w", err))
		}

		if event.Session == nil {
			return w.deadLetter(subject, data, ErrMissingSession)
		}

		return w.handleManuscriptRequested(ctx, &event)
	default:
		return w.deadLetter(subject, data, fmt.Errorf("%w: %s", ErrUnknownSubject, subject))
	}
}

func (w *NatsWorker) handleThemesRequested(ctx context.Context, event *events.ThemesRequestedEvent) error {
	w.logger.Infof("Proposing themes for workflow %s", event.Header.WorkflowID)

	themes, err := w.pipeline.ProposeThemes(ctx, event.Session)
	if err != nil {
		return w.publishFailure(event.Header, events.StageThemeProposal, err)
	}

	return w.publish(w.config.Subjects.ThemesProposed, events.ThemesProposedEvent{
		Header: event.Header.Reply(),
		Themes: themes,
	})
}

func (w *NatsWorker) handleManuscriptRequested(ctx context.Context, event *events.ManuscriptRequestedEvent) error {
	w.logger.Infof("Generating manuscript for workflow %s", event.Header.WorkflowID)

	result, err := w.pipeline.Generate(ctx, event.Session, func(progress pipeline.Progress) {
		publishErr := w.publish(w.config.Subjects.ManuscriptProgress, events.ManuscriptProgressEvent{
			Header:    event.Header.Reply(),
			Theme:     progress.Theme,
			Completed: progress.Completed,
			Total:     progress.Total,
		})
		if publishErr != nil {
			w.logger.Warnf("Progress for workflow %s not published: %v", event.Header.WorkflowID, publishErr)
		}
	})
	if err != nil {
		return w.publishFailure(event.Header, events.StageManuscript, err)
	}

	manuscriptJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal manuscript: %w", err)
	}

	manuscriptKey := fmt.Sprintf("%s/%s/manuscript_%s.json", event.Header.TenantID, event.Header.WorkflowID, uuid.NewString())

	if _, err := w.store.PutBytes(manuscriptKey, manuscriptJSON); err != nil {
		return w.publishFailure(event.Header, events.StageManuscript, fmt.Errorf("store manuscript: %w", err))
	}

	err = w.publish(w.config.Subjects.ManuscriptCompleted, events.ManuscriptCompletedEvent{
		Header:        event.Header.Reply(),
		ManuscriptKey: manuscriptKey,
		SectionCount:  len(result.Sections),
	})
	if err != nil {
		if deleteErr := w.store.Delete(manuscriptKey); deleteErr != nil {
			w.logger.Warnf("Unreferenced manuscript '%s' not deleted: %v", manuscriptKey, deleteErr)
		}

		return err
	}

	return nil
}

func (w *NatsWorker) publishFailure(header events.EventHeader, stage events.Stage, cause error) error {
	w.logger.Errorf("Stage %s failed for workflow %s: %v", stage, header.WorkflowID, cause)

	return w.publish(w.config.Subjects.GenerationFailed, events.GenerationFailedEvent{
		Header:      header.Reply(),
		Stage:       stage,
		ReturnStage: events.ReturnStage(stage),
		Code:        string(pipeline.Classify(cause)),
		Message:     cause.Error(),
	})
}

func (w *NatsWorker) publish(subject string, event any) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", subject, err)
	}

	if _, err := w.publisher.Publish(subject, eventJSON); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, subject, err)
	}

	return nil
}

func (w *NatsWorker) deadLetter(subject string, data []byte, cause error) error {
	w.logger.Warnf("Forwarding message from '%s' to dead-letter subject: %v", subject, cause)

	if _, err := w.publisher.Publish(w.config.Subjects.DeadLetter, data); err != nil {
		return fmt.Errorf("%w: %w (%w: %w)", ErrMalformedRequest, cause, ErrPublishFailed, err)
	}

	return fmt.Errorf("%w: %w", ErrMalformedRequest, cause)
}
