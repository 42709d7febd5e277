// Package worker_test contains tests for the NATS worker.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audioguide-manuscript-service/internal/events"
	"github.com/book-expert/audioguide-manuscript-service/internal/manuscript"
	"github.com/book-expert/audioguide-manuscript-service/internal/parser"
	"github.com/book-expert/audioguide-manuscript-service/internal/pipeline"
	"github.com/book-expert/audioguide-manuscript-service/internal/worker"
)

var (
	errPipelineError = errors.New("pipeline error")
	errStoreDown     = errors.New("object store down")
	errNoStream      = errors.New("nats: no response from stream")
)

var testSubjects = worker.Subjects{
	ThemesRequested:     "audioguide.themes.requested",
	ThemesProposed:      "audioguide.themes.proposed",
	ManuscriptRequested: "audioguide.manuscript.requested",
	ManuscriptProgress:  "audioguide.manuscript.progress",
	ManuscriptCompleted: "audioguide.manuscript.completed",
	GenerationFailed:    "audioguide.generation.failed",
	DeadLetter:          "audioguide.dlq",
}

type publishedMessage struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	failOn   map[string]error
	messages []publishedMessage
	mu       sync.Mutex
}

func (f *fakePublisher) Publish(subject string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failOn[subject]; err != nil {
		return nil, err
	}

	f.messages = append(f.messages, publishedMessage{subject: subject, data: data})

	return &nats.PubAck{Stream: "AUDIOGUIDE"}, nil
}

func (f *fakePublisher) on(subject string) []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matching []publishedMessage

	for _, message := range f.messages {
		if message.subject == subject {
			matching = append(matching, message)
		}
	}

	return matching
}

type fakeStore struct {
	objects map[string][]byte
	err     error
}

func (f *fakeStore) PutBytes(name string, data []byte, _ ...nats.ObjectOpt) (*nats.ObjectInfo, error) {
	if f.err != nil {
		return nil, f.err
	}

	if f.objects == nil {
		f.objects = map[string][]byte{}
	}

	f.objects[name] = data

	return &nats.ObjectInfo{}, nil
}

func (f *fakeStore) Delete(name string) error {
	delete(f.objects, name)

	return nil
}

type mockPipeline struct {
	ProposeFunc  func(ctx context.Context, session *manuscript.Session) ([]manuscript.Theme, error)
	GenerateFunc func(ctx context.Context, session *manuscript.Session, progress pipeline.ProgressFunc) (*manuscript.Manuscript, error)
}

func (m *mockPipeline) ProposeThemes(ctx context.Context, session *manuscript.Session) ([]manuscript.Theme, error) {
	return m.ProposeFunc(ctx, session)
}

func (m *mockPipeline) Generate(
	ctx context.Context,
	session *manuscript.Session,
	progress pipeline.ProgressFunc,
) (*manuscript.Manuscript, error) {
	return m.GenerateFunc(ctx, session, progress)
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	return log
}

func newTestConfig() worker.Config {
	return worker.Config{
		Subjects:      testSubjects,
		StreamName:    "AUDIOGUIDE",
		FilterSubject: "audioguide.*.requested",
		ConsumerName:  "manuscript-workers",
	}
}

func newTestWorker(t *testing.T, mock *mockPipeline, store *fakeStore) (*worker.NatsWorker, *fakePublisher) {
	t.Helper()

	publisher := &fakePublisher{}

	natsWorker, err := worker.New(publisher, store, mock, newTestConfig(), newTestLogger(t))
	require.NoError(t, err)

	return natsWorker, publisher
}

func requestPayload(t *testing.T) []byte {
	t.Helper()

	session := manuscript.NewSession()
	session.ApplyProposedThemes([]manuscript.Theme{{ID: 1, Title: "Hall", Approved: true}})

	payload, err := json.Marshal(events.ManuscriptRequestedEvent{
		Header: events.EventHeader{
			WorkflowID: "wf-1",
			UserID:     "user-1",
			TenantID:   "tenant-1",
			EventID:    "request-event",
		},
		Session: session,
	})
	require.NoError(t, err)

	return payload
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var value T
	require.NoError(t, json.Unmarshal(data, &value))

	return value
}

func TestNew_RequiresSubjects(t *testing.T) {
	t.Parallel()

	subjects := testSubjects
	subjects.DeadLetter = ""

	natsWorker, err := worker.New(&fakePublisher{}, &fakeStore{}, &mockPipeline{}, worker.Config{Subjects: subjects}, newTestLogger(t))

	require.ErrorIs(t, err, worker.ErrIncompleteConfig)
	assert.Nil(t, natsWorker)
}

func TestHandle_ThemesRequested(t *testing.T) {
	t.Parallel()

	mock := &mockPipeline{
		ProposeFunc: func(_ context.Context, session *manuscript.Session) ([]manuscript.Theme, error) {
			assert.Equal(t, manuscript.AudienceAdult, session.Audience)

			return manuscript.NewProposedThemes([]string{"Hall", "Tower"}), nil
		},
	}
	natsWorker, publisher := newTestWorker(t, mock, &fakeStore{})

	err := natsWorker.Handle(context.Background(), testSubjects.ThemesRequested, requestPayload(t))
	require.NoError(t, err)

	proposed := publisher.on(testSubjects.ThemesProposed)
	require.Len(t, proposed, 1)

	event := decode[events.ThemesProposedEvent](t, proposed[0].data)
	assert.Equal(t, "wf-1", event.Header.WorkflowID)
	assert.Equal(t, "tenant-1", event.Header.TenantID)
	assert.NotEqual(t, "request-event", event.Header.EventID)
	assert.NotEmpty(t, event.Header.EventID)
	assert.Equal(t, []manuscript.Theme{{ID: 1, Title: "Hall"}, {ID: 2, Title: "Tower"}}, event.Themes)
}

func TestHandle_ThemesRequestedParseFailure(t *testing.T) {
	t.Parallel()

	mock := &mockPipeline{
		ProposeFunc: func(context.Context, *manuscript.Session) ([]manuscript.Theme, error) {
			return nil, parser.ErrNoJSONArray
		},
	}
	natsWorker, publisher := newTestWorker(t, mock, &fakeStore{})

	require.NoError(t, natsWorker.Handle(context.Background(), testSubjects.ThemesRequested, requestPayload(t)))

	assert.Empty(t, publisher.on(testSubjects.ThemesProposed))

	failed := publisher.on(testSubjects.GenerationFailed)
	require.Len(t, failed, 1)

	event := decode[events.GenerationFailedEvent](t, failed[0].data)
	assert.Equal(t, events.StageThemeProposal, event.Stage)
	assert.Equal(t, events.StageThemeSelection, event.ReturnStage)
	assert.Equal(t, string(pipeline.CodeThemeParseFailed), event.Code)
	assert.Contains(t, event.Message, "no JSON array found")
}

func TestHandle_ManuscriptRequested(t *testing.T) {
	t.Parallel()

	generated := &manuscript.Manuscript{Sections: []manuscript.Section{
		{ID: 1, Theme: "Hall", Content: "Välkommen.", AudioOverlay: []manuscript.AudioOverlayCue{}, NarratorVoice: "Warm.", EstimatedLength: "3:00"},
		{ID: 2, Theme: "Tower", Content: "Uppåt.", AudioOverlay: []manuscript.AudioOverlayCue{}, NarratorVoice: "Calm.", EstimatedLength: "3:00"},
	}}

	mock := &mockPipeline{
		GenerateFunc: func(_ context.Context, _ *manuscript.Session, progress pipeline.ProgressFunc) (*manuscript.Manuscript, error) {
			progress(pipeline.Progress{Theme: "Hall", Completed: 1, Total: 2})
			progress(pipeline.Progress{Theme: "Tower", Completed: 2, Total: 2})

			return generated, nil
		},
	}
	store := &fakeStore{}
	natsWorker, publisher := newTestWorker(t, mock, store)

	require.NoError(t, natsWorker.Handle(context.Background(), testSubjects.ManuscriptRequested, requestPayload(t)))

	progress := publisher.on(testSubjects.ManuscriptProgress)
	require.Len(t, progress, 2)

	first := decode[events.ManuscriptProgressEvent](t, progress[0].data)
	assert.Equal(t, events.ManuscriptProgressEvent{Header: first.Header, Theme: "Hall", Completed: 1, Total: 2}, first)
	assert.NotContains(t, string(progress[0].data), "Välkommen.")

	completed := publisher.on(testSubjects.ManuscriptCompleted)
	require.Len(t, completed, 1)

	event := decode[events.ManuscriptCompletedEvent](t, completed[0].data)
	assert.Equal(t, 2, event.SectionCount)
	assert.True(t, strings.HasPrefix(event.ManuscriptKey, "tenant-1/wf-1/manuscript_"))
	assert.True(t, strings.HasSuffix(event.ManuscriptKey, ".json"))

	stored, ok := store.objects[event.ManuscriptKey]
	require.True(t, ok)
	assert.Equal(t, *generated, decode[manuscript.Manuscript](t, stored))
	assert.Empty(t, publisher.on(testSubjects.GenerationFailed))
}

func TestHandle_ManuscriptFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		generateErr  error
		storeErr     error
		expectedCode pipeline.FailureCode
	}{
		{
			name:         "generation fails",
			generateErr:  &pipeline.SectionError{Number: 2, Theme: "Tower", Err: errPipelineError},
			expectedCode: pipeline.CodeGenerationFailed,
		},
		{
			name:         "generation times out",
			generateErr:  &pipeline.SectionError{Number: 1, Theme: "Hall", Err: context.DeadlineExceeded},
			expectedCode: pipeline.CodeGenerationTimeout,
		},
		{
			name:         "store fails",
			storeErr:     errStoreDown,
			expectedCode: pipeline.CodeGenerationFailed,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			mock := &mockPipeline{
				GenerateFunc: func(context.Context, *manuscript.Session, pipeline.ProgressFunc) (*manuscript.Manuscript, error) {
					if testCase.generateErr != nil {
						return nil, testCase.generateErr
					}

					return &manuscript.Manuscript{Sections: []manuscript.Section{{ID: 1, Theme: "Hall"}}}, nil
				},
			}
			store := &fakeStore{err: testCase.storeErr}
			natsWorker, publisher := newTestWorker(t, mock, store)

			require.NoError(t, natsWorker.Handle(context.Background(), testSubjects.ManuscriptRequested, requestPayload(t)))

			assert.Empty(t, publisher.on(testSubjects.ManuscriptCompleted))
			assert.Empty(t, store.objects)

			failed := publisher.on(testSubjects.GenerationFailed)
			require.Len(t, failed, 1)

			event := decode[events.GenerationFailedEvent](t, failed[0].data)
			assert.Equal(t, events.StageManuscript, event.Stage)
			assert.Equal(t, events.StageThemeReview, event.ReturnStage)
			assert.Equal(t, string(testCase.expectedCode), event.Code)
			assert.Equal(t, "wf-1", event.Header.WorkflowID)
		})
	}
}

func TestHandle_DeadLetters(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		subject     string
		payload     []byte
		expectedErr error
	}{
		{name: "invalid json", subject: testSubjects.ThemesRequested, payload: []byte("test data"), expectedErr: worker.ErrMalformedRequest},
		{name: "empty payload", subject: testSubjects.ManuscriptRequested, payload: []byte(""), expectedErr: worker.ErrMalformedRequest},
		{name: "missing session", subject: testSubjects.ManuscriptRequested, payload: []byte(`{"Header":{"WorkflowID":"wf"}}`), expectedErr: worker.ErrMissingSession},
		{name: "unknown subject", subject: "audioguide.other", payload: []byte("{}"), expectedErr: worker.ErrUnknownSubject},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			natsWorker, publisher := newTestWorker(t, &mockPipeline{}, &fakeStore{})

			err := natsWorker.Handle(context.Background(), testCase.subject, testCase.payload)

			require.ErrorIs(t, err, worker.ErrMalformedRequest)
			require.ErrorIs(t, err, testCase.expectedErr)

			deadLetters := publisher.on(testSubjects.DeadLetter)
			require.Len(t, deadLetters, 1)
			assert.Equal(t, testCase.payload, deadLetters[0].data)
			assert.Len(t, publisher.messages, 1)
		})
	}
}

func TestHandle_OutcomePublishFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		subject       string
		payload       []byte
		failedSubject string
	}{
		{name: "themes proposed", subject: testSubjects.ThemesRequested, failedSubject: testSubjects.ThemesProposed},
		{name: "manuscript completed", subject: testSubjects.ManuscriptRequested, failedSubject: testSubjects.ManuscriptCompleted},
		{
			name:          "dead letter",
			subject:       testSubjects.ManuscriptRequested,
			payload:       []byte("not json"),
			failedSubject: testSubjects.DeadLetter,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			mock := &mockPipeline{
				ProposeFunc: func(context.Context, *manuscript.Session) ([]manuscript.Theme, error) {
					return manuscript.NewProposedThemes([]string{"Hall"}), nil
				},
				GenerateFunc: func(context.Context, *manuscript.Session, pipeline.ProgressFunc) (*manuscript.Manuscript, error) {
					return &manuscript.Manuscript{Sections: []manuscript.Section{{ID: 1, Theme: "Hall"}}}, nil
				},
			}
			store := &fakeStore{}
			publisher := &fakePublisher{failOn: map[string]error{testCase.failedSubject: errNoStream}}

			natsWorker, err := worker.New(publisher, store, mock, newTestConfig(), newTestLogger(t))
			require.NoError(t, err)

			payload := testCase.payload
			if payload == nil {
				payload = requestPayload(t)
			}

			err = natsWorker.Handle(context.Background(), testCase.subject, payload)

			require.ErrorIs(t, err, worker.ErrPublishFailed)
			require.ErrorIs(t, err, errNoStream)
			assert.Empty(t, store.objects)
		})
	}
}

func TestConfig_StreamSubjects(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		filter   string
		expected []string
	}{
		{
			name:   "wildcard filter covers requests",
			filter: "audioguide.*.requested",
			expected: []string{
				"audioguide.*.requested",
				testSubjects.ThemesProposed,
				testSubjects.ManuscriptProgress,
				testSubjects.ManuscriptCompleted,
				testSubjects.GenerationFailed,
				testSubjects.DeadLetter,
			},
		},
		{
			name:   "literal filter",
			filter: testSubjects.ThemesRequested,
			expected: []string{
				testSubjects.ThemesRequested,
				testSubjects.ManuscriptRequested,
				testSubjects.ThemesProposed,
				testSubjects.ManuscriptProgress,
				testSubjects.ManuscriptCompleted,
				testSubjects.GenerationFailed,
				testSubjects.DeadLetter,
			},
		},
		{
			name:     "full wildcard covers everything",
			filter:   "audioguide.>",
			expected: []string{"audioguide.>"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := newTestConfig()
			cfg.FilterSubject = testCase.filter

			assert.Equal(t, testCase.expected, cfg.StreamSubjects())
		})
	}
}
