// Package pipeline orchestrates theme proposal and manuscript generation:
// source material → prompt → generation → parse → Manuscript.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/audioguide-manuscript-service/internal/llm"
	"github.com/book-expert/audioguide-manuscript-service/internal/manuscript"
	"github.com/book-expert/audioguide-manuscript-service/internal/parser"
	"github.com/book-expert/audioguide-manuscript-service/internal/promptbuilder"
)

const (
	DefaultThemeMaxOutputTokens   = 1000
	DefaultSectionMaxOutputTokens = 4000
)

// ErrGeneratorRequired is returned by New when no generator is given.
var ErrGeneratorRequired = errors.New("generator is required")

// Generator is the generation capability the pipeline drives.
type Generator interface {
	Generate(ctx context.Context, request llm.Request) (string, error)
}

// Settings holds the fixed parameters of every run.
type Settings struct {
	Director               promptbuilder.DirectorConfig
	DefaultNarratorVoice   string
	ThemeMaxOutputTokens   int
	SectionMaxOutputTokens int
}

// RunRequest is a snapshot of everything one manuscript run needs.
type RunRequest struct {
	SourceDocument string
	Audience       manuscript.Audience
	Length         manuscript.LengthPolicy
	Themes         []manuscript.Theme
}

// Progress is reported after each finished section.
type Progress struct {
	Theme     string
	Completed int
	Total     int
}

// ProgressFunc receives Progress updates. It runs on the pipeline goroutine.
type ProgressFunc func(progress Progress)

// SectionError annotates a failure with the section it happened in. It
// unwraps to the error raised by the generator or parser.
type SectionError struct {
	Err    error
	Theme  string
	Number int
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("section %d %q: %v", e.Number, e.Theme, e.Err)
}

func (e *SectionError) Unwrap() error {
	return e.Err
}

// Pipeline holds only immutable configuration and the shared generator, so
// one Pipeline can serve any number of concurrent runs.
type Pipeline struct {
	generator Generator
	director  *promptbuilder.Director
	logger    *logger.Logger
	settings  Settings
}

// New creates a Pipeline, filling zero settings with defaults.
func New(generator Generator, settings Settings, log *logger.Logger) (*Pipeline, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	if settings.ThemeMaxOutputTokens <= 0 {
		settings.ThemeMaxOutputTokens = DefaultThemeMaxOutputTokens
	}

	if settings.SectionMaxOutputTokens <= 0 {
		settings.SectionMaxOutputTokens = DefaultSectionMaxOutputTokens
	}

	if settings.DefaultNarratorVoice == "" {
		settings.DefaultNarratorVoice = parser.DefaultNarratorVoice
	}

	return &Pipeline{
		generator: generator,
		director:  promptbuilder.NewDirector(settings.Director),
		logger:    log,
		settings:  settings,
	}, nil
}

// ProposeThemes asks the generator for the session's effective number of
// themes. The result is a fresh, unapproved theme list; the session itself is
// not modified. A response without a JSON array fails with
// parser.ErrNoJSONArray and no themes.
func (p *Pipeline) ProposeThemes(ctx context.Context, session *manuscript.Session) ([]manuscript.Theme, error) {
	if err := session.ValidateForProposal(); err != nil {
		return nil, err
	}

	sectionCount := session.SectionCount.EffectiveCount()
	prompt := p.director.ThemePrompt(session.SourceDocument(), session.Audience, sectionCount, session.Instructions)

	p.logger.Infof("Requesting %d theme proposals for %s audience", sectionCount, session.Audience)

	response, err := p.generator.Generate(ctx, llm.Request{
		SystemInstruction: prompt.SystemText,
		UserInstruction:   prompt.UserText,
		MaxOutputTokens:   p.settings.ThemeMaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("propose themes: %w", err)
	}

	titles, err := parser.ParseThemes(response)
	if err != nil {
		p.logger.Warnf("Theme proposal response could not be parsed: %v", err)

		return nil, fmt.Errorf("propose themes: %w", err)
	}

	p.logger.Infof("Received %d theme proposals", len(titles))

	return manuscript.NewProposedThemes(titles), nil
}

// Generate validates the session and runs it. The session is snapshotted
// before the first call, so later edits by the caller do not affect the run.
func (p *Pipeline) Generate(
	ctx context.Context,
	session *manuscript.Session,
	progress ProgressFunc,
) (*manuscript.Manuscript, error) {
	if err := session.ValidateForGeneration(); err != nil {
		return nil, err
	}

	return p.Run(ctx, RunRequest{
		SourceDocument: session.SourceDocument(),
		Audience:       session.Audience,
		Length:         session.SectionLength,
		Themes:         append([]manuscript.Theme(nil), session.Themes...),
	}, progress)
}

// Run generates one section per theme, strictly in theme order and with at
// most one generation call in flight. The first failure aborts the run and no
// manuscript is returned; the error is a *SectionError wrapping the original.
func (p *Pipeline) Run(ctx context.Context, request RunRequest, progress ProgressFunc) (*manuscript.Manuscript, error) {
	startTime := time.Now()
	total := len(request.Themes)
	lengthDescription := request.Length.PromptDescription()
	estimatedLength := request.Length.EstimatedLength()
	sections := make([]manuscript.Section, 0, total)

	p.logger.Infof("Starting manuscript run: sections=%d length=%s audience=%s", total, estimatedLength, request.Audience)

	for index, theme := range request.Themes {
		number := index + 1

		if err := ctx.Err(); err != nil {
			return nil, &SectionError{Err: err, Theme: theme.Title, Number: number}
		}

		section, err := p.generateSection(ctx, request, theme, number, lengthDescription)
		if err != nil {
			p.logger.Errorf("Manuscript run aborted at section %d/%d (%q): %v", number, total, theme.Title, err)

			return nil, &SectionError{Err: err, Theme: theme.Title, Number: number}
		}

		section.EstimatedLength = estimatedLength
		sections = append(sections, section)

		if progress != nil {
			progress(Progress{Theme: theme.Title, Completed: number, Total: total})
		}
	}

	p.logger.Successf("Manuscript run finished: sections=%d duration=%s", total, time.Since(startTime).Round(time.Millisecond))

	return &manuscript.Manuscript{Sections: sections}, nil
}

func (p *Pipeline) generateSection(
	ctx context.Context,
	request RunRequest,
	theme manuscript.Theme,
	number int,
	lengthDescription string,
) (manuscript.Section, error) {
	prompt := p.director.SectionPrompt(request.SourceDocument, theme.Title, number, request.Audience, lengthDescription)

	p.logger.Infof("Generating section %d/%d: %q", number, len(request.Themes), theme.Title)

	response, err := p.generator.Generate(ctx, llm.Request{
		SystemInstruction: prompt.SystemText,
		UserInstruction:   prompt.UserText,
		MaxOutputTokens:   p.settings.SectionMaxOutputTokens,
	})
	if err != nil {
		return manuscript.Section{}, err
	}

	parsed := parser.ParseSectionWithDefaultVoice(response, p.settings.DefaultNarratorVoice)
	if len(parsed.Fallbacks) > 0 {
		p.logger.Warnf("Section %d used parse fallbacks: %v", number, parsed.Fallbacks)
	}

	if len(parsed.DroppedCueLines) > 0 {
		p.logger.Warnf("Section %d dropped %d malformed cue lines", number, len(parsed.DroppedCueLines))
	}

	p.logger.Infof("Section %d parsed: cues=%d", number, len(parsed.AudioOverlay))

	return manuscript.Section{
		ID:            theme.ID,
		Theme:         theme.Title,
		Content:       parsed.Content,
		AudioOverlay:  parsed.AudioOverlay,
		NarratorVoice: parsed.NarratorVoice,
	}, nil
}
