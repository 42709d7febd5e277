package manuscript

import (
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/audioguide-manuscript-service/internal/source"
)

var (
	// ErrInvalidSession wraps every reason a session cannot move to the next stage.
	ErrInvalidSession = errors.New("invalid session")
	// ErrNoThemes is returned when generation is requested without any theme.
	ErrNoThemes = errors.New("no themes selected")
	// ErrEmptyThemeTitle is returned when a theme title is blank after trimming.
	ErrEmptyThemeTitle = errors.New("theme title is empty")
	// ErrThemeNotApproved is returned when a proposed theme was never approved.
	ErrThemeNotApproved = errors.New("theme is not approved")
	// ErrThemeNotFound is returned when editing a theme ID that does not exist.
	ErrThemeNotFound = errors.New("theme not found")
	// ErrInvalidThemeMode is returned for a theme mode other than manual or ai.
	ErrInvalidThemeMode = errors.New("invalid theme mode")
)

// ThemeMode records where the current themes came from.
type ThemeMode string

const (
	// ThemeModeManual themes are typed in by the user and count as approved.
	ThemeModeManual ThemeMode = "manual"
	// ThemeModeAI themes are proposed by the generation service and must be
	// approved one by one.
	ThemeModeAI ThemeMode = "ai"
)

// Session is everything the user has chosen so far. It is owned by the caller
// and passed by pointer into the pipeline, which only reads it.
type Session struct {
	TextBlocks    []source.TextBlock `json:"textBlocks"`
	Files         []source.FileRef   `json:"files"`
	AudioFiles    []source.AudioRef  `json:"audioFiles"`
	Audience      Audience           `json:"audience"`
	SectionCount  CountPolicy        `json:"sectionCount"`
	SectionLength LengthPolicy       `json:"sectionLength"`
	ThemeMode     ThemeMode          `json:"themeMode,omitempty"`
	Themes        []Theme            `json:"themes"`
	Instructions  string             `json:"instructions,omitempty"`
}

// NewSession returns a session with the defaults the wizard starts from.
func NewSession() *Session {
	return &Session{
		Audience:      AudienceAdult,
		SectionCount:  ExactCount(3),
		SectionLength: ExactLength(3, 0),
	}
}

// SourceDocument compiles the session's source items.
func (session *Session) SourceDocument() string {
	return source.Compile(session.TextBlocks, session.Files, session.AudioFiles)
}

// NewManualThemes returns count empty, already approved theme slots.
func NewManualThemes(count int) []Theme {
	themes := make([]Theme, 0, count)
	for index := range count {
		themes = append(themes, Theme{ID: index + 1, Approved: true})
	}

	return themes
}

// NewProposedThemes turns proposed titles into unapproved themes. Titles are
// kept as given, blanks and duplicates included; they are checked later by
// ValidateForGeneration.
func NewProposedThemes(titles []string) []Theme {
	themes := make([]Theme, 0, len(titles))
	for index, title := range titles {
		themes = append(themes, Theme{ID: index + 1, Title: title})
	}

	return themes
}

// UseManualThemes replaces the themes with empty slots sized by the section
// count policy.
func (session *Session) UseManualThemes() error {
	if err := session.SectionCount.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	session.ThemeMode = ThemeModeManual
	session.Themes = NewManualThemes(session.SectionCount.EffectiveCount())

	return nil
}

// ApplyProposedThemes replaces the themes with the given proposal.
func (session *Session) ApplyProposedThemes(themes []Theme) {
	session.ThemeMode = ThemeModeAI
	session.Themes = append([]Theme(nil), themes...)
}

// RenameTheme sets the title of the theme with the given ID.
func (session *Session) RenameTheme(themeID int, title string) error {
	theme, err := session.theme(themeID)
	if err != nil {
		return err
	}

	theme.Title = title

	return nil
}

// ToggleThemeApproval flips the approval of the theme with the given ID.
func (session *Session) ToggleThemeApproval(themeID int) error {
	theme, err := session.theme(themeID)
	if err != nil {
		return err
	}

	theme.Approved = !theme.Approved

	return nil
}

func (session *Session) theme(themeID int) (*Theme, error) {
	for index := range session.Themes {
		if session.Themes[index].ID == themeID {
			return &session.Themes[index], nil
		}
	}

	return nil, fmt.Errorf("%w: %d", ErrThemeNotFound, themeID)
}

// ValidateForProposal checks what theme proposal needs: an audience and a
// resolvable section count.
func (session *Session) ValidateForProposal() error {
	if err := session.Audience.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	if err := session.SectionCount.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	return nil
}

// ValidateForGeneration checks that the session can enter manuscript
// generation: valid policies, at least one theme, no blank titles and every
// theme approved unless the themes were typed in manually. A session without a
// theme mode is held to the approval rule.
func (session *Session) ValidateForGeneration() error {
	if err := session.Audience.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	if err := session.SectionLength.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	switch session.ThemeMode {
	case ThemeModeManual, ThemeModeAI, "":
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidSession, ErrInvalidThemeMode, string(session.ThemeMode))
	}

	if len(session.Themes) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSession, ErrNoThemes)
	}

	for _, theme := range session.Themes {
		if strings.TrimSpace(theme.Title) == "" {
			return fmt.Errorf("%w: %w: theme %d", ErrInvalidSession, ErrEmptyThemeTitle, theme.ID)
		}

		if session.ThemeMode != ThemeModeManual && !theme.Approved {
			return fmt.Errorf("%w: %w: theme %d %q", ErrInvalidSession, ErrThemeNotApproved, theme.ID, theme.Title)
		}
	}

	return nil
}
