// Package events defines the JSON messages exchanged over NATS.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/book-expert/audioguide-manuscript-service/internal/manuscript"
)

// EventHeader contains metadata common to all events.
type EventHeader struct {
	Timestamp  time.Time `json:"Timestamp"`
	WorkflowID string    `json:"WorkflowID"`
	UserID     string    `json:"UserID"`
	TenantID   string    `json:"TenantID"`
	EventID    string    `json:"EventID"`
}

// Reply returns a header for an event answering this one: same workflow,
// user and tenant, a new event ID and the current time.
func (header EventHeader) Reply() EventHeader {
	return EventHeader{
		Timestamp:  time.Now().UTC(),
		WorkflowID: header.WorkflowID,
		UserID:     header.UserID,
		TenantID:   header.TenantID,
		EventID:    uuid.NewString(),
	}
}

// Stage names a step of the interactive workflow.
type Stage string

const (
	StageThemeSelection Stage = "theme-selection"
	StageThemeProposal  Stage = "theme-proposal"
	StageThemeReview    Stage = "theme-review"
	StageManuscript     Stage = "manuscript"
)

// ReturnStage is where the user is sent back to after a failure in stage.
// A failed proposal returns to theme selection; a failed manuscript returns
// to theme review so the user can retry with the same themes.
func ReturnStage(stage Stage) Stage {
	if stage == StageManuscript {
		return StageThemeReview
	}

	return StageThemeSelection
}

// ThemesRequestedEvent asks for theme proposals for a session.
type ThemesRequestedEvent struct {
	Header  EventHeader         `json:"Header"`
	Session *manuscript.Session `json:"Session"`
}

// ThemesProposedEvent carries the proposed, unapproved themes.
type ThemesProposedEvent struct {
	Header EventHeader        `json:"Header"`
	Themes []manuscript.Theme `json:"Themes"`
}

// ManuscriptRequestedEvent asks for a manuscript for a session whose themes
// are final.
type ManuscriptRequestedEvent struct {
	Header  EventHeader         `json:"Header"`
	Session *manuscript.Session `json:"Session"`
}

// ManuscriptProgressEvent is published after each finished section. It never
// carries section content.
type ManuscriptProgressEvent struct {
	Header    EventHeader `json:"Header"`
	Theme     string      `json:"Theme"`
	Completed int         `json:"Completed"`
	Total     int         `json:"Total"`
}

// ManuscriptCompletedEvent points at the stored manuscript.
type ManuscriptCompletedEvent struct {
	Header        EventHeader `json:"Header"`
	ManuscriptKey string      `json:"ManuscriptKey"`
	SectionCount  int         `json:"SectionCount"`
}

// GenerationFailedEvent reports a failed proposal or manuscript run.
type GenerationFailedEvent struct {
	Header      EventHeader `json:"Header"`
	Stage       Stage       `json:"Stage"`
	ReturnStage Stage       `json:"ReturnStage"`
	Code        string      `json:"Code"`
	Message     string      `json:"Message"`
}
