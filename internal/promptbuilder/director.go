// Package promptbuilder renders the theme-proposal and section-manuscript
// prompts. Both are pure functions of their inputs: the same arguments always
// give byte-identical prompts.
package promptbuilder

import (
	"fmt"
	"strings"

	"github.com/book-expert/audioguide-manuscript-service/internal/manuscript"
)

const (
	DefaultThemeSystemInstruction   = "Du är expert på audioguides för svenska museer. Analysera källmaterial och föreslå teman."
	DefaultSectionSystemInstruction = "Du är expert på audioguide-manus för svenska museer."

	// The section parser splits responses on these exact tokens.
	HeadingNarration     = "## MANUS"
	HeadingAudioOverlay  = "## LJUDPÅLÄGG"
	HeadingNarratorVoice = "## RÖST"
)

// DirectorConfig holds the system instructions shared by every prompt of a run.
// Empty fields fall back to the defaults above.
type DirectorConfig struct {
	ThemeSystemInstruction   string
	SectionSystemInstruction string
}

// Prompt is a system instruction plus the user instruction sent with it.
type Prompt struct {
	SystemText string
	UserText   string
}

// Director builds prompts with a fixed set of system instructions.
type Director struct {
	config DirectorConfig
}

// NewDirector returns a Director, filling empty instructions with defaults.
func NewDirector(config DirectorConfig) *Director {
	if strings.TrimSpace(config.ThemeSystemInstruction) == "" {
		config.ThemeSystemInstruction = DefaultThemeSystemInstruction
	}

	if strings.TrimSpace(config.SectionSystemInstruction) == "" {
		config.SectionSystemInstruction = DefaultSectionSystemInstruction
	}

	return &Director{config: config}
}

// ThemePrompt asks for sectionCount theme titles. The prompt ends by demanding
// a bare JSON array of strings, which is what the theme parser looks for.
func (director *Director) ThemePrompt(
	sourceDocument string,
	audience manuscript.Audience,
	sectionCount int,
	freeInstructions string,
) Prompt {
	var userBuilder strings.Builder

	fmt.Fprintf(&userBuilder, "Baserat på källmaterialet, föreslå %d teman för en audioguide.\n\n", sectionCount)
	userBuilder.WriteString(sourceDocument)
	userBuilder.WriteString("\n\n")
	fmt.Fprintf(&userBuilder, "MÅLGRUPP: %s\n", themeAudienceLabel(audience))

	if instructions := strings.TrimSpace(freeInstructions); instructions != "" {
		fmt.Fprintf(&userBuilder, "\nINSTRUKTIONER: %s\n", instructions)
	}

	userBuilder.WriteString("\nSvara ENDAST med en JSON-array av strängar, utan förklarande text, utan markdown-kodblock och utan nycklar: [\"Tema 1\", \"Tema 2\", ...]")

	return Prompt{
		SystemText: director.config.ThemeSystemInstruction,
		UserText:   userBuilder.String(),
	}
}

// SectionPrompt asks for the manuscript of one section. sectionNumber is
// 1-based. The response format is fixed to three headed parts in the order
// narration, audio overlay, narrator voice.
func (director *Director) SectionPrompt(
	sourceDocument string,
	themeTitle string,
	sectionNumber int,
	audience manuscript.Audience,
	lengthDescription string,
) Prompt {
	var userBuilder strings.Builder

	userBuilder.WriteString("Skriv audioguide-manus för:\n\n")
	fmt.Fprintf(&userBuilder, "AVSNITT %d: %s\n\n", sectionNumber, themeTitle)
	userBuilder.WriteString(sourceDocument)
	userBuilder.WriteString("\n\n")
	fmt.Fprintf(&userBuilder, "MÅLGRUPP: %s\n", sectionAudienceLabel(audience))
	fmt.Fprintf(&userBuilder, "LÄNGD: %s\n\n", lengthDescription)
	userBuilder.WriteString("FORMAT:\n")
	userBuilder.WriteString(HeadingNarration + "\n")
	userBuilder.WriteString("[Flytande text för inläsning]\n\n")
	userBuilder.WriteString(HeadingAudioOverlay + "\n")
	userBuilder.WriteString("[MM:SS - START/STOPP: beskrivning]\n\n")
	userBuilder.WriteString(HeadingNarratorVoice + "\n")
	userBuilder.WriteString("[Beskrivning av berättarröst]")

	return Prompt{
		SystemText: director.config.SectionSystemInstruction,
		UserText:   userBuilder.String(),
	}
}

func themeAudienceLabel(audience manuscript.Audience) string {
	if audience == manuscript.AudienceChild {
		return "Barn"
	}

	return "Vuxna"
}

func sectionAudienceLabel(audience manuscript.Audience) string {
	if audience == manuscript.AudienceChild {
		return "Barn (8-12 år, enkelt språk)"
	}

	return "Vuxna"
}
