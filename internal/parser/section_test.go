package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audioguide-manuscript-service/internal/manuscript"
	"github.com/book-expert/audioguide-manuscript-service/internal/parser"
)

func TestParseSection_AllParts(t *testing.T) {
	t.Parallel()

	response := "## MANUS\nHello.\n## LJUDPÅLÄGG\n00:05 - START: birds\n00:10 - STOPP: birds\n## RÖST\nWarm, calm."

	parsed := parser.ParseSection(response)

	assert.Equal(t, "Hello.", parsed.Content)
	assert.Equal(t, []manuscript.AudioOverlayCue{
		{Timestamp: "00:05", Kind: manuscript.CueStart, Description: "birds"},
		{Timestamp: "00:10", Kind: manuscript.CueStop, Description: "birds"},
	}, parsed.AudioOverlay)
	assert.Equal(t, "Warm, calm.", parsed.NarratorVoice)
	assert.Empty(t, parsed.Fallbacks)
	assert.Empty(t, parsed.DroppedCueLines)
}

func TestParseSection_NoHeadings(t *testing.T) {
	t.Parallel()

	parsed := parser.ParseSection("just some text")

	assert.Equal(t, "just some text", parsed.Content)
	assert.Empty(t, parsed.AudioOverlay)
	assert.NotNil(t, parsed.AudioOverlay)
	assert.Equal(t, parser.DefaultNarratorVoice, parsed.NarratorVoice)
	assert.Equal(t, []parser.Fallback{
		parser.FallbackRawNarration,
		parser.FallbackNoAudioOverlay,
		parser.FallbackDefaultVoice,
	}, parsed.Fallbacks)
}

func TestParseSection_RawNarrationIsNotTrimmed(t *testing.T) {
	t.Parallel()

	response := "\n  A story without headings.  \n"

	assert.Equal(t, response, parser.ParseSection(response).Content)
}

func TestParseSection_CustomDefaultVoice(t *testing.T) {
	t.Parallel()

	parsed := parser.ParseSectionWithDefaultVoice("## MANUS\nHej.", "Lugn kvinnlig röst")

	assert.Equal(t, "Hej.", parsed.Content)
	assert.Equal(t, "Lugn kvinnlig röst", parsed.NarratorVoice)
	assert.Equal(t, []parser.Fallback{parser.FallbackNoAudioOverlay, parser.FallbackDefaultVoice}, parsed.Fallbacks)
}

func TestParseSection_EmptyVoicePart(t *testing.T) {
	t.Parallel()

	parsed := parser.ParseSection("## MANUS\nHej.\n## RÖST\n   \n")

	assert.Empty(t, parsed.NarratorVoice)
	assert.NotContains(t, parsed.Fallbacks, parser.FallbackDefaultVoice)
}

func TestParseSection_DropsMalformedCues(t *testing.T) {
	t.Parallel()

	response := "## MANUS\nText.\n## LJUDPÅLÄGG\n00:05 START birds\n\n00:07 - start: wind\n5:00 - STOPP: wind\n## RÖST\nCalm."

	parsed := parser.ParseSection(response)

	assert.Equal(t, []manuscript.AudioOverlayCue{
		{Timestamp: "00:07", Kind: manuscript.CueStart, Description: "wind"},
	}, parsed.AudioOverlay)
	assert.Equal(t, []string{"00:05 START birds", "5:00 - STOPP: wind"}, parsed.DroppedCueLines)
}

func TestParseSection_HeadingTolerance(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name            string
		response        string
		expectedContent string
		expectedVoice   string
	}{
		{
			name:            "preamble before narration is ignored",
			response:        "Här är manuset:\n## MANUS\nVälkommen.\n## RÖST\nVarm.",
			expectedContent: "Välkommen.",
			expectedVoice:   "Varm.",
		},
		{
			name:            "indented and lower case headings",
			response:        "  ## manus\nVälkommen.\n\t## röst\nVarm.",
			expectedContent: "Välkommen.",
			expectedVoice:   "Varm.",
		},
		{
			name:            "other heading levels",
			response:        "### MANUS\nVälkommen.\n# RÖST\nVarm.",
			expectedContent: "Välkommen.",
			expectedVoice:   "Varm.",
		},
		{
			name:            "text after heading on the same line",
			response:        "## MANUS: Välkommen.\n## RÖST: Varm.",
			expectedContent: "Välkommen.",
			expectedVoice:   "Varm.",
		},
		{
			name:            "decomposed characters in heading",
			response:        "## MANUS\nVälkommen.\n## RO\u0308ST\nVarm.",
			expectedContent: "Välkommen.",
			expectedVoice:   "Varm.",
		},
		{
			name:            "windows line endings",
			response:        "## MANUS\r\nVälkommen.\r\n## RÖST\r\nVarm.\r\n",
			expectedContent: "Välkommen.",
			expectedVoice:   "Varm.",
		},
		{
			name:            "longer word is not a heading",
			response:        "## MANUS\nVälkommen.\n## MANUSKRIPT\nmer\n## RÖST\nVarm.",
			expectedContent: "Välkommen.\n## MANUSKRIPT\nmer",
			expectedVoice:   "Varm.",
		},
		{
			name:            "repeated narration heading is text",
			response:        "## MANUS\nEtt.\n## MANUS\nTvå.\n## RÖST\nVarm.",
			expectedContent: "Ett.\n## MANUS\nTvå.",
			expectedVoice:   "Varm.",
		},
		{
			name:            "voice runs to the end when nothing follows",
			response:        "## MANUS\nEtt.\n## RÖST\nVarm.\n\nLångsamt tempo.\n## MANUS\nmer",
			expectedContent: "Ett.",
			expectedVoice:   "Varm.\n\nLångsamt tempo.\n## MANUS\nmer",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			parsed := parser.ParseSection(testCase.response)

			assert.Equal(t, testCase.expectedContent, parsed.Content)
			assert.Equal(t, testCase.expectedVoice, parsed.NarratorVoice)
		})
	}
}

func TestParseSection_OverlayBeforeNarration(t *testing.T) {
	t.Parallel()

	parsed := parser.ParseSection("## LJUDPÅLÄGG\n00:01 - START: hav\n## MANUS\nVågorna.\n## RÖST\nLugn.")

	assert.Equal(t, "Vågorna.", parsed.Content)
	require.Len(t, parsed.AudioOverlay, 1)
	assert.Equal(t, "hav", parsed.AudioOverlay[0].Description)
	assert.Equal(t, "Lugn.", parsed.NarratorVoice)
}

func TestParseSection_VoiceBeforeOtherParts(t *testing.T) {
	t.Parallel()

	parsed := parser.ParseSection("## RÖST\nVarm.\n## MANUS\nVälkommen.\n## LJUDPÅLÄGG\n00:01 - START: hav")

	assert.Equal(t, "Välkommen.", parsed.Content)
	assert.Equal(t, "Varm.", parsed.NarratorVoice)
	require.Len(t, parsed.AudioOverlay, 1)
	assert.Equal(t, manuscript.AudioOverlayCue{Timestamp: "00:01", Kind: manuscript.CueStart, Description: "hav"}, parsed.AudioOverlay[0])
	assert.Empty(t, parsed.Fallbacks)
}

func TestParseSection_OverlayAfterVoice(t *testing.T) {
	t.Parallel()

	parsed := parser.ParseSection("## MANUS\nEtt.\n## RÖST\nVarm.\n## LJUDPÅLÄGG\n00:01 - START: x\n00:09 - STOPP: x")

	assert.Equal(t, "Ett.", parsed.Content)
	assert.Equal(t, "Varm.", parsed.NarratorVoice)
	require.Len(t, parsed.AudioOverlay, 2)
	assert.Equal(t, manuscript.CueStop, parsed.AudioOverlay[1].Kind)
	assert.Empty(t, parsed.DroppedCueLines)
	assert.Empty(t, parsed.Fallbacks)
}

func TestParseCueLine(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		line     string
		expected manuscript.AudioOverlayCue
		ok       bool
	}{
		{
			name:     "start cue",
			line:     "00:05 - START: fågelsång",
			expected: manuscript.AudioOverlayCue{Timestamp: "00:05", Kind: manuscript.CueStart, Description: "fågelsång"},
			ok:       true,
		},
		{
			name:     "stop cue without spaces",
			line:     "01:30-STOPP:musik",
			expected: manuscript.AudioOverlayCue{Timestamp: "01:30", Kind: manuscript.CueStop, Description: "musik"},
			ok:       true,
		},
		{
			name:     "list marker before cue",
			line:     "- 02:00 - Start: regn  ",
			expected: manuscript.AudioOverlayCue{Timestamp: "02:00", Kind: manuscript.CueStart, Description: "regn"},
			ok:       true,
		},
		{name: "missing separator", line: "00:05 START birds"},
		{name: "english stop keyword", line: "00:05 - STOP: birds"},
		{name: "single digit minutes", line: "0:05 - START: birds"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cue, ok := parser.ParseCueLine(testCase.line)

			assert.Equal(t, testCase.ok, ok)
			assert.Equal(t, testCase.expected, cue)
		})
	}
}
