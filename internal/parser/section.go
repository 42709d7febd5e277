package parser

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/book-expert/audioguide-manuscript-service/internal/manuscript"
	"github.com/book-expert/audioguide-manuscript-service/internal/promptbuilder"
)

// DefaultNarratorVoice is used when a response has no narrator voice part.
const DefaultNarratorVoice = "Professional narrator voice"

// Fallback names a rule applied because a part of the response was missing.
type Fallback string

const (
	// FallbackRawNarration: no narration heading, the whole response is the narration.
	FallbackRawNarration Fallback = "raw_narration"
	// FallbackNoAudioOverlay: no audio overlay heading, the cue list is empty.
	FallbackNoAudioOverlay Fallback = "no_audio_overlay"
	// FallbackDefaultVoice: no narrator voice heading, the default voice is used.
	FallbackDefaultVoice Fallback = "default_narrator_voice"
)

var cuePattern = regexp.MustCompile(`(?i)(\d{2}:\d{2})\s*-\s*(START|STOPP):\s*(.+)`)

// ParsedSection is the structured form of one section response.
type ParsedSection struct {
	Content       string
	AudioOverlay  []manuscript.AudioOverlayCue
	NarratorVoice string
	// Fallbacks lists the rules that fired, in narration, overlay, voice order.
	Fallbacks []Fallback
	// DroppedCueLines are non-blank overlay lines that were not valid cues.
	DroppedCueLines []string
}

type part int

const (
	partPreamble part = iota
	partNarration
	partAudioOverlay
	partNarratorVoice
	partCount
)

var headingKeywords = [partCount]string{
	partNarration:     headingKeyword(promptbuilder.HeadingNarration),
	partAudioOverlay:  headingKeyword(promptbuilder.HeadingAudioOverlay),
	partNarratorVoice: headingKeyword(promptbuilder.HeadingNarratorVoice),
}

// ParseSection parses a section response using DefaultNarratorVoice.
func ParseSection(response string) ParsedSection {
	return ParseSectionWithDefaultVoice(response, DefaultNarratorVoice)
}

// ParseSectionWithDefaultVoice splits a section response into narration, audio
// overlay cues and narrator voice. It never fails.
//
// The response is read line by line. A heading line switches to its part the
// first time that heading is seen; later repeats are ordinary text. Every part,
// the narrator voice included, runs until the next new heading or the end of
// the response.
func ParseSectionWithDefaultVoice(response, defaultVoice string) ParsedSection {
	var (
		collected [partCount][]string
		seen      [partCount]bool
		current   = partPreamble
	)

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if next, remainder, ok := matchHeading(line); ok && !seen[next] {
			current = next
			seen[next] = true
			collected[next] = append(collected[next], remainder)

			continue
		}

		collected[current] = append(collected[current], line)
	}

	parsed := ParsedSection{AudioOverlay: []manuscript.AudioOverlayCue{}}

	if seen[partNarration] {
		parsed.Content = joinPart(collected[partNarration])
	} else {
		parsed.Content = response
		parsed.Fallbacks = append(parsed.Fallbacks, FallbackRawNarration)
	}

	if seen[partAudioOverlay] {
		parsed.AudioOverlay, parsed.DroppedCueLines = parseCues(collected[partAudioOverlay])
	} else {
		parsed.Fallbacks = append(parsed.Fallbacks, FallbackNoAudioOverlay)
	}

	if seen[partNarratorVoice] {
		parsed.NarratorVoice = joinPart(collected[partNarratorVoice])
	} else {
		parsed.NarratorVoice = defaultVoice
		parsed.Fallbacks = append(parsed.Fallbacks, FallbackDefaultVoice)
	}

	return parsed
}

// ParseCueLine reads one "MM:SS - START|STOPP: description" line.
func ParseCueLine(line string) (manuscript.AudioOverlayCue, bool) {
	match := cuePattern.FindStringSubmatch(line)
	if match == nil {
		return manuscript.AudioOverlayCue{}, false
	}

	kind := manuscript.CueStop
	if strings.Contains(strings.ToLower(match[2]), "start") {
		kind = manuscript.CueStart
	}

	return manuscript.AudioOverlayCue{
		Timestamp:   match[1],
		Kind:        kind,
		Description: strings.TrimSpace(match[3]),
	}, true
}

func parseCues(lines []string) ([]manuscript.AudioOverlayCue, []string) {
	cues := []manuscript.AudioOverlayCue{}

	var dropped []string

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		cue, ok := ParseCueLine(line)
		if !ok {
			dropped = append(dropped, strings.TrimSpace(line))

			continue
		}

		cues = append(cues, cue)
	}

	return cues, dropped
}

// matchHeading recognises a markdown heading of any level whose first word is
// one of the part keywords, compared case-insensitively after NFC
// normalisation. The rest of the line, minus a leading colon, is returned as
// the first line of the part.
func matchHeading(line string) (part, string, bool) {
	trimmed := norm.NFC.String(strings.TrimLeft(line, " \t"))
	if !strings.HasPrefix(trimmed, "#") {
		return partPreamble, "", false
	}

	text := strings.TrimLeft(strings.TrimLeft(trimmed, "#"), " \t")

	for candidate := partNarration; candidate < partCount; candidate++ {
		keyword := headingKeywords[candidate]
		if len(text) < len(keyword) || !strings.EqualFold(text[:len(keyword)], keyword) {
			continue
		}

		remainder := text[len(keyword):]
		if next, _ := utf8.DecodeRuneInString(remainder); remainder != "" && (unicode.IsLetter(next) || unicode.IsDigit(next)) {
			continue
		}

		remainder = strings.TrimPrefix(strings.TrimLeft(remainder, " \t"), ":")

		return candidate, remainder, true
	}

	return partPreamble, "", false
}

func headingKeyword(heading string) string {
	return norm.NFC.String(strings.TrimLeft(heading, "# "))
}

func joinPart(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
