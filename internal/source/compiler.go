// Package source holds the user-curated source items for an audio guide and
// compiles them into the single source-material document sent with every
// generation request.
package source

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// DocumentHeading opens every compiled source-material document.
	DocumentHeading = "# KÄLLMATERIAL"
	// TextsHeading introduces the free-text blocks.
	TextsHeading = "## Texter:"
	// FilesHeading introduces the attached file references.
	FilesHeading = "## Bifogade filer:"
	// AudioHeading introduces the attached audio references.
	AudioHeading = "## Ljudfiler:"
)

// TextBlock is a piece of free text pasted by the user.
type TextBlock struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Comment string `json:"comment,omitempty"`
}

// FileRef references an uploaded document. Only the name reaches the prompt;
// the file contents are never read.
type FileRef struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"sizeBytes"`
	Comment   string `json:"comment,omitempty"`
}

// AudioRef references an uploaded audio recording.
type AudioRef struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Comment  string `json:"comment,omitempty"`
}

// NewTextBlock returns a TextBlock with a fresh identifier.
func NewTextBlock(content, comment string) TextBlock {
	return TextBlock{ID: uuid.NewString(), Content: content, Comment: comment}
}

// NewFileRef returns a FileRef with a fresh identifier.
func NewFileRef(filename string, sizeBytes int64, comment string) FileRef {
	return FileRef{ID: uuid.NewString(), Filename: filename, SizeBytes: sizeBytes, Comment: comment}
}

// NewAudioRef returns an AudioRef with a fresh identifier.
func NewAudioRef(filename, comment string) AudioRef {
	return AudioRef{ID: uuid.NewString(), Filename: filename, Comment: comment}
}

// Compile folds the source items into one document. Categories are written in
// the fixed order texts, files, audio and a category without items is left out
// entirely. Content is copied verbatim: nothing is escaped, so the generation
// service sees exactly what the user supplied.
func Compile(textBlocks []TextBlock, files []FileRef, audioFiles []AudioRef) string {
	var documentBuilder strings.Builder

	documentBuilder.WriteString(DocumentHeading)
	documentBuilder.WriteString("\n\n")

	if len(textBlocks) > 0 {
		documentBuilder.WriteString(TextsHeading)
		documentBuilder.WriteString("\n")

		for index, block := range textBlocks {
			fmt.Fprintf(&documentBuilder, "\n### Text %d%s:\n%s\n", index+1, parenthesizedComment(block.Comment), block.Content)
		}
	}

	if len(files) > 0 {
		documentBuilder.WriteString("\n")
		documentBuilder.WriteString(FilesHeading)
		documentBuilder.WriteString("\n")

		for _, file := range files {
			writeReferenceLine(&documentBuilder, file.Filename, file.Comment)
		}
	}

	if len(audioFiles) > 0 {
		documentBuilder.WriteString("\n")
		documentBuilder.WriteString(AudioHeading)
		documentBuilder.WriteString("\n")

		for _, audio := range audioFiles {
			writeReferenceLine(&documentBuilder, audio.Filename, audio.Comment)
		}
	}

	return documentBuilder.String()
}

func parenthesizedComment(comment string) string {
	if comment == "" {
		return ""
	}

	return " (" + comment + ")"
}

func writeReferenceLine(documentBuilder *strings.Builder, filename, comment string) {
	documentBuilder.WriteString("- ")
	documentBuilder.WriteString(filename)

	if comment != "" {
		documentBuilder.WriteString(": ")
		documentBuilder.WriteString(comment)
	}

	documentBuilder.WriteString("\n")
}
