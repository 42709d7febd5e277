// Package parser turns free-text model responses into typed values: the
// proposed theme titles and the three parts of a section manuscript.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSONArray is the theme parse error. Invalid JSON inside the brackets is
// wrapped under it as well.
var ErrNoJSONArray = errors.New("no JSON array found")

// ParseThemes extracts theme titles from the span between the first '[' and
// the last ']' of the response, so prose around the array is tolerated.
// Titles are returned as given: blanks and duplicates are the caller's concern.
func ParseThemes(response string) ([]string, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")

	if start < 0 || end < start {
		return nil, ErrNoJSONArray
	}

	var titles []string
	if err := json.Unmarshal([]byte(response[start:end+1]), &titles); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoJSONArray, err)
	}

	if titles == nil {
		titles = []string{}
	}

	return titles, nil
}
