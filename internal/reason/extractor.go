package reason

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedOutput marks a reasoning response from which no JSON
// object could be recovered. Callers classify it as a transient
// failure; repeated occurrences on the same message may poison it.
var ErrMalformedOutput = errors.New("malformed reasoning output")

// ItineraryResult is the structured payload the model is instructed to
// return.
type ItineraryResult struct {
	ICSContent   string `json:"ics_content"`
	EmailSummary string `json:"email_summary"`
}

// ExtractJSON pulls a JSON object out of free-form model output. Models
// wrap their answer in commentary and code fences in several
// conventions, including truncated ones, so extraction is attempted in
// order of strictness:
//
//  1. parse the whole text directly;
//  2. strip paired fence markers and parse the interior;
//  3. parse the substring between the first '{' and the last '}'.
//
// It either returns the complete object or fails; there is no partial
// success.
func ExtractJSON(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}

	if obj, ok := tryParse(trimmed); ok {
		return obj, nil
	}

	if inner, ok := stripFences(trimmed); ok {
		if obj, ok := tryParse(inner); ok {
			return obj, nil
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if obj, ok := tryParse(trimmed[start : end+1]); ok {
			return obj, nil
		}
	}

	return nil, fmt.Errorf("%w: no parseable JSON object", ErrMalformedOutput)
}

// ParseItinerary extracts and decodes the itinerary payload. Both
// fields must be present in the object for the result to count as
// structured; a response missing them is as useless as no JSON at all.
func ParseItinerary(raw string) (*ItineraryResult, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if _, ok := fields["ics_content"]; !ok {
		return nil, fmt.Errorf("%w: missing ics_content field", ErrMalformedOutput)
	}
	if _, ok := fields["email_summary"]; !ok {
		return nil, fmt.Errorf("%w: missing email_summary field", ErrMalformedOutput)
	}

	var result ItineraryResult
	if err := json.Unmarshal(obj, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	return &result, nil
}

// tryParse attempts a strict decode of s as a single JSON object.
func tryParse(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}

// stripFences removes a leading code fence marker and its matching
// closing marker. Both must be present; a truncated fence falls through
// to the brace-substring attempt.
func stripFences(s string) (string, bool) {
	for _, open := range []string{"```json", "```JSON", "```"} {
		if !strings.HasPrefix(s, open) {
			continue
		}
		rest := s[len(open):]
		closeIdx := strings.LastIndex(rest, "```")
		if closeIdx < 0 {
			return "", false
		}
		return strings.TrimSpace(rest[:closeIdx]), true
	}
	return "", false
}
