// Package calendar checks generated iCalendar payloads before they are
// attached to a reply.
package calendar

import (
	"io"
	"strings"

	"github.com/emersion/go-ical"
)

// Validate reports whether the payload parses as iCalendar. Any parse
// error means invalid; nothing propagates to the caller. Validity here
// is purely syntactic, the event semantics are the model's problem.
func Validate(calendarText string) bool {
	trimmed := strings.TrimSpace(calendarText)
	if trimmed == "" {
		return false
	}

	dec := ical.NewDecoder(strings.NewReader(trimmed))
	parsed := 0
	for {
		_, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false
		}
		parsed++
	}

	return parsed > 0
}

// HasEvents reports whether the payload contains at least one VEVENT.
// A header-only VCALENDAR is the model's way of saying "no travel
// content found"; it is valid but not worth attaching.
func HasEvents(calendarText string) bool {
	dec := ical.NewDecoder(strings.NewReader(strings.TrimSpace(calendarText)))
	for {
		cal, err := dec.Decode()
		if err != nil {
			return false
		}
		if len(cal.Events()) > 0 {
			return true
		}
	}
}
