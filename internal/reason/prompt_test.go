package reason_test

import (
	"strings"
	"testing"
	"time"

	"github.com/nhle/travelbot/internal/model"
	"github.com/nhle/travelbot/internal/reason"
)

func TestBuildItineraryPromptIncludesMessageContext(t *testing.T) {
	msg := &model.InboundMessage{
		Subject:  "Fwd: Flight confirmation",
		From:     "alice@example.com",
		Date:     time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		BodyText: "Flight DL123 JFK to SFO on March 10.",
	}

	longAttachment := strings.Repeat("Hotel reservation details. ", 10)
	prompt := reason.BuildItineraryPrompt(msg, []string{"short", longAttachment})

	for _, want := range []string{
		"Subject: Fwd: Flight confirmation",
		"From: alice@example.com",
		"Flight DL123 JFK to SFO on March 10.",
		"ATTACHMENT CONTENT:",
		"Hotel reservation details.",
		"ics_content",
		"email_summary",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}

	// Attachment fragments too short to carry an itinerary are dropped.
	if strings.Contains(prompt, "\nshort\n") {
		t.Fatal("trivial attachment text should be omitted")
	}
}
