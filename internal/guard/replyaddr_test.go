package guard_test

import (
	"testing"

	"github.com/nhle/travelbot/internal/guard"
	"github.com/nhle/travelbot/internal/model"
)

func TestResolveNormalSender(t *testing.T) {
	r := guard.NewReplyResolver("fallback@example.com")

	msg := &model.InboundMessage{From: "alice@example.com", Subject: "Fwd: my flight"}
	if got := r.Resolve(msg); got != "alice@example.com" {
		t.Fatalf("got %q, want the sender", got)
	}
}

func TestResolveDoNotReplyUsesForwardedSender(t *testing.T) {
	r := guard.NewReplyResolver("fallback@example.com")

	msg := &model.InboundMessage{
		From:    "noreply@delta.com",
		Subject: "Fwd: Your Flight Receipt",
		BodyText: "---------- Forwarded message ----------\n" +
			"From: Alice Smith <alice@example.com>\n" +
			"Date: Mon, Mar 2, 2026\n" +
			"Subject: Your Flight Receipt\n",
	}
	if got := r.Resolve(msg); got != "alice@example.com" {
		t.Fatalf("got %q, want the forwarding sender", got)
	}
}

func TestResolveDoNotReplyFallsBackToDefault(t *testing.T) {
	r := guard.NewReplyResolver("fallback@example.com")

	msg := &model.InboundMessage{
		From:     "do-not-reply@united.com",
		Subject:  "Your eTicket Itinerary",
		BodyText: "Thank you for flying with us.",
	}
	if got := r.Resolve(msg); got != "fallback@example.com" {
		t.Fatalf("got %q, want the configured default", got)
	}
}

func TestResolveDoNotReplyWithoutDefaultIsEmpty(t *testing.T) {
	r := guard.NewReplyResolver("")

	msg := &model.InboundMessage{
		From:     "noreply@aa.com",
		Subject:  "Your trip confirmation",
		BodyText: "Booking reference ABC123",
	}
	if got := r.Resolve(msg); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestResolveBookingDomainTreatedAsDoNotReply(t *testing.T) {
	r := guard.NewReplyResolver("fallback@example.com")

	msg := &model.InboundMessage{
		From:     "receipts@expedia.com",
		Subject:  "Itinerary 72512345",
		BodyText: "Your hotel is booked.",
	}
	if got := r.Resolve(msg); got != "fallback@example.com" {
		t.Fatalf("got %q, want the configured default", got)
	}
}

func TestForwardedSenderOnlyScansLeadingLines(t *testing.T) {
	r := guard.NewReplyResolver("fallback@example.com")

	body := ""
	for i := 0; i < 15; i++ {
		body += "filler line\n"
	}
	body += "From: buried@example.com\n"

	msg := &model.InboundMessage{
		From:     "noreply@jetblue.com",
		Subject:  "Fwd: itinerary",
		BodyText: body,
	}
	if got := r.Resolve(msg); got != "fallback@example.com" {
		t.Fatalf("got %q, a From line past the preamble should be ignored", got)
	}
}
