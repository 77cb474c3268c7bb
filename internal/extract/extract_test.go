package extract_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/nhle/travelbot/internal/extract"
)

func TestExtractPlainTextPassthrough(t *testing.T) {
	e := extract.New(zerolog.Nop())

	got := e.Extract("itinerary.txt", "text/plain; charset=utf-8", []byte("Flight DL123"))
	if got != "Flight DL123" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractUnsupportedTypeYieldsNothing(t *testing.T) {
	e := extract.New(zerolog.Nop())

	if got := e.Extract("photo.jpg", "image/jpeg", []byte{0xff, 0xd8, 0xff}); got != "" {
		t.Fatalf("got %q", got)
	}
	if got := e.Extract("empty.txt", "text/plain", nil); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractMalformedPDFIsSwallowed(t *testing.T) {
	e := extract.New(zerolog.Nop())

	// Looks like a PDF by magic bytes and name but is not parseable.
	// Extraction must fail quietly, never panic.
	if got := e.Extract("ticket.pdf", "application/pdf", []byte("%PDF-1.4 garbage")); got != "" {
		t.Fatalf("got %q", got)
	}
}
