// Package extract turns attachment bytes into plain text for the
// reasoning prompt. Extraction fails closed: bad input yields an empty
// string, never an error, so a corrupt attachment cannot by itself
// discard a message.
package extract

import (
	"bytes"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// Extractor converts attachment bytes to text.
type Extractor struct {
	logger zerolog.Logger
}

// New creates an extractor.
func New(logger zerolog.Logger) *Extractor {
	return &Extractor{
		logger: logger.With().Str("component", "extractor").Logger(),
	}
}

// Extract returns the text content of an attachment. PDF attachments
// are parsed page by page; plain-text attachments pass through;
// anything else yields "".
func (e *Extractor) Extract(filename, mimeType string, data []byte) string {
	if len(data) == 0 {
		return ""
	}

	switch {
	case isPDF(filename, mimeType, data):
		return e.extractPDF(filename, data)
	case strings.HasPrefix(mimeType, "text/plain"):
		return string(data)
	default:
		return ""
	}
}

// extractPDF concatenates the plain text of every page. The pdf parser
// panics on some malformed files, so the whole call is fenced.
func (e *Extractor) extractPDF(filename string, data []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn().
				Str("filename", filename).
				Interface("panic", r).
				Msg("pdf parser panicked, treating attachment as empty")
			text = ""
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		e.logger.Warn().Str("filename", filename).Err(err).
			Msg("failed to open pdf attachment")
		return ""
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		e.logger.Warn().Str("filename", filename).Err(err).
			Msg("failed to extract pdf text")
		return ""
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return ""
	}

	return sb.String()
}

// isPDF checks the filename extension, declared MIME type, and magic
// bytes. Booking systems routinely mislabel PDF attachments as
// application/octet-stream, so headers alone are not trusted.
func isPDF(filename, mimeType string, data []byte) bool {
	if strings.HasPrefix(mimeType, "application/pdf") {
		return true
	}
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return true
	}
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
