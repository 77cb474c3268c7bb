package mailbox

import (
	"bytes"
	"io"
	"net/textproto"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/travelbot/internal/model"
)

// parseMIMEBody parses a raw RFC 2822 message using go-message and
// extracts the full header set, the text body, and attachment bytes.
func parseMIMEBody(raw []byte) (
	header textproto.MIMEHeader, bodyText string, attachments []model.Attachment,
) {
	header = make(textproto.MIMEHeader)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// If parsing fails, treat the whole thing as plain text.
		return header, string(raw), nil
	}
	defer mr.Close()

	fields := mr.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		header.Add(fields.Key(), value)
	}

	var textBody, htmlBody string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				htmlBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			attachments = append(attachments, model.Attachment{
				Filename: filename,
				MIMEType: contentType,
				Data:     body,
			})
		}
	}

	bodyText = textBody
	if bodyText == "" && htmlBody != "" {
		bodyText = stripHTML(htmlBody)
	}

	return header, bodyText, attachments
}

var htmlReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

// stripHTML removes HTML tags and decodes common entities, providing a
// basic plain-text rendering for messages without a text/plain part.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	var sb strings.Builder
	inTag := false
	for _, r := range result {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	result = htmlReplacer.Replace(sb.String())

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
