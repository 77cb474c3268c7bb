// Package mailer sends outbound replies over SMTP.
package mailer

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"github.com/nhle/travelbot/internal/model"
)

// Reply is one outbound response message.
type Reply struct {
	To      string
	Subject string
	Body    string

	// InReplyTo is the original Message-ID used for threading.
	InReplyTo string

	// Calendar, when non-empty, is attached as an .ics file named
	// CalendarName.
	Calendar     []byte
	CalendarName string
}

// Sender sends replies through a configured SMTP server.
type Sender struct {
	cfg    model.SMTPConfig
	logger zerolog.Logger
}

// NewSender creates a sender.
func NewSender(cfg model.SMTPConfig, logger zerolog.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger.With().Str("component", "mailer").Logger(),
	}
}

// From returns the configured outbound address.
func (s *Sender) From() string {
	return s.cfg.Username
}

// Send composes and transmits one reply.
func (s *Sender) Send(reply Reply) error {
	body, err := s.compose(reply)
	if err != nil {
		return fmt.Errorf("composing reply: %w", err)
	}

	addr := s.cfg.Host + ":" + s.cfg.Port

	if s.cfg.TLS {
		err = s.sendWithTLS(addr, reply.To, body)
	} else {
		err = s.sendWithStartTLS(addr, reply.To, body)
	}
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("to", reply.To).
		Bool("calendar_attached", len(reply.Calendar) > 0).
		Msg("reply sent")
	return nil
}

// compose builds the RFC 2822 message with go-message so headers are
// folded and encoded correctly.
func (s *Sender) compose(reply Reply) ([]byte, error) {
	var h mail.Header
	if from, err := mail.ParseAddressList(s.cfg.Username); err == nil && len(from) > 0 {
		h.SetAddressList("From", from)
	} else {
		h.Set("From", sanitizeHeaderValue(s.cfg.Username))
	}
	if to, err := mail.ParseAddressList(reply.To); err == nil && len(to) > 0 {
		h.SetAddressList("To", to)
	} else {
		h.Set("To", sanitizeHeaderValue(reply.To))
	}
	h.SetSubject(sanitizeHeaderValue(reply.Subject))
	h.Set("Auto-Submitted", "auto-replied")
	if reply.InReplyTo != "" {
		ref := "<" + strings.Trim(reply.InReplyTo, "<>") + ">"
		h.Set("In-Reply-To", ref)
		h.Set("References", ref)
	}

	var buf bytes.Buffer

	if len(reply.Calendar) == 0 {
		h.Set("Content-Type", "text/plain; charset=utf-8")
		bw, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, err
		}
		if _, err := bw.Write([]byte(reply.Body)); err != nil {
			_ = bw.Close()
			return nil, err
		}
		if err := bw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	var ih mail.InlineHeader
	ih.Set("Content-Type", "text/plain; charset=utf-8")
	pw, err := iw.CreatePart(ih)
	if err != nil {
		return nil, err
	}
	if _, err := pw.Write([]byte(reply.Body)); err != nil {
		return nil, err
	}
	if err := pw.Close(); err != nil {
		return nil, err
	}
	if err := iw.Close(); err != nil {
		return nil, err
	}

	var ah mail.AttachmentHeader
	ah.Set("Content-Type", "text/calendar; charset=utf-8")
	ah.SetFilename(reply.CalendarName)
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, err
	}
	if _, err := aw.Write(reply.Calendar); err != nil {
		return nil, err
	}
	if err := aw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// sendWithTLS sends over an implicit TLS connection.
func (s *Sender) sendWithTLS(addr, to string, body []byte) error {
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("TLS dial to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}

	return s.transmit(client, to, body)
}

// sendWithStartTLS sends using STARTTLS.
func (s *Sender) sendWithStartTLS(addr, to string, body []byte) error {
	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return fmt.Errorf("dial to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: s.cfg.Host}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("SMTP STARTTLS: %w", err)
	}

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}

	return s.transmit(client, to, body)
}

// transmit runs the MAIL/RCPT/DATA exchange on an authenticated client.
func (s *Sender) transmit(client *smtp.Client, to string, body []byte) error {
	if err := client.Mail(s.cfg.Username); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := writer.Write(body); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing reply body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing reply body: %w", err)
	}

	return client.Quit()
}

// sanitizeHeaderValue removes CR/LF to prevent header injection.
func sanitizeHeaderValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// CleanSubject normalizes an inbound subject into a reply subject.
func CleanSubject(subject string) string {
	clean := strings.Join(strings.Fields(subject), " ")
	if len(clean) > 100 {
		clean = clean[:100]
	}
	if clean == "" {
		clean = "your message"
	}
	return "Re: " + clean + " - Travel Itinerary"
}
