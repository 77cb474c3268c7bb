// Package guard decides whether a message may receive an automated
// reply. It combines a stateless header/subject classifier with a
// per-recipient rate limiter so a missed classification cannot turn
// into a reply storm.
package guard

import (
	"net/mail"
	"strings"

	"github.com/nhle/travelbot/internal/model"
)

// bounceSenders are local-part substrings used by mail-system daemons.
var bounceSenders = []string{
	"mailer-daemon", "mail-daemon", "postmaster",
	"bounce", "returned", "undeliverable",
	"mail delivery", "delivery status",
}

// autoReplySubjects are phrasings used by out-of-office responders,
// DSNs, and read receipts.
var autoReplySubjects = []string{
	"automatic reply",
	"auto-reply",
	"autoreply",
	"out of office",
	"out of the office",
	"away from",
	"on vacation",
	"delivery status notification",
	"delivery failure",
	"undeliverable",
	"returned mail",
	"mail delivery failed",
	"failure notice",
	"delayed mail",
	"could not be delivered",
	"read receipt",
	"read: ",
}

// Classifier flags messages that must not receive an automated reply.
// It is a pure function of the message headers, subject, and sender;
// it never touches the network or mutable state, so it is cheap enough
// to run on every message before any reasoning call.
type Classifier struct {
	// selfAddr is the daemon's own outbound address, used to detect
	// self-loops.
	selfAddr string
}

// NewClassifier creates a classifier that treats selfAddr as the
// daemon's own sending address.
func NewClassifier(selfAddr string) *Classifier {
	return &Classifier{selfAddr: normalizeAddress(selfAddr)}
}

// ShouldSkip reports whether the message is auto-generated traffic that
// must not be replied to, along with the matched reason. Any single
// indicator is sufficient.
func (c *Classifier) ShouldSkip(msg *model.InboundMessage) (bool, string) {
	// RFC 3834 Auto-Submitted: any value other than "no" marks an
	// automatic response.
	autoSubmitted := strings.ToLower(strings.TrimSpace(msg.Header.Get("Auto-Submitted")))
	if autoSubmitted != "" && autoSubmitted != "no" {
		return true, "Auto-Submitted header: " + autoSubmitted
	}

	precedence := strings.ToLower(strings.TrimSpace(msg.Header.Get("Precedence")))
	switch precedence {
	case "bulk", "junk", "list", "auto_reply":
		return true, "Precedence header: " + precedence
	}

	// An empty Return-Path (<>) is the bounce convention.
	if returnPath, ok := headerPresent(msg, "Return-Path"); ok {
		if strings.Trim(returnPath, "<> \t") == "" {
			return true, "empty Return-Path (bounce indicator)"
		}
	}

	// Exchange suppression marker.
	if msg.Header.Get("X-Auto-Response-Suppress") != "" {
		return true, "X-Auto-Response-Suppress header present"
	}

	if msg.Header.Get("List-Id") != "" || msg.Header.Get("List-Unsubscribe") != "" {
		return true, "mailing list headers present"
	}

	from := strings.ToLower(msg.From)
	for _, pattern := range bounceSenders {
		if strings.Contains(from, pattern) {
			return true, "bounce sender pattern: " + pattern
		}
	}

	if c.selfAddr != "" && normalizeAddress(msg.From) == c.selfAddr {
		return true, "self-loop detected (from own address)"
	}

	subject := strings.ToLower(msg.Subject)
	for _, pattern := range autoReplySubjects {
		if strings.Contains(subject, pattern) {
			return true, "auto-reply subject pattern: " + pattern
		}
	}

	return false, ""
}

// headerPresent reports whether the header exists at all, so an absent
// Return-Path is distinguished from an empty one.
func headerPresent(msg *model.InboundMessage, key string) (string, bool) {
	values := msg.Header.Values(key)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// normalizeAddress lowercases an address and strips any display name.
func normalizeAddress(addr string) string {
	if addr == "" {
		return ""
	}
	if parsed, err := mail.ParseAddress(addr); err == nil {
		return strings.ToLower(parsed.Address)
	}
	return strings.ToLower(strings.TrimSpace(addr))
}
