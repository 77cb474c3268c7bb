package guard

import (
	"regexp"
	"strings"

	"github.com/nhle/travelbot/internal/model"
)

// doNotReplyIndicators mark sender addresses that discard inbound mail.
var doNotReplyIndicators = []string{
	"noreply", "no-reply", "do-not-reply", "donotreply",
	"auto-confirm", "automated", "system", "notification",
}

// bookingSystemDomains are senders whose itineraries are usually
// forwarded to the daemon by a human; replying to them is pointless.
var bookingSystemDomains = []string{
	"american.airlines", "delta.com", "united.com", "southwest.com",
	"jetblue.com", "aa.com", "ual.com", "expedia.com", "travelocity.com",
	"info.email.aa.com", "email.aa.com",
}

var forwardMarkers = []string{"fw:", "fwd:", "forwarded"}

var addressPattern = regexp.MustCompile(`[\w.+-]+@[\w.-]+`)

// ReplyResolver picks the destination address for a reply, applying
// the do-not-reply policy with an optional configured fallback.
type ReplyResolver struct {
	defaultReplyTo string
}

// NewReplyResolver creates a resolver. defaultReplyTo may be empty, in
// which case do-not-reply senders get no reply at all.
func NewReplyResolver(defaultReplyTo string) *ReplyResolver {
	return &ReplyResolver{defaultReplyTo: defaultReplyTo}
}

// Resolve returns the address a reply should go to, or "" when no
// valid destination exists.
//
// Normal senders get the reply directly. For do-not-reply and booking
// system senders, a forwarded message is searched for the original
// sender in its first body lines; failing that the configured default
// reply-to is used.
func (r *ReplyResolver) Resolve(msg *model.InboundMessage) string {
	from := strings.ToLower(msg.From)

	doNotReply := false
	for _, indicator := range doNotReplyIndicators {
		if strings.Contains(from, indicator) {
			doNotReply = true
			break
		}
	}
	if !doNotReply {
		for _, domain := range bookingSystemDomains {
			if strings.Contains(from, domain) {
				doNotReply = true
				break
			}
		}
	}

	if !doNotReply {
		return msg.From
	}

	if forwarder := forwardedSender(msg); forwarder != "" {
		return forwarder
	}

	return r.defaultReplyTo
}

// forwardedSender recovers the forwarding person's address from a
// forwarded message: the subject carries a forward marker and one of
// the first body lines carries a "From:" with an address.
func forwardedSender(msg *model.InboundMessage) string {
	subject := strings.ToLower(msg.Subject)

	forwarded := false
	for _, marker := range forwardMarkers {
		if strings.Contains(subject, marker) {
			forwarded = true
			break
		}
	}
	if !forwarded {
		return ""
	}

	lines := strings.Split(msg.BodyText, "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}
	for _, line := range lines {
		if !strings.Contains(strings.ToLower(line), "from:") {
			continue
		}
		if match := addressPattern.FindString(line); match != "" {
			return match
		}
	}
	return ""
}
