// Package pipeline drives a single message through guard checks,
// document extraction, reasoning, validation and reply delivery. All
// attempt bookkeeping lives here; the monitor only decides when to run.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/travelbot/internal/calendar"
	"github.com/nhle/travelbot/internal/guard"
	"github.com/nhle/travelbot/internal/mailer"
	"github.com/nhle/travelbot/internal/model"
	"github.com/nhle/travelbot/internal/reason"
)

// Mailbox is the slice of the IMAP client the pipeline needs.
type Mailbox interface {
	Fetch(ctx context.Context, id string) (*model.InboundMessage, error)
	MarkHandled(ctx context.Context, id string) error
}

// Mailer sends outbound replies.
type Mailer interface {
	Send(reply mailer.Reply) error
	From() string
}

// Reasoner produces a completion for a prompt.
type Reasoner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DocumentExtractor turns an attachment into plain text, or returns
// the empty string when nothing usable can be recovered.
type DocumentExtractor interface {
	Extract(filename, mimeType string, data []byte) string
}

// Pipeline processes one message at a time. Process is not safe for
// concurrent use; the monitor calls it strictly sequentially.
type Pipeline struct {
	mailbox    Mailbox
	mailer     Mailer
	reasoner   Reasoner
	extractor  DocumentExtractor
	classifier *guard.Classifier
	limiter    *guard.RateLimiter
	resolver   *guard.ReplyResolver
	tracker    *FailureTracker
	logger     zerolog.Logger
}

// New wires a pipeline from its collaborators.
func New(
	mb Mailbox,
	ml Mailer,
	rs Reasoner,
	ex DocumentExtractor,
	classifier *guard.Classifier,
	limiter *guard.RateLimiter,
	resolver *guard.ReplyResolver,
	tracker *FailureTracker,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		mailbox:    mb,
		mailer:     ml,
		reasoner:   rs,
		extractor:  ex,
		classifier: classifier,
		limiter:    limiter,
		resolver:   resolver,
		tracker:    tracker,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
}

// Process runs one message end to end and reports a single terminal or
// retryable outcome. A transient outcome leaves the message unread so
// a later cycle picks it up again; every other outcome acknowledges it.
func (p *Pipeline) Process(ctx context.Context, id string) model.ProcessingOutcome {
	log := p.logger.With().Str("message_id", id).Logger()

	msg, err := p.mailbox.Fetch(ctx, id)
	if err != nil {
		return p.fail(ctx, log, id, nil, fmt.Errorf("fetching message: %w", err))
	}
	log.Info().Str("from", msg.From).Str("subject", msg.Subject).Msg("processing message")

	if skip, why := p.classifier.ShouldSkip(msg); skip {
		log.Info().Str("reason", why).Msg("skipping automated message")
		return p.acknowledge(ctx, log, id, model.ProcessingOutcome{
			Kind:   model.OutcomeSkipped,
			Reason: why,
		})
	}

	replyTo := p.resolver.Resolve(msg)
	if replyTo == "" {
		log.Info().Msg("no usable reply address, skipping")
		return p.acknowledge(ctx, log, id, model.ProcessingOutcome{
			Kind:   model.OutcomeSkipped,
			Reason: "no reply address",
		})
	}

	if ok, why, err := p.limiter.Allow(ctx, replyTo); err != nil {
		return p.fail(ctx, log, id, msg, fmt.Errorf("checking reply budget: %w", err))
	} else if !ok {
		log.Warn().Str("recipient", replyTo).Str("reason", why).
			Msg("reply budget exhausted for recipient, skipping")
		return p.acknowledge(ctx, log, id, model.ProcessingOutcome{
			Kind:   model.OutcomeSkipped,
			Reason: why,
		})
	}

	var attachmentTexts []string
	for _, att := range msg.Attachments {
		if text := p.extractor.Extract(att.Filename, att.MIMEType, att.Data); text != "" {
			attachmentTexts = append(attachmentTexts, text)
		}
	}

	prompt := reason.BuildItineraryPrompt(msg, attachmentTexts)
	raw, err := p.reasoner.Complete(ctx, prompt)
	if err != nil {
		return p.fail(ctx, log, id, msg, fmt.Errorf("reasoning request: %w", err))
	}

	result, err := reason.ParseItinerary(raw)
	if err != nil {
		return p.fail(ctx, log, id, msg, err)
	}

	reply := mailer.Reply{
		To:        replyTo,
		Subject:   mailer.CleanSubject(msg.Subject),
		Body:      result.EmailSummary,
		InReplyTo: msg.Header.Get("Message-Id"),
	}
	if result.ICSContent != "" {
		switch {
		case !calendar.Validate(result.ICSContent):
			log.Warn().Msg("generated calendar failed validation, replying without attachment")
			reply.Body = result.EmailSummary +
				"\n\n(Note: a calendar file could not be generated for this itinerary.)"
		case !calendar.HasEvents(result.ICSContent):
			log.Info().Msg("generated calendar has no events, replying without attachment")
		default:
			reply.Calendar = []byte(result.ICSContent)
			reply.CalendarName = calendar.AttachmentName()
		}
	}

	// Re-check just before the send: other messages in this batch may
	// have consumed the recipient's remaining budget.
	if ok, why, err := p.limiter.Allow(ctx, replyTo); err != nil {
		return p.fail(ctx, log, id, msg, fmt.Errorf("checking reply budget: %w", err))
	} else if !ok {
		log.Warn().Str("recipient", replyTo).Str("reason", why).
			Msg("reply budget exhausted before send, skipping")
		return p.acknowledge(ctx, log, id, model.ProcessingOutcome{
			Kind:   model.OutcomeSkipped,
			Reason: why,
		})
	}

	if err := p.mailer.Send(reply); err != nil {
		return p.fail(ctx, log, id, msg, fmt.Errorf("sending reply: %w", err))
	}
	if err := p.limiter.Record(ctx, replyTo); err != nil {
		log.Error().Err(err).Msg("recording sent reply")
	}

	p.tracker.RecordSuccess(ctx, id)
	out := model.ProcessingOutcome{Kind: model.OutcomeSuccess, ReplySent: true}
	return p.acknowledge(ctx, log, id, out)
}

// fail records the failure and either schedules a retry or poisons the
// message. Poisoning sends a best-effort fallback reply, acknowledges
// the message so it never runs again, and clears its attempt record.
func (p *Pipeline) fail(
	ctx context.Context, log zerolog.Logger, id string, msg *model.InboundMessage, err error,
) model.ProcessingOutcome {
	class := Classify(err)
	log.Error().Err(err).Str("class", class.String()).Msg("processing step failed")

	decision := p.tracker.RecordFailure(ctx, id, err.Error(), class)
	if decision == DecisionRetry {
		return model.ProcessingOutcome{
			Kind:   model.OutcomeTransientFailure,
			Reason: err.Error(),
		}
	}

	p.sendFallback(ctx, log, msg)

	// The attempt record is cleared only once the acknowledgment
	// sticks. If it does not, the outcome degrades to transient and
	// the exhausted budget must survive so the next run poisons again
	// instead of restarting the count from zero.
	out := p.acknowledge(ctx, log, id, model.ProcessingOutcome{
		Kind:   model.OutcomePermanentFailure,
		Reason: err.Error(),
	})
	if out.Kind == model.OutcomePermanentFailure {
		p.tracker.Clear(ctx, id)
	}
	return out
}

// sendFallback tells the sender their message could not be processed.
// Sent at most once per poisoned message, and only when a reply address
// exists and the recipient's budget still allows it.
func (p *Pipeline) sendFallback(ctx context.Context, log zerolog.Logger, msg *model.InboundMessage) {
	if msg == nil {
		return
	}
	replyTo := p.resolver.Resolve(msg)
	if replyTo == "" {
		return
	}
	if skip, _ := p.classifier.ShouldSkip(msg); skip {
		return
	}
	ok, why, err := p.limiter.Allow(ctx, replyTo)
	if err != nil {
		log.Error().Err(err).Msg("checking reply budget for fallback")
		return
	}
	if !ok {
		log.Info().Str("reason", why).Msg("suppressing fallback reply")
		return
	}

	reply := mailer.Reply{
		To:        replyTo,
		Subject:   mailer.CleanSubject(msg.Subject),
		InReplyTo: msg.Header.Get("Message-Id"),
		Body: "Sorry, I was unable to process your travel email after " +
			"several attempts. Please try forwarding it again later, or " +
			"check that the itinerary details are included in the message.",
	}
	if err := p.mailer.Send(reply); err != nil {
		log.Error().Err(err).Msg("sending fallback reply")
		return
	}
	if err := p.limiter.Record(ctx, replyTo); err != nil {
		log.Error().Err(err).Msg("recording fallback reply")
	}
}

// acknowledge marks the message seen for every terminal outcome. An
// acknowledgment failure downgrades the outcome to transient so the
// message is retried rather than reprocessed silently.
func (p *Pipeline) acknowledge(
	ctx context.Context, log zerolog.Logger, id string, out model.ProcessingOutcome,
) model.ProcessingOutcome {
	if err := p.mailbox.MarkHandled(ctx, id); err != nil {
		log.Error().Err(err).Msg("acknowledging message")
		return model.ProcessingOutcome{
			Kind:   model.OutcomeTransientFailure,
			Reason: fmt.Sprintf("acknowledging message: %v", err),
		}
	}
	log.Info().Str("outcome", out.Kind.String()).Bool("reply_sent", out.ReplySent).
		Msg("message handled")
	return out
}
