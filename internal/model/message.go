package model

import (
	"net/textproto"
	"time"
)

// Attachment holds the raw bytes of a single message attachment.
type Attachment struct {
	Filename string
	MIMEType string
	Data     []byte
}

// InboundMessage is the fully fetched content of one mailbox message.
// It is immutable once fetched and owned by the pipeline invocation
// processing it.
type InboundMessage struct {
	// ID is the mailbox-assigned identifier, stable within one session.
	ID string

	Subject string
	From    string
	To      string
	Date    time.Time

	// Header preserves the raw header set, repeated keys included.
	Header textproto.MIMEHeader

	BodyText    string
	Attachments []Attachment
}

// OutcomeKind tags the terminal classification of one pipeline run.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTransientFailure
	OutcomePermanentFailure
	OutcomeSkipped
)

// String returns the outcome kind label used in logs.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransientFailure:
		return "transient_failure"
	case OutcomePermanentFailure:
		return "permanent_failure"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ProcessingOutcome is produced exactly once per message per pipeline run.
type ProcessingOutcome struct {
	Kind      OutcomeKind
	ReplySent bool
	Reason    string
}

// Terminal reports whether the outcome allows the message to be
// acknowledged so it is never re-offered.
func (o ProcessingOutcome) Terminal() bool {
	return o.Kind != OutcomeTransientFailure
}

// AttemptRecord tracks the failure history of a single message.
// Count is monotonically non-decreasing until the record is cleared.
type AttemptRecord struct {
	MessageID   string
	Count       int
	LastAttempt time.Time
	LastReason  string
}
