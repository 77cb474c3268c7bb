package pipeline

import (
	"errors"
	"fmt"

	"github.com/nhle/travelbot/internal/reason"
)

// ErrTransient and ErrPermanent are the sentinel errors used to
// classify step failures. Transient failures consume the retry budget;
// permanent failures poison the message on first occurrence, since
// retrying cannot help.
var (
	ErrTransient = errors.New("transient failure")
	ErrPermanent = errors.New("permanent failure")
)

// WrapTransient annotates an error as retryable.
func WrapTransient(err error) error {
	if err == nil {
		return ErrTransient
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// WrapPermanent annotates an error as not retryable.
func WrapPermanent(err error) error {
	if err == nil {
		return ErrPermanent
	}
	return fmt.Errorf("%w: %v", ErrPermanent, err)
}

// FailureClass is the retry-policy classification of one step failure.
type FailureClass int

const (
	// ClassTransient covers network timeouts, remote 5xx responses,
	// connection resets, and other failures worth retrying.
	ClassTransient FailureClass = iota

	// ClassParse covers malformed-but-plausibly-recoverable reasoning
	// output. It counts toward the normal budget unless the tracker is
	// configured to poison repeated identical parse failures.
	ClassParse

	// ClassPermanent covers locally detected unsupported input.
	ClassPermanent
)

func (c FailureClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassParse:
		return "parse"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classify maps an error to its failure class. Unwrapped errors
// default to transient: an unknown failure is assumed recoverable and
// the bounded retry budget caps the damage when it is not.
func Classify(err error) FailureClass {
	switch {
	case errors.Is(err, ErrPermanent):
		return ClassPermanent
	case errors.Is(err, reason.ErrMalformedOutput):
		return ClassParse
	default:
		return ClassTransient
	}
}
