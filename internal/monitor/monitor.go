// Package monitor watches the inbox and hands unseen messages to the
// pipeline one at a time. It runs in event mode when the server
// supports push notification and falls back to interval polling
// otherwise, or after repeated processing errors.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/travelbot/internal/model"
)

// ConnectionState names the monitor's position in its lifecycle.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateEventMode
	StatePollMode
	StateShuttingDown
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateEventMode:
		return "event_mode"
	case StatePollMode:
		return "poll_mode"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Mailbox is the slice of the IMAP client the monitor drives.
type Mailbox interface {
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Close() error
	ProbePushSupport(ctx context.Context) (bool, error)
	SearchUnseen(ctx context.Context) ([]string, error)
	WaitForNotification(ctx context.Context, timeout time.Duration) (bool, error)
}

// Processor runs one message through the pipeline.
type Processor interface {
	Process(ctx context.Context, id string) model.ProcessingOutcome
}

// ErrReconnectExhausted is returned by Run when the mailbox could not
// be re-established within the configured attempt budget.
var ErrReconnectExhausted = errors.New("mailbox reconnection attempts exhausted")

// Monitor owns the watch loop. It is single-goroutine; the pipeline is
// invoked inline so messages are processed strictly one at a time.
type Monitor struct {
	mailbox   Mailbox
	processor Processor

	idleTimeout  time.Duration
	pollInterval time.Duration

	reconnectMax  int
	reconnectBase time.Duration
	reconnectCeil time.Duration
	degradeErrors int

	state     ConnectionState
	errStreak int

	logger zerolog.Logger
	rng    *rand.Rand
}

// New builds a monitor from the retry and IMAP settings.
func New(mb Mailbox, proc Processor, imap model.IMAPConfig, retry model.RetryConfig, logger zerolog.Logger) *Monitor {
	return &Monitor{
		mailbox:       mb,
		processor:     proc,
		idleTimeout:   time.Duration(imap.IdleTimeoutSec) * time.Second,
		pollInterval:  time.Duration(imap.PollIntervalSec) * time.Second,
		reconnectMax:  retry.ReconnectMaxAttempts,
		reconnectBase: time.Duration(retry.ReconnectBaseDelaySec) * time.Second,
		reconnectCeil: time.Duration(retry.ReconnectMaxDelaySec) * time.Second,
		degradeErrors: retry.DegradeAfterErrors,
		state:         StateConnecting,
		logger:        logger.With().Str("component", "monitor").Logger(),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// State reports the current lifecycle state.
func (m *Monitor) State() ConnectionState {
	return m.state
}

// Run connects, sweeps messages that arrived while the daemon was
// down, then loops until ctx is canceled or reconnection gives up.
// The mailbox connection is closed before returning.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.mailbox.Connect(ctx); err != nil {
		return fmt.Errorf("initial mailbox connection: %w", err)
	}
	defer m.mailbox.Close()

	m.enterMode(ctx)

	// Catch up on anything that arrived while we were not running.
	if err := m.processBatch(ctx); err != nil {
		if recErr := m.recover(ctx, err); recErr != nil {
			return recErr
		}
	}

	for {
		if ctx.Err() != nil {
			m.setState(StateShuttingDown)
			return nil
		}

		var err error
		switch m.state {
		case StateEventMode:
			err = m.eventCycle(ctx)
		case StatePollMode:
			err = m.pollCycle(ctx)
		default:
			m.setState(StateShuttingDown)
			return nil
		}

		if err != nil {
			if errors.Is(err, context.Canceled) {
				m.setState(StateShuttingDown)
				return nil
			}
			if recErr := m.recover(ctx, err); recErr != nil {
				return recErr
			}
		}
	}
}

// eventCycle waits for a server notification, with the wait bounded so
// the IDLE command is reissued well inside the server's 30 minute
// limit. A timer expiry still triggers a search; quiet servers exist.
func (m *Monitor) eventCycle(ctx context.Context) error {
	_, err := m.mailbox.WaitForNotification(ctx, m.idleTimeout)
	if err != nil {
		return fmt.Errorf("waiting for mailbox notification: %w", err)
	}
	return m.processBatch(ctx)
}

// pollCycle sleeps one interval, shutdown-observable, then searches.
func (m *Monitor) pollCycle(ctx context.Context) error {
	if !m.wait(ctx, m.pollInterval) {
		return ctx.Err()
	}
	return m.processBatch(ctx)
}

// processBatch searches for unseen messages and runs each through the
// pipeline in turn, then searches exactly once more so anything that
// arrived during a slow batch is not stranded until the next
// notification. A message that failed transiently stays unseen and is
// still offered by the re-search, so each id runs at most once per
// batch; its retry waits for the next cycle.
func (m *Monitor) processBatch(ctx context.Context) error {
	attempted := make(map[string]bool)

	for pass := 0; pass < 2; pass++ {
		ids, err := m.mailbox.SearchUnseen(ctx)
		if err != nil {
			return fmt.Errorf("searching unseen messages: %w", err)
		}

		ran := false
		for _, id := range ids {
			if attempted[id] {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempted[id] = true
			ran = true
			outcome := m.processor.Process(ctx, id)
			m.noteOutcome(outcome)
		}
		if !ran {
			return nil
		}
		m.logger.Info().Int("count", len(ids)).Msg("unseen messages processed")
	}
	return nil
}

// noteOutcome maintains the consecutive-error streak that degrades
// event mode to polling. Only transient failures count; a skip or a
// poison is the system working as intended.
func (m *Monitor) noteOutcome(outcome model.ProcessingOutcome) {
	if outcome.Kind == model.OutcomeTransientFailure {
		m.errStreak++
		if m.state == StateEventMode && m.degradeErrors > 0 && m.errStreak >= m.degradeErrors {
			m.logger.Warn().Int("consecutive_errors", m.errStreak).
				Msg("degrading to poll mode after repeated processing errors")
			m.setState(StatePollMode)
		}
		return
	}
	m.errStreak = 0
}

// recover rebuilds the mailbox connection with exponential backoff and
// full jitter. Exhausting the attempt budget is fatal; the daemon
// should exit and let its supervisor restart it.
func (m *Monitor) recover(ctx context.Context, cause error) error {
	m.logger.Warn().Err(cause).Msg("mailbox cycle failed, reconnecting")
	m.setState(StateConnecting)

	for attempt := 1; attempt <= m.reconnectMax; attempt++ {
		delay := m.backoff(attempt)
		if !m.wait(ctx, delay) {
			return nil
		}

		err := m.mailbox.Reconnect(ctx)
		if err == nil {
			m.logger.Info().Int("attempt", attempt).Msg("mailbox reconnected")
			m.errStreak = 0
			m.enterMode(ctx)
			return nil
		}
		m.logger.Warn().Int("attempt", attempt).Int("max", m.reconnectMax).
			Err(err).Msg("reconnect attempt failed")
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, m.reconnectMax, cause)
}

// enterMode probes push support and picks event or poll mode. The
// probe runs after every (re)connection; capabilities can differ
// across sessions behind a load balancer.
func (m *Monitor) enterMode(ctx context.Context) {
	push, err := m.mailbox.ProbePushSupport(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("capability probe failed, using poll mode")
		m.setState(StatePollMode)
		return
	}
	if push {
		m.setState(StateEventMode)
	} else {
		m.setState(StatePollMode)
	}
}

func (m *Monitor) setState(s ConnectionState) {
	if m.state == s {
		return
	}
	m.logger.Info().Str("from", m.state.String()).Str("to", s.String()).
		Msg("state change")
	m.state = s
}

// backoff returns the delay before reconnect attempt n, exponential
// with full jitter, capped at the configured ceiling.
func (m *Monitor) backoff(attempt int) time.Duration {
	d := m.reconnectBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.reconnectCeil {
			d = m.reconnectCeil
			break
		}
	}
	if d <= 0 {
		return 0
	}
	return time.Duration(m.rng.Int63n(int64(d)))
}

// wait sleeps for d or until ctx is canceled, reporting whether the
// full duration elapsed.
func (m *Monitor) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
