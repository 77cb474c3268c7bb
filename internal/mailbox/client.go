// Package mailbox wraps go-imap v2 behind the narrow surface the
// monitor and pipeline need: probe, search, fetch, mark handled, and a
// bounded push-notification wait.
//
// One Client owns exactly one logical connection. Callers must not
// overlap the notification wait with fetch or store operations; the
// monitor serializes them.
package mailbox

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/nhle/travelbot/internal/model"
)

// Client maintains the IMAP connection to the watched mailbox.
type Client struct {
	cfg    model.IMAPConfig
	logger zerolog.Logger

	client *imapclient.Client

	// notifyCh receives a signal when the server pushes a mailbox
	// update (new mail) during IDLE.
	notifyCh chan struct{}
}

// NewClient creates an unconnected mailbox client.
func NewClient(cfg model.IMAPConfig, logger zerolog.Logger) *Client {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Client{
		cfg:      cfg,
		logger:   logger.With().Str("component", "mailbox").Logger(),
		notifyCh: make(chan struct{}, 1),
	}
}

// Connect dials the server, authenticates, and selects the watched
// mailbox. Unilateral mailbox updates are routed to the notification
// channel consumed by WaitForNotification.
func (c *Client) Connect(_ context.Context) error {
	addr := c.cfg.Host + ":" + c.cfg.Port

	opts := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages != nil {
					select {
					case c.notifyCh <- struct{}{}:
					default:
					}
				}
			},
		},
	}

	var client *imapclient.Client
	var err error
	if c.cfg.TLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialStartTLS(addr, opts)
	}
	if err != nil {
		return fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return fmt.Errorf("authenticating %s: %w", c.cfg.Username, err)
	}

	if _, err := client.Select(c.cfg.Mailbox, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return fmt.Errorf("selecting %s: %w", c.cfg.Mailbox, err)
	}

	c.client = client
	c.logger.Info().
		Str("host", c.cfg.Host).
		Str("mailbox", c.cfg.Mailbox).
		Msg("connected to mailbox")
	return nil
}

// Close logs out and drops the connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Logout().Wait()
	c.client = nil
	return err
}

// Reconnect drops the current connection, if any, and establishes a
// fresh one. Backoff policy belongs to the caller.
func (c *Client) Reconnect(ctx context.Context) error {
	if c.client != nil {
		_ = c.client.Logout().Wait()
		c.client = nil
	}
	return c.Connect(ctx)
}

// ProbePushSupport reports whether the server advertises IDLE and the
// configuration allows using it.
func (c *Client) ProbePushSupport(_ context.Context) (bool, error) {
	if c.client == nil {
		return false, fmt.Errorf("probing capabilities: not connected")
	}

	caps, err := c.client.Capability().Wait()
	if err != nil {
		return false, fmt.Errorf("probing capabilities: %w", err)
	}

	return caps.Has(imap.CapIdle) && c.cfg.IdleEnabled, nil
}

// SearchUnseen returns the identifiers of all unseen messages.
func (c *Client) SearchUnseen(_ context.Context) ([]string, error) {
	if c.client == nil {
		return nil, fmt.Errorf("searching unseen: not connected")
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	data, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen: %w", err)
	}

	uids := data.AllUIDs()
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// Fetch retrieves the full content of a message: envelope, raw header
// set, text body, and attachment bytes.
func (c *Client) Fetch(_ context.Context, id string) (*model.InboundMessage, error) {
	if c.client == nil {
		return nil, fmt.Errorf("fetching %s: not connected", id)
	}

	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := c.client.Fetch(imap.UIDSetNum(uid), fetchOpts)
	defer fetchCmd.Close()

	msgData := fetchCmd.Next()
	if msgData == nil {
		return nil, fmt.Errorf("fetching %s: message not found", id)
	}

	buf, err := msgData.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message %s: %w", id, err)
	}

	msg := &model.InboundMessage{ID: id}
	if buf.Envelope != nil {
		msg.Subject = buf.Envelope.Subject
		msg.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			msg.From = buf.Envelope.From[0].Addr()
		}
		if len(buf.Envelope.To) > 0 {
			msg.To = buf.Envelope.To[0].Addr()
		}
	}

	raw := buf.FindBodySection(bodySection)
	if raw != nil {
		header, bodyText, attachments := parseMIMEBody(raw)
		msg.Header = header
		msg.BodyText = bodyText
		msg.Attachments = attachments
	}

	return msg, nil
}

// MarkHandled sets \Seen on the message so it is never re-offered.
// Setting the flag twice is a server-side no-op, which gives the
// acknowledge step its idempotence.
func (c *Client) MarkHandled(_ context.Context, id string) error {
	if c.client == nil {
		return fmt.Errorf("marking %s handled: not connected", id)
	}

	uid, err := parseID(id)
	if err != nil {
		return err
	}

	storeCmd := c.client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking %s handled: %w", id, err)
	}
	return nil
}

// WaitForNotification issues a single IDLE bounded by timeout and
// blocks until the server signals new mail, the timeout elapses, or
// ctx is canceled. It reports whether a notification arrived. The
// caller is responsible for reissuing the wait before the server's
// 30 minute IDLE limit.
func (c *Client) WaitForNotification(ctx context.Context, timeout time.Duration) (bool, error) {
	if c.client == nil {
		return false, fmt.Errorf("waiting for notification: not connected")
	}

	// Drain a notification that raced in between waits.
	select {
	case <-c.notifyCh:
		return true, nil
	default:
	}

	idleCmd, err := c.client.Idle()
	if err != nil {
		return false, fmt.Errorf("starting IDLE: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- idleCmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	notified := false
	select {
	case <-ctx.Done():
		_ = idleCmd.Close()
		<-done
		return false, ctx.Err()
	case <-c.notifyCh:
		notified = true
	case <-timer.C:
	case err := <-done:
		// IDLE ended on its own; treat as connection trouble.
		if err == nil {
			err = fmt.Errorf("connection closed")
		}
		return false, fmt.Errorf("IDLE terminated: %w", err)
	}

	if err := idleCmd.Close(); err != nil {
		return notified, fmt.Errorf("ending IDLE: %w", err)
	}
	if err := <-done; err != nil {
		return notified, fmt.Errorf("IDLE wait: %w", err)
	}

	return notified, nil
}

func parseID(id string) (imap.UID, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q: %w", id, err)
	}
	return imap.UID(uid), nil
}
