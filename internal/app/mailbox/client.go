package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/hickar/mailagent/internal/app/criteria"
	"github.com/hickar/mailagent/internal/app/session"
)

// OrderDesc lists newest messages first; anything else keeps the
// mailbox discovery order.
const OrderDesc = "desc"

// Client layers paginated search, content retrieval, attachment
// download, sent-folder mirroring and deletion on top of one
// session-managed retrieval connection.
type Client struct {
	manager *session.Manager
	logger  *slog.Logger
}

func NewClient(manager *session.Manager, logger *slog.Logger) *Client {
	return &Client{
		manager: manager,
		logger:  logger,
	}
}

// Close releases the underlying session.
func (c *Client) Close(ctx context.Context) {
	c.manager.Close(ctx)
}

// Manager exposes the session manager for health probing.
func (c *Client) Manager() *session.Manager {
	return c.manager
}

// ListMetadata returns the requested page of message envelopes matching
// the filter, headers only. The full matching UID set is searched once,
// reversed for descending order, sliced, and each identifier in the
// slice is fetched header-only. Identifiers whose headers cannot be
// fetched or decoded are skipped and logged, not failed. A page start
// beyond the available identifiers yields an empty slice, not an error.
func (c *Client) ListMetadata(
	ctx context.Context,
	mbox string,
	filter criteria.Filter,
	page, pageSize int,
	order string,
) ([]Envelope, error) {
	tokens := criteria.Build(filter)

	var envelopes []Envelope
	err := c.manager.ExecuteWithRetry(ctx, "list_metadata", func(conn session.Mailbox) error {
		envelopes = envelopes[:0]

		if err := conn.Select(mbox); err != nil {
			return err
		}

		uids, err := conn.Search(tokens)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		c.logger.DebugContext(ctx, "search finished",
			slog.String("mailbox", session.QuoteMailbox(mbox)),
			slog.Int("matches", len(uids)),
		)

		if order == OrderDesc {
			for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
				uids[i], uids[j] = uids[j], uids[i]
			}
		}

		start := (page - 1) * pageSize
		if start < 0 || start >= len(uids) {
			return nil
		}
		end := min(start+pageSize, len(uids))

		for _, uid := range uids[start:end] {
			raw, err := conn.Fetch(uid, session.FetchSpecHeader)
			if err != nil || len(raw) == 0 {
				c.logger.WarnContext(ctx, "failed to fetch headers",
					slog.String("uid", strconv.FormatUint(uint64(uid), 10)),
					slog.Any("error", err),
				)
				continue
			}

			envelope, err := parseEnvelope(strconv.FormatUint(uint64(uid), 10), raw)
			if err != nil {
				c.logger.WarnContext(ctx, "failed to decode headers",
					slog.String("uid", strconv.FormatUint(uint64(uid), 10)),
					slog.Any("error", err),
				)
				continue
			}

			envelopes = append(envelopes, envelope)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return envelopes, nil
}

// Count independently computes the number of messages matching the
// filter, via a separate search call over the same criteria.
func (c *Client) Count(ctx context.Context, mbox string, filter criteria.Filter) (int, error) {
	tokens := criteria.Build(filter)

	var total int
	err := c.manager.ExecuteWithRetry(ctx, "count", func(conn session.Mailbox) error {
		if err := conn.Select(mbox); err != nil {
			return err
		}

		uids, err := conn.Search(tokens)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		total = len(uids)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

// parseEnvelope decodes a headers-only literal into an Envelope.
func parseEnvelope(emailID string, raw []byte) (Envelope, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return Envelope{}, fmt.Errorf("parse headers: %w", err)
	}

	return envelopeFromHeader(emailID, mail.Header{Header: entity.Header}), nil
}

func envelopeFromHeader(emailID string, header mail.Header) Envelope {
	envelope := Envelope{
		EmailID:     emailID,
		Attachments: []string{},
	}

	envelope.Subject, _ = header.Subject()
	envelope.MessageID, _ = header.MessageID()

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		envelope.From = formatAddress(from[0])
	}
	for _, key := range []string{"To", "Cc"} {
		addrs, err := header.AddressList(key)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			envelope.Recipients = append(envelope.Recipients, formatAddress(addr))
		}
	}

	date, err := header.Date()
	if err != nil || date.IsZero() {
		date = time.Now().UTC()
	}
	envelope.Date = date

	return envelope
}

func formatAddress(addr *mail.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
	}
	return addr.Address
}
