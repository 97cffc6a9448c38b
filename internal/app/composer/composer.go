// Package composer builds and submits outbound mail over SMTP.
package composer

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/hickar/mailagent/internal/app/config"
)

// Client submits messages through one account's outgoing endpoint. Each
// send uses a fresh SMTP session; submission connections are cheap and
// most providers drop idle ones quickly anyway.
type Client struct {
	endpoint config.Endpoint
	sender   string
	logger   *slog.Logger
}

func NewClient(endpoint config.Endpoint, sender string, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		sender:   sender,
		logger:   logger,
	}
}

// Sender returns the account's display form, "Full Name <address>".
func (c *Client) Sender() string {
	return c.sender
}

// Send serializes the message and submits it to every recipient across
// To, CC and BCC. On success it returns the raw bytes that went over
// the wire so the caller can mirror them into the sent folder.
func (c *Client) Send(msg Message) ([]byte, error) {
	if msg.From == "" {
		msg.From = c.sender
	}

	raw, err := msg.Build()
	if err != nil {
		return nil, err
	}

	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return nil, fmt.Errorf("parse sender address: %w", err)
	}

	recipients, err := envelopeRecipients(msg)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	conn, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if c.endpoint.Username != "" {
		auth := sasl.NewPlainClient("", c.endpoint.Username, c.endpoint.Password)
		if err := conn.Auth(auth); err != nil {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
	}

	if err := conn.SendMail(from.Address, recipients, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	c.logger.Info("message sent",
		slog.String("from", from.Address),
		slog.Int("recipients", len(recipients)),
	)

	return raw, nil
}

func (c *Client) dial() (*smtp.Client, error) {
	addr := c.endpoint.Addr()

	switch {
	case c.endpoint.UseSSL:
		return smtp.DialTLS(addr, nil)
	case c.endpoint.StartTLS:
		return smtp.DialStartTLS(addr, nil)
	default:
		return smtp.Dial(addr)
	}
}

// envelopeRecipients resolves the union of To, CC and BCC into bare
// addresses for the SMTP envelope.
func envelopeRecipients(msg Message) ([]string, error) {
	var recipients []string
	seen := make(map[string]struct{})

	for _, group := range [][]string{msg.To, msg.CC, msg.BCC} {
		for _, item := range group {
			addr, err := mail.ParseAddress(item)
			if err != nil {
				return nil, fmt.Errorf("address %q: %w", item, err)
			}
			if _, ok := seen[addr.Address]; ok {
				continue
			}
			seen[addr.Address] = struct{}{}
			recipients = append(recipients, addr.Address)
		}
	}

	return recipients, nil
}
