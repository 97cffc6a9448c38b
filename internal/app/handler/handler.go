// Package handler ties one account's retrieval and delivery clients
// into a single operation surface.
package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/hickar/mailagent/internal/app/composer"
	"github.com/hickar/mailagent/internal/app/config"
	"github.com/hickar/mailagent/internal/app/criteria"
	"github.com/hickar/mailagent/internal/app/mailbox"
	"github.com/hickar/mailagent/internal/app/session"
)

const (
	defaultPageSize    = 10
	healthProbeTimeout = 10 * time.Second
)

// Sender submits one outbound message and returns the wire bytes for
// sent-folder mirroring.
type Sender interface {
	Send(msg composer.Message) ([]byte, error)
	Sender() string
}

// Handler exposes every per-account operation: paginated metadata
// listing, content retrieval, attachment download, deletion, outbound
// sending with sent-folder mirroring and a connection health probe.
type Handler struct {
	account config.Account
	inbox   *mailbox.Client
	sender  Sender
	logger  *slog.Logger
}

func New(account config.Account, inbox *mailbox.Client, sender Sender, logger *slog.Logger) *Handler {
	return &Handler{
		account: account,
		inbox:   inbox,
		sender:  sender,
		logger:  logger,
	}
}

// Account returns the account this handler serves.
func (h *Handler) Account() config.Account {
	return h.account
}

// ListMetadata returns the requested page of envelopes together with
// the total count of matches, computed by a separate query.
func (h *Handler) ListMetadata(ctx context.Context, req ListRequest) (MetadataPage, error) {
	if req.Mailbox == "" {
		req.Mailbox = mailbox.Inbox
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}

	filter := criteria.Filter{
		Before:  req.Before,
		Since:   req.Since,
		Subject: req.Subject,
		Body:    req.Body,
		Text:    req.Text,
		From:    req.From,
		To:      req.To,
	}

	envelopes, err := h.inbox.ListMetadata(ctx, req.Mailbox, filter, req.Page, req.PageSize, req.Order)
	if err != nil {
		return MetadataPage{}, err
	}

	total, err := h.inbox.Count(ctx, req.Mailbox, filter)
	if err != nil {
		return MetadataPage{}, err
	}

	return MetadataPage{
		Page:     req.Page,
		PageSize: req.PageSize,
		Before:   req.Before,
		Since:    req.Since,
		Subject:  req.Subject,
		Emails:   envelopes,
		Total:    total,
	}, nil
}

// GetContent fetches full content for each identifier. Failures are
// collected per identifier; the batch itself only errors when the
// underlying session is beyond recovery.
func (h *Handler) GetContent(ctx context.Context, mbox string, emailIDs []string) ContentBatch {
	if mbox == "" {
		mbox = mailbox.Inbox
	}

	batch := ContentBatch{RequestedCount: len(emailIDs)}
	for _, emailID := range emailIDs {
		content, err := h.inbox.GetContent(ctx, mbox, emailID)
		if err != nil {
			h.logger.WarnContext(ctx, "failed to retrieve message content",
				slog.String("account", h.account.Name),
				slog.String("email_id", emailID),
				slog.Any("error", err),
			)
			batch.FailedIDs = append(batch.FailedIDs, emailID)
			continue
		}
		batch.Emails = append(batch.Emails, content)
	}

	batch.RetrievedCount = len(batch.Emails)
	return batch
}

// SendEmail builds and submits the message, then mirrors the delivered
// bytes into the sent folder when the account asks for it. Mirroring
// failures are logged, never surfaced: the message is already out.
func (h *Handler) SendEmail(ctx context.Context, req SendRequest) error {
	msg := req.message()
	msg.From = h.sender.Sender()

	raw, err := h.sender.Send(msg)
	if err != nil {
		return err
	}

	if h.account.SaveSent() {
		if !h.inbox.AppendToSent(ctx, raw, h.account.SentFolderName) {
			h.logger.WarnContext(ctx, "delivered message was not mirrored to sent folder",
				slog.String("account", h.account.Name),
			)
		}
	}

	return nil
}

// Delete removes the given messages from the mailbox.
func (h *Handler) Delete(ctx context.Context, mbox string, emailIDs []string) (DeleteResult, error) {
	if mbox == "" {
		mbox = mailbox.Inbox
	}

	deleted, failed, err := h.inbox.Delete(ctx, mbox, emailIDs)
	if err != nil {
		return DeleteResult{}, err
	}

	return DeleteResult{Deleted: deleted, Failed: failed}, nil
}

// DownloadAttachment saves one attachment of one message to disk.
func (h *Handler) DownloadAttachment(ctx context.Context, mbox, emailID, name, savePath string) (mailbox.AttachmentResult, error) {
	if mbox == "" {
		mbox = mailbox.Inbox
	}
	return h.inbox.DownloadAttachment(ctx, mbox, emailID, name, savePath)
}

// Health probes the retrieval connection with a bounded no-op round
// trip and reports the outcome. A failed probe is a report, not an
// error: the returned Health carries the failure.
func (h *Handler) Health(ctx context.Context) Health {
	endpoint := h.inbox.Manager().Endpoint()
	report := Health{
		Timestamp:    time.Now().UTC(),
		Host:         endpoint.Host,
		Port:         endpoint.Port,
		LastActivity: h.inbox.Manager().LastActivity(),
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	started := time.Now()
	err := h.inbox.Manager().ExecuteWithRetry(probeCtx, "health_check", func(conn session.Mailbox) error {
		return conn.Noop(probeCtx)
	})
	report.ResponseTime = time.Since(started)

	if err != nil {
		report.Err = err
		return report
	}

	report.Healthy = true
	return report
}

// Close releases the account's retrieval session.
func (h *Handler) Close(ctx context.Context) {
	h.inbox.Close(ctx)
}
