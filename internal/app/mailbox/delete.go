package mailbox

import (
	"context"
	"log/slog"

	"github.com/emersion/go-imap/v2"

	"github.com/hickar/mailagent/internal/app/session"
)

// Delete flags the given messages as deleted and expunges the mailbox
// once afterwards. Identifiers are processed independently: a failure
// on one never blocks the rest, and the returned slices partition the
// input into deleted and failed identifiers.
func (c *Client) Delete(ctx context.Context, mbox string, emailIDs []string) (deleted, failed []string, err error) {
	err = c.manager.ExecuteWithRetry(ctx, "delete", func(conn session.Mailbox) error {
		deleted = deleted[:0]
		failed = failed[:0]

		if err := conn.Select(mbox); err != nil {
			return err
		}

		for _, emailID := range emailIDs {
			uid, err := parseUID(emailID)
			if err != nil {
				c.logger.WarnContext(ctx, "skipping invalid message ID",
					slog.String("email_id", emailID),
					slog.Any("error", err),
				)
				failed = append(failed, emailID)
				continue
			}

			if err := conn.Store(uid, imap.StoreFlagsAdd, imap.FlagDeleted); err != nil {
				c.logger.WarnContext(ctx, "failed to flag message as deleted",
					slog.String("email_id", emailID),
					slog.Any("error", err),
				)
				failed = append(failed, emailID)
				continue
			}

			deleted = append(deleted, emailID)
		}

		if len(deleted) > 0 {
			if err := conn.Expunge(); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return deleted, failed, nil
}
