package mailbox

import (
	"context"
	"log/slog"
	"slices"

	"github.com/emersion/go-imap/v2"

	"github.com/hickar/mailagent/internal/app/session"
)

// sentFolderFallbacks are common sent-folder names across providers,
// tried in order after server-advertised and configured candidates.
var sentFolderFallbacks = []string{
	"Sent",
	"INBOX.Sent",
	"Sent Items",
	"Sent Mail",
	"[Gmail]/Sent Mail",
	"INBOX/Sent",
}

// AppendToSent stores a copy of an outbound message in the account's
// sent folder, marked as seen. Candidate folders are tried in priority
// order: folders the server advertises with the \Sent special-use
// attribute, then the configured name, then well-known fallbacks. The
// return value reports whether any candidate accepted the message;
// exhausting all candidates is not an error, since the message itself
// was already delivered.
func (c *Client) AppendToSent(ctx context.Context, raw []byte, configuredName string) bool {
	var stored bool
	err := c.manager.ExecuteWithRetry(ctx, "append_to_sent", func(conn session.Mailbox) error {
		for _, candidate := range c.sentCandidates(ctx, conn, configuredName) {
			if err := conn.Select(candidate); err != nil {
				c.logger.DebugContext(ctx, "sent folder candidate not selectable",
					slog.String("folder", session.QuoteMailbox(candidate)),
					slog.Any("error", err),
				)
				continue
			}

			if err := conn.Append(candidate, raw, imap.FlagSeen); err != nil {
				c.logger.DebugContext(ctx, "append to sent folder failed",
					slog.String("folder", session.QuoteMailbox(candidate)),
					slog.Any("error", err),
				)
				continue
			}

			c.logger.InfoContext(ctx, "message stored in sent folder",
				slog.String("folder", session.QuoteMailbox(candidate)),
			)
			stored = true
			return nil
		}

		c.logger.WarnContext(ctx, "no sent folder accepted the message")
		return nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to store message in sent folder", slog.Any("error", err))
		return false
	}

	return stored
}

// sentCandidates builds the deduplicated, priority-ordered list of
// sent-folder names to try.
func (c *Client) sentCandidates(ctx context.Context, conn session.Mailbox, configuredName string) []string {
	var candidates []string

	folders, err := conn.List()
	if err != nil {
		c.logger.DebugContext(ctx, "failed to list folders", slog.Any("error", err))
	}
	for _, folder := range folders {
		if slices.Contains(folder.Attrs, imap.MailboxAttrSent) {
			candidates = append(candidates, folder.Name)
		}
	}

	if configuredName != "" {
		candidates = append(candidates, configuredName)
	}
	candidates = append(candidates, sentFolderFallbacks...)

	seen := make(map[string]struct{}, len(candidates))
	deduped := candidates[:0]
	for _, name := range candidates {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		deduped = append(deduped, name)
	}

	return deduped
}
