package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"jaytaylor.com/html2text"

	"github.com/hickar/mailagent/internal/app/session"
)

// maxBodyRunes caps decoded body text so a single oversized message
// cannot blow up a response payload.
const maxBodyRunes = 20000

const truncationMarker = "...[TRUNCATED]"

// fetchSpecs is the fallback order for retrieving full message bytes.
// Servers differ in which fetch items they answer with a usable literal,
// so each spec is tried in turn until one yields message data.
var fetchSpecs = []session.FetchSpec{
	session.FetchSpecRFC822,
	session.FetchSpecBody,
	session.FetchSpecBodyPeek,
}

// GetContent fetches one message and decodes it into body text plus
// attachment filenames. An identifier that resolves to no usable
// message bytes yields ErrMessageNotFound.
func (c *Client) GetContent(ctx context.Context, mbox, emailID string) (Content, error) {
	uid, err := parseUID(emailID)
	if err != nil {
		return Content{}, err
	}

	var content Content
	err = c.manager.ExecuteWithRetry(ctx, "get_content", func(conn session.Mailbox) error {
		if err := conn.Select(mbox); err != nil {
			return err
		}

		raw := c.fetchRaw(ctx, conn, uid)
		if raw == nil {
			return fmt.Errorf("message %s: %w", emailID, ErrMessageNotFound)
		}

		decoded, err := decodeContent(emailID, raw)
		if err != nil {
			return fmt.Errorf("decode message %s: %w", emailID, err)
		}

		content = decoded
		return nil
	})
	if err != nil {
		return Content{}, err
	}

	return content, nil
}

// fetchRaw walks the fetch-spec fallback list and returns the first
// usable literal, or nil when every spec comes back empty.
func (c *Client) fetchRaw(ctx context.Context, conn session.Mailbox, uid imap.UID) []byte {
	for _, spec := range fetchSpecs {
		raw, err := conn.Fetch(uid, spec)
		if err != nil {
			c.logger.DebugContext(ctx, "fetch format failed",
				slog.String("format", string(spec)),
				slog.Any("error", err),
			)
			continue
		}
		if usableLiteral(raw) {
			return raw
		}
	}
	return nil
}

// usableLiteral filters out empty responses and bare status lines some
// servers return in place of message data.
func usableLiteral(raw []byte) bool {
	if len(raw) <= 100 {
		return false
	}
	// A literal with no header/body separator that mentions the fetch
	// response itself is a status line, not a message.
	if bytes.Contains(raw, []byte("FETCH (")) && !bytes.Contains(raw, []byte("\r\n\r\n")) {
		return false
	}
	return true
}

// decodeContent parses raw message bytes into envelope metadata, a
// plain-text body and attachment filenames. Plain-text parts win over
// HTML; when only HTML is present it is converted to text. Unknown
// charsets degrade gracefully instead of failing the whole message.
func decodeContent(emailID string, raw []byte) (Content, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return Content{}, fmt.Errorf("parse message: %w", err)
	}

	content := Content{
		Envelope: envelopeFromHeader(emailID, mail.Header{Header: entity.Header}),
	}

	var plain, html strings.Builder

	reader := mail.NewReader(entity)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return Content{}, fmt.Errorf("read part: %w", err)
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := header.ContentType()
			switch mediaType {
			case "text/plain":
				if _, err := io.Copy(&plain, part.Body); err != nil {
					return Content{}, fmt.Errorf("read text part: %w", err)
				}
			case "text/html":
				if _, err := io.Copy(&html, part.Body); err != nil {
					return Content{}, fmt.Errorf("read html part: %w", err)
				}
			}
		case *mail.AttachmentHeader:
			if filename, err := header.Filename(); err == nil && filename != "" {
				content.Attachments = append(content.Attachments, filename)
			}
		}
	}

	body := plain.String()
	if strings.TrimSpace(body) == "" && html.Len() > 0 {
		text, err := html2text.FromString(html.String(), html2text.Options{TextOnly: true})
		if err != nil {
			// Keep the raw markup rather than dropping the body entirely.
			text = html.String()
		}
		body = text
	}

	content.Body = truncateBody(body)
	return content, nil
}

func truncateBody(body string) string {
	runes := []rune(body)
	if len(runes) <= maxBodyRunes {
		return body
	}
	return string(runes[:maxBodyRunes]) + truncationMarker
}
