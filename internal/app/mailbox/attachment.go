package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/hickar/mailagent/internal/app/session"
)

// DownloadAttachment fetches the message, extracts the named attachment
// and writes its decoded bytes to savePath, creating parent directories
// as needed. The attachment name match is exact and case-sensitive.
func (c *Client) DownloadAttachment(ctx context.Context, mbox, emailID, name, savePath string) (AttachmentResult, error) {
	uid, err := parseUID(emailID)
	if err != nil {
		return AttachmentResult{}, err
	}

	var result AttachmentResult
	err = c.manager.ExecuteWithRetry(ctx, "download_attachment", func(conn session.Mailbox) error {
		if err := conn.Select(mbox); err != nil {
			return err
		}

		raw := c.fetchRaw(ctx, conn, uid)
		if raw == nil {
			return fmt.Errorf("message %s: %w", emailID, ErrMessageNotFound)
		}

		data, mimeType, err := extractAttachment(raw, name)
		if err != nil {
			return fmt.Errorf("message %s: %w", emailID, err)
		}

		if dir := filepath.Dir(savePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
		}
		if err := os.WriteFile(savePath, data, 0o644); err != nil {
			return fmt.Errorf("write attachment: %w", err)
		}

		absPath, err := filepath.Abs(savePath)
		if err != nil {
			absPath = savePath
		}

		result = AttachmentResult{
			EmailID:   emailID,
			Name:      name,
			MIMEType:  mimeType,
			Size:      len(data),
			SavedPath: absPath,
		}
		return nil
	})
	if err != nil {
		return AttachmentResult{}, err
	}

	return result, nil
}

// extractAttachment walks the message parts for an attachment whose
// filename equals name and returns its decoded bytes and content type.
func extractAttachment(raw []byte, name string) ([]byte, string, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, "", fmt.Errorf("parse message: %w", err)
	}

	reader := mail.NewReader(entity)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, "", fmt.Errorf("read part: %w", err)
		}

		header, ok := part.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}

		filename, err := header.Filename()
		if err != nil || filename != name {
			continue
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, "", fmt.Errorf("read attachment body: %w", err)
		}

		mimeType, _, _ := header.ContentType()
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		return data, mimeType, nil
	}

	return nil, "", fmt.Errorf("attachment %q: %w", name, ErrAttachmentNotFound)
}
