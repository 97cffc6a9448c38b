package composer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	netmail "net/mail"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-message/mail"
)

// ErrInvalidAttachment marks attachment paths that do not resolve to a
// readable regular file. Validation happens before any network I/O so a
// bad path never costs a wasted SMTP session.
var ErrInvalidAttachment = errors.New("invalid attachment")

// Message is one outbound email prior to serialization. Body carries
// plain text; HTML, when set, is sent alongside it. Attachments are
// filesystem paths read at build time.
type Message struct {
	From        string
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	Body        string
	HTML        string
	Attachments []string
	InReplyTo   string
	References  string
}

// ValidateAttachments checks every attachment path up front and reports
// the first one that is missing or not a regular file.
func (m Message) ValidateAttachments() error {
	for _, path := range m.Attachments {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidAttachment, path, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %s: not a regular file", ErrInvalidAttachment, path)
		}
	}
	return nil
}

// Build serializes the message into wire-ready RFC 5322 bytes: headers,
// inline text and HTML parts and one attachment part per file.
func (m Message) Build() ([]byte, error) {
	if err := m.ValidateAttachments(); err != nil {
		return nil, err
	}

	from, err := netmail.ParseAddress(m.From)
	if err != nil {
		return nil, fmt.Errorf("parse sender address: %w", err)
	}

	var header mail.Header
	header.SetDate(time.Now())
	header.SetAddressList("From", []*mail.Address{from})
	header.SetSubject(m.Subject)

	to, err := parseAddressList(m.To)
	if err != nil {
		return nil, fmt.Errorf("parse recipients: %w", err)
	}
	header.SetAddressList("To", to)

	if len(m.CC) > 0 {
		cc, err := parseAddressList(m.CC)
		if err != nil {
			return nil, fmt.Errorf("parse cc recipients: %w", err)
		}
		header.SetAddressList("Cc", cc)
	}

	if m.InReplyTo != "" {
		header.Set("In-Reply-To", m.InReplyTo)
	}
	if m.References != "" {
		header.Set("References", m.References)
	}

	var buf bytes.Buffer
	writer, err := mail.CreateWriter(&buf, header)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}

	if err := writeInlineParts(writer, m.Body, m.HTML); err != nil {
		return nil, err
	}

	for _, path := range m.Attachments {
		if err := writeAttachment(writer, path); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize message: %w", err)
	}

	return buf.Bytes(), nil
}

func parseAddressList(raw []string) ([]*mail.Address, error) {
	addrs := make([]*mail.Address, 0, len(raw))
	for _, item := range raw {
		addr, err := netmail.ParseAddress(item)
		if err != nil {
			return nil, fmt.Errorf("address %q: %w", item, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func writeInlineParts(writer *mail.Writer, body, html string) error {
	inline, err := writer.CreateInline()
	if err != nil {
		return fmt.Errorf("create inline part: %w", err)
	}

	var textHeader mail.InlineHeader
	textHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	text, err := inline.CreatePart(textHeader)
	if err != nil {
		return fmt.Errorf("create text part: %w", err)
	}
	if _, err := io.WriteString(text, body); err != nil {
		return fmt.Errorf("write text part: %w", err)
	}
	if err := text.Close(); err != nil {
		return fmt.Errorf("close text part: %w", err)
	}

	if html != "" {
		var htmlHeader mail.InlineHeader
		htmlHeader.SetContentType("text/html", map[string]string{"charset": "utf-8"})
		part, err := inline.CreatePart(htmlHeader)
		if err != nil {
			return fmt.Errorf("create html part: %w", err)
		}
		if _, err := io.WriteString(part, html); err != nil {
			return fmt.Errorf("write html part: %w", err)
		}
		if err := part.Close(); err != nil {
			return fmt.Errorf("close html part: %w", err)
		}
	}

	return inline.Close()
}

func writeAttachment(writer *mail.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidAttachment, path, err)
	}
	defer file.Close()

	filename := filepath.Base(path)
	mimeType := mime.TypeByExtension(filepath.Ext(filename))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	var header mail.AttachmentHeader
	header.SetFilename(filename)
	header.SetContentType(mimeType, nil)

	part, err := writer.CreateAttachment(header)
	if err != nil {
		return fmt.Errorf("create attachment part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("write attachment %s: %w", filename, err)
	}

	return part.Close()
}
