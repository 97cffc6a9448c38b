package mailbox

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
)

// Inbox is the default mailbox operations act on when none is given.
const Inbox = "INBOX"

var (
	// ErrMessageNotFound marks identifiers that cannot be resolved to
	// message bytes. It is a permanent outcome, never retried.
	ErrMessageNotFound = errors.New("message not found")

	// ErrAttachmentNotFound marks attachment names absent from an
	// otherwise fetchable message.
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// Envelope is the metadata record of one message; attachments are not
// resolved at this stage and the list stays empty.
type Envelope struct {
	EmailID     string
	MessageID   string
	Subject     string
	From        string
	Recipients  []string
	Date        time.Time
	Attachments []string
}

// Content is the full record: envelope fields plus the decoded body
// text and the filenames of parts marked as attachments.
type Content struct {
	Envelope
	Body string
}

// AttachmentResult reports one completed attachment download. The
// bytes themselves are written to SavedPath and not retained.
type AttachmentResult struct {
	EmailID   string
	Name      string
	MIMEType  string
	Size      int
	SavedPath string
}

func parseUID(emailID string) (imap.UID, error) {
	uid, err := strconv.ParseUint(emailID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message ID %q: %w", emailID, err)
	}
	return imap.UID(uid), nil
}
