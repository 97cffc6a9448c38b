package session

import (
	"context"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/hickar/mailagent/internal/app/config"
)

// FetchSpec selects how much of a message a Fetch call should return.
// The values mirror the protocol-level fetch items so callers can walk
// a fallback list from most to least specific.
type FetchSpec string

const (
	FetchSpecRFC822   FetchSpec = "RFC822"
	FetchSpecBody     FetchSpec = "BODY[]"
	FetchSpecBodyPeek FetchSpec = "BODY.PEEK[]"
	FetchSpecHeader   FetchSpec = "BODY.PEEK[HEADER]"
)

// FolderInfo is one entry of a mailbox LIST response.
type FolderInfo struct {
	Name  string
	Attrs []imap.MailboxAttr
}

// Mailbox is the retrieval-protocol transport consumed by the session
// manager and everything layered on top of it. Implementations own the
// wire encoding, including RFC 3501 quoted-string escaping of mailbox
// names passed to Select, Append and List.
type Mailbox interface {
	Login(username, password string) error
	Logout() error
	// Noop is the liveness probe; it must honor ctx cancellation.
	Noop(ctx context.Context) error
	Select(name string) error
	// Search evaluates an ordered token sequence as produced by the
	// criteria builder and returns the matching UID set in mailbox order.
	Search(tokens []string) ([]imap.UID, error)
	// Fetch returns the raw bytes of the requested section for one UID.
	// An empty slice with nil error means the server produced no literal.
	Fetch(uid imap.UID, spec FetchSpec) ([]byte, error)
	Store(uid imap.UID, op imap.StoreFlagsOp, flags ...imap.Flag) error
	Expunge() error
	Append(name string, raw []byte, flags ...imap.Flag) error
	List() ([]FolderInfo, error)
}

// Dialer establishes a new, not yet authenticated transport connection
// to the given endpoint.
type Dialer interface {
	Dial(endpoint config.Endpoint) (Mailbox, error)
}

type DialerFunc func(config.Endpoint) (Mailbox, error)

func (f DialerFunc) Dial(endpoint config.Endpoint) (Mailbox, error) {
	return f(endpoint)
}

// QuoteMailbox renders a mailbox name as an RFC 3501 quoted string.
// Some servers (notably Proton Mail Bridge) reject unquoted names, and
// per RFC 3501 section 9 backslash and double-quote characters inside a
// quoted string must each be escaped with a preceding backslash.
//
// The imapclient-backed transport encodes names on the wire itself;
// this helper serves raw-command paths and diagnostics, where the
// quoted form reproduces the exact protocol argument.
func QuoteMailbox(name string) string {
	escaped := strings.ReplaceAll(name, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}
