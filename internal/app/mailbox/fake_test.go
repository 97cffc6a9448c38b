package mailbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/hickar/mailagent/internal/app/config"
	"github.com/hickar/mailagent/internal/app/session"
)

// scriptedConn is a transport fake with per-call scripted responses.
type scriptedConn struct {
	selected   []string
	selectErr  map[string]error
	searchUIDs []imap.UID
	searchErr  error

	// fetch responses are keyed by "<uid>|<spec>".
	fetch    map[string][]byte
	fetchErr map[string]error

	stored   map[imap.UID][]imap.Flag
	storeErr map[imap.UID]error
	expunges int

	appends   []appendCall
	appendErr map[string]error

	folders []session.FolderInfo
	listErr error
}

type appendCall struct {
	folder string
	raw    []byte
	flags  []imap.Flag
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{
		selectErr: map[string]error{},
		fetch:     map[string][]byte{},
		fetchErr:  map[string]error{},
		stored:    map[imap.UID][]imap.Flag{},
		storeErr:  map[imap.UID]error{},
		appendErr: map[string]error{},
	}
}

func fetchKey(uid imap.UID, spec session.FetchSpec) string {
	return fmt.Sprintf("%d|%s", uid, spec)
}

func (c *scriptedConn) Login(username, password string) error { return nil }

func (c *scriptedConn) Logout() error { return nil }

func (c *scriptedConn) Noop(ctx context.Context) error { return nil }

func (c *scriptedConn) Select(name string) error {
	if err, ok := c.selectErr[name]; ok {
		return err
	}
	c.selected = append(c.selected, name)
	return nil
}

func (c *scriptedConn) Search(tokens []string) ([]imap.UID, error) {
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	uids := make([]imap.UID, len(c.searchUIDs))
	copy(uids, c.searchUIDs)
	return uids, nil
}

func (c *scriptedConn) Fetch(uid imap.UID, spec session.FetchSpec) ([]byte, error) {
	key := fetchKey(uid, spec)
	if err, ok := c.fetchErr[key]; ok {
		return nil, err
	}
	return c.fetch[key], nil
}

func (c *scriptedConn) Store(uid imap.UID, op imap.StoreFlagsOp, flags ...imap.Flag) error {
	if err, ok := c.storeErr[uid]; ok {
		return err
	}
	c.stored[uid] = flags
	return nil
}

func (c *scriptedConn) Expunge() error {
	c.expunges++
	return nil
}

func (c *scriptedConn) Append(name string, raw []byte, flags ...imap.Flag) error {
	if err, ok := c.appendErr[name]; ok {
		return err
	}
	c.appends = append(c.appends, appendCall{folder: name, raw: raw, flags: flags})
	return nil
}

func (c *scriptedConn) List() ([]session.FolderInfo, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.folders, nil
}

func newTestClient(conn *scriptedConn) *Client {
	dialer := session.DialerFunc(func(config.Endpoint) (session.Mailbox, error) {
		return conn, nil
	})
	policy := config.RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		SessionTimeout: time.Hour,
	}
	manager := session.NewManager(config.Endpoint{Host: "imap.example.com", Port: 993}, dialer, policy, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewClient(manager, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// crlf joins message lines with the wire line ending.
func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func plainMessage(subject, body string) []byte {
	return crlf(
		"From: Alice Sender <alice@example.com>",
		"To: Bob Recipient <bob@example.com>",
		"Cc: carol@example.com",
		"Subject: "+subject,
		"Date: Tue, 05 Mar 2024 10:00:00 +0000",
		"Message-ID: <msg-1@example.com>",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
		"",
	)
}

func htmlOnlyMessage(html string) []byte {
	return crlf(
		"From: alice@example.com",
		"To: bob@example.com",
		"Subject: markup",
		"Date: Tue, 05 Mar 2024 10:00:00 +0000",
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=utf-8",
		"",
		html,
		"",
	)
}

func multipartMessage() []byte {
	return crlf(
		"From: alice@example.com",
		"To: bob@example.com",
		"Subject: with attachment",
		"Date: Tue, 05 Mar 2024 10:00:00 +0000",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="frontier"`,
		"",
		"--frontier",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"See the attached report.",
		"--frontier",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="report.pdf"`,
		"Content-Transfer-Encoding: base64",
		"",
		"JVBERi0xLjQK",
		"--frontier--",
		"",
	)
}
