package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hickar/mailagent/internal/app/composer"
	"github.com/hickar/mailagent/internal/app/config"
	"github.com/hickar/mailagent/internal/app/mailbox"
	"github.com/hickar/mailagent/internal/app/session"
)

// stubConn is a minimal transport fake for facade-level tests.
type stubConn struct {
	searchUIDs []imap.UID
	messages   map[imap.UID][]byte
	selectErr  error
	appends    []string
	appendFlag []imap.Flag
	appendRaw  []byte
}

func (c *stubConn) Login(username, password string) error { return nil }

func (c *stubConn) Logout() error { return nil }

func (c *stubConn) Noop(ctx context.Context) error { return nil }

func (c *stubConn) Select(name string) error { return c.selectErr }

func (c *stubConn) Search(tokens []string) ([]imap.UID, error) {
	return c.searchUIDs, nil
}

func (c *stubConn) Fetch(uid imap.UID, spec session.FetchSpec) ([]byte, error) {
	return c.messages[uid], nil
}

func (c *stubConn) Store(uid imap.UID, op imap.StoreFlagsOp, flags ...imap.Flag) error { return nil }

func (c *stubConn) Expunge() error { return nil }

func (c *stubConn) Append(name string, raw []byte, flags ...imap.Flag) error {
	c.appends = append(c.appends, name)
	c.appendRaw = raw
	c.appendFlag = flags
	return nil
}

func (c *stubConn) List() ([]session.FolderInfo, error) { return nil, nil }

type fakeSender struct {
	sent   []composer.Message
	err    error
	sender string
}

func (f *fakeSender) Send(msg composer.Message) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	return []byte("raw message bytes"), nil
}

func (f *fakeSender) Sender() string { return f.sender }

func testMessage(uid imap.UID, subject string) []byte {
	lines := []string{
		"From: alice@example.com",
		"To: bob@example.com",
		fmt.Sprintf("Subject: %s", subject),
		"Date: Tue, 05 Mar 2024 10:00:00 +0000",
		fmt.Sprintf("Message-ID: <%d@example.com>", uid),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"message body text for " + subject,
		"",
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func newTestHandler(t *testing.T, account config.Account, conn *stubConn, sender *fakeSender) *Handler {
	t.Helper()

	dialer := session.DialerFunc(func(config.Endpoint) (session.Mailbox, error) {
		return conn, nil
	})
	policy := config.RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		SessionTimeout: time.Hour,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := session.NewManager(account.Incoming, dialer, policy, logger)
	inbox := mailbox.NewClient(manager, logger)

	h := New(account, inbox, sender, logger)
	t.Cleanup(func() { h.Close(context.Background()) })
	return h
}

func testAccount() config.Account {
	return config.Account{
		Name:         "personal",
		FullName:     "Alice Sender",
		EmailAddress: "alice@example.com",
		Incoming:     config.Endpoint{Host: "imap.example.com", Port: 993},
		Outgoing:     config.Endpoint{Host: "smtp.example.com", Port: 465},
	}
}

func TestListMetadataDefaults(t *testing.T) {
	conn := &stubConn{
		searchUIDs: []imap.UID{1, 2, 3},
		messages: map[imap.UID][]byte{
			1: testMessage(1, "first"),
			2: testMessage(2, "second"),
			3: testMessage(3, "third"),
		},
	}
	h := newTestHandler(t, testAccount(), conn, &fakeSender{sender: "Alice Sender <alice@example.com>"})

	page, err := h.ListMetadata(context.Background(), ListRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Emails, 3)
}

func TestGetContentCollectsPerMessageFailures(t *testing.T) {
	conn := &stubConn{
		messages: map[imap.UID][]byte{
			1: testMessage(1, "readable"),
		},
	}
	h := newTestHandler(t, testAccount(), conn, &fakeSender{})

	batch := h.GetContent(context.Background(), "", []string{"1", "999", "bogus"})

	assert.Equal(t, 3, batch.RequestedCount)
	assert.Equal(t, 1, batch.RetrievedCount)
	require.Len(t, batch.Emails, 1)
	assert.Equal(t, "readable", batch.Emails[0].Subject)
	assert.Equal(t, []string{"999", "bogus"}, batch.FailedIDs)
}

func TestSendEmailMirrorsToSentFolder(t *testing.T) {
	conn := &stubConn{}
	sender := &fakeSender{sender: "Alice Sender <alice@example.com>"}
	h := newTestHandler(t, testAccount(), conn, sender)

	err := h.SendEmail(context.Background(), SendRequest{
		To:      []string{"bob@example.com"},
		Subject: "hello",
		Body:    "hello bob",
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Alice Sender <alice@example.com>", sender.sent[0].From)

	require.NotEmpty(t, conn.appends)
	assert.Equal(t, []byte("raw message bytes"), conn.appendRaw)
	assert.Equal(t, []imap.Flag{imap.FlagSeen}, conn.appendFlag)
}

func TestSendEmailHonorsConfiguredSentFolder(t *testing.T) {
	conn := &stubConn{}
	sender := &fakeSender{sender: "alice@example.com"}

	account := testAccount()
	account.SentFolderName = "Archive/Outbound"
	h := newTestHandler(t, account, conn, sender)

	err := h.SendEmail(context.Background(), SendRequest{
		To:      []string{"bob@example.com"},
		Subject: "hello",
		Body:    "hello bob",
	})
	require.NoError(t, err)

	require.NotEmpty(t, conn.appends)
	assert.Equal(t, "Archive/Outbound", conn.appends[0])
}

func TestSendEmailSkipsMirrorWhenDisabled(t *testing.T) {
	conn := &stubConn{}
	sender := &fakeSender{sender: "alice@example.com"}

	disabled := false
	account := testAccount()
	account.SaveToSent = &disabled
	h := newTestHandler(t, account, conn, sender)

	err := h.SendEmail(context.Background(), SendRequest{
		To:      []string{"bob@example.com"},
		Subject: "hello",
		Body:    "hello bob",
	})
	require.NoError(t, err)
	assert.Empty(t, conn.appends)
}

func TestSendEmailMirrorFailureIsNotAnError(t *testing.T) {
	conn := &stubConn{selectErr: errors.New("NO mailbox does not exist")}
	sender := &fakeSender{sender: "alice@example.com"}
	h := newTestHandler(t, testAccount(), conn, sender)

	err := h.SendEmail(context.Background(), SendRequest{
		To:      []string{"bob@example.com"},
		Subject: "hello",
		Body:    "hello bob",
	})
	assert.NoError(t, err)
	assert.Empty(t, conn.appends)
}

func TestSendEmailSubmissionFailure(t *testing.T) {
	conn := &stubConn{}
	sender := &fakeSender{sender: "alice@example.com", err: errors.New("550 rejected")}
	h := newTestHandler(t, testAccount(), conn, sender)

	err := h.SendEmail(context.Background(), SendRequest{
		To:      []string{"bob@example.com"},
		Subject: "hello",
		Body:    "hello bob",
	})
	require.Error(t, err)
	assert.Empty(t, conn.appends)
}

func TestHealth(t *testing.T) {
	conn := &stubConn{}
	h := newTestHandler(t, testAccount(), conn, &fakeSender{})

	report := h.Health(context.Background())

	assert.True(t, report.Healthy)
	assert.NoError(t, report.Err)
	assert.Equal(t, "imap.example.com", report.Host)
	assert.Equal(t, 993, report.Port)
	assert.False(t, report.Timestamp.IsZero())
}

func TestRegistry(t *testing.T) {
	cfg := config.Config{
		Retry: config.RetryPolicy{
			MaxRetries:     3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			SessionTimeout: time.Hour,
		},
		Accounts: []config.Account{
			{Name: "personal", Incoming: config.Endpoint{Host: "a", Port: 1}, Outgoing: config.Endpoint{Host: "b", Port: 2}},
			{Name: "work", Incoming: config.Endpoint{Host: "c", Port: 3}, Outgoing: config.Endpoint{Host: "d", Port: 4}},
		},
	}

	dialer := session.DialerFunc(func(config.Endpoint) (session.Mailbox, error) {
		return &stubConn{}, nil
	})
	registry := NewRegistry(cfg, dialer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer registry.CloseAll(context.Background())

	assert.Equal(t, []string{"personal", "work"}, registry.Names())

	h, err := registry.Get("work")
	require.NoError(t, err)
	assert.Equal(t, "work", h.Account().Name)

	_, err = registry.Get("unknown")
	assert.Error(t, err)
}
