package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"

	"github.com/hickar/mailagent/internal/app/config"
)

const searchDateLayout = "02-Jan-2006"

// DialIMAP connects to an IMAP endpoint honoring its transport-security
// mode and returns a Mailbox ready for Login. It satisfies DialerFunc.
func DialIMAP(endpoint config.Endpoint) (Mailbox, error) {
	options := &imapclient.Options{
		TLSConfig:   &tls.Config{ServerName: endpoint.Host},
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	var (
		client *imapclient.Client
		err    error
	)
	switch {
	case endpoint.UseSSL:
		client, err = imapclient.DialTLS(endpoint.Addr(), options)
	case endpoint.StartTLS:
		client, err = imapclient.DialStartTLS(endpoint.Addr(), options)
	default:
		client, err = imapclient.DialInsecure(endpoint.Addr(), options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint.Addr(), err)
	}

	return &imapMailbox{client: client}, nil
}

// imapMailbox adapts imapclient.Client to the Mailbox transport.
// Mailbox-name quoting is performed by the client's wire encoder.
type imapMailbox struct {
	client *imapclient.Client
}

func (m *imapMailbox) Login(username, password string) error {
	return m.client.Login(username, password).Wait()
}

func (m *imapMailbox) Logout() error {
	if err := m.client.Logout().Wait(); err != nil {
		// The server may drop the connection before answering BYE;
		// make sure the socket is released either way.
		_ = m.client.Close()
		return err
	}
	return m.client.Close()
}

func (m *imapMailbox) Noop(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- m.client.Noop().Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *imapMailbox) Select(name string) error {
	if _, err := m.client.Select(name, nil).Wait(); err != nil {
		return fmt.Errorf("select %s: %w", QuoteMailbox(name), err)
	}
	return nil
}

func (m *imapMailbox) Search(tokens []string) ([]imap.UID, error) {
	criteria, err := tokensToCriteria(tokens)
	if err != nil {
		return nil, err
	}

	data, err := m.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}

	return data.AllUIDs(), nil
}

func (m *imapMailbox) Fetch(uid imap.UID, spec FetchSpec) ([]byte, error) {
	options, err := fetchOptionsFor(spec)
	if err != nil {
		return nil, err
	}

	fetchCmd := m.client.Fetch(imap.UIDSetNum(uid), options)

	var raw []byte
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		for {
			item := msg.Next()
			if item == nil {
				break
			}

			if section, ok := item.(imapclient.FetchItemDataBodySection); ok {
				raw, err = io.ReadAll(section.Literal)
				if err != nil {
					return nil, fmt.Errorf("read literal: %w", err)
				}
			}
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", spec, err)
	}

	return raw, nil
}

func (m *imapMailbox) Store(uid imap.UID, op imap.StoreFlagsOp, flags ...imap.Flag) error {
	storeCmd := m.client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:    op,
		Flags: flags,
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("store flags: %w", err)
	}
	return nil
}

func (m *imapMailbox) Expunge() error {
	if err := m.client.Expunge().Close(); err != nil {
		return fmt.Errorf("expunge: %w", err)
	}
	return nil
}

func (m *imapMailbox) Append(name string, raw []byte, flags ...imap.Flag) error {
	appendCmd := m.client.Append(name, int64(len(raw)), &imap.AppendOptions{Flags: flags})
	if _, err := appendCmd.Write(raw); err != nil {
		return fmt.Errorf("write append literal: %w", err)
	}
	if err := appendCmd.Close(); err != nil {
		return fmt.Errorf("close append literal: %w", err)
	}
	if _, err := appendCmd.Wait(); err != nil {
		return fmt.Errorf("append to %s: %w", QuoteMailbox(name), err)
	}
	return nil
}

func (m *imapMailbox) List() ([]FolderInfo, error) {
	listCmd := m.client.List("", "*", nil)
	mailboxes, err := listCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}

	folders := make([]FolderInfo, 0, len(mailboxes))
	for _, mb := range mailboxes {
		folders = append(folders, FolderInfo{
			Name:  mb.Mailbox,
			Attrs: mb.Attrs,
		})
	}

	return folders, nil
}

func fetchOptionsFor(spec FetchSpec) (*imap.FetchOptions, error) {
	switch spec {
	case FetchSpecRFC822, FetchSpecBody:
		return &imap.FetchOptions{
			BodySection: []*imap.FetchItemBodySection{{}},
		}, nil
	case FetchSpecBodyPeek:
		return &imap.FetchOptions{
			BodySection: []*imap.FetchItemBodySection{{Peek: true}},
		}, nil
	case FetchSpecHeader:
		return &imap.FetchOptions{
			BodySection: []*imap.FetchItemBodySection{{
				Specifier: imap.PartSpecifierHeader,
				Peek:      true,
			}},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported fetch spec %q", spec)
	}
}

// tokensToCriteria maps an ordered search-token sequence onto the
// client library's criteria representation.
func tokensToCriteria(tokens []string) (*imap.SearchCriteria, error) {
	criteria := &imap.SearchCriteria{}

	for i := 0; i < len(tokens); i++ {
		keyword := strings.ToUpper(tokens[i])
		if keyword == "ALL" {
			continue
		}

		if i+1 >= len(tokens) {
			return nil, fmt.Errorf("search token %q is missing its value", keyword)
		}
		value := tokens[i+1]
		i++

		switch keyword {
		case "BEFORE":
			date, err := parseSearchDate(value)
			if err != nil {
				return nil, fmt.Errorf("parse BEFORE date: %w", err)
			}
			criteria.Before = date
		case "SINCE":
			date, err := parseSearchDate(value)
			if err != nil {
				return nil, fmt.Errorf("parse SINCE date: %w", err)
			}
			criteria.Since = date
		case "SUBJECT":
			criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "Subject", Value: value})
		case "BODY":
			criteria.Body = append(criteria.Body, value)
		case "TEXT":
			criteria.Text = append(criteria.Text, value)
		case "FROM":
			criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "From", Value: value})
		case "TO":
			criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "To", Value: value})
		default:
			return nil, fmt.Errorf("unsupported search token %q", keyword)
		}
	}

	return criteria, nil
}

// parseSearchDate reads the protocol's uppercased day-month-year form
// (e.g. "02-JAN-2006") produced by the criteria builder.
func parseSearchDate(s string) (time.Time, error) {
	if len(s) != len(searchDateLayout) {
		return time.Time{}, fmt.Errorf("malformed search date %q", s)
	}

	normalized := s[:4] + strings.ToLower(s[4:6]) + s[6:]
	date, err := time.Parse(searchDateLayout, normalized)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed search date %q: %w", s, err)
	}
	return date, nil
}
