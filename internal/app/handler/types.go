package handler

import (
	"time"

	"github.com/hickar/mailagent/internal/app/composer"
	"github.com/hickar/mailagent/internal/app/mailbox"
)

// ListRequest selects a page of message metadata from one mailbox.
// Zero Page and PageSize fall back to the first page of ten.
type ListRequest struct {
	Mailbox  string
	Page     int
	PageSize int
	Order    string
	Before   time.Time
	Since    time.Time
	Subject  string
	Body     string
	Text     string
	From     string
	To       string
}

// MetadataPage is one page of envelopes plus the filter echo and the
// independently computed total match count.
type MetadataPage struct {
	Page     int
	PageSize int
	Before   time.Time
	Since    time.Time
	Subject  string
	Emails   []mailbox.Envelope
	Total    int
}

// ContentBatch collects per-identifier content retrieval results.
// Individual failures land in FailedIDs instead of aborting the batch.
type ContentBatch struct {
	Emails         []mailbox.Content
	RequestedCount int
	RetrievedCount int
	FailedIDs      []string
}

// SendRequest is one outbound message submission.
type SendRequest struct {
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

func (r SendRequest) message() composer.Message {
	return composer.Message{
		To:          r.To,
		CC:          r.CC,
		BCC:         r.BCC,
		Subject:     r.Subject,
		Body:        r.Body,
		HTML:        r.HTML,
		Attachments: r.Attachments,
		InReplyTo:   r.InReplyTo,
		References:  r.References,
	}
}

// DeleteResult partitions a deletion request into identifiers that were
// removed and identifiers that could not be.
type DeleteResult struct {
	Deleted []string
	Failed  []string
}

// Health is one liveness report for an account's retrieval connection.
type Health struct {
	Healthy      bool
	Timestamp    time.Time
	Host         string
	Port         int
	ResponseTime time.Duration
	LastActivity time.Time
	Err          error
}
