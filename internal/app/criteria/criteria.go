// Package criteria translates structured search filters into the
// ordered token sequence the retrieval-protocol transport evaluates.
package criteria

import (
	"strings"
	"time"
)

const dateLayout = "02-Jan-2006"

// Filter carries optional search bounds and substrings. Zero values
// mean "not set". It is a stateless value object consumed once per
// Build call.
type Filter struct {
	Before  time.Time
	Since   time.Time
	Subject string
	Body    string
	Text    string
	From    string
	To      string
}

// IsZero reports whether no field of the filter is set.
func (f Filter) IsZero() bool {
	return f.Before.IsZero() && f.Since.IsZero() &&
		f.Subject == "" && f.Body == "" && f.Text == "" &&
		f.From == "" && f.To == ""
}

// Build renders the filter as an ordered sequence of search tokens.
// Present fields append a (KEYWORD, value) pair in the fixed order
// BEFORE, SINCE, SUBJECT, BODY, TEXT, FROM, TO; dates use the
// protocol's uppercased day-month-year form. An empty filter yields
// the single "ALL" token. Build is deterministic and performs no I/O.
func Build(f Filter) []string {
	var tokens []string

	if !f.Before.IsZero() {
		tokens = append(tokens, "BEFORE", formatDate(f.Before))
	}
	if !f.Since.IsZero() {
		tokens = append(tokens, "SINCE", formatDate(f.Since))
	}
	if f.Subject != "" {
		tokens = append(tokens, "SUBJECT", f.Subject)
	}
	if f.Body != "" {
		tokens = append(tokens, "BODY", f.Body)
	}
	if f.Text != "" {
		tokens = append(tokens, "TEXT", f.Text)
	}
	if f.From != "" {
		tokens = append(tokens, "FROM", f.From)
	}
	if f.To != "" {
		tokens = append(tokens, "TO", f.To)
	}

	if len(tokens) == 0 {
		return []string{"ALL"}
	}

	return tokens
}

func formatDate(t time.Time) string {
	return strings.ToUpper(t.Format(dateLayout))
}
