// Package mailbox defines the contract between mail sources and the
// pipeline.
package mailbox

import (
	"context"
	"time"
)

// Message is a fetched message as the pipeline consumes it.
type Message struct {
	UID     string // unique within one mailbox
	From    string
	To      string
	Date    time.Time
	Subject string
	// Body is the raw message body, HTML when the message had an HTML part.
	Body string
}

// FetchOptions narrows what a source downloads.
type FetchOptions struct {
	// Since drops messages dated before it. Zero means no cutoff.
	Since time.Time
	// Skip is consulted with each UID before the body is downloaded.
	Skip func(uid string) bool
	// Limit caps the number of returned messages. Zero means no limit.
	Limit int
}

func (o FetchOptions) skip(uid string) bool {
	return o.Skip != nil && o.Skip(uid)
}

// Keep applies Skip and Since to a message whose headers are known.
// Messages with an unknown date are kept.
func (o FetchOptions) Keep(uid string, date time.Time) bool {
	if o.skip(uid) {
		return false
	}
	if !o.Since.IsZero() && !date.IsZero() && date.Before(o.Since) {
		return false
	}
	return true
}

// Source fetches messages for one mailbox, newest first.
type Source interface {
	Fetch(ctx context.Context, opts FetchOptions) ([]Message, error)
	Close() error
}
