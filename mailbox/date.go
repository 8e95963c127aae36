package mailbox

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC1123,
	time.RFC822,
}

// ParseDate parses a Date header. Servers emit a surprising range of
// formats, so net/mail is tried first and then a list of known layouts,
// with and without a trailing "(TZ)" comment.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date header")
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t, nil
	}
	candidates := []string{value}
	if openParen := strings.LastIndex(value, " ("); openParen != -1 {
		if closeParen := strings.LastIndex(value, ")"); closeParen > openParen {
			candidates = append(candidates, strings.TrimSpace(value[:openParen]+value[closeParen+1:]))
		}
	}
	for _, c := range candidates {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}
