// Package imapmail reads an INBOX over IMAP.
package imapmail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/bassamadnan/ordermail/mailbox"
)

const (
	defaultPort      = "993"
	defaultBatchSize = 50
)

type Options struct {
	// Server is host or host:port. Port 993 is assumed when missing.
	Server   string
	Username string
	Password string
	// Timeout bounds the dial and every command. Zero means none.
	Timeout time.Duration
	// Insecure dials plain TCP instead of TLS.
	Insecure  bool
	BatchSize int
}

// Source is a mailbox.Source that opens one session per Fetch.
type Source struct {
	opts   Options
	logger *zap.Logger
}

var _ mailbox.Source = (*Source)(nil)

func New(opts Options, logger *zap.Logger) *Source {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{opts: opts, logger: logger.Named("imap").With(zap.String("user", opts.Username))}
}

// Address returns the dial address for server.
func Address(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, defaultPort)
}

func (s *Source) dial() (*client.Client, error) {
	addr := Address(s.opts.Server)
	dialer := &net.Dialer{Timeout: s.opts.Timeout}
	var (
		c   *client.Client
		err error
	)
	if s.opts.Insecure {
		c, err = client.DialWithDialer(dialer, addr)
	} else {
		c, err = client.DialWithDialerTLS(dialer, addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	c.Timeout = s.opts.Timeout
	return c, nil
}

// Fetch logs in, searches INBOX for messages since opts.Since and downloads
// the ones opts keeps, newest first. Cancelling ctx drops the connection.
func (s *Source) Fetch(ctx context.Context, opts mailbox.FetchOptions) ([]mailbox.Message, error) {
	c, err := s.dial()
	if err != nil {
		return nil, err
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Terminate()
		case <-stop:
		}
	}()
	defer func() {
		if err := c.Logout(); err != nil && !errors.Is(err, client.ErrAlreadyLoggedOut) {
			s.logger.Debug("logout failed", zap.Error(err))
		}
	}()

	if err := c.Login(s.opts.Username, s.opts.Password); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	if !opts.Since.IsZero() {
		criteria.Since = opts.Since
	}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })

	wanted := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		if opts.Skip != nil && opts.Skip(strconv.FormatUint(uint64(uid), 10)) {
			continue
		}
		wanted = append(wanted, uid)
	}
	s.logger.Info("searched inbox", zap.Int("found", len(uids)), zap.Int("new", len(wanted)))

	var out []mailbox.Message
	for start := 0; start < len(wanted); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(wanted) {
			end = len(wanted)
		}
		batch, err := s.fetchBatch(c, wanted[start:end])
		if err != nil {
			return out, err
		}
		for _, msg := range batch {
			if !opts.Keep(msg.UID, msg.Date) {
				continue
			}
			out = append(out, msg)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Close is a no-op; sessions do not outlive Fetch.
func (s *Source) Close() error { return nil }

// fetchBatch downloads uids and returns them in the order given.
func (s *Source) fetchBatch(c *client.Client, uids []uint32) ([]mailbox.Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	byUID := make(map[uint32]mailbox.Message, len(uids))
	for m := range messages {
		r := m.GetBody(section)
		if r == nil {
			s.logger.Warn("server returned no body", zap.Uint32("uid", m.Uid))
			continue
		}
		uid := strconv.FormatUint(uint64(m.Uid), 10)
		msg, err := Parse(uid, r, m.InternalDate)
		if err != nil {
			s.logger.Warn("could not parse message", zap.String("uid", uid), zap.Error(err))
			continue
		}
		byUID[m.Uid] = msg
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	out := make([]mailbox.Message, 0, len(byUID))
	for _, uid := range uids {
		if msg, ok := byUID[uid]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Parse decodes a raw RFC 822 message. The body is the first text/html
// part, or the first text/plain part when there is no HTML.
func Parse(uid string, r io.Reader, internalDate time.Time) (mailbox.Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && mr == nil {
		return mailbox.Message{}, err
	}
	defer mr.Close()

	msg := mailbox.Message{UID: uid}
	h := mr.Header
	msg.Subject, _ = h.Subject()
	msg.From, _ = h.Text("From")
	msg.To, _ = h.Text("To")
	if d, err := h.Date(); err == nil && !d.IsZero() {
		msg.Date = d
	} else if d, err := mailbox.ParseDate(h.Get("Date")); err == nil {
		msg.Date = d
	} else {
		msg.Date = internalDate
	}

	var plain string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if msg.Body != "" || plain != "" {
				break
			}
			return msg, fmt.Errorf("read part: %w", err)
		}
		inline, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := inline.ContentType()
		switch strings.ToLower(ct) {
		case "text/html":
			if msg.Body == "" {
				b, _ := io.ReadAll(p.Body)
				msg.Body = string(b)
			}
		case "text/plain", "":
			if plain == "" {
				b, _ := io.ReadAll(p.Body)
				plain = string(b)
			}
		}
	}
	if msg.Body == "" {
		msg.Body = plain
	}
	return msg, nil
}
