// Package gmail reads a Gmail inbox through the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/bassamadnan/ordermail/atomicfile"
	"github.com/bassamadnan/ordermail/mailbox"
)

const (
	DefaultTokenFile       = "token.json"
	DefaultCredentialsFile = "credentials.json"
	user                   = "me"
	pageSize               = 100
)

type Options struct {
	CredentialsFile string
	TokenFile       string
	// Timeout bounds each API request. Zero means no timeout.
	Timeout time.Duration
	// In and Out are used for the one-time authorization prompt.
	In  io.Reader
	Out io.Writer
}

// Client is a mailbox.Source over the authenticated user's inbox.
type Client struct {
	srv    *gmail.Service
	logger *zap.Logger
}

var _ mailbox.Source = (*Client)(nil)

func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	if opts.CredentialsFile == "" {
		opts.CredentialsFile = DefaultCredentialsFile
	}
	if opts.TokenFile == "" {
		opts.TokenFile = DefaultTokenFile
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	b, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	httpClient, err := getOAuthClient(ctx, oauthConfig, opts)
	if err != nil {
		return nil, err
	}
	httpClient.Timeout = opts.Timeout
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return NewWithService(srv, logger), nil
}

// NewWithService wraps an already configured service.
func NewWithService(srv *gmail.Service, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{srv: srv, logger: logger.Named("gmail")}
}

func getOAuthClient(ctx context.Context, config *oauth2.Config, opts Options) (*http.Client, error) {
	tok, err := tokenFromFile(opts.TokenFile)
	if err != nil {
		tok, err = getTokenFromWeb(ctx, config, opts.In, opts.Out)
		if err != nil {
			return nil, err
		}
		if err := saveToken(opts.TokenFile, tok); err != nil {
			return nil, err
		}
		fmt.Fprintf(opts.Out, "Saved credential file to: %s\n", opts.TokenFile)
	}
	return config.Client(context.Background(), tok), nil
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)
	var authCode string
	if _, err := fmt.Fscan(in, &authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}
	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(path, data, 0o600); err != nil {
		return fmt.Errorf("unable to save oauth token: %w", err)
	}
	return nil
}

// Query is the search expression for messages received since the cutoff.
func Query(since time.Time) string {
	if since.IsZero() {
		return "in:inbox"
	}
	return fmt.Sprintf("in:inbox after:%d", since.Unix())
}

// Fetch lists the inbox newest first and downloads every message that
// opts keeps. A message that fails to download is logged and skipped.
func (c *Client) Fetch(ctx context.Context, opts mailbox.FetchOptions) ([]mailbox.Message, error) {
	q := Query(opts.Since)
	var (
		out       []mailbox.Message
		pageToken string
		listed    int
	)
	for {
		call := c.srv.Users.Messages.List(user).Q(q).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		list, err := call.Do()
		if err != nil {
			return out, fmt.Errorf("list messages: %w", err)
		}
		for _, m := range list.Messages {
			listed++
			if opts.Skip != nil && opts.Skip(m.Id) {
				continue
			}
			full, err := c.srv.Users.Messages.Get(user, m.Id).Format("full").Context(ctx).Do()
			if err != nil {
				c.logger.Warn("unable to retrieve message", zap.String("id", m.Id), zap.Error(err))
				continue
			}
			msg := c.parseMessage(full)
			if !opts.Keep(msg.UID, msg.Date) {
				continue
			}
			out = append(out, msg)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				return out, nil
			}
		}
		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}
	c.logger.Info("fetched messages", zap.String("query", q), zap.Int("listed", listed), zap.Int("new", len(out)))
	return out, nil
}

func (c *Client) Close() error { return nil }

func (c *Client) parseMessage(msg *gmail.Message) mailbox.Message {
	out := mailbox.Message{UID: msg.Id}
	if msg.Payload == nil {
		return out
	}
	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			out.Subject = header.Value
		case "from":
			out.From = header.Value
		case "to":
			out.To = header.Value
		case "date":
			parsed, err := mailbox.ParseDate(header.Value)
			if err != nil {
				c.logger.Warn("could not parse date header", zap.String("id", msg.Id), zap.Error(err))
				continue
			}
			out.Date = parsed
		}
	}
	if out.Date.IsZero() && msg.InternalDate > 0 {
		out.Date = time.UnixMilli(msg.InternalDate)
	}
	out.Body = body(msg.Payload, "text/html")
	if out.Body == "" {
		out.Body = body(msg.Payload, "text/plain")
	}
	return out
}

// body returns the first part of mimeType found walking the tree depth first.
func body(payload *gmail.MessagePart, mimeType string) string {
	if strings.EqualFold(payload.MimeType, mimeType) && payload.Body != nil && payload.Body.Data != "" {
		if data, ok := decode(payload.Body.Data); ok {
			return string(data)
		}
	}
	for _, part := range payload.Parts {
		mt := strings.ToLower(part.MimeType)
		if strings.HasPrefix(mt, "text/") || strings.HasPrefix(mt, "multipart/") {
			if b := body(part, mimeType); b != "" {
				return b
			}
		}
	}
	return ""
}

func decode(data string) ([]byte, bool) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, true
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return b, true
	}
	return nil, false
}
