package mail

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPClient wraps go-imap v2 for connecting to and querying IMAP
// servers.
type IMAPClient struct {
	host     string
	port     int
	username string
	password string
	tls      bool
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(host string, port int, username, password string, tls bool) *IMAPClient {
	return &IMAPClient{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// FetchOptions controls a mailbox fetch.
type FetchOptions struct {
	// Since restricts the search to messages received on or after this
	// instant; nil fetches the whole mailbox (a full rescan).
	Since *time.Time

	// SenderPatterns is an optional prefilter; when non-empty, only
	// messages whose From header matches one of the patterns are
	// returned. Patterns are matched case-insensitively.
	SenderPatterns []string

	// Max caps the number of returned messages, most recent first.
	Max int
}

// dialTimeout bounds the TCP dial when the context carries no deadline
// of its own.
const dialTimeout = 30 * time.Second

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The context deadline bounds the
// whole handshake; a server that stops responding mid-greeting or
// mid-login does not hold the caller past it. The caller is
// responsible for calling Logout on the returned client.
func (c *IMAPClient) Connect(ctx context.Context) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)

	dialer := &net.Dialer{Timeout: dialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	opts := &imapclient.Options{Dialer: dialer}

	// The dial runs in a goroutine so a server that accepts the
	// connection but never sends a greeting cannot block past the
	// context deadline.
	type dialResult struct {
		client *imapclient.Client
		err    error
	}
	dialCh := make(chan dialResult, 1)
	go func() {
		var client *imapclient.Client
		var err error
		if c.tls {
			client, err = imapclient.DialTLS(addr, opts)
		} else {
			client, err = imapclient.DialStartTLS(addr, opts)
		}
		dialCh <- dialResult{client: client, err: err}
	}()

	var client *imapclient.Client
	select {
	case <-ctx.Done():
		// Reap the abandoned connection whenever the dial resolves.
		go func() {
			if res := <-dialCh; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, ctx.Err())
	case res := <-dialCh:
		if res.err != nil {
			return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, res.err)
		}
		client = res.client
	}

	stop := closeOnCancel(ctx, client)
	defer stop()

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, ctxErr)
		}
		return nil, fmt.Errorf("authentication failed for %s: %w", c.username, err)
	}

	return client, nil
}

// closeOnCancel force-closes the connection when ctx expires,
// unblocking any command blocked in Wait. The returned stop function
// ends the watch.
func closeOnCancel(ctx context.Context, client *imapclient.Client) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = client.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// FetchMessages connects to IMAP, selects INBOX, searches for messages
// matching the options, and returns them parsed and normalized, most
// recent first. Individual messages that fail to fetch or parse are
// skipped rather than failing the batch.
func (c *IMAPClient) FetchMessages(ctx context.Context, opts FetchOptions) ([]*NormalizedMessage, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	// Unblock the command sequence below if the context expires while
	// the server is not responding.
	stop := closeOnCancel(ctx, client)
	defer stop()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("selecting INBOX: %w", ctxErr)
		}
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	criteria := &imap.SearchCriteria{}
	if opts.Since != nil {
		criteria.Since = *opts.Since
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("searching messages: %w", ctxErr)
		}
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	// Take the most recent UIDs up to the cap.
	if opts.Max > 0 && len(uids) > opts.Max {
		uids = uids[len(uids)-opts.Max:]
	}
	// Most recent first.
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}

	senderRes := compileSenderPatterns(opts.SenderPatterns)

	uidSet := imap.UIDSetNum(uids...)
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var messages []*NormalizedMessage
	for {
		fm := fetchCmd.Next()
		if fm == nil {
			break
		}

		buf, err := fm.Collect()
		if err != nil {
			continue
		}

		raw := buf.FindBodySection(bodySection)
		if raw == nil {
			continue
		}

		msg := ParseMessage(raw)
		fillFromEnvelope(msg, buf)

		if len(senderRes) > 0 && !matchesAny(senderRes, msg.Sender) {
			continue
		}

		messages = append(messages, msg)
	}

	if err := fetchCmd.Close(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return messages, fmt.Errorf("fetching messages: %w", ctxErr)
		}
		return messages, fmt.Errorf("fetching messages: %w", err)
	}

	return messages, nil
}

// fillFromEnvelope backfills header fields from the IMAP envelope when
// MIME parsing did not yield them.
func fillFromEnvelope(msg *NormalizedMessage, buf *imapclient.FetchMessageBuffer) {
	if buf.Envelope == nil {
		if msg.MessageID == "" {
			msg.MessageID = fmt.Sprintf("imap-uid-%d", buf.UID)
		}
		return
	}

	if msg.MessageID == "" {
		msg.MessageID = buf.Envelope.MessageID
	}
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("imap-uid-%d", buf.UID)
	}
	if msg.Subject == "" {
		msg.Subject = buf.Envelope.Subject
	}
	if msg.Sender == "" && len(buf.Envelope.From) > 0 {
		msg.Sender = buf.Envelope.From[0].Addr()
	}
	if msg.ReceivedAt == nil && !buf.Envelope.Date.IsZero() {
		date := buf.Envelope.Date
		msg.ReceivedAt = &date
	}
}

func compileSenderPatterns(patterns []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			continue
		}
		res = append(res, re)
	}
	return res
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
