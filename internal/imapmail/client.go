// Package imapmail provides the IMAP implementation of the pipeline's
// Mailbox interface, for deployments that are not backed by Gmail. Archiving
// moves the message to the configured archive folder.
package imapmail

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"mailsift/internal/models"
)

type Config struct {
	Server        string
	Port          int
	UseSSL        bool
	Username      string
	Password      string
	ArchiveFolder string
}

type Client struct {
	imap   *client.Client
	config Config
}

// Dial connects and logs in. The caller owns the connection and must Close it.
func Dial(config Config) (*Client, error) {
	serverAddr := fmt.Sprintf("%s:%d", config.Server, config.Port)

	var (
		c   *client.Client
		err error
	)
	if config.UseSSL {
		c, err = client.DialTLS(serverAddr, nil)
	} else {
		c, err = client.Dial(serverAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("connection failed to %s: %w", serverAddr, err)
	}

	if err := c.Login(config.Username, config.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	return &Client{imap: c, config: config}, nil
}

func (c *Client) Close() error {
	return c.imap.Logout()
}

// Profile verifies the authenticated connection is still usable and returns
// the account address.
func (c *Client) Profile(ctx context.Context) (string, error) {
	if err := c.imap.Noop(); err != nil {
		return "", fmt.Errorf("connection check failed: %w", err)
	}
	return c.config.Username, nil
}

// ListInbox returns the UIDs of up to max inbox messages, newest first.
func (c *Client) ListInbox(ctx context.Context, max int) ([]string, error) {
	mbox, err := c.imap.Select("INBOX", false)
	if err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	if mbox.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(max) {
		from = mbox.Messages - uint32(max) + 1
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, mbox.Messages)

	messages := make(chan *imap.Message, max)
	done := make(chan error, 1)
	go func() {
		done <- c.imap.Fetch(seqSet, []imap.FetchItem{imap.FetchUid}, messages)
	}()

	var ids []string
	for msg := range messages {
		ids = append(ids, strconv.FormatUint(uint64(msg.Uid), 10))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	// Newest first, matching the REST provider's ordering.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids, nil
}

// FetchMessage fetches one message by UID and parses its MIME parts into the
// provider-independent shape.
func (c *Client) FetchMessage(ctx context.Context, id string) (*models.InboxMessage, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", id, err)
	}

	if _, err := c.imap.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.imap.UidFetch(seqSet, items, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("message %s not found", id)
	}

	result := &models.InboxMessage{ID: id}
	if msg.Envelope != nil {
		result.Subject = msg.Envelope.Subject
		result.Date = msg.Envelope.Date.String()
		if len(msg.Envelope.From) > 0 {
			result.From = msg.Envelope.From[0].Address()
		}
	}

	body, err := parseBody(msg.GetBody(section))
	if err != nil {
		return nil, err
	}
	result.Body = body

	return result, nil
}

// Archive moves the message out of INBOX into the archive folder.
func (c *Client) Archive(ctx context.Context, id string) error {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", id, err)
	}

	if _, err := c.imap.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select INBOX: %w", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	if err := c.imap.UidMove(seqSet, c.config.ArchiveFolder); err != nil {
		return fmt.Errorf("failed to archive message %s: %w", id, err)
	}
	return nil
}

// Trash moves the message into the Trash folder.
func (c *Client) Trash(ctx context.Context, id string) error {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", id, err)
	}

	if _, err := c.imap.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select INBOX: %w", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	if err := c.imap.UidMove(seqSet, "Trash"); err != nil {
		return fmt.Errorf("failed to trash message %s: %w", id, err)
	}
	return nil
}

// parseBody reads the raw message and keeps the last text/plain and text/html
// inline parts, mirroring the REST decoder's last-write-wins behavior.
func parseBody(r io.Reader) (models.Body, error) {
	var body models.Body

	if r == nil {
		return body, fmt.Errorf("no message body")
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return body, fmt.Errorf("failed to parse message: %w", err)
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return body, fmt.Errorf("failed to read message part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, err := h.ContentType()
		if err != nil {
			continue
		}

		content, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}

		switch contentType {
		case "text/plain":
			body.Text = string(content)
		case "text/html":
			body.HTML = string(content)
		}
	}

	return body, nil
}
