package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"mailsift/internal/models"
)

const apiBase = "https://gmail.googleapis.com/gmail/v1"

// Client is a bearer-token Gmail REST client scoped to the authenticated
// user ("me"). One client serves one access token; handlers construct a fresh
// client per request from the session's token source.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		baseURL:    apiBase,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Profile fetches the account profile, which doubles as the credential check
// at the start of a pipeline run.
func (c *Client) Profile(ctx context.Context) (string, error) {
	var profile Profile
	if err := c.request(ctx, http.MethodGet, "/users/me/profile", nil, &profile); err != nil {
		return "", fmt.Errorf("failed to fetch profile: %w", err)
	}
	return profile.EmailAddress, nil
}

// ListInbox returns the IDs of up to max inbox messages, newest first.
func (c *Client) ListInbox(ctx context.Context, max int) ([]string, error) {
	path := fmt.Sprintf("/users/me/messages?labelIds=INBOX&maxResults=%d", max)

	var list messageList
	if err := c.request(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(list.Messages))
	for _, ref := range list.Messages {
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

// GetMessage fetches one message in full format, raw wire shape.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	path := fmt.Sprintf("/users/me/messages/%s?format=full", url.PathEscape(id))

	var msg Message
	if err := c.request(ctx, http.MethodGet, path, nil, &msg); err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	return &msg, nil
}

// FetchMessage fetches one message and decodes its headers and body into the
// provider-independent shape the pipeline consumes.
func (c *Client) FetchMessage(ctx context.Context, id string) (*models.InboxMessage, error) {
	msg, err := c.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.InboxMessage{
		ID:      msg.ID,
		Subject: msg.HeaderValue("Subject"),
		From:    msg.HeaderValue("From"),
		Date:    msg.HeaderValue("Date"),
		Body:    DecodeParts(msg.Payload),
	}, nil
}

// Archive removes the INBOX label from a message, leaving it in All Mail.
func (c *Client) Archive(ctx context.Context, id string) error {
	path := fmt.Sprintf("/users/me/messages/%s/modify", url.PathEscape(id))
	body := map[string]any{"removeLabelIds": []string{"INBOX"}}

	if err := c.request(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to archive message %s: %w", id, err)
	}
	return nil
}

// Trash moves a message to the trash.
func (c *Client) Trash(ctx context.Context, id string) error {
	path := fmt.Sprintf("/users/me/messages/%s/trash", url.PathEscape(id))

	if err := c.request(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("failed to trash message %s: %w", id, err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		json.Unmarshal(raw, &apiErr)
		if apiErr.Error.Message != "" {
			return fmt.Errorf("gmail API: %s", apiErr.Error.Message)
		}
		return fmt.Errorf("gmail API: %s", resp.Status)
	}

	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}
