package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseModeHTML selects Telegram's HTML subset for message text.
const ParseModeHTML = "HTML"

// MaxMessageLength is the Bot API limit on sendMessage text.
const MaxMessageLength = 4096

// ErrAPI is returned when the Bot API answers ok=false.
var ErrAPI = errors.New("telegram api error")

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// User is the sender of a message.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Message is the subset of a Bot API message the bot reads.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// Update is one entry returned by getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Client calls the Telegram Bot API over HTTPS.
type Client struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewClient builds a Bot API client. timeout bounds sendMessage calls; long
// polls get their own deadline derived from the poll timeout.
func NewClient(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &Client{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "telegram_client").Logger(),
	}
}

// SendMessage posts text to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	return c.call(ctx, c.client, "sendMessage", payload, nil)
}

// GetUpdates long-polls for new updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	seconds := int(timeout / time.Second)
	payload := map[string]any{
		"offset":          offset,
		"timeout":         seconds,
		"allowed_updates": []string{"message"},
	}

	// The HTTP deadline must outlast the server-side long poll.
	pollClient := &http.Client{Timeout: timeout + c.client.Timeout}

	var updates []Update
	if err := c.call(ctx, pollClient, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, hc *http.Client, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, redact(err, c.botToken))
	}
	defer resp.Body.Close()

	var res apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&res)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && res.Description != "" {
			return fmt.Errorf("%w: %s returned %d: %s", ErrAPI, method, resp.StatusCode, res.Description)
		}
		return fmt.Errorf("%w: %s returned %d", ErrAPI, method, resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode telegram %s response: %w", method, decodeErr)
	}
	if !res.OK {
		return fmt.Errorf("%w: %s returned ok=false: %s", ErrAPI, method, res.Description)
	}

	if result != nil && len(res.Result) > 0 {
		if err := json.Unmarshal(res.Result, result); err != nil {
			return fmt.Errorf("decode telegram %s result: %w", method, err)
		}
	}
	c.logger.Debug().Str("method", method).Msg("telegram call complete")
	return nil
}

// redact strips the bot token from transport errors, which embed the URL.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}
