// Package telegram implements the destination-side client against the Bot
// API: message delivery, edits and pin management for a single chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pagepin/internal/mirror"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	parseMode      = "MarkdownV2"
)

// ClientOptions configures the Bot API client.
type ClientOptions struct {
	BaseURL    string
	Token      string
	ChatID     int64
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     *zap.Logger
}

// Client talks to the Telegram Bot API for one chat. It implements
// mirror.ChatClient.
type Client struct {
	baseURL    string
	token      string
	chatID     int64
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger
}

// NewClient builds a client with defaults for anything unset.
func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		token:      opts.Token,
		chatID:     opts.ChatID,
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		logger:     logger,
	}
}

var _ mirror.ChatClient = (*Client)(nil)

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type apiMessage struct {
	MessageID int64           `json:"message_id"`
	Poll      json.RawMessage `json:"poll"`
}

type apiChat struct {
	PinnedMessage *apiMessage `json:"pinned_message"`
}

// SendMessage posts a MarkdownV2 message to the chat and returns its id.
func (c *Client) SendMessage(ctx context.Context, text string) (int64, error) {
	payload := map[string]any{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               parseMode,
		"disable_web_page_preview": true,
	}
	var message apiMessage
	if err := c.call(ctx, "sendMessage", payload, &message); err != nil {
		return 0, err
	}
	return message.MessageID, nil
}

// EditMessage replaces an existing message's text. Editing to identical
// content is treated as success.
func (c *Client) EditMessage(ctx context.Context, messageID int64, text string) error {
	payload := map[string]any{
		"chat_id":                  c.chatID,
		"message_id":               messageID,
		"text":                     text,
		"parse_mode":               parseMode,
		"disable_web_page_preview": true,
	}
	err := c.call(ctx, "editMessageText", payload, nil)
	if err != nil && isNotModified(err) {
		return nil
	}
	return err
}

// PinMessage pins a message without notifying chat members.
func (c *Client) PinMessage(ctx context.Context, messageID int64) error {
	payload := map[string]any{
		"chat_id":              c.chatID,
		"message_id":           messageID,
		"disable_notification": true,
	}
	return c.call(ctx, "pinChatMessage", payload, nil)
}

// UnpinMessage removes a specific message from the pinned slot.
func (c *Client) UnpinMessage(ctx context.Context, messageID int64) error {
	payload := map[string]any{
		"chat_id":    c.chatID,
		"message_id": messageID,
	}
	return c.call(ctx, "unpinChatMessage", payload, nil)
}

// DeleteMessage removes a message from the chat entirely.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	payload := map[string]any{
		"chat_id":    c.chatID,
		"message_id": messageID,
	}
	return c.call(ctx, "deleteMessage", payload, nil)
}

// PinnedMessage reports the chat's pinned slot, or nil when nothing is
// pinned.
func (c *Client) PinnedMessage(ctx context.Context) (*mirror.PinnedMessage, error) {
	payload := map[string]any{"chat_id": c.chatID}
	var chat apiChat
	if err := c.call(ctx, "getChat", payload, &chat); err != nil {
		return nil, err
	}
	if chat.PinnedMessage == nil {
		return nil, nil
	}
	return &mirror.PinnedMessage{
		MessageID: chat.PinnedMessage.MessageID,
		IsPoll:    len(chat.PinnedMessage.Poll) > 0,
	}, nil
}

// MessageURL builds the t.me deep link for a message in this chat.
// Supergroup chat ids carry a -100 prefix that the link format drops.
func (c *Client) MessageURL(messageID int64) string {
	chatPart := strconv.FormatInt(c.chatID, 10)
	chatPart = strings.TrimPrefix(chatPart, "-100")
	chatPart = strings.TrimPrefix(chatPart, "-")
	return fmt.Sprintf("https://t.me/c/%s/%d", chatPart, messageID)
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := c.baseURL + "/bot" + c.token + "/" + method

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, 0)); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("%w: telegram %s: %v", mirror.ErrTransient, method, err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		var parsed apiResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("telegram %s: decode response: %w", method, err)
		}
		if parsed.OK {
			if out != nil && len(parsed.Result) > 0 {
				if err := json.Unmarshal(parsed.Result, out); err != nil {
					return fmt.Errorf("telegram %s: decode result: %w", method, err)
				}
			}
			return nil
		}

		apiErr := callError(method, parsed)
		if shouldRetry(parsed) && attempt < c.maxRetries {
			retryAfter := 0
			if parsed.Parameters != nil {
				retryAfter = parsed.Parameters.RetryAfter
			}
			c.logger.Warn("bot api call retrying",
				zap.String("method", method),
				zap.Int("error_code", parsed.ErrorCode),
				zap.Int("retry_after_s", retryAfter))
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, retryAfter)); waitErr != nil {
				return waitErr
			}
			continue
		}
		return apiErr
	}
}

func callError(method string, parsed apiResponse) error {
	description := parsed.Description
	lowered := strings.ToLower(description)
	switch {
	case parsed.ErrorCode == http.StatusBadRequest && strings.Contains(lowered, "message is too long"):
		return fmt.Errorf("%w: telegram %s: %s", mirror.ErrPayloadTooLarge, method, description)
	case parsed.ErrorCode == http.StatusBadRequest && strings.Contains(lowered, "message to edit not found"):
		return fmt.Errorf("%w: telegram %s: %s", mirror.ErrNotFound, method, description)
	case parsed.ErrorCode == http.StatusNotFound:
		return fmt.Errorf("%w: telegram %s: %s", mirror.ErrNotFound, method, description)
	case parsed.ErrorCode == http.StatusUnauthorized || parsed.ErrorCode == http.StatusForbidden:
		return fmt.Errorf("%w: telegram %s: %s", mirror.ErrPermanent, method, description)
	case parsed.ErrorCode == http.StatusTooManyRequests || parsed.ErrorCode >= 500:
		return fmt.Errorf("%w: telegram %s: %s", mirror.ErrTransient, method, description)
	default:
		return fmt.Errorf("telegram %s failed: code=%d description=%s", method, parsed.ErrorCode, description)
	}
}

func shouldRetry(parsed apiResponse) bool {
	return parsed.ErrorCode == http.StatusTooManyRequests || parsed.ErrorCode >= 500
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

func (c *Client) retryDelay(attempt, retryAfterSeconds int) time.Duration {
	if retryAfterSeconds > 0 {
		delay := time.Duration(retryAfterSeconds) * time.Second
		if delay > c.maxDelay {
			return c.maxDelay
		}
		return delay
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
