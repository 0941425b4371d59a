// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram implements the subset of the Telegram Bot API the bot
// needs: long polling for updates and message delivery with rate limit
// handling.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.solispartners.kz/bot/internal/logger"
	"go.solispartners.kz/bot/internal/request"
	"go.solispartners.kz/bot/internal/version"
)

const (
	defaultAPI     = "https://api.telegram.org"
	sendRetryLimit = 5 // N attempts to retry message sending

	// MaxMessageLen is the Telegram limit on message length in runes.
	MaxMessageLen = 4096
)

// Config configures a [Client].
type Config struct {
	Token      string
	BaseURL    string // defaults to https://api.telegram.org
	HTTPClient *http.Client
	Scrubber   *strings.Replacer
	Logf       logger.Logf
}

// Client talks to the Telegram Bot API.
type Client struct {
	token       string
	baseURL     string
	httpc       *http.Client
	scrubber    *strings.Replacer
	logf        logger.Logf
	makeRequest func(context.Context, string, any) (json.RawMessage, error)
	sleep       func(context.Context, time.Duration) bool
}

// New returns a Client for the bot identified by the token.
func New(cfg Config) *Client {
	c := &Client{
		token:    cfg.Token,
		baseURL:  cfg.BaseURL,
		httpc:    cfg.HTTPClient,
		scrubber: cfg.Scrubber,
		logf:     cfg.Logf,
	}
	if c.baseURL == "" {
		c.baseURL = defaultAPI
	}
	if c.httpc == nil {
		c.httpc = request.DefaultClient
	}
	if c.logf == nil {
		c.logf = logger.Logf(func(format string, args ...any) {})
	}
	c.makeRequest = c.makeTelegramRequest
	c.sleep = sleep
	return c
}

// Update is an incoming event from the getUpdates method.
type Update struct {
	ID            int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// Message is an incoming or replied-to message.
type Message struct {
	ID   int64  `json:"message_id"`
	From *User  `json:"from"`
	Chat Chat   `json:"chat"`
	Text string `json:"text"`
}

// User is a Telegram user.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// Chat is a Telegram chat.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// CallbackQuery is a press on an inline keyboard button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// InlineKeyboard is rows of inline buttons attached to a message.
type InlineKeyboard [][]Button

// Button is an inline keyboard button. Exactly one of URL or CallbackData
// must be set.
type Button struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// OutgoingMessage is a message to deliver via the sendMessage method.
type OutgoingMessage struct {
	ChatID             int64
	Text               string
	ParseMode          string // "HTML" or empty for plain text
	Keyboard           InlineKeyboard
	DisableLinkPreview bool
}

// Send delivers a message, splitting it into chunks when it exceeds
// [MaxMessageLen] and retrying when rate limited. The keyboard, if any, is
// attached to the last chunk.
func (c *Client) Send(ctx context.Context, msg OutgoingMessage) error {
	type linkPreviewOptions struct {
		IsDisabled bool `json:"is_disabled"`
	}
	type sendMessage struct {
		ChatID             int64              `json:"chat_id"`
		Text               string             `json:"text"`
		ParseMode          string             `json:"parse_mode,omitempty"`
		LinkPreviewOptions linkPreviewOptions `json:"link_preview_options"`
		ReplyMarkup        *struct {
			InlineKeyboard InlineKeyboard `json:"inline_keyboard"`
		} `json:"reply_markup,omitempty"`
	}

	chunks := splitMessage(msg.Text)
	for i, chunk := range chunks {
		args := sendMessage{
			ChatID:             msg.ChatID,
			Text:               chunk,
			ParseMode:          msg.ParseMode,
			LinkPreviewOptions: linkPreviewOptions{IsDisabled: msg.DisableLinkPreview},
		}
		if len(msg.Keyboard) > 0 && i == len(chunks)-1 {
			args.ReplyMarkup = &struct {
				InlineKeyboard InlineKeyboard `json:"inline_keyboard"`
			}{InlineKeyboard: msg.Keyboard}
		}

		var err error
		for range sendRetryLimit {
			_, err = c.makeRequest(ctx, "sendMessage", args)
			if err == nil {
				break
			}

			retryable, wait := isRateLimited(err)
			if !retryable {
				break
			}

			c.logf("telegram: rate limited sending to chat %d, waiting %s", msg.ChatID, wait)
			if !c.sleep(ctx, wait) {
				return ctx.Err()
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// AnswerCallbackQuery acknowledges a button press, optionally showing a
// notification to the user.
func (c *Client) AnswerCallbackQuery(ctx context.Context, id, text string) error {
	_, err := c.makeRequest(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": id,
		"text":              text,
	})
	return err
}

// Me returns basic information about the bot account. It is also the
// cheapest way to verify the token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	raw, err := c.makeRequest(ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates fetches updates with IDs greater than or equal to offset,
// long-polling for up to timeout.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	raw, err := c.makeRequest(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	})
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

const pollTimeout = 30 * time.Second

// Poll long-polls for updates until ctx is canceled, invoking handle for
// each one. Transient API errors are logged and retried with backoff.
func (c *Client) Poll(ctx context.Context, handle func(context.Context, Update)) error {
	var offset int64
	for {
		updates, err := c.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logf("telegram: getUpdates failed: %v", err)
			if !c.sleep(ctx, 5*time.Second) {
				return ctx.Err()
			}
			continue
		}
		for _, u := range updates {
			if u.ID >= offset {
				offset = u.ID + 1
			}
			handle(ctx, u)
		}
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (c *Client) makeTelegramRequest(ctx context.Context, method string, args any) (json.RawMessage, error) {
	resp, err := request.Make[apiResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    c.baseURL + "/bot" + c.token + "/" + method,
		Body:   args,
		Headers: map[string]string{
			"User-Agent": version.UserAgent(),
		},
		HTTPClient: c.httpc,
		Scrubber:   c.scrubber,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("%s: %s", method, resp.Description)
	}
	return resp.Result, nil
}

func splitMessage(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= MaxMessageLen {
		return []string{text}
	}

	var chunks []string
	for text != "" {
		if utf8.RuneCountInString(text) <= MaxMessageLen {
			chunks = append(chunks, text)
			break
		}

		var (
			lastNewline    = -1
			lastWhitespace = -1
			byteCap        = len(text)
			runeCount      int
		)

		for i, r := range text {
			if runeCount == MaxMessageLen {
				byteCap = i
				break
			}
			runeCount++

			if r == '\n' {
				lastNewline = i
				continue
			}
			if unicode.IsSpace(r) {
				lastWhitespace = i
			}
		}

		splitAt := byteCap
		switch {
		case lastNewline > 0:
			splitAt = lastNewline
		case lastWhitespace > 0:
			splitAt = lastWhitespace
		}

		chunk := strings.TrimSpace(text[:splitAt])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimSpace(text[splitAt:])
	}

	return chunks
}

func isRateLimited(err error) (bool, time.Duration) {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		return false, 0
	}

	var errorResponse struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(statusErr.Body, &errorResponse); err != nil {
		return false, 0
	}

	return true, time.Duration(errorResponse.Parameters.RetryAfter) * time.Second
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
