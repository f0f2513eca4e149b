// Package telegram implements the chat transport: batch update polling,
// replies, reactions, and media download against the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// ErrFileTooLarge is returned by ResolveFilePath when the Bot API rejects
// the file-path lookup because the underlying object exceeds the API's
// maximum downloadable size (~200 MB).
var ErrFileTooLarge = errors.New("file too large for bot api download")

// Client wraps the go-telegram/bot client plus the raw HTTP calls the
// library does not expose (batch getUpdates, reactions, file download).
type Client struct {
	bot      *bot.Bot
	token    string
	http     *http.Client
	download *http.Client
	logger   *slog.Logger

	// apiURL is overridable in tests; production always talks to the
	// public Bot API endpoint.
	apiURL string
}

// New creates a new Telegram client for the given bot token. API calls
// use requestTimeout; file downloads get the longer downloadTimeout.
func New(token string, logger *slog.Logger, requestTimeout, downloadTimeout time.Duration) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram")

	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Client{
		bot:      b,
		token:    token,
		http:     &http.Client{Timeout: requestTimeout},
		download: &http.Client{Timeout: downloadTimeout},
		logger:   log,
		apiURL:   "https://api.telegram.org",
	}, nil
}

// SendText delivers a plain-text message to a chat.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return nil
}

// Me returns the authenticated bot account.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}
	return me, nil
}

// ResolveFilePath resolves a file ID to a download path via getFile.
// A bad-request rejection means the object exceeds the Bot API's download
// ceiling and is reported as ErrFileTooLarge; any other failure is
// returned as-is for the caller to treat as fatal.
func (c *Client) ResolveFilePath(ctx context.Context, fileID string) (string, error) {
	fileObj, err := c.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		if errors.Is(err, bot.ErrorBadRequest) {
			return "", fmt.Errorf("%w: %s", ErrFileTooLarge, err)
		}
		return "", fmt.Errorf("failed to get file info from Telegram: %w", err)
	}
	if fileObj.FilePath == "" {
		return "", fmt.Errorf("empty file path returned from Telegram for file ID %s", fileID)
	}
	return fileObj.FilePath, nil
}
