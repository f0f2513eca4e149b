package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-telegram/bot/models"
)

// apiResponse is the Bot API response envelope for raw calls.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// FetchUpdates fetches the pending update batch. When offset is positive
// it is passed through to the API, which also marks lower update IDs as
// consumed server-side. The go-telegram/bot library keeps its getUpdates
// polling internal, so this is a raw call decoded into the library's
// model types.
func (c *Client) FetchUpdates(ctx context.Context, offset int64, limit int) ([]models.Update, error) {
	query := url.Values{}
	if offset > 0 {
		query.Set("offset", strconv.FormatInt(offset, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", c.apiURL, c.token, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create getUpdates request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d from getUpdates: %s", resp.StatusCode, string(body))
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode getUpdates response: %w", err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("getUpdates rejected: %s", envelope.Description)
	}

	var updates []models.Update
	if err := json.Unmarshal(envelope.Result, &updates); err != nil {
		return nil, fmt.Errorf("failed to decode updates: %w", err)
	}

	c.logger.DebugContext(ctx, "Fetched update batch", "count", len(updates), "offset", offset)
	return updates, nil
}

// React attaches a single-emoji reaction to a message. The reaction API
// call is issued raw with the exact wire shape setMessageReaction expects.
func (c *Client) React(ctx context.Context, chatID int64, messageID int, emoji string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"reaction": []map[string]string{
			{"type": "emoji", "emoji": emoji},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode reaction payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/setMessageReaction", c.apiURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create setMessageReaction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to set reaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d from setMessageReaction: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Download fetches the raw bytes for a resolved file path.
func (c *Client) Download(ctx context.Context, filePath string) ([]byte, error) {
	if filePath == "" {
		return nil, fmt.Errorf("empty file path provided for download")
	}

	endpoint := fmt.Sprintf("%s/file/bot%s/%s", c.apiURL, c.token, filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %q: %w", filePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d downloading %q: %s", resp.StatusCode, filePath, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file data for %q: %w", filePath, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("received empty file data for %q", filePath)
	}

	return data, nil
}
