// Package pipeline implements the update-processing pipeline: the batch
// driver that fetches pending updates and the per-item processor that
// drives the download, idempotent upload, and notification sequence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/arquivobot/internal/config"
	"github.com/edgard/arquivobot/internal/media"
	"github.com/edgard/arquivobot/internal/telegram"
)

// failureEmoji is the reaction attached to messages whose media could not
// be archived.
const failureEmoji = "😢"

// Outcome is the terminal state reached for one media item.
type Outcome string

const (
	OutcomeArchived       Outcome = "archived"
	OutcomeAlreadyPresent Outcome = "already_present"
	OutcomeTooLarge       Outcome = "too_large"
	OutcomeUploadFailed   Outcome = "upload_failed"
)

// ChatTransport is the slice of the Telegram client the pipeline needs.
type ChatTransport interface {
	FetchUpdates(ctx context.Context, offset int64, limit int) ([]models.Update, error)
	SendText(ctx context.Context, chatID int64, text string) error
	React(ctx context.Context, chatID int64, messageID int, emoji string) error
	ResolveFilePath(ctx context.Context, fileID string) (string, error)
	Download(ctx context.Context, filePath string) ([]byte, error)
}

// StorageTransport is the slice of the remote storage client the pipeline
// needs.
type StorageTransport interface {
	Exists(ctx context.Context, filename string) (bool, error)
	Upload(ctx context.Context, filename string, content []byte) error
}

// Processor drives one media item from download to terminal outcome.
type Processor struct {
	chat     ChatTransport
	storage  StorageTransport
	messages config.MessagesConfig
	logger   *slog.Logger
}

// NewProcessor creates a Processor using the given transports.
func NewProcessor(chat ChatTransport, storage StorageTransport, messages config.MessagesConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		chat:     chat,
		storage:  storage,
		messages: messages,
		logger:   logger.With("component", "processor"),
	}
}

// itemResult reports the terminal outcome of one item along with the
// final destination filename (the synthesized name may gain an extension
// after the download-path lookup) and the downloaded size.
type itemResult struct {
	Outcome   Outcome
	Filename  string
	SizeBytes int64
}

// Process runs the per-item sequence: resolve the download path, download
// the bytes, probe the share for an existing object, upload, confirm, and
// notify the sender. Failures with a user-facing recovery path (too
// large, upload failed) are converted into outcomes; any other error is
// fatal to the run and propagates.
func (p *Processor) Process(ctx context.Context, ref media.Ref, msg *models.Message) (itemResult, error) {
	log := p.logger.With("filename", ref.Filename, "kind", ref.Kind, "chat_id", msg.Chat.ID)

	path, err := p.chat.ResolveFilePath(ctx, ref.FileID)
	if err != nil {
		if errors.Is(err, telegram.ErrFileTooLarge) {
			log.WarnContext(ctx, "Media exceeds download size limit")
			if notifyErr := p.notifyFailure(ctx, msg, fmt.Sprintf(p.messages.FileTooLarge, ref.Filename)); notifyErr != nil {
				return itemResult{}, notifyErr
			}
			return itemResult{Outcome: OutcomeTooLarge, Filename: ref.Filename}, nil
		}
		return itemResult{}, fmt.Errorf("failed to resolve download path for %q: %w", ref.Filename, err)
	}

	// The synthesized name has no extension for photos until the
	// download path is known; borrow it now. No-op for names that
	// already carry one.
	filename := media.WithExtensionFrom(ref.Filename, path)

	content, err := p.chat.Download(ctx, path)
	if err != nil {
		return itemResult{}, fmt.Errorf("failed to download %q: %w", filename, err)
	}
	log.DebugContext(ctx, "Downloaded media", "path", path, "size_bytes", len(content))

	// Idempotency probe: an object with this name means the item was
	// archived by a prior run. Skip silently.
	exists, err := p.storage.Exists(ctx, filename)
	if err != nil {
		return itemResult{}, fmt.Errorf("idempotency probe failed for %q: %w", filename, err)
	}
	if exists {
		log.InfoContext(ctx, "Object already present, skipping upload", "filename", filename)
		return itemResult{Outcome: OutcomeAlreadyPresent, Filename: filename, SizeBytes: int64(len(content))}, nil
	}

	uploadErr := p.storage.Upload(ctx, filename, content)
	confirmed := false
	if uploadErr == nil {
		confirmed = p.confirmUpload(ctx, filename)
	}

	if uploadErr != nil || !confirmed {
		log.WarnContext(ctx, "Upload did not land", "filename", filename, "error", uploadErr)
		if notifyErr := p.notifyFailure(ctx, msg, fmt.Sprintf(p.messages.UploadFailed, filename)); notifyErr != nil {
			return itemResult{}, notifyErr
		}
		return itemResult{Outcome: OutcomeUploadFailed, Filename: filename, SizeBytes: int64(len(content))}, nil
	}

	log.InfoContext(ctx, "Media archived", "filename", filename, "size_bytes", len(content))
	if err := p.chat.SendText(ctx, msg.Chat.ID, fmt.Sprintf(p.messages.UploadSuccess, filename)); err != nil {
		return itemResult{}, err
	}
	return itemResult{Outcome: OutcomeArchived, Filename: filename, SizeBytes: int64(len(content))}, nil
}

// confirmUpload is the post-upload existence check. The share is not
// guaranteed to be read-after-write consistent in every deployment, so an
// upload only counts once a probe reports the object present. Probe
// errors count as unconfirmed.
func (p *Processor) confirmUpload(ctx context.Context, filename string) bool {
	present, err := p.storage.Exists(ctx, filename)
	if err != nil {
		p.logger.WarnContext(ctx, "Upload confirmation probe failed", "filename", filename, "error", err)
		return false
	}
	return present
}

// notifyFailure attaches the failure reaction (best-effort) and sends the
// failure notice (fatal on error) for one item.
func (p *Processor) notifyFailure(ctx context.Context, msg *models.Message, text string) error {
	if err := p.chat.React(ctx, msg.Chat.ID, msg.ID, failureEmoji); err != nil {
		p.logger.WarnContext(ctx, "Failed to attach failure reaction",
			"chat_id", msg.Chat.ID, "message_id", msg.ID, "error", err)
	}
	if err := p.chat.SendText(ctx, msg.Chat.ID, text); err != nil {
		return fmt.Errorf("failed to send failure notice to chat %d: %w", msg.Chat.ID, err)
	}
	return nil
}
