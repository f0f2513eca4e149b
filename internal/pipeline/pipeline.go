package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/edgard/arquivobot/internal/config"
	"github.com/edgard/arquivobot/internal/database"
	"github.com/edgard/arquivobot/internal/media"
)

// Pipeline is the run-level driver: one Run fetches the pending batch,
// processes each update in ascending order, and persists the cursor.
type Pipeline struct {
	chat      ChatTransport
	store     database.Store
	processor *Processor

	useOffset  bool
	fetchLimit int
	messages   config.MessagesConfig
	logger     *slog.Logger
}

// RunStats summarizes one pipeline run.
type RunStats struct {
	Fetched        int
	Archived       int
	AlreadyPresent int
	TooLarge       int
	UploadFailed   int
	Greetings      int
	Ignored        int
	Skipped        int
}

// New creates a Pipeline.
func New(chat ChatTransport, storage StorageTransport, store database.Store, cfg *config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chat:       chat,
		store:      store,
		processor:  NewProcessor(chat, storage, cfg.Messages, logger),
		useOffset:  cfg.Telegram.UseOffset,
		fetchLimit: cfg.Telegram.FetchLimit,
		messages:   cfg.Messages,
		logger:     logger.With("component", "pipeline"),
	}
}

// Run executes one poll-process-upload pass. Items are processed strictly
// in ascending update-id order; the cursor advances only past updates
// that reached a terminal decision and is flushed durably before Run
// returns, including on a fatal transport error, so a re-invocation
// resumes at the correct point.
func (pl *Pipeline) Run(ctx context.Context) (RunStats, error) {
	stats := RunStats{}

	cursor, hasCursor, err := pl.store.Cursor(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load cursor: %w", err)
	}

	var offset int64
	if pl.useOffset && hasCursor {
		// Server-side offset consumption: ask only for updates past the
		// cursor and let Telegram mark the rest consumed.
		offset = cursor + 1
	}

	updates, err := pl.chat.FetchUpdates(ctx, offset, pl.fetchLimit)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch updates: %w", err)
	}
	stats.Fetched = len(updates)

	// The cursor is a scalar watermark, not a per-item ledger. Sorting
	// keeps a later item's success from masking an earlier item's
	// unprocessed state.
	sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })

	interacted := make(map[int64]struct{})
	watermark := cursor
	advanced := false

	// flush persists the watermark; called on every exit path so that
	// partial progress survives a fatal error.
	flush := func() error {
		if !advanced {
			return nil
		}
		if err := pl.store.SetCursor(ctx, watermark); err != nil {
			return fmt.Errorf("failed to persist cursor %d: %w", watermark, err)
		}
		return nil
	}
	advance := func(updateID int64) {
		if updateID > watermark {
			watermark = updateID
		}
		advanced = true
	}

	for i := range updates {
		update := &updates[i]
		log := pl.logger.With("update_id", update.ID)

		// Defensive replay filter, applied even when the server already
		// consumed lower IDs via the offset.
		if hasCursor && update.ID <= cursor {
			log.DebugContext(ctx, "Skipping already-processed update")
			stats.Skipped++
			continue
		}

		result := media.Extract(update)
		switch result.Class {
		case media.ClassGreeting:
			log.InfoContext(ctx, "Sending greeting reply", "chat_id", update.Message.Chat.ID)
			if err := pl.chat.SendText(ctx, update.Message.Chat.ID, pl.messages.Welcome); err != nil {
				if flushErr := flush(); flushErr != nil {
					log.ErrorContext(ctx, "Failed to flush cursor after send failure", "error", flushErr)
				}
				return stats, fmt.Errorf("failed to send greeting to chat %d: %w", update.Message.Chat.ID, err)
			}
			stats.Greetings++
			advance(update.ID)

		case media.ClassIgnored:
			log.DebugContext(ctx, "Ignoring update without media")
			stats.Ignored++

		case media.ClassMedia:
			item, err := pl.processor.Process(ctx, result.Ref, update.Message)
			if err != nil {
				// Fatal to the run: flush progress so the next
				// invocation resumes at this item.
				if flushErr := flush(); flushErr != nil {
					log.ErrorContext(ctx, "Failed to flush cursor after processing failure", "error", flushErr)
				}
				return stats, err
			}

			pl.record(ctx, update.ID, update.Message.Chat.ID, result.Ref.Kind, item)
			pl.count(&stats, item.Outcome)

			// A silent already-present skip sends nothing, so the chat
			// gets no closing message for it either.
			if item.Outcome != OutcomeAlreadyPresent {
				interacted[update.Message.Chat.ID] = struct{}{}
			}
			advance(update.ID)
		}
	}

	for chatID := range interacted {
		if err := pl.chat.SendText(ctx, chatID, pl.messages.Closing); err != nil {
			if flushErr := flush(); flushErr != nil {
				pl.logger.ErrorContext(ctx, "Failed to flush cursor after closing-message failure", "error", flushErr)
			}
			return stats, fmt.Errorf("failed to send closing message to chat %d: %w", chatID, err)
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}

	pl.logRecentLedger(ctx)

	pl.logger.InfoContext(ctx, "Run finished",
		"fetched", stats.Fetched,
		"archived", stats.Archived,
		"already_present", stats.AlreadyPresent,
		"too_large", stats.TooLarge,
		"upload_failed", stats.UploadFailed,
		"greetings", stats.Greetings,
		"ignored", stats.Ignored,
		"last_update_id", watermark)
	return stats, nil
}

// recentLedgerEntries bounds the ledger tail surfaced at run end.
const recentLedgerEntries = 5

// logRecentLedger logs the ledger tail after a run so the operator sees
// the latest terminal outcomes without querying the database. Read
// failures are logged, not fatal.
func (pl *Pipeline) logRecentLedger(ctx context.Context) {
	recent, err := pl.store.RecentArchives(ctx, recentLedgerEntries)
	if err != nil {
		pl.logger.WarnContext(ctx, "Failed to read recent ledger entries", "error", err)
		return
	}
	for _, rec := range recent {
		pl.logger.DebugContext(ctx, "Ledger entry",
			"update_id", rec.UpdateID,
			"filename", rec.Filename,
			"kind", rec.MediaKind,
			"outcome", rec.Outcome,
			"size_bytes", rec.SizeBytes)
	}
}

// record writes one ledger row. Ledger failures are logged, not fatal:
// the ledger is observability, the cursor is correctness.
func (pl *Pipeline) record(ctx context.Context, updateID, chatID int64, kind media.Kind, item itemResult) {
	rec := &database.ArchiveRecord{
		UpdateID:  updateID,
		ChatID:    chatID,
		Filename:  item.Filename,
		MediaKind: string(kind),
		Outcome:   string(item.Outcome),
		SizeBytes: item.SizeBytes,
	}
	if err := pl.store.RecordArchive(ctx, rec); err != nil {
		pl.logger.ErrorContext(ctx, "Failed to record archive outcome",
			"update_id", updateID, "filename", item.Filename, "error", err)
	}
}

func (pl *Pipeline) count(stats *RunStats, outcome Outcome) {
	switch outcome {
	case OutcomeArchived:
		stats.Archived++
	case OutcomeAlreadyPresent:
		stats.AlreadyPresent++
	case OutcomeTooLarge:
		stats.TooLarge++
	case OutcomeUploadFailed:
		stats.UploadFailed++
	}
}
