package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/arquivobot/internal/config"
	"github.com/edgard/arquivobot/internal/database"
	"github.com/edgard/arquivobot/internal/pipeline"
	"github.com/edgard/arquivobot/internal/telegram"
)

type sentMessage struct {
	chatID int64
	text   string
}

type reaction struct {
	chatID    int64
	messageID int
	emoji     string
}

// mockChat implements pipeline.ChatTransport.
type mockChat struct {
	updates  []models.Update
	fetchErr error

	lastOffset int64
	sent       []sentMessage
	reactions  []reaction

	paths       map[string]string // file ID -> download path
	resolveErrs map[string]error
	files       map[string][]byte // download path -> content
	sendErr     error
}

func (m *mockChat) FetchUpdates(_ context.Context, offset int64, _ int) ([]models.Update, error) {
	m.lastOffset = offset
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.updates, nil
}

func (m *mockChat) SendText(_ context.Context, chatID int64, text string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{chatID, text})
	return nil
}

func (m *mockChat) React(_ context.Context, chatID int64, messageID int, emoji string) error {
	m.reactions = append(m.reactions, reaction{chatID, messageID, emoji})
	return nil
}

func (m *mockChat) ResolveFilePath(_ context.Context, fileID string) (string, error) {
	if err, ok := m.resolveErrs[fileID]; ok {
		return "", err
	}
	path, ok := m.paths[fileID]
	if !ok {
		return "", fmt.Errorf("unknown file ID %q", fileID)
	}
	return path, nil
}

func (m *mockChat) Download(_ context.Context, filePath string) ([]byte, error) {
	content, ok := m.files[filePath]
	if !ok {
		return nil, fmt.Errorf("unknown download path %q", filePath)
	}
	return content, nil
}

// mockStorage implements pipeline.StorageTransport. When dropUploads is
// set, Upload reports success but the object never lands, so the
// confirmation probe sees it absent.
type mockStorage struct {
	objects     map[string][]byte
	uploads     []string
	probes      []string
	dropUploads bool
	uploadErr   error
}

func newMockStorage() *mockStorage {
	return &mockStorage{objects: make(map[string][]byte)}
}

func (m *mockStorage) Exists(_ context.Context, filename string) (bool, error) {
	m.probes = append(m.probes, filename)
	_, ok := m.objects[filename]
	return ok, nil
}

func (m *mockStorage) Upload(_ context.Context, filename string, content []byte) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	m.uploads = append(m.uploads, filename)
	if !m.dropUploads {
		m.objects[filename] = content
	}
	return nil
}

// mockStore implements database.Store in memory.
type mockStore struct {
	cursor      int64
	hasCursor   bool
	setCalls    []int64
	records     []database.ArchiveRecord
	recentCalls int
}

func (m *mockStore) Ping(context.Context) error { return nil }

func (m *mockStore) Cursor(context.Context) (int64, bool, error) {
	return m.cursor, m.hasCursor, nil
}

func (m *mockStore) SetCursor(_ context.Context, updateID int64) error {
	m.cursor = updateID
	m.hasCursor = true
	m.setCalls = append(m.setCalls, updateID)
	return nil
}

func (m *mockStore) RecordArchive(_ context.Context, record *database.ArchiveRecord) error {
	m.records = append(m.records, *record)
	return nil
}

func (m *mockStore) RecentArchives(_ context.Context, limit int) ([]database.ArchiveRecord, error) {
	m.recentCalls++
	if limit < len(m.records) {
		return m.records[len(m.records)-limit:], nil
	}
	return m.records, nil
}

func testConfig(useOffset bool) *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{UseOffset: useOffset, FetchLimit: 100},
		Messages: config.DefaultMessages,
	}
}

func photoUpdate(id int64, sender string, date int, chatID int64, fileID string) models.Update {
	return models.Update{
		ID: id,
		Message: &models.Message{
			ID:    int(id * 10),
			From:  &models.User{Username: sender},
			Chat:  models.Chat{ID: chatID},
			Date:  date,
			Photo: []models.PhotoSize{{FileID: fileID + "-small"}, {FileID: fileID}},
		},
	}
}

func TestRunArchivesPhotoThenSkipsOnRerun(t *testing.T) {
	t.Parallel()

	chat := &mockChat{
		updates: []models.Update{photoUpdate(42, "alice", 1700000000, 100, "photo42")},
		paths:   map[string]string{"photo42": "photos/file_42.jpg"},
		files:   map[string][]byte{"photos/file_42.jpg": []byte("jpeg-bytes")},
	}
	storage := newMockStorage()
	store := &mockStore{}

	stats, err := pipeline.New(chat, storage, store, testConfig(false), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Archived != 1 {
		t.Fatalf("archived = %d, want 1", stats.Archived)
	}

	const wantName = "alice-1700000000-42.jpg"
	if len(storage.uploads) != 1 || storage.uploads[0] != wantName {
		t.Errorf("uploads = %v, want [%s]", storage.uploads, wantName)
	}
	if store.cursor != 42 {
		t.Errorf("cursor = %d, want 42", store.cursor)
	}
	if len(store.records) != 1 || store.records[0].Outcome != string(pipeline.OutcomeArchived) {
		t.Errorf("ledger records = %+v, want one archived row", store.records)
	}

	// Success notice plus exactly one closing message for the chat.
	if len(chat.sent) != 2 {
		t.Fatalf("sent %d messages, want 2: %+v", len(chat.sent), chat.sent)
	}
	if !strings.Contains(chat.sent[0].text, wantName) {
		t.Errorf("success notice %q does not name %q", chat.sent[0].text, wantName)
	}

	// Re-run over the same batch: the cursor filter must keep every side
	// effect from repeating.
	chat.sent = nil
	stats, err = pipeline.New(chat, storage, store, testConfig(false), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if stats.Skipped != 1 || stats.Archived != 0 {
		t.Errorf("second run stats = %+v, want one skipped, none archived", stats)
	}
	if len(storage.uploads) != 1 {
		t.Errorf("second run uploaded again: %v", storage.uploads)
	}
	if len(chat.sent) != 0 {
		t.Errorf("second run sent messages: %+v", chat.sent)
	}
}

func TestRunAlreadyPresentSkipsUploadSilently(t *testing.T) {
	t.Parallel()

	chat := &mockChat{
		updates: []models.Update{photoUpdate(42, "alice", 1700000000, 100, "photo42")},
		paths:   map[string]string{"photo42": "photos/file_42.jpg"},
		files:   map[string][]byte{"photos/file_42.jpg": []byte("jpeg-bytes")},
	}
	storage := newMockStorage()
	storage.objects["alice-1700000000-42.jpg"] = []byte("jpeg-bytes")
	store := &mockStore{}

	stats, err := pipeline.New(chat, storage, store, testConfig(false), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.AlreadyPresent != 1 {
		t.Fatalf("already present = %d, want 1", stats.AlreadyPresent)
	}
	if len(storage.uploads) != 0 {
		t.Errorf("upload was attempted for an existing object: %v", storage.uploads)
	}
	if len(chat.sent) != 0 {
		t.Errorf("silent skip sent messages: %+v", chat.sent)
	}
	// The item reached a terminal decision, so the cursor still advances.
	if store.cursor != 42 {
		t.Errorf("cursor = %d, want 42", store.cursor)
	}
}

func TestRunProcessesOutOfOrderBatchInAscendingOrder(t *testing.T) {
	t.Parallel()

	chat := &mockChat{
		updates: []models.Update{
			photoUpdate(5, "alice", 1700000000, 100, "p5"),
			photoUpdate(7, "alice", 1700000001, 100, "p7"),
			photoUpdate(6, "alice", 1700000002, 100, "p6"),
		},
		paths: map[string]string{
			"p5": "photos/5.jpg", "p6": "photos/6.jpg", "p7": "photos/7.jpg",
		},
		files: map[string][]byte{
			"photos/5.jpg": []byte("a"), "photos/6.jpg": []byte("b"), "photos/7.jpg": []byte("c"),
		},
	}
	storage := newMockStorage()
	store := &mockStore{}

	if _, err := pipeline.New(chat, storage, store, testConfig(false), nil).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.cursor != 7 {
		t.Errorf("cursor = %d, want 7 (max seen, not last delivered)", store.cursor)
	}
	want := []string{"alice-1700000000-5.jpg", "alice-1700000002-6.jpg", "alice-1700000001-7.jpg"}
	if len(storage.uploads) != len(want) {
		t.Fatalf("uploads = %v, want %v", storage.uploads, want)
	}
	for i, name := range want {
		if storage.uploads[i] != name {
			t.Errorf("upload[%d] = %q, want %q (ascending update-id order)", i, storage.uploads[i], name)
		}
	}
}

func TestRunTooLargeNotifiesAndAdvancesCursor(t *testing.T) {
	t.Parallel()

	update := photoUpdate(42, "alice", 1700000000, 100, "huge")
	chat := &mockChat{
		updates: []models.Update{update},
		resolveErrs: map[string]error{
			"huge": fmt.Errorf("%w: status 400", telegram.ErrFileTooLarge),
		},
	}
	storage := newMockStorage()
	store := &mockStore{}

	stats, err := pipeline.New(chat, storage, store, testConfig(false), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.TooLarge != 1 {
		t.Fatalf("too large = %d, want 1", stats.TooLarge)
	}
	if len(chat.reactions) != 1 {
		t.Errorf("reactions = %+v, want exactly one", chat.reactions)
	}
	// The too-large notice plus the closing message.
	if len(chat.sent) != 2 {
		t.Fatalf("sent %d messages, want 2: %+v", len(chat.sent), chat.sent)
	}
	if !strings.Contains(chat.sent[0].text, "alice-1700000000-42") {
		t.Errorf("notice %q does not name the destination file", chat.sent[0].text)
	}
	if store.cursor != 42 {
		t.Errorf("cursor = %d, want 42 (too large is a terminal decision)", store.cursor)
	}
	if len(storage.uploads) != 0 || len(storage.probes) != 0 {
		t.Errorf("storage was touched for a too-large item: uploads=%v probes=%v", storage.uploads, storage.probes)
	}
}

func TestRunGreetingRepliesWithoutProcessing(t *testing.T) {
	t.Parallel()

	chat := &mockChat{
		updates: []models.Update{{
			ID: 50,
			Message: &models.Message{
				ID:   500,
				From: &models.User{Username: "alice"},
				Chat: models.Chat{ID: 100},
				Date: 1700000000,
				Text: "/start",
			},
		}},
	}
	storage := newMockStorage()
	store := &mockStore{}
	cfg := testConfig(false)

	stats, err := pipeline.New(chat, storage, store, cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Greetings != 1 {
		t.Fatalf("greetings = %d, want 1", stats.Greetings)
	}
	// Exactly the greeting reply: no closing message, the chat never
	// entered the interacted set.
	if len(chat.sent) != 1 || chat.sent[0].text != cfg.Messages.Welcome {
		t.Errorf("sent = %+v, want only the welcome message", chat.sent)
	}
	if store.cursor != 50 {
		t.Errorf("cursor = %d, want 50", store.cursor)
	}
}

func TestRunIgnoredMessageDoesNotAdvanceCursor(t *testing.T) {
	t.Parallel()

	chat := &mockChat{
		updates: []models.Update{{
			ID: 9,
			Message: &models.Message{
				ID:   90,
				From: &models.User{Username: "alice"},
				Chat: models.Chat{ID: 100},
				Date: 1700000000,
				Text: "just chatting",
			},
		}},
	}
	store := &mockStore{}

	stats, err := pipeline.New(chat, newMockStorage(), store, testConfig(false), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Ignored != 1 {
		t.Fatalf("ignored = %d, want 1", stats.Ignored)
	}
	if len(store.setCalls) != 0 {
		t.Errorf("cursor was persisted for an ignored update: %v", store.setCalls)
	}
	if len(chat.sent) != 0 {
		t.Errorf("ignored update sent messages: %+v", chat.sent)
	}
}

func TestRunUnconfirmedUploadIsUploadFailed(t *testing.T) {
	t.Parallel()

	chat := &mockChat{
		updates: []models.Update{photoUpdate(42, "alice", 1700000000, 100, "photo42")},
		paths:   map[string]string{"photo42": "photos/file_42.jpg"},
		files:   map[string][]byte{"photos/file_42.jpg": []byte("jpeg-bytes")},
	}
	storage := newMockStorage()
	storage.dropUploads = true
	store := &mockStore{}

	stats, err := pipeline.New(chat, storage, store, testConfig(false), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.UploadFailed != 1 || stats.Archived != 0 {
		t.Fatalf("stats = %+v, want one upload failure", stats)
	}
	if len(chat.reactions) != 1 {
		t.Errorf("reactions = %+v, want exactly one failure reaction", chat.reactions)
	}
	if len(store.records) != 1 || store.records[0].Outcome != string(pipeline.OutcomeUploadFailed) {
		t.Errorf("ledger records = %+v, want one upload_failed row", store.records)
	}
}

func TestRunUsesServerSideOffsetWhenEnabled(t *testing.T) {
	t.Parallel()

	chat := &mockChat{}
	store := &mockStore{cursor: 41, hasCursor: true}

	if _, err := pipeline.New(chat, newMockStorage(), store, testConfig(true), nil).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if chat.lastOffset != 42 {
		t.Errorf("fetch offset = %d, want 42 (cursor + 1)", chat.lastOffset)
	}
}

func TestRunGreetingSendFailureIsFatal(t *testing.T) {
	t.Parallel()

	chat := &mockChat{
		updates: []models.Update{{
			ID: 50,
			Message: &models.Message{
				ID:   500,
				From: &models.User{Username: "alice"},
				Chat: models.Chat{ID: 100},
				Date: 1700000000,
				Text: "/start",
			},
		}},
		sendErr: errors.New("telegram unreachable"),
	}
	store := &mockStore{}

	_, err := pipeline.New(chat, newMockStorage(), store, testConfig(false), nil).Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want fatal send error")
	}
	if !strings.Contains(err.Error(), "greeting") || !strings.Contains(err.Error(), "chat 100") {
		t.Errorf("error %q does not carry the greeting context", err)
	}
	// The reply never went out, so the update stays unprocessed.
	if len(store.setCalls) != 0 {
		t.Errorf("cursor was persisted for an unacknowledged greeting: %v", store.setCalls)
	}
}

func TestRunSurfacesRecentLedgerEntries(t *testing.T) {
	t.Parallel()

	chat := &mockChat{
		updates: []models.Update{photoUpdate(42, "alice", 1700000000, 100, "photo42")},
		paths:   map[string]string{"photo42": "photos/file_42.jpg"},
		files:   map[string][]byte{"photos/file_42.jpg": []byte("jpeg-bytes")},
	}
	store := &mockStore{}

	if _, err := pipeline.New(chat, newMockStorage(), store, testConfig(false), nil).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.recentCalls != 1 {
		t.Errorf("ledger tail read %d times, want once at run end", store.recentCalls)
	}
}

func TestRunFatalResolveErrorAbortsAndPreservesProgress(t *testing.T) {
	t.Parallel()

	chat := &mockChat{
		updates: []models.Update{
			photoUpdate(5, "alice", 1700000000, 100, "p5"),
			photoUpdate(6, "alice", 1700000001, 100, "broken"),
		},
		paths: map[string]string{"p5": "photos/5.jpg"},
		files: map[string][]byte{"photos/5.jpg": []byte("a")},
		resolveErrs: map[string]error{
			"broken": errors.New("telegram unreachable"),
		},
	}
	storage := newMockStorage()
	store := &mockStore{}

	_, err := pipeline.New(chat, storage, store, testConfig(false), nil).Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want fatal transport error")
	}
	// Progress up to the failing item is flushed so the next invocation
	// resumes there, not at the batch start.
	if store.cursor != 5 {
		t.Errorf("cursor = %d, want 5", store.cursor)
	}
}
