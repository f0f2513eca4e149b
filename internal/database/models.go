package database

import "time"

// ArchiveRecord is one row of the archive ledger: the terminal outcome
// reached for a single media item. The scalar cursor only records how far
// processing has advanced; the ledger records what happened.
type ArchiveRecord struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	UpdateID  int64  `db:"update_id"`
	ChatID    int64  `db:"chat_id"`
	Filename  string `db:"filename"`
	MediaKind string `db:"media_kind"`
	Outcome   string `db:"outcome"`
	SizeBytes int64  `db:"size_bytes"`
}
