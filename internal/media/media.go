// Package media classifies inbound messages and derives the canonical
// media reference and destination filename for archivable attachments.
package media

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-telegram/bot/models"
)

// Kind identifies the media payload variant carried by a message.
type Kind string

const (
	KindPhoto    Kind = "photo"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

// anonymousSender is the sender label used when a message carries neither
// a username nor a first name.
const anonymousSender = "Anônimo"

// Ref is the canonical reference to one archivable media item: the
// transport file ID used to resolve a download path and the deterministic
// destination filename on the remote share.
type Ref struct {
	FileID   string
	Filename string
	Kind     Kind
}

// Class is the extractor's classification of one update.
type Class int

const (
	// ClassIgnored marks updates with no media and no recognized command.
	ClassIgnored Class = iota
	// ClassGreeting marks bare /start messages: acknowledged with a
	// greeting reply but never processed as media.
	ClassGreeting
	// ClassMedia marks updates carrying an archivable attachment.
	ClassMedia
)

// Result is the extractor's output for one update.
type Result struct {
	Class Class
	Ref   Ref
}

// payload is the tagged media variant of a message. The three payload
// fields are mutually exclusive in practice; variant order is fixed:
// video, document, photo.
type payload struct {
	kind     Kind
	fileID   string
	origName string
}

// payloadOf selects the media payload of a message, if any. For photos
// the last resolution variant is chosen: by Bot API convention it is the
// original, the earlier entries being resized copies.
func payloadOf(msg *models.Message) (payload, bool) {
	switch {
	case msg.Video != nil:
		return payload{kind: KindVideo, fileID: msg.Video.FileID, origName: msg.Video.FileName}, true
	case msg.Document != nil:
		return payload{kind: KindDocument, fileID: msg.Document.FileID, origName: msg.Document.FileName}, true
	case len(msg.Photo) > 0:
		best := msg.Photo[len(msg.Photo)-1]
		return payload{kind: KindPhoto, fileID: best.FileID}, true
	}
	return payload{}, false
}

// Extract classifies one update. Updates without a message, and messages
// with neither media nor a recognized command, come back ClassIgnored.
func Extract(update *models.Update) Result {
	if update == nil || update.Message == nil {
		return Result{Class: ClassIgnored}
	}
	msg := update.Message

	p, ok := payloadOf(msg)
	if !ok {
		if isGreeting(msg.Text) {
			return Result{Class: ClassGreeting}
		}
		return Result{Class: ClassIgnored}
	}

	return Result{
		Class: ClassMedia,
		Ref: Ref{
			FileID:   p.fileID,
			Filename: destinationFilename(msg, update.ID, p.origName),
			Kind:     p.kind,
		},
	}
}

// destinationFilename synthesizes the deterministic remote filename:
// "{sender}-{timestamp}-{updateID}" plus the payload's original filename
// when it carries one. The same message always yields the same name, so
// the name doubles as the idempotency key for uploads.
func destinationFilename(msg *models.Message, updateID int64, origName string) string {
	name := fmt.Sprintf("%s-%d-%d", senderLabel(msg.From), msg.Date, updateID)
	if origName != "" {
		name = name + "-" + origName
	}
	return name
}

// senderLabel derives the sender part of the filename: handle if present,
// else display name, else a placeholder.
func senderLabel(from *models.User) string {
	switch {
	case from == nil:
		return anonymousSender
	case from.Username != "":
		return from.Username
	case from.FirstName != "":
		return from.FirstName
	}
	return anonymousSender
}

// isGreeting reports whether a non-media message is a bare /start command,
// optionally addressed to the bot ("/start@botname").
func isGreeting(text string) bool {
	text = strings.TrimSpace(text)
	return text == "/start" || strings.HasPrefix(text, "/start@")
}

// WithExtensionFrom returns name unchanged when it already has a file
// extension; otherwise it appends the extension of the resolved download
// path. Photos never carry an original filename, so their extension is
// only knowable after the file-path lookup.
func WithExtensionFrom(name, downloadPath string) string {
	if filepath.Ext(name) != "" {
		return name
	}
	return name + filepath.Ext(downloadPath)
}
