// Package events defines the envelope format of the Bakarr push channel and
// the dispatch table that maps each event kind to its user-visible effects.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event kind constants as sent by the server in the "type" field.
const (
	KindScanStarted  = "ScanStarted"
	KindScanFinished = "ScanFinished"

	KindDownloadStarted  = "DownloadStarted"
	KindDownloadFinished = "DownloadFinished"

	KindRefreshStarted  = "RefreshStarted"
	KindRefreshFinished = "RefreshFinished"

	KindSearchMissingStarted  = "SearchMissingStarted"
	KindSearchMissingFinished = "SearchMissingFinished"

	KindScanFolderStarted  = "ScanFolderStarted"
	KindScanFolderFinished = "ScanFolderFinished"

	KindRenameStarted  = "RenameStarted"
	KindRenameFinished = "RenameFinished"

	KindImportStarted  = "ImportStarted"
	KindImportFinished = "ImportFinished"

	KindLibraryScanStarted  = "LibraryScanStarted"
	KindLibraryScanFinished = "LibraryScanFinished"

	KindRssCheckStarted  = "RssCheckStarted"
	KindRssCheckFinished = "RssCheckFinished"

	KindError = "Error"
	KindInfo  = "Info"

	// High-frequency progress kinds. Recognized so they don't land in the
	// unhandled branch, but they produce no effects; progress rendering is
	// driven by raw envelope observers instead.
	KindScanProgress        = "ScanProgress"
	KindLibraryScanProgress = "LibraryScanProgress"
	KindRssCheckProgress    = "RssCheckProgress"
	KindDownloadProgress    = "DownloadProgress"
)

// Envelope is one decoded unit from the push channel: the event kind plus a
// payload typed per kind. Unknown kinds carry a RawPayload so forward-compat
// events can still be observed.
type Envelope struct {
	Kind    string
	Payload Payload
}

// Payload is the closed set of per-kind payload records.
type Payload interface {
	isPayload()
}

// RawPayload holds the payload of an event kind with no registered schema.
type RawPayload map[string]any

func (RawPayload) isPayload() {}

// TitlePayload is shared by the *Started kinds that only carry a title.
type TitlePayload struct {
	Title string `json:"title"`
}

func (*TitlePayload) isPayload() {}

type DownloadFinishedPayload struct {
	Title   string `json:"title"`
	AnimeID *int64 `json:"anime_id"`
}

func (*DownloadFinishedPayload) isPayload() {}

type RefreshFinishedPayload struct {
	Title   string `json:"title"`
	AnimeID *int64 `json:"anime_id"`
}

func (*RefreshFinishedPayload) isPayload() {}

type SearchMissingFinishedPayload struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

func (*SearchMissingFinishedPayload) isPayload() {}

type ScanFolderFinishedPayload struct {
	Title   string `json:"title"`
	Found   int    `json:"found"`
	AnimeID *int64 `json:"anime_id"`
}

func (*ScanFolderFinishedPayload) isPayload() {}

type RenameFinishedPayload struct {
	Title   string `json:"title"`
	Count   int    `json:"count"`
	AnimeID *int64 `json:"anime_id"`
}

func (*RenameFinishedPayload) isPayload() {}

type ImportStartedPayload struct {
	Count int `json:"count"`
}

func (*ImportStartedPayload) isPayload() {}

type ImportFinishedPayload struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}

func (*ImportFinishedPayload) isPayload() {}

type LibraryScanFinishedPayload struct {
	Scanned int `json:"scanned"`
	Matched int `json:"matched"`
}

func (*LibraryScanFinishedPayload) isPayload() {}

type RssCheckFinishedPayload struct {
	NewItems int `json:"new_items"`
}

func (*RssCheckFinishedPayload) isPayload() {}

// MessagePayload is shared by the generic Error and Info kinds.
type MessagePayload struct {
	Message string `json:"message"`
}

func (*MessagePayload) isPayload() {}

// DownloadStatus is one in-flight download as reported by DownloadProgress.
type DownloadStatus struct {
	Title           string  `json:"title"`
	AnimeID         int64   `json:"anime_id"`
	Episode         int     `json:"episode"`
	Progress        float64 `json:"progress"`
	SizeBytes       int64   `json:"size_bytes"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
}

type DownloadProgressPayload struct {
	Downloads []DownloadStatus `json:"downloads"`
}

func (*DownloadProgressPayload) isPayload() {}

// payloadSchema is the kind-indexed schema table. A nil factory marks a kind
// that is known but has no typed payload record; its payload, if any, is kept
// as a RawPayload.
var payloadSchema = map[string]func() Payload{
	KindScanStarted:  nil,
	KindScanFinished: nil,

	KindDownloadStarted:  func() Payload { return &TitlePayload{} },
	KindDownloadFinished: func() Payload { return &DownloadFinishedPayload{} },

	KindRefreshStarted:  func() Payload { return &TitlePayload{} },
	KindRefreshFinished: func() Payload { return &RefreshFinishedPayload{} },

	KindSearchMissingStarted:  func() Payload { return &TitlePayload{} },
	KindSearchMissingFinished: func() Payload { return &SearchMissingFinishedPayload{} },

	KindScanFolderStarted:  func() Payload { return &TitlePayload{} },
	KindScanFolderFinished: func() Payload { return &ScanFolderFinishedPayload{} },

	KindRenameStarted:  func() Payload { return &TitlePayload{} },
	KindRenameFinished: func() Payload { return &RenameFinishedPayload{} },

	KindImportStarted:  func() Payload { return &ImportStartedPayload{} },
	KindImportFinished: func() Payload { return &ImportFinishedPayload{} },

	KindLibraryScanStarted:  nil,
	KindLibraryScanFinished: func() Payload { return &LibraryScanFinishedPayload{} },

	KindRssCheckStarted:  nil,
	KindRssCheckFinished: func() Payload { return &RssCheckFinishedPayload{} },

	KindError: func() Payload { return &MessagePayload{} },
	KindInfo:  func() Payload { return &MessagePayload{} },

	KindScanProgress:        nil,
	KindLibraryScanProgress: nil,
	KindRssCheckProgress:    nil,
	KindDownloadProgress:    func() Payload { return &DownloadProgressPayload{} },
}

// IsKnownKind reports whether kind appears in the schema table. Envelopes
// with unknown kinds still decode; the bridge logs them as unhandled.
func IsKnownKind(kind string) bool {
	_, ok := payloadSchema[kind]
	return ok
}

// ErrMissingType is the cause of a DecodeError for frames without a usable
// "type" field.
var ErrMissingType = errors.New("frame has no type field")

// DecodeError wraps a frame that could not be decoded, keeping the raw text
// for logging. It never escapes as a panic; callers log it and move on.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// wireFrame mirrors the transport wire format: {"type": ..., "payload": {...}}.
type wireFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses one transport frame's text into an Envelope. On any failure
// it returns a *DecodeError; it has no side effects and never panics. Unknown
// payload fields are ignored, unknown kinds are retained with a RawPayload.
func Decode(raw []byte) (Envelope, error) {
	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Envelope{}, &DecodeError{Raw: string(raw), Err: err}
	}

	if frame.Type == "" {
		return Envelope{}, &DecodeError{Raw: string(raw), Err: ErrMissingType}
	}

	env := Envelope{Kind: frame.Type}

	if factory := payloadSchema[frame.Type]; factory != nil {
		payload := factory()
		if len(frame.Payload) > 0 {
			if err := json.Unmarshal(frame.Payload, payload); err != nil {
				return Envelope{}, &DecodeError{Raw: string(raw), Err: err}
			}
		}
		env.Payload = payload
		return env, nil
	}

	if len(frame.Payload) > 0 {
		var m RawPayload
		if err := json.Unmarshal(frame.Payload, &m); err != nil {
			return Envelope{}, &DecodeError{Raw: string(raw), Err: err}
		}
		env.Payload = m
	}

	return env, nil
}
