package livebridge

import (
	"sync"

	"github.com/tsarna/go-structdiff"

	"github.com/bakarr/livebridge/pkg/livebridge/events"
)

// DefaultDownloadBuffer is the per-subscriber channel buffer for download
// snapshot fan-out.
const DefaultDownloadBuffer = 32

// DownloadTracker holds the latest in-flight-downloads snapshot. The bridge
// is the only writer; any number of readers either poll Snapshot or register
// a channel for push updates. A subscriber whose channel buffer is full when
// a snapshot lands misses that snapshot; the next one is delivered normally,
// so a slow widget never stalls frame processing.
type DownloadTracker struct {
	mu          sync.RWMutex
	current     []events.DownloadStatus
	subscribers map[uint64]chan []events.DownloadStatus
	nextID      uint64
	bufSize     int
}

func NewDownloadTracker() *DownloadTracker {
	return &DownloadTracker{
		subscribers: make(map[uint64]chan []events.DownloadStatus),
		bufSize:     DefaultDownloadBuffer,
	}
}

// Snapshot returns a copy of the latest known download list. Nil until the
// first DownloadProgress event arrives.
func (t *DownloadTracker) Snapshot() []events.DownloadStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.current == nil {
		return nil
	}
	snapshot := make([]events.DownloadStatus, len(t.current))
	copy(snapshot, t.current)
	return snapshot
}

// Register adds a push subscriber and returns its id and receive channel.
// Callers must Unregister the id when done.
func (t *DownloadTracker) Register() (uint64, <-chan []events.DownloadStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	ch := make(chan []events.DownloadStatus, t.bufSize)
	t.subscribers[id] = ch
	return id, ch
}

// Unregister removes a subscriber and closes its channel. Unknown ids are
// ignored, so double-unregister is safe.
func (t *DownloadTracker) Unregister(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ch, ok := t.subscribers[id]; ok {
		delete(t.subscribers, id)
		close(ch)
	}
}

// Subscribers returns the number of registered push subscribers.
func (t *DownloadTracker) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers)
}

type downloadSet struct {
	Downloads []events.DownloadStatus
}

// update replaces the snapshot and fans it out. A snapshot identical to the
// current one is stored but not broadcast, so idle progress ticks don't wake
// every widget.
func (t *DownloadTracker) update(downloads []events.DownloadStatus) {
	t.mu.Lock()

	changed := true
	if t.current != nil {
		diff, _ := structdiff.DiffStructs(downloadSet{t.current}, downloadSet{downloads})
		if len(diff) == 0 {
			changed = false
		}
	}

	snapshot := make([]events.DownloadStatus, len(downloads))
	copy(snapshot, downloads)
	t.current = snapshot
	t.mu.Unlock()

	if !changed {
		return
	}

	// Sends happen under the read lock so Unregister, which closes channels
	// under the write lock, can never close one mid-broadcast.
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ch := range t.subscribers {
		out := make([]events.DownloadStatus, len(snapshot))
		copy(out, snapshot)
		select {
		case ch <- out:
		default:
			// Buffer full: this subscriber skips the snapshot.
		}
	}
}
