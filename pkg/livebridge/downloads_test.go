package livebridge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakarr/livebridge/pkg/livebridge/events"
)

func TestDownloadTrackerSnapshot(t *testing.T) {
	tracker := NewDownloadTracker()
	assert.Nil(t, tracker.Snapshot())

	tracker.update([]events.DownloadStatus{{Title: "A", Progress: 0.25}})

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "A", snapshot[0].Title)

	// The snapshot is a copy: mutating it doesn't touch tracker state.
	snapshot[0].Title = "mutated"
	assert.Equal(t, "A", tracker.Snapshot()[0].Title)
}

func TestDownloadTrackerFanOut(t *testing.T) {
	tracker := NewDownloadTracker()

	id1, ch1 := tracker.Register()
	id2, ch2 := tracker.Register()
	defer tracker.Unregister(id1)
	defer tracker.Unregister(id2)

	assert.Equal(t, 2, tracker.Subscribers())

	tracker.update([]events.DownloadStatus{{Title: "B", Progress: 0.1}})

	for _, ch := range []<-chan []events.DownloadStatus{ch1, ch2} {
		snapshot := <-ch
		require.Len(t, snapshot, 1)
		assert.Equal(t, "B", snapshot[0].Title)
	}
}

func TestDownloadTrackerSkipsUnchangedSnapshots(t *testing.T) {
	tracker := NewDownloadTracker()

	id, ch := tracker.Register()
	defer tracker.Unregister(id)

	downloads := []events.DownloadStatus{{Title: "C", AnimeID: 3, Progress: 0.5}}
	tracker.update(downloads)
	tracker.update([]events.DownloadStatus{{Title: "C", AnimeID: 3, Progress: 0.5}})
	tracker.update([]events.DownloadStatus{{Title: "C", AnimeID: 3, Progress: 0.6}})

	first := <-ch
	assert.Equal(t, 0.5, first[0].Progress)

	// The identical second update was suppressed; the next delivery is the
	// changed one.
	second := <-ch
	assert.Equal(t, 0.6, second[0].Progress)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot: %v", extra)
	default:
	}
}

func TestDownloadTrackerDropsForSlowSubscribers(t *testing.T) {
	tracker := NewDownloadTracker()
	tracker.bufSize = 1

	id, ch := tracker.Register()
	defer tracker.Unregister(id)

	tracker.update([]events.DownloadStatus{{Title: "D", Progress: 0.1}})
	tracker.update([]events.DownloadStatus{{Title: "D", Progress: 0.2}}) // dropped, buffer full
	tracker.update([]events.DownloadStatus{{Title: "D", Progress: 0.3}}) // dropped, buffer full

	first := <-ch
	assert.Equal(t, 0.1, first[0].Progress)

	select {
	case extra := <-ch:
		t.Fatalf("slow subscriber should have missed snapshots, got %v", extra)
	default:
	}

	// The tracker itself still holds the newest state.
	assert.Equal(t, 0.3, tracker.Snapshot()[0].Progress)
}

func TestDownloadTrackerUnregisterDuringBroadcast(t *testing.T) {
	tracker := NewDownloadTracker()

	ids := make([]uint64, 0, 64)
	for i := 0; i < 64; i++ {
		id, ch := tracker.Register()
		ids = append(ids, id)
		// Keep buffers draining so sends actually happen during the race.
		go func(ch <-chan []events.DownloadStatus) {
			for range ch {
			}
		}(ch)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, id := range ids {
			tracker.Unregister(id)
		}
	}()

	assert.NotPanics(t, func() {
		for i := 0; i < 200; i++ {
			tracker.update([]events.DownloadStatus{{Title: "racing", Progress: float64(i)}})
		}
	})

	wg.Wait()
	assert.Equal(t, 0, tracker.Subscribers())
}

func TestDownloadTrackerUnregister(t *testing.T) {
	tracker := NewDownloadTracker()

	id, ch := tracker.Register()
	tracker.Unregister(id)
	tracker.Unregister(id) // safe to repeat

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, tracker.Subscribers())

	assert.NotPanics(t, func() {
		tracker.update([]events.DownloadStatus{{Title: "E"}})
	})
}
