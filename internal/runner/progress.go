package runner

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"npud/pkg/types"
)

// progressBuf bounds the event channel; producers use a lossy try-send
// so a slow consumer can never stall a download or load.
const progressBuf = 64

// heartbeatEvery paces the "still loading" events emitted while the
// native load call is blocking.
const heartbeatEvery = time.Second

// Reporter adapts the hub's download-progress callbacks and the model
// load phase into a bounded stream of ProgressEvents. Events are
// consumed exactly once; the channel is closed by ModelFinished or
// Close, whichever comes first.
type Reporter struct {
	ch      chan types.ProgressEvent
	current atomic.Int64
	total   atomic.Int64

	lastUpdate time.Time

	stopBeat  chan struct{}
	beatDone  chan struct{}
	closeOnce sync.Once
}

// NewReporter builds a Reporter with the standard buffer.
func NewReporter() *Reporter {
	return &Reporter{ch: make(chan types.ProgressEvent, progressBuf)}
}

// Events is the consumer side. It is closed when loading ends.
func (r *Reporter) Events() <-chan types.ProgressEvent {
	return r.ch
}

// Init implements hub.Progress.
func (r *Reporter) Init(total int64, filename string) {
	if r == nil {
		return
	}
	r.total.Store(total)
	r.current.Store(0)
	r.trySend(types.ProgressEvent{
		Total:   total,
		Message: fmt.Sprintf("starting model download: %s", filename),
	})
}

// Update implements hub.Progress. Download reads arrive every few
// kilobytes; events are throttled to the heartbeat rate so the client
// is not flooded.
func (r *Reporter) Update(n int64) {
	if r == nil {
		return
	}
	cur := r.current.Add(n)
	now := time.Now()
	if now.Sub(r.lastUpdate) < heartbeatEvery {
		return
	}
	r.lastUpdate = now
	total := r.total.Load()
	r.trySend(types.ProgressEvent{
		Current: cur,
		Total:   total,
		Message: fmt.Sprintf("downloading... %d/%d", cur, total),
	})
}

// Finish implements hub.Progress.
func (r *Reporter) Finish() {
	if r == nil {
		return
	}
	total := r.total.Load()
	r.current.Store(total)
	r.trySend(types.ProgressEvent{
		Current:      total,
		Total:        total,
		DownloadDone: true,
		Message:      "download complete, initializing model...",
	})
}

// ModelLoadStarted announces the blocking native load and starts a
// heartbeat goroutine so the client keeps seeing liveness while the
// load call occupies its worker.
func (r *Reporter) ModelLoadStarted(size int64, filename string) {
	if r == nil {
		return
	}
	r.trySend(types.ProgressEvent{
		Current:      r.current.Load(),
		Total:        r.total.Load(),
		DownloadDone: true,
		Message:      fmt.Sprintf("loading model %s (%d MiB)...", filename, size/(1024*1024)),
	})
	r.stopBeat = make(chan struct{})
	r.beatDone = make(chan struct{})
	start := time.Now()
	go func() {
		defer close(r.beatDone)
		tick := time.NewTicker(heartbeatEvery)
		defer tick.Stop()
		for {
			select {
			case <-r.stopBeat:
				return
			case <-tick.C:
				r.trySend(types.ProgressEvent{
					Current:      r.current.Load(),
					Total:        r.total.Load(),
					DownloadDone: true,
					Message:      fmt.Sprintf("still loading model, %ds elapsed", int(time.Since(start).Seconds())),
				})
			}
		}
	}()
}

// ModelFinished stops the heartbeat, emits the terminal event and closes
// the stream.
func (r *Reporter) ModelFinished() {
	if r == nil {
		return
	}
	r.stopHeartbeat()
	r.trySend(types.ProgressEvent{
		Current:      r.current.Load(),
		Total:        r.total.Load(),
		DownloadDone: true,
		Finished:     true,
		Message:      "model fully initialized, starting inference endpoint",
	})
	r.Close()
}

// Close terminates the event stream without a completion event. Safe to
// call more than once and after ModelFinished; error paths rely on it so
// consumers ranging over Events always unblock.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	r.stopHeartbeat()
	r.closeOnce.Do(func() { close(r.ch) })
}

func (r *Reporter) stopHeartbeat() {
	if r.stopBeat == nil {
		return
	}
	select {
	case <-r.stopBeat:
	default:
		close(r.stopBeat)
	}
	<-r.beatDone
	r.stopBeat = nil
}

func (r *Reporter) trySend(ev types.ProgressEvent) {
	select {
	case r.ch <- ev:
	default:
		// Consumer behind; drop rather than block the loader.
	}
}
