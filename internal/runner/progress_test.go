package runner

import (
	"strings"
	"testing"
	"time"

	"npud/pkg/types"
)

func nextEvent(t *testing.T, r *Reporter) types.ProgressEvent {
	t.Helper()
	select {
	case ev, ok := <-r.Events():
		if !ok {
			t.Fatal("event stream closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	return types.ProgressEvent{}
}

func TestReporterDownloadEvents(t *testing.T) {
	r := NewReporter()
	defer r.Close()

	r.Init(100, "model.rkllm")
	ev := nextEvent(t, r)
	if ev.Total != 100 || !strings.Contains(ev.Message, "model.rkllm") {
		t.Fatalf("init event = %+v", ev)
	}

	r.Update(40)
	ev = nextEvent(t, r)
	if ev.Current != 40 {
		t.Fatalf("update event = %+v", ev)
	}

	// A second update inside the throttle window emits nothing.
	r.Update(10)
	select {
	case ev := <-r.Events():
		t.Fatalf("unexpected throttled event: %+v", ev)
	default:
	}

	r.Finish()
	ev = nextEvent(t, r)
	if !ev.DownloadDone || ev.Current != 100 || ev.Total != 100 {
		t.Fatalf("finish event = %+v", ev)
	}
}

func TestReporterModelLifecycleClosesStream(t *testing.T) {
	r := NewReporter()

	r.ModelLoadStarted(8<<20, "model.rkllm")
	ev := nextEvent(t, r)
	if !strings.Contains(ev.Message, "loading model") {
		t.Fatalf("load event = %+v", ev)
	}

	r.ModelFinished()
	sawFinished := false
	for ev := range r.Events() {
		if ev.Finished {
			sawFinished = true
		}
	}
	if !sawFinished {
		t.Fatal("no terminal event before close")
	}
}

func TestReporterCloseWithoutFinishUnblocksConsumer(t *testing.T) {
	r := NewReporter()
	r.Init(10, "f")
	r.Close()
	r.Close() // idempotent

	n := 0
	for range r.Events() {
		n++
	}
	if n != 1 {
		t.Fatalf("drained %d events, want the single init event", n)
	}
}

func TestNilReporterIsSafe(t *testing.T) {
	var r *Reporter
	r.Init(1, "f")
	r.Update(1)
	r.Finish()
	r.ModelLoadStarted(1, "f")
	r.ModelFinished()
	r.Close()
}
