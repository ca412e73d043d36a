package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"npud/internal/npu"
)

// tokenBufCap bounds the token channel between the native callback and
// the response stream. A full buffer blocks the callback, which is the
// backpressure the native engine understands.
const tokenBufCap = 64

// Executor is the single gatekeeper of one native handle. It runs one
// inference at a time under execMu and is the only code allowed to call
// into the handle, with one exception: the abort path deliberately
// bypasses execMu (see streamCallback.push).
type Executor struct {
	handle npu.Handle

	// execMu means "a native call is in flight", it guards no data.
	execMu    sync.Mutex
	destroyed bool
}

// NewExecutor wraps a freshly loaded handle.
func NewExecutor(h npu.Handle) *Executor {
	return &Executor{handle: h}
}

// Submit runs prompt through the native handle on a dedicated goroutine
// and returns the token stream immediately. The channel is closed when
// generation ends; a run failure surfaces as one diagnostic token
// followed by an empty end-of-stream marker. Cancelling ctx while a
// token push is pending aborts the native run from a detached goroutine.
func (e *Executor) Submit(ctx context.Context, prompt string, think bool) <-chan string {
	out := make(chan string, tokenBufCap)
	go func() {
		e.execMu.Lock()
		defer e.execMu.Unlock()
		defer close(out)
		if e.destroyed {
			return
		}
		cb := &streamCallback{ctx: ctx, out: out, handle: e.handle}
		err := e.handle.Run(npu.RunInput{Prompt: prompt, EnableThinking: think}, cb.push)
		if err != nil && !cb.dead {
			log.Error().Err(err).Msg("inference run failed")
			cb.push(fmt.Sprintf("Model error: execution failed. Check logs for context-length warnings. Details: %v", err))
			cb.push("")
		}
	}()
	return out
}

// Shutdown waits for any in-flight run to finish or abort, then destroys
// the handle. Idempotent: the second and later calls are no-ops.
func (e *Executor) Shutdown() error {
	e.execMu.Lock()
	defer e.execMu.Unlock()
	if e.destroyed {
		return nil
	}
	e.destroyed = true
	return e.handle.Destroy()
}

// streamCallback bridges the native push callback to the pull-style
// token channel. All fields are touched only from the run goroutine
// except handle.Abort, which is invoked on its own goroutine: the
// callback executes on the same stack as the blocking Run call, so an
// inline abort would deadlock against it.
type streamCallback struct {
	ctx    context.Context
	out    chan<- string
	handle npu.Handle

	abortOnce sync.Once
	dead      bool
}

func (c *streamCallback) push(text string) {
	if c.dead {
		return
	}
	select {
	case c.out <- text:
	case <-c.ctx.Done():
		// Consumer is gone (client disconnect). Go inert and stop the
		// native run from a detached goroutine, at most once.
		c.dead = true
		c.abortOnce.Do(func() {
			go func() {
				if err := c.handle.Abort(); err != nil {
					log.Error().Err(err).Msg("failed to abort inference")
				}
			}()
		})
	}
}
