package runner

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"npud/pkg/types"
)

// ErrHandshakeTimeout reports a mailbox handshake that did not complete
// within its budget. It bounds only message delivery, never generation.
var ErrHandshakeTimeout = errors.New("model mailbox handshake timed out")

// MessageRenderer turns a chat transcript into prompt text. A render
// failure is a soft failure: the actor logs it and submits an empty
// prompt rather than failing the request.
type MessageRenderer interface {
	Render(msgs []types.Message, enableThinking bool) (string, error)
}

type processMsg struct {
	ctx      context.Context
	messages []types.Message
	reply    chan (<-chan string)
}

type shutdownMsg struct {
	reply chan error
}

// Actor is the mailbox endpoint for one resident model. Messages are
// handled sequentially by a single goroutine; Process returns the token
// stream without waiting for generation, so the mailbox stays free to
// take a Shutdown while a run is in flight. Shutdown then blocks on the
// executor's exec lock, which is the safe ordering.
type Actor struct {
	cfg      types.ModelConfig
	exec     *Executor
	renderer MessageRenderer

	procCh chan processMsg
	shutCh chan shutdownMsg
}

// NewActor wires an executor and renderer into a mailbox. The caller
// starts the loop via Serve (runner.Start does this).
func NewActor(exec *Executor, renderer MessageRenderer, cfg types.ModelConfig) *Actor {
	return &Actor{
		cfg:      cfg,
		exec:     exec,
		renderer: renderer,
		procCh:   make(chan processMsg),
		shutCh:   make(chan shutdownMsg),
	}
}

// Serve runs the mailbox loop until a shutdown message arrives.
func (a *Actor) Serve() {
	for {
		select {
		case msg := <-a.procCh:
			msg.reply <- a.handleProcess(msg)
		case msg := <-a.shutCh:
			msg.reply <- a.exec.Shutdown()
			return
		}
	}
}

func (a *Actor) handleProcess(msg processMsg) <-chan string {
	think := a.cfg.ThinkEnabled()
	prompt, err := a.renderer.Render(msg.messages, think)
	if err != nil {
		log.Warn().Err(err).Str("model", a.cfg.Name).Msg("failed to render chat template")
		prompt = ""
	}
	return a.exec.Submit(msg.ctx, prompt, think)
}

// Process sends the transcript to the mailbox and waits for the stream
// handle, at most timeout long. ctx is the cancellation signal the
// executor watches while streaming; it does not bound generation here.
func (a *Actor) Process(ctx context.Context, msgs []types.Message, timeout time.Duration) (<-chan string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	reply := make(chan (<-chan string), 1)
	select {
	case a.procCh <- processMsg{ctx: ctx, messages: msgs, reply: reply}:
	case <-timer.C:
		return nil, ErrHandshakeTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case stream := <-reply:
		return stream, nil
	case <-timer.C:
		return nil, ErrHandshakeTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown asks the mailbox to destroy the model. The reply arrives only
// after any in-flight run has completed or aborted.
func (a *Actor) Shutdown(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case a.shutCh <- shutdownMsg{reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
