package manager

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"npud/internal/runner"
	"npud/internal/store"
	"npud/pkg/types"
)

// ChunkWriter receives wire-ready streaming chunks. The HTTP layer
// implements it over SSE; writes after client disconnect may error, the
// pipeline treats that as cancellation.
type ChunkWriter interface {
	WriteChunk(resp *types.ChatCompletionsResponse) error
}

// ChatCompletions runs one request end to end. Streaming requests write
// chunks through out and return (nil, nil) on success; non-streaming
// requests return the full response object. Errors implement WireError.
func (m *Manager) ChatCompletions(ctx context.Context, req *types.ChatCompletionsRequest, out ChunkWriter) (*types.ChatCompletionsResponse, error) {
	cfg, ok := m.catalog.Get(req.Model)
	if !ok {
		return nil, ErrModelNotFound(req.Model)
	}
	if cfg.Kind != "" && cfg.Kind != types.KindLLM {
		return nil, ErrModelNotChat(cfg.Name)
	}

	id := store.NextID()
	created := time.Now()

	guard, err := m.slots.TryAcquire()
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	if !guard.Resident(cfg.Name) {
		// Loading takes minutes and is only observable through a
		// stream; a non-streaming caller would sit on a silent
		// connection with no liveness signal.
		if !req.Stream {
			return nil, ErrModelNotLoaded(cfg.Name)
		}
		if err := m.swapIn(ctx, guard, cfg, id, created.Unix(), out); err != nil {
			return nil, err
		}
	}

	recipient, _ := guard.Recipient(cfg.Name)
	tokens, err := recipient.Process(ctx, req.Messages, m.slotTimeout)
	if err != nil {
		if errors.Is(err, runner.ErrHandshakeTimeout) {
			return nil, ErrSlotTimeout()
		}
		return nil, ErrInternalJoin(err)
	}
	// The stream handle is out; concurrent requests for the same model
	// may now queue on the exec lock instead of being refused.
	guard.Release()

	rec := store.Record{
		ID:      id,
		Model:   cfg.Name,
		Created: created,
		Prompt:  flattenTranscript(req.Messages),
	}
	if req.Stream {
		return nil, m.streamTokens(ctx, out, id, created.Unix(), cfg.Name, tokens, rec)
	}
	return m.collectTokens(id, created.Unix(), cfg.Name, tokens, rec)
}

// swapIn evicts the resident model, loads cfg and forwards load progress
// to the client as system-role chunks while the load runs.
func (m *Manager) swapIn(ctx context.Context, guard *SlotGuard, cfg types.ModelConfig, id string, created int64, out ChunkWriter) error {
	if prev, _ := guard.Keys(); len(prev) > 0 {
		log.Info().Strs("evicting", prev).Str("loading", cfg.Name).Msg("swapping resident model")
		metricEvictions.Add(float64(len(prev)))
	}
	guard.EvictAll()
	m.clearResident()

	rep := runner.NewReporter()
	type startRes struct {
		actor *runner.Actor
		err   error
	}
	resCh := make(chan startRes, 1)
	go func() {
		a, err := m.startModel(ctx, cfg, rep)
		resCh <- startRes{actor: a, err: err}
	}()

	for ev := range rep.Events() {
		role := types.RoleSystem
		chunk := &types.ChatCompletionsResponse{
			ID:      id,
			Object:  types.ObjectChatCompletionChunk,
			Created: created,
			Model:   cfg.Name,
			Choices: []types.Choice{{
				Delta: &types.Message{Role: role, Content: types.Str(ev.Message)},
			}},
		}
		// A failed write means the client left; the load still has to
		// finish so the slot ends in a known state.
		_ = out.WriteChunk(chunk)
	}

	res := <-resCh
	if res.err != nil {
		if ctx.Err() != nil {
			return ErrInternalJoin(res.err)
		}
		return ErrModelInitFailed(res.err)
	}
	guard.Install(cfg.Name, res.actor, res.actor)
	m.setResident(cfg.Name)
	return nil
}

// streamTokens relays generated tokens as chunks. The terminal chunk
// with finish_reason "stop" is emitted exactly once, whether the stream
// ends with the explicit empty end marker or a bare close.
func (m *Manager) streamTokens(ctx context.Context, out ChunkWriter, id string, created int64, model string, tokens <-chan string, rec store.Record) error {
	var text strings.Builder
	first := true
	rec.Streamed = true
	rec.Finish = "cancelled"
	defer func() {
		rec.Completion = text.String()
		rec.Duration = time.Since(rec.Created)
		m.store.Save(rec)
		metricCompletions.WithLabelValues(model, "stream", rec.Finish).Inc()
	}()

	stop := func() error {
		fin := types.FinishStop
		return out.WriteChunk(&types.ChatCompletionsResponse{
			ID:      id,
			Object:  types.ObjectChatCompletionChunk,
			Created: created,
			Model:   model,
			Choices: []types.Choice{{Delta: &types.Message{}, FinishReason: &fin}},
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case tok, ok := <-tokens:
			if !ok || tok == "" {
				rec.Finish = types.FinishStop
				return stop()
			}
			delta := types.Message{Content: types.Str(tok)}
			if first {
				delta.Role = types.RoleAssistant
				first = false
			}
			text.WriteString(tok)
			metricTokensStreamed.WithLabelValues(model).Inc()
			err := out.WriteChunk(&types.ChatCompletionsResponse{
				ID:      id,
				Object:  types.ObjectChatCompletionChunk,
				Created: created,
				Model:   model,
				Choices: []types.Choice{{Delta: &delta}},
			})
			if err != nil {
				return nil
			}
		}
	}
}

// collectTokens drains the stream into one response object.
func (m *Manager) collectTokens(id string, created int64, model string, tokens <-chan string, rec store.Record) (*types.ChatCompletionsResponse, error) {
	var text strings.Builder
	for tok := range tokens {
		if tok == "" {
			break
		}
		text.WriteString(tok)
	}
	completion := text.String()

	rec.Completion = completion
	rec.Finish = types.FinishStop
	rec.Duration = time.Since(rec.Created)
	m.store.Save(rec)
	metricCompletions.WithLabelValues(model, "blocking", rec.Finish).Inc()

	fin := types.FinishStop
	usage := estimateUsage(rec.Prompt, completion)
	return &types.ChatCompletionsResponse{
		ID:      id,
		Object:  types.ObjectChatCompletion,
		Created: created,
		Model:   model,
		Choices: []types.Choice{{
			Message:      &types.Message{Role: types.RoleAssistant, Content: types.Str(completion)},
			FinishReason: &fin,
		}},
		Usage: &usage,
	}, nil
}

func flattenTranscript(msgs []types.Message) string {
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content.Flatten())
	}
	return b.String()
}

// estimateUsage approximates token counts at four characters per token.
// The native engine does not report per-call totals.
func estimateUsage(prompt, completion string) types.Usage {
	u := types.Usage{
		PromptTokens:     (len(prompt) + 3) / 4,
		CompletionTokens: (len(completion) + 3) / 4,
	}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return u
}
