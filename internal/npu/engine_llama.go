//go:build llama

package npu

import (
	"errors"
	"strings"
	"sync/atomic"

	llama "github.com/go-skynet/go-llama.cpp"
)

// go-llama.cpp development backend. Useful on machines without the NPU;
// behavior matches the rkllm backend at the Handle contract level. Abort
// is cooperative: the token callback observes the flag and stops the
// prediction loop.

type llamaEngine struct{}

// NewEngine returns the backend selected by build tags.
func NewEngine() Engine { return llamaEngine{} }

func (llamaEngine) Load(path string, p Params) (Handle, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("npu: model path is empty")
	}
	m, err := llama.New(path, llama.SetContext(p.MaxContextLen))
	if err != nil {
		return nil, err
	}
	return &llamaHandle{model: m, params: p}, nil
}

type llamaHandle struct {
	model   *llama.LLama
	params  Params
	aborted atomic.Bool
}

func (h *llamaHandle) Run(in RunInput, onToken func(string)) error {
	if h.model == nil {
		return errors.New("npu: handle destroyed")
	}
	h.aborted.Store(false)
	h.model.SetTokenCallback(func(tok string) bool {
		if h.aborted.Load() {
			return false
		}
		onToken(tok)
		return true
	})
	_, err := h.model.Predict(in.Prompt,
		llama.SetTokens(h.params.MaxNewTokens),
		llama.SetTopK(h.params.TopK),
		llama.SetTopP(h.params.TopP),
		llama.SetTemperature(h.params.Temperature),
		llama.SetPenalty(h.params.RepeatPenalty),
	)
	if h.aborted.Load() {
		return nil
	}
	if err == nil {
		// Explicit end-of-stream marker, same as the NPU runtime's
		// finish callback.
		onToken("")
	}
	return err
}

func (h *llamaHandle) Abort() error {
	h.aborted.Store(true)
	return nil
}

func (h *llamaHandle) Destroy() error {
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	return nil
}
