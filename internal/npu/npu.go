// Package npu defines the boundary to the native inference engine. The
// real backend is selected at build time: the 'rkllm' tag links against
// librkllmrt for the Rockchip NPU, the 'llama' tag uses go-llama.cpp as a
// CPU development backend, and the default build fails fast instead of
// mocking inference.
package npu

import "errors"

// Params are the load-time generation parameters for a model context.
type Params struct {
	MaxContextLen int
	MaxNewTokens  int
	TopK          int
	TopP          float32
	Temperature   float32
	RepeatPenalty float32
	// PromptCachePath enables the on-disk prompt cache when non-empty.
	PromptCachePath string
}

// DefaultParams mirrors the tuning the NPU runtime ships with.
func DefaultParams() Params {
	return Params{
		MaxContextLen: 16384,
		MaxNewTokens:  4096,
		TopK:          40,
		TopP:          0.9,
		Temperature:   0.7,
		RepeatPenalty: 1.1,
	}
}

// RunInput is one prompt submitted to a handle.
type RunInput struct {
	Prompt         string
	EnableThinking bool
}

// Handle is an opaque owned reference to one loaded model context.
// Run is blocking and drives the token callback on its caller's
// goroutine; it is not safe to call concurrently. Abort may be called
// from any goroutine and interrupts an in-flight Run. Destroy releases
// the context and must be called exactly once, with no Run in flight.
type Handle interface {
	Run(in RunInput, onToken func(text string)) error
	Abort() error
	Destroy() error
}

// Engine loads model artifacts into handles.
type Engine interface {
	Load(path string, p Params) (Handle, error)
}

// ErrUnavailable reports that this binary was built without a usable
// inference backend.
var ErrUnavailable = errors.New("npu: no inference backend built (use -tags rkllm or -tags llama)")
