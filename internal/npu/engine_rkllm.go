//go:build rkllm

package npu

// Binding against the Rockchip rkllm runtime. librkllmrt.so and rkllm.h
// come from the rknn-llm SDK; we set an rpath of $ORIGIN so the loader
// finds the library next to the built binary (./bin), matching how the
// SDK ships it.

/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lrkllmrt
#include <stdlib.h>
#include <stdint.h>
#include "rkllm.h"

extern void npudTokenCallback(RKLLMResult* result, void* userdata, LLMCallState state);

static int npud_rkllm_init(LLMHandle* handle, RKLLMParam* param) {
	return rkllm_init(handle, param, npudTokenCallback);
}

// RKLLMInput carries a union; build it on the C side.
static int npud_rkllm_run(LLMHandle handle, const char* prompt, int enable_thinking,
		RKLLMInferParam* infer_param, uintptr_t userdata) {
	RKLLMInput input;
	memset(&input, 0, sizeof(input));
	input.input_type = RKLLM_INPUT_PROMPT;
	input.prompt_input = prompt;
	input.enable_thinking = enable_thinking;
	input.role = "user";
	return rkllm_run(handle, &input, infer_param, (void*)userdata);
}
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"unsafe"
)

type rkllmEngine struct{}

// NewEngine returns the backend selected by build tags.
func NewEngine() Engine { return rkllmEngine{} }

func (rkllmEngine) Load(path string, p Params) (Handle, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	param := C.rkllm_createDefaultParam()
	param.model_path = cPath
	param.max_context_len = C.int32_t(p.MaxContextLen)
	param.max_new_tokens = C.int32_t(p.MaxNewTokens)
	param.top_k = C.int32_t(p.TopK)
	param.top_p = C.float(p.TopP)
	param.temperature = C.float(p.Temperature)
	param.repeat_penalty = C.float(p.RepeatPenalty)

	var raw C.LLMHandle
	if ret := C.npud_rkllm_init(&raw, &param); ret != 0 {
		return nil, fmt.Errorf("npu: rkllm_init failed: %d", int(ret))
	}
	return &rkllmHandle{raw: raw, params: p}, nil
}

type rkllmHandle struct {
	raw     C.LLMHandle
	params  Params
	onToken func(string)
}

func (h *rkllmHandle) Run(in RunInput, onToken func(string)) error {
	h.onToken = onToken
	defer func() { h.onToken = nil }()

	ch := cgo.NewHandle(h)
	defer ch.Delete()

	cPrompt := C.CString(in.Prompt)
	defer C.free(unsafe.Pointer(cPrompt))

	var infer C.RKLLMInferParam
	infer.mode = C.RKLLM_INFER_GENERATE
	var cache C.RKLLMPromptCacheParam
	var cCache *C.char
	if h.params.PromptCachePath != "" {
		cCache = C.CString(h.params.PromptCachePath)
		defer C.free(unsafe.Pointer(cCache))
		cache.save_prompt_cache = 1
		cache.prompt_cache_path = cCache
		infer.prompt_cache_params = &cache
	}

	thinking := C.int(0)
	if in.EnableThinking {
		thinking = 1
	}
	if ret := C.npud_rkllm_run(h.raw, cPrompt, thinking, &infer, C.uintptr_t(ch)); ret != 0 {
		return fmt.Errorf("npu: rkllm_run failed: %d", int(ret))
	}
	return nil
}

func (h *rkllmHandle) Abort() error {
	if ret := C.rkllm_abort(h.raw); ret != 0 {
		return fmt.Errorf("npu: rkllm_abort failed: %d", int(ret))
	}
	return nil
}

func (h *rkllmHandle) Destroy() error {
	if ret := C.rkllm_destroy(h.raw); ret != 0 {
		return fmt.Errorf("npu: rkllm_destroy failed: %d", int(ret))
	}
	return nil
}

//export npudTokenCallback
func npudTokenCallback(result *C.RKLLMResult, userdata unsafe.Pointer, state C.LLMCallState) {
	h, ok := cgo.Handle(uintptr(userdata)).Value().(*rkllmHandle)
	if !ok || h.onToken == nil {
		return
	}
	switch state {
	case C.RKLLM_RUN_NORMAL:
		if result != nil && result.text != nil {
			h.onToken(C.GoString(result.text))
		}
	case C.RKLLM_RUN_FINISH:
		// Explicit end-of-stream marker.
		h.onToken("")
	default:
		// WAITING/ERROR carry no token text; errors surface through
		// rkllm_run's return.
	}
}
