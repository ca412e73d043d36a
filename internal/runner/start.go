package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"npud/internal/hub"
	"npud/internal/npu"
	"npud/internal/prompt"
	"npud/pkg/types"
)

// ArtifactSource resolves a model config to local files. *hub.Client is
// the production implementation.
type ArtifactSource interface {
	Resolve(cfg types.ModelConfig, p hub.Progress) (string, error)
	TokenizerDir(cfg types.ModelConfig) (string, error)
}

// Start brings one model to life: artifact resolution (with download
// progress), native load (with heartbeat), tokenizer load, then the
// mailbox goroutine. rep may be nil for silent loads (boot preload).
// Whatever happens, rep's event stream is closed before Start returns.
func Start(engine npu.Engine, src ArtifactSource, cfg types.ModelConfig, rep *Reporter) (*Actor, error) {
	defer rep.Close()

	var p hub.Progress
	if rep != nil {
		p = rep
	}
	path, err := src.Resolve(cfg, p)
	if err != nil {
		return nil, fmt.Errorf("resolve model artifact: %w", err)
	}

	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	rep.ModelLoadStarted(size, filepath.Base(path))

	params := npu.DefaultParams()
	params.PromptCachePath = cfg.CachePath
	handle, err := engine.Load(path, params)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	tokDir, err := src.TokenizerDir(cfg)
	if err != nil {
		_ = handle.Destroy()
		return nil, fmt.Errorf("resolve tokenizer: %w", err)
	}
	renderer, err := prompt.NewRenderer(tokDir)
	if err != nil {
		_ = handle.Destroy()
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	rep.ModelFinished()

	a := NewActor(NewExecutor(handle), renderer, cfg)
	go a.Serve()
	return a, nil
}
