package types

// ModelKind distinguishes chat models from speech models in the catalog.
type ModelKind string

const (
	KindLLM ModelKind = "LLM"
	KindASR ModelKind = "ASR"
)

// ModelConfig is the identity and load parameters for one model. It is
// immutable after catalog load.
type ModelConfig struct {
	// Repo is the hub repository the artifact is fetched from,
	// e.g. "Qwen/Qwen3-4B-RKLLM".
	Repo string `json:"model_repo" yaml:"model_repo" toml:"model_repo"`
	// Name is the identity clients put in the "model" request field.
	Name string    `json:"model_name" yaml:"model_name" toml:"model_name"`
	Kind ModelKind `json:"model_type" yaml:"model_type" toml:"model_type"`
	// File is the artifact filename inside the repo. May contain the
	// {model_name} placeholder. Defaults to "model.rkllm".
	File string `json:"model_path,omitempty" yaml:"model_path,omitempty" toml:"model_path,omitempty"`
	// TokenizerRepo overrides the repo the tokenizer config comes from.
	TokenizerRepo string `json:"tokenizer_repo,omitempty" yaml:"tokenizer_repo,omitempty" toml:"tokenizer_repo,omitempty"`
	// LocalRepo, when set, is a directory template checked before any
	// download. May contain the {model_name} placeholder.
	LocalRepo string `json:"local_repo,omitempty" yaml:"local_repo,omitempty" toml:"local_repo,omitempty"`
	// CachePath enables the engine's on-disk prompt cache.
	CachePath string `json:"cache_path,omitempty" yaml:"cache_path,omitempty" toml:"cache_path,omitempty"`
	// Think toggles reasoning-mode prompt formatting.
	Think *bool `json:"think,omitempty" yaml:"think,omitempty" toml:"think,omitempty"`
}

// ThinkEnabled reports the think flag, defaulting to off.
func (c ModelConfig) ThinkEnabled() bool { return c.Think != nil && *c.Think }

// ProgressEvent is one load/download status update. It is forwarded to
// the client as synthetic chat content and then discarded.
type ProgressEvent struct {
	Current      int64  `json:"current"`
	Total        int64  `json:"total"`
	DownloadDone bool   `json:"download_done"`
	Finished     bool   `json:"finished"`
	Message      string `json:"message"`
}

// ResidentModel describes the currently loaded model for /api/ps and
// /status.
type ResidentModel struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	SizeVRAM  int64  `json:"size_vram,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}
