package hub

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"npud/pkg/types"
)

type recordingProgress struct {
	inits    int
	total    int64
	updated  int64
	finished bool
}

func (p *recordingProgress) Init(total int64, filename string) { p.inits++; p.total = total }
func (p *recordingProgress) Update(n int64)                    { p.updated += n }
func (p *recordingProgress) Finish()                           { p.finished = true }

func newTestClient(t *testing.T, payload map[string]string) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if body, ok := payload[r.URL.Path]; ok {
			w.Write([]byte(body))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(t.TempDir())
	c.BaseURL = srv.URL
	return c, &hits
}

func TestResolveDownloadsAndCaches(t *testing.T) {
	c, hits := newTestClient(t, map[string]string{
		"/acme/m/resolve/main/model.rkllm": "WEIGHTS",
	})
	cfg := types.ModelConfig{Repo: "acme/m", Name: "m"}

	p := &recordingProgress{}
	path, err := c.Resolve(cfg, p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil || string(b) != "WEIGHTS" {
		t.Fatalf("artifact = %q err=%v", b, err)
	}
	if p.inits != 1 || p.updated != int64(len("WEIGHTS")) || !p.finished {
		t.Fatalf("progress = %+v", p)
	}

	// Second resolve is a cache hit.
	if _, err := c.Resolve(cfg, nil); err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("http hits = %d, want 1", n)
	}
}

func TestResolveCustomFilenameTemplate(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"/acme/m/resolve/main/qwen3.rkllm": "W",
	})
	cfg := types.ModelConfig{Repo: "acme/m", Name: "qwen3", File: "{model_name}.rkllm"}
	path, err := c.Resolve(cfg, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if filepath.Base(path) != "qwen3.rkllm" {
		t.Fatalf("path = %q", path)
	}
}

func TestResolvePrefersLocalRepo(t *testing.T) {
	local := t.TempDir()
	if err := os.WriteFile(filepath.Join(local, "model.rkllm"), []byte("LOCAL"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, hits := newTestClient(t, nil)
	cfg := types.ModelConfig{Repo: "acme/m", Name: "m", LocalRepo: local}

	path, err := c.Resolve(cfg, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if path != filepath.Join(local, "model.rkllm") {
		t.Fatalf("path = %q", path)
	}
	if hits.Load() != 0 {
		t.Fatal("local hit must not touch the network")
	}
}

func TestResolveMissingLocalFallsBackToRemote(t *testing.T) {
	c, hits := newTestClient(t, map[string]string{
		"/acme/m/resolve/main/model.rkllm": "REMOTE",
	})
	cfg := types.ModelConfig{Repo: "acme/m", Name: "m", LocalRepo: "/nonexistent/{model_name}"}
	if _, err := c.Resolve(cfg, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatal("expected remote fallback")
	}
}

func TestResolveDownloadError(t *testing.T) {
	c, _ := newTestClient(t, nil)
	cfg := types.ModelConfig{Repo: "acme/m", Name: "m"}
	if _, err := c.Resolve(cfg, nil); err == nil {
		t.Fatal("expected error for missing remote artifact")
	}
	// A failed download must not leave a poisoned cache entry.
	if _, err := os.Stat(filepath.Join(c.CacheDir, "acme--m", "model.rkllm")); err == nil {
		t.Fatal("torn download left a cache file")
	}
}

func TestTokenizerDir(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"/acme/tok/resolve/main/tokenizer_config.json": `{"chat_template":""}`,
	})
	cfg := types.ModelConfig{Repo: "acme/m", Name: "m", TokenizerRepo: "acme/tok"}
	dir, err := c.TokenizerDir(cfg)
	if err != nil {
		t.Fatalf("tokenizer dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tokenizer_config.json")); err != nil {
		t.Fatalf("tokenizer config not in returned dir: %v", err)
	}
}
