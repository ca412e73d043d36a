// Package hub resolves model identities to local artifact paths,
// downloading from the Hugging Face hub when the artifact is not cached.
package hub

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"npud/internal/common/fsutil"
	"npud/pkg/types"
)

// Progress receives download status callbacks. Implementations must not
// block: they are invoked from the download loop.
type Progress interface {
	Init(total int64, filename string)
	Update(n int64)
	Finish()
}

const defaultModelFile = "model.rkllm"

// Client fetches artifacts with a local cache. The zero BaseURL targets
// huggingface.co.
type Client struct {
	BaseURL    string
	CacheDir   string
	HTTPClient *http.Client
}

// NewClient builds a Client caching under dir. An empty dir selects
// ~/.cache/npud.
func NewClient(dir string) *Client {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dir = filepath.Join(home, ".cache", "npud")
		} else {
			dir = ".npud-cache"
		}
	}
	return &Client{
		BaseURL:  "https://huggingface.co",
		CacheDir: dir,
		// Model artifacts run to gigabytes; no overall timeout.
		HTTPClient: &http.Client{Timeout: 0},
	}
}

// Resolve returns the local path of the model artifact for cfg,
// preferring the configured local repo, then the cache, then a download
// with progress callbacks.
func (c *Client) Resolve(cfg types.ModelConfig, p Progress) (string, error) {
	if local := localModelPath(cfg); local != "" {
		if fsutil.PathExists(local) {
			log.Info().Str("path", local).Msg("using local model")
			return local, nil
		}
		log.Warn().Str("path", local).Msg("local model path not found, falling back to remote")
	}
	return c.fetch(cfg.Repo, modelFilename(cfg), p)
}

// TokenizerDir returns a local directory containing tokenizer_config.json
// for cfg, downloading it when necessary.
func (c *Client) TokenizerDir(cfg types.ModelConfig) (string, error) {
	if cfg.LocalRepo != "" {
		dir := renderTemplate(cfg.LocalRepo, cfg)
		if fsutil.PathExists(filepath.Join(dir, "tokenizer_config.json")) {
			log.Info().Str("path", dir).Msg("using local tokenizer")
			return dir, nil
		}
		log.Warn().Str("path", dir).Msg("local tokenizer not found, falling back to remote")
	}
	repo := cfg.TokenizerRepo
	if repo == "" {
		repo = cfg.Repo
	}
	path, err := c.fetch(repo, "tokenizer_config.json", nil)
	if err != nil {
		return "", err
	}
	return filepath.Dir(path), nil
}

// fetch returns the cached path for repo/filename, downloading on a miss.
func (c *Client) fetch(repo, filename string, p Progress) (string, error) {
	dst := filepath.Join(c.CacheDir, strings.ReplaceAll(repo, "/", "--"), filename)
	if fsutil.PathExists(dst) {
		return dst, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/resolve/main/%s", c.BaseURL, repo, filename)
	log.Info().Str("url", url).Msg("downloading artifact")
	resp, err := c.HTTPClient.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("hub: download %s: status %d", url, resp.StatusCode)
	}

	if p != nil {
		p.Init(resp.ContentLength, filename)
	}

	// Write to a temp file first so a torn download never poisons the cache.
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filename+".part-")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	src := io.Reader(resp.Body)
	if p != nil {
		src = &progressReader{r: resp.Body, p: p}
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	if p != nil {
		p.Finish()
	}
	return dst, nil
}

type progressReader struct {
	r io.Reader
	p Progress
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.p.Update(int64(n))
	}
	return n, err
}

// renderTemplate substitutes the {model_name} placeholder.
func renderTemplate(s string, cfg types.ModelConfig) string {
	return strings.ReplaceAll(s, "{model_name}", cfg.Name)
}

func modelFilename(cfg types.ModelConfig) string {
	f := cfg.File
	if f == "" {
		f = defaultModelFile
	}
	return renderTemplate(f, cfg)
}

func localModelPath(cfg types.ModelConfig) string {
	if cfg.LocalRepo == "" {
		return ""
	}
	return filepath.Join(renderTemplate(cfg.LocalRepo, cfg), modelFilename(cfg))
}
