// Package catalog holds the process-wide model configuration table,
// loaded once at start and read-only afterwards.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"npud/internal/common/fsutil"
	"npud/pkg/types"
)

// Catalog maps model identity (the "model" field of incoming requests)
// to its load configuration.
type Catalog map[string]types.ModelConfig

// Get looks a model up by identity.
func (c Catalog) Get(id string) (types.ModelConfig, bool) {
	cfg, ok := c[id]
	return cfg, ok
}

// Names returns the model identities in stable order.
func (c Catalog) Names() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LoadDir reads every model config file in dir. The format follows the
// extension: .json, .yaml/.yml or .toml. Configs are keyed by model
// name, falling back to the repo id when the name is empty.
func LoadDir(dir string) (Catalog, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("read config dir: %w", err)
	}
	cat := make(Catalog)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(base, e.Name())
		cfg, err := loadFile(path)
		if err != nil {
			if err == errUnsupportedExt {
				continue
			}
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if cfg.Repo == "" {
			return nil, fmt.Errorf("%s: model_repo is required", path)
		}
		if cfg.Name == "" {
			cfg.Name = cfg.Repo
		}
		if cfg.Kind == "" {
			cfg.Kind = types.KindLLM
		}
		if prev, dup := cat[cfg.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate model name %q (also in repo %s)", path, cfg.Name, prev.Repo)
		}
		cat[cfg.Name] = cfg
		log.Info().Str("model", cfg.Name).Str("file", path).Msg("loaded model config")
	}
	return cat, nil
}

var errUnsupportedExt = fmt.Errorf("unsupported config extension")

func loadFile(path string) (types.ModelConfig, error) {
	var cfg types.ModelConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, errUnsupportedExt
	}
	return cfg, err
}
