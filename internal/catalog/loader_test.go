package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadDirMixedFormats(t *testing.T) {
	d := t.TempDir()
	writeFile(t, d, "qwen.json", `{"model_repo":"acme/qwen","model_name":"qwen3","model_type":"LLM"}`)
	writeFile(t, d, "llama.yaml", "model_repo: acme/llama\nmodel_name: llama3\n")
	writeFile(t, d, "tiny.toml", "model_repo=\"acme/tiny\"\nmodel_name=\"tiny\"\nthink=true\n")
	writeFile(t, d, "README.md", "not a config")

	cat, err := LoadDir(d)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cat) != 3 {
		t.Fatalf("loaded %d configs, want 3: %v", len(cat), cat.Names())
	}
	cfg, ok := cat.Get("qwen3")
	if !ok || cfg.Repo != "acme/qwen" {
		t.Fatalf("qwen3 = %+v ok=%v", cfg, ok)
	}
	if cfg, _ := cat.Get("tiny"); !cfg.ThinkEnabled() {
		t.Fatal("tiny think flag lost")
	}
	names := cat.Names()
	if len(names) != 3 || names[0] != "llama3" {
		t.Fatalf("names = %v, want sorted", names)
	}
}

func TestLoadDirNameDefaultsToRepo(t *testing.T) {
	d := t.TempDir()
	writeFile(t, d, "m.json", `{"model_repo":"acme/anon"}`)
	cat, err := LoadDir(d)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := cat.Get("acme/anon"); !ok {
		t.Fatalf("missing repo-keyed entry: %v", cat.Names())
	}
}

func TestLoadDirMissingRepoFails(t *testing.T) {
	d := t.TempDir()
	writeFile(t, d, "m.json", `{"model_name":"orphan"}`)
	if _, err := LoadDir(d); err == nil {
		t.Fatal("expected error for config without model_repo")
	}
}

func TestLoadDirDuplicateNameFails(t *testing.T) {
	d := t.TempDir()
	writeFile(t, d, "a.json", `{"model_repo":"acme/a","model_name":"dup"}`)
	writeFile(t, d, "b.json", `{"model_repo":"acme/b","model_name":"dup"}`)
	if _, err := LoadDir(d); err == nil {
		t.Fatal("expected duplicate-name error")
	}
}

func TestLoadDirMissingDirectory(t *testing.T) {
	if _, err := LoadDir("/no/such/dir-404"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
