// Package prompt renders chat messages into the prompt text a model was
// trained on. The template family is detected from the repo's
// tokenizer_config.json rather than executing its Jinja template.
package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"npud/pkg/types"
)

type family int

const (
	familyChatML family = iota
	familyLlama2
	familyLlama3
)

// Renderer formats chat transcripts for one model.
type Renderer struct {
	family family
	bos    string
	eos    string
}

// tokenizer_config.json token entries are either plain strings or
// {"content": "..."} objects.
type tokenField string

func (t *tokenField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = tokenField(s)
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*t = tokenField(obj.Content)
	return nil
}

type tokenizerConfig struct {
	BOSToken     tokenField `json:"bos_token"`
	EOSToken     tokenField `json:"eos_token"`
	ChatTemplate string     `json:"chat_template"`
}

// NewRenderer loads tokenizer_config.json from dir.
func NewRenderer(dir string) (*Renderer, error) {
	b, err := os.ReadFile(filepath.Join(dir, "tokenizer_config.json"))
	if err != nil {
		return nil, fmt.Errorf("prompt: read tokenizer config: %w", err)
	}
	var cfg tokenizerConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("prompt: parse tokenizer config: %w", err)
	}
	r := &Renderer{bos: string(cfg.BOSToken), eos: string(cfg.EOSToken)}
	switch {
	case strings.Contains(cfg.ChatTemplate, "<|start_header_id|>"):
		r.family = familyLlama3
	case strings.Contains(cfg.ChatTemplate, "[INST]"):
		r.family = familyLlama2
	default:
		r.family = familyChatML
	}
	return r, nil
}

// Render builds the prompt for msgs and appends the assistant generation
// header. When enableThinking is false a Qwen-style /no_think directive
// is appended to the last user message.
func (r *Renderer) Render(msgs []types.Message, enableThinking bool) (string, error) {
	if len(msgs) == 0 {
		return "", fmt.Errorf("prompt: empty message list")
	}
	var b strings.Builder
	lastUser := lastUserIndex(msgs)
	for i, m := range msgs {
		role := string(m.Role)
		if role == "" {
			role = string(types.RoleUser)
		}
		// The engine only knows system/user/assistant turns.
		if m.Role == types.RoleDeveloper {
			role = string(types.RoleSystem)
		}
		content := m.Content.Flatten()
		if !enableThinking && i == lastUser {
			content += " /no_think"
		}
		r.writeTurn(&b, role, content)
	}
	r.writeAssistantHeader(&b)
	return b.String(), nil
}

func lastUserIndex(msgs []types.Message) int {
	last := -1
	for i, m := range msgs {
		if m.Role == types.RoleUser {
			last = i
		}
	}
	return last
}

func (r *Renderer) writeTurn(b *strings.Builder, role, content string) {
	switch r.family {
	case familyLlama3:
		fmt.Fprintf(b, "<|start_header_id|>%s<|end_header_id|>\n\n%s<|eot_id|>", role, content)
	case familyLlama2:
		if role == string(types.RoleSystem) {
			fmt.Fprintf(b, "%s[INST] <<SYS>>\n%s\n<</SYS>>\n\n", r.bos, content)
		} else if role == string(types.RoleAssistant) {
			fmt.Fprintf(b, "%s %s", content, r.eos)
		} else {
			fmt.Fprintf(b, "%s [/INST]", content)
		}
	default:
		fmt.Fprintf(b, "<|im_start|>%s\n%s<|im_end|>\n", role, content)
	}
}

func (r *Renderer) writeAssistantHeader(b *strings.Builder) {
	switch r.family {
	case familyLlama3:
		b.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
	case familyLlama2:
		// [/INST] from the final user turn already opens the reply.
	default:
		b.WriteString("<|im_start|>assistant\n")
	}
}
