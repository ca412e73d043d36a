package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Content is the polymorphic message body: a plain string, a list of
// strings, or a list of typed parts (text and image references). The
// three shapes serialize to the forms OpenAI clients send.
type Content struct {
	Text  string
	Array []string
	Parts []ContentPart
	kind  contentKind
}

type contentKind int

const (
	contentString contentKind = iota
	contentArray
	contentParts
)

// ContentPart is one element of a multi-part message body.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     *string   `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image in a multi-part message.
type ImageURL struct {
	URL    string `json:"url,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Str builds a plain-string Content.
func Str(s string) *Content { return &Content{Text: s, kind: contentString} }

// Flatten collapses any content shape into plain prompt text. Image parts
// contribute nothing; the engine is text-only.
func (c *Content) Flatten() string {
	if c == nil {
		return ""
	}
	switch c.kind {
	case contentArray:
		return strings.Join(c.Array, "")
	case contentParts:
		var b strings.Builder
		for _, p := range c.Parts {
			if p.Text != nil {
				b.WriteString(*p.Text)
			}
		}
		return b.String()
	default:
		return c.Text
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case contentArray:
		return json.Marshal(c.Array)
	case contentParts:
		return json.Marshal(c.Parts)
	default:
		return json.Marshal(c.Text)
	}
}

func (c *Content) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		c.Text = v
		c.kind = contentString
		return nil
	case []any:
		if len(v) == 0 {
			c.Array = []string{}
			c.kind = contentArray
			return nil
		}
		if _, ok := v[0].(string); ok {
			var arr []string
			if err := json.Unmarshal(b, &arr); err != nil {
				return err
			}
			c.Array = arr
			c.kind = contentArray
			return nil
		}
		var parts []ContentPart
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		c.Parts = parts
		c.kind = contentParts
		return nil
	default:
		return fmt.Errorf("content: expected string or array, got %T", raw)
	}
}
