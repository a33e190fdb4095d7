package document

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SplitFrontMatter separates a leading "---" fenced YAML block from the body.
// Content without a closed fence is returned unchanged with nil metadata.
// Malformed YAML returns an error together with the full content as body.
func SplitFrontMatter(content string) (map[string]any, string, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return nil, content, nil
	}

	rest := normalized[len("---\n"):]
	var raw, body string
	switch {
	case strings.HasPrefix(rest, "---\n"), rest == "---":
		body = strings.TrimPrefix(strings.TrimPrefix(rest, "---"), "\n")
	default:
		end := strings.Index(rest, "\n---\n")
		if end < 0 {
			if !strings.HasSuffix(rest, "\n---") {
				return nil, content, nil
			}
			end = len(rest) - len("\n---")
			raw, body = rest[:end], ""
		} else {
			raw, body = rest[:end], rest[end+len("\n---\n"):]
		}
	}

	meta := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := yaml.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, content, fmt.Errorf("invalid front matter: %w", err)
		}
		if meta == nil {
			meta = map[string]any{}
		}
	}
	return meta, body, nil
}

// FrontMatterTags returns the "tags" entry as a list. A single string
// counts as one tag.
func FrontMatterTags(meta map[string]any) []string {
	switch v := meta["tags"].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return []string{v}
		}
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				tags = append(tags, s)
			}
		}
		return tags
	case []string:
		return v
	}
	return nil
}
