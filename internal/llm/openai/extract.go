package openai

import (
	"encoding/json"
	"strings"
)

// envelope is the loosely-typed Responses-API payload. The output shape
// varies per model family and SDK version, so everything below the known
// top-level keys stays untyped and is walked tolerantly.
type envelope struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	OutputText string         `json:"output_text"`
	Output     []any          `json:"output"`
	Data       []any          `json:"data"`
	Usage      map[string]any `json:"usage"`
}

// strategy is a pure extraction attempt over the envelope; first match wins.
type strategy func(*envelope) (string, bool)

// ExtractText pulls the generated text out of the envelope, trying in
// order: the convenience field, the output list excluding reasoning items,
// the output list including them, the alternate data list (same two
// passes), and finally a concatenation of any raw string fragments found
// along the way. An empty string means no text anywhere; that is a valid,
// non-exceptional outcome.
func ExtractText(env *envelope) string {
	strategies := []strategy{
		fromConvenienceField,
		func(e *envelope) (string, bool) { return scanItems(e.Output, false) },
		func(e *envelope) (string, bool) { return scanItems(e.Output, true) },
		func(e *envelope) (string, bool) { return scanItems(e.Data, false) },
		func(e *envelope) (string, bool) { return scanItems(e.Data, true) },
		fromFragments,
	}

	for _, try := range strategies {
		if text, ok := try(env); ok {
			return text
		}
	}
	return ""
}

func fromConvenienceField(env *envelope) (string, bool) {
	if strings.TrimSpace(env.OutputText) != "" {
		return env.OutputText, true
	}
	return "", false
}

// scanItems walks an output item list. Items typed "reasoning" are skipped
// on the first pass and only consulted when nothing else yielded text.
func scanItems(items []any, includeReasoning bool) (string, bool) {
	for _, entry := range items {
		item, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if !includeReasoning {
			if t, _ := item["type"].(string); t == "reasoning" {
				continue
			}
		}
		if text, ok := textFromContentList(item["content"]); ok {
			return text, true
		}
		if text, ok := textFromNode(item["summary"]); ok {
			return text, true
		}
	}
	return "", false
}

// textFromContentList scans an ordered list of content blocks.
func textFromContentList(v any) (string, bool) {
	blocks, ok := v.([]any)
	if !ok {
		return "", false
	}
	for _, entry := range blocks {
		if s, ok := entry.(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
		block, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := textFromBlock(block); ok {
			return text, true
		}
	}
	return "", false
}

// textFromBlock resolves one content block: text held directly, inside a
// {value: ...} wrapper, inside a summary field, or nested under
// message.content.
func textFromBlock(block map[string]any) (string, bool) {
	if text, ok := textFromNode(block["text"]); ok {
		return text, true
	}
	if text, ok := textFromNode(block["summary"]); ok {
		return text, true
	}
	if msg, ok := block["message"].(map[string]any); ok {
		if text, ok := textFromContentList(msg["content"]); ok {
			return text, true
		}
	}
	return "", false
}

// textFromNode accepts a bare string, a {value: string} wrapper, or a list
// of either.
func textFromNode(v any) (string, bool) {
	switch node := v.(type) {
	case string:
		if strings.TrimSpace(node) != "" {
			return node, true
		}
	case map[string]any:
		if s, ok := node["value"].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
		if s, ok := node["text"].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	case []any:
		for _, entry := range node {
			if text, ok := textFromNode(entry); ok {
				return text, true
			}
		}
	}
	return "", false
}

// fromFragments is the last resort: concatenate every raw string fragment
// encountered anywhere in the output and data lists.
func fromFragments(env *envelope) (string, bool) {
	var fragments []string
	collectFragments(env.Output, &fragments)
	collectFragments(env.Data, &fragments)

	joined := strings.TrimSpace(strings.Join(fragments, ""))
	if joined == "" {
		return "", false
	}
	return joined, true
}

func collectFragments(v any, out *[]string) {
	switch node := v.(type) {
	case string:
		if strings.TrimSpace(node) != "" {
			*out = append(*out, node)
		}
	case []any:
		for _, entry := range node {
			collectFragments(entry, out)
		}
	case map[string]any:
		for _, key := range []string{"text", "value", "summary", "content", "message"} {
			if child, ok := node[key]; ok {
				collectFragments(child, out)
			}
		}
	}
}

// usageInt reads a counter from the usage object, accepting any of the
// given key spellings and defaulting to zero when absent or malformed.
func usageInt(usage map[string]any, keys ...string) int {
	for _, key := range keys {
		if v, ok := usage[key]; ok {
			if n, ok := toInt(v); ok {
				return n
			}
		}
	}
	return 0
}

func reasoningTokens(usage map[string]any) int {
	if details, ok := usage["output_tokens_details"].(map[string]any); ok {
		if n := usageInt(details, "reasoning_tokens"); n > 0 {
			return n
		}
	}
	return usageInt(usage, "reasoning_tokens")
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}
