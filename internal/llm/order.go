package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/session"
)

var (
	arrayRe  = regexp.MustCompile(`(?s)\[[^\[\]]*\]`)
	objectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// ApplyOrder permutes chunks by zero-based indices. Out-of-range and repeated
// indices are ignored; chunks the order omits follow in their original order,
// so the result is always a permutation of chunks.
func ApplyOrder(chunks []session.Chunk, order []int) []session.Chunk {
	out := make([]session.Chunk, 0, len(chunks))
	used := make([]bool, len(chunks))
	for _, i := range order {
		if i < 0 || i >= len(chunks) || used[i] {
			continue
		}
		used[i] = true
		out = append(out, chunks[i])
	}
	for i, c := range chunks {
		if !used[i] {
			out = append(out, c)
		}
	}
	return out
}

// parseIndexArray extracts the first JSON-ish array of integers from text.
func parseIndexArray(text string) ([]int, error) {
	m := arrayRe.FindString(text)
	if m == "" {
		return nil, fmt.Errorf("no array in %q", truncate(text, 80))
	}
	var raw []any
	if err := json.Unmarshal([]byte(m), &raw); err != nil {
		// [3, 1, 2] with stray tokens: fall back to splitting
		raw = raw[:0]
		for _, f := range strings.FieldsFunc(strings.Trim(m, "[]"), func(r rune) bool { return r == ',' || r == ' ' }) {
			raw = append(raw, f)
		}
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if n, ok := toInt(v); ok {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no indices in %q", m)
	}
	return out, nil
}

// extractObject returns the outermost {...} span of text.
func extractObject(text string) (map[string]any, error) {
	m := objectRe.FindString(text)
	if m == "" {
		return nil, fmt.Errorf("no JSON object in %q", truncate(text, 80))
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(m), &obj); err != nil {
		return nil, fmt.Errorf("decode %q: %w", truncate(m, 80), err)
	}
	return obj, nil
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(math.Round(x)), true
	case string:
		s := strings.Trim(strings.TrimSpace(x), `"'[]#`)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(math.Round(f)), true
		}
	}
	return 0, false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
