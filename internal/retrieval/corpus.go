package retrieval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// #region passage
// Passage is one indexable piece of a source document.
type Passage struct {
	Content  string
	Source   string // document the passage came from; one text hit per source
	Metadata map[string]any
}

func (p Passage) result(score float64, keywords []string) Result {
	md := make(map[string]any, len(p.Metadata)+1)
	for k, v := range p.Metadata {
		md[k] = v
	}
	if p.Source != "" {
		md["source"] = p.Source
	}
	return Result{Content: p.Content, Metadata: md, Score: score, Keywords: keywords}
}

// #endregion passage

// #region split
// SplitText splits text into chunks of about chunkSize runes with overlap
// runes shared between neighbours. Chunk ends move back to the nearest
// whitespace when one lies in the last fifth of the chunk.
func SplitText(text string, chunkSize, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if chunkSize <= 0 || len(runes) <= chunkSize {
		return []string{string(runes)}
	}

	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	var chunks []string
	for i := 0; i < len(runes); {
		end := min(i+chunkSize, len(runes))
		if end < len(runes) {
			for j := end; j > end-chunkSize/5 && j > i; j-- {
				if unicode.IsSpace(runes[j]) {
					end = j
					break
				}
			}
		}
		if chunk := strings.TrimSpace(string(runes[i:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= i {
			next = i + step
		}
		i = next
	}
	return chunks
}

// #endregion split

// #region load
// LoadCorpus reads .txt, .md and .jsonl files under dir. Text files are split
// into passages; every .jsonl line is one {"content"|"text", "source", "metadata"}
// record, split the same way when longer than chunkSize.
func LoadCorpus(dir string, chunkSize, overlap int) ([]Passage, error) {
	var passages []Passage
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", rel, err)
			}
			for i, chunk := range SplitText(string(data), chunkSize, overlap) {
				passages = append(passages, Passage{
					Content:  chunk,
					Source:   rel,
					Metadata: map[string]any{"chunk": i},
				})
			}
		case ".jsonl":
			ps, err := loadJSONL(path, rel, chunkSize, overlap)
			if err != nil {
				return err
			}
			passages = append(passages, ps...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return passages, nil
}

type jsonlRecord struct {
	Content  string         `json:"content"`
	Text     string         `json:"text"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

func loadJSONL(path, rel string, chunkSize, overlap int) ([]Passage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	var passages []Passage
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec jsonlRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", rel, line, err)
		}
		content := rec.Content
		if content == "" {
			content = rec.Text
		}
		source := rec.Source
		if source == "" {
			source = fmt.Sprintf("%s#%d", rel, line)
		}
		for i, chunk := range SplitText(content, chunkSize, overlap) {
			md := make(map[string]any, len(rec.Metadata)+1)
			for k, v := range rec.Metadata {
				md[k] = v
			}
			md["chunk"] = i
			passages = append(passages, Passage{Content: chunk, Source: source, Metadata: md})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", rel, err)
	}
	return passages, nil
}

// #endregion load
