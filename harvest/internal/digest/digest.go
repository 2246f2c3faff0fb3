// Package digest writes extracted articles to a directory of Markdown
// files, ready for downstream newsletter assembly. Matched region HTML is
// sanitized and converted to Markdown; plain-text extractions are written
// as-is.
package digest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
)

// Article is one extracted piece headed for the digest buffer.
type Article struct {
	ID          string
	URL         string
	Title       string
	Content     string // cleaned plain text
	ContentHTML string // matched region markup, may be empty
	Method      string
	WordCount   int
}

// Writer appends articles to a digest directory.
type Writer struct {
	dir    string
	policy *bluemonday.Policy
}

// NewWriter creates the digest directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("digest dir: %w", err)
	}
	return &Writer{dir: dir, policy: bluemonday.UGCPolicy()}, nil
}

// Write renders one article to <id>.md and returns the file path.
func (w *Writer) Write(a *Article) (string, error) {
	body := a.Content
	if a.ContentHTML != "" {
		safe := w.policy.Sanitize(a.ContentHTML)
		md, err := htmltomarkdown.ConvertString(safe)
		if err == nil && strings.TrimSpace(md) != "" {
			body = md
		}
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "title: %q\n", a.Title)
	fmt.Fprintf(&sb, "url: %s\n", a.URL)
	fmt.Fprintf(&sb, "extracted_at: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "method: %s\n", a.Method)
	fmt.Fprintf(&sb, "word_count: %d\n", a.WordCount)
	sb.WriteString("---\n\n")
	if a.Title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", a.Title)
	}
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteString("\n")

	name := a.ID
	if name == "" {
		name = fmt.Sprintf("article-%d", time.Now().UnixMilli())
	}
	path := filepath.Join(w.dir, name+".md")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write digest %s: %w", path, err)
	}
	return path, nil
}
