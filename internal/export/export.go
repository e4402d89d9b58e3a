// Package export renders a task's conversation as a Markdown document.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/utils"
	"github.com/yuin/goldmark"
)

// Exporter writes task transcripts to a directory.
type Exporter struct {
	dir  string
	html bool
	md   goldmark.Markdown
}

// New creates an Exporter writing into dir. When html is set, an HTML
// rendering is written next to each Markdown file.
func New(dir string, html bool) *Exporter {
	return &Exporter{dir: dir, html: html, md: goldmark.New()}
}

// Export writes the conversation of a task created at ts (unix milliseconds)
// and returns the path of the Markdown file.
func (e *Exporter) Export(ts int64, history []models.APIMessage) (string, error) {
	doc := Markdown(history)
	path := filepath.Join(e.dir, FileName(time.UnixMilli(ts)))

	if err := utils.WriteFileAtomic(path, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}

	if e.html {
		var buf bytes.Buffer
		if err := e.md.Convert([]byte(doc), &buf); err != nil {
			return "", fmt.Errorf("rendering html: %w", err)
		}
		htmlPath := strings.TrimSuffix(path, ".md") + ".html"
		if err := utils.WriteFileAtomic(htmlPath, buf.Bytes(), 0o644); err != nil {
			return "", fmt.Errorf("writing html export: %w", err)
		}
	}
	return path, nil
}

// FileName returns the export file name for a task created at t, for example
// xamun_task_oct-9-2024_2-05-09-pm.md.
func FileName(t time.Time) string {
	month := strings.ToLower(t.Format("Jan"))
	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	ampm := "am"
	if t.Hour() >= 12 {
		ampm = "pm"
	}
	return fmt.Sprintf("xamun_task_%s-%d-%d_%d-%02d-%02d-%s.md",
		month, t.Day(), t.Year(), hour, t.Minute(), t.Second(), ampm)
}

// Markdown renders the conversation, one section per turn.
func Markdown(history []models.APIMessage) string {
	sections := make([]string, 0, len(history))
	for _, msg := range history {
		heading := "## **Assistant:**"
		if msg.Role == models.RoleUser {
			heading = "## **User:**"
		}
		sections = append(sections, heading+"\n\n"+formatContent(msg.Content)+"\n\n")
	}
	return strings.Join(sections, "---\n\n")
}

type contentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input"`
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"is_error"`
}

func formatContent(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return string(raw)
	}

	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, formatBlock(b))
	}
	return strings.Join(parts, "\n")
}

func formatBlock(b contentBlock) string {
	switch b.Type {
	case "text":
		return b.Text
	case "image":
		return "[Image]"
	case "tool_use":
		input := strings.TrimSpace(string(b.Input))
		return fmt.Sprintf("[Tool Use: %s]\n%s", b.Name, input)
	case "tool_result":
		label := "[Tool]"
		if b.IsError {
			label = "[Tool (Error)]"
		}
		if len(b.Content) == 0 {
			return label
		}
		return label + "\n" + formatContent(b.Content)
	default:
		return "[Unexpected content type]"
	}
}
