package workflow

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// ExportFormat selects the downloadable artifact type
type ExportFormat string

const (
	ExportText ExportFormat = "txt"
	ExportHTML ExportFormat = "html"
)

// ExportBaseName is the download name without extension
const ExportBaseName = "product-description"

// Artifact is a downloadable rendering of the current text
type Artifact struct {
	FileName    string
	ContentType string
	Body        []byte
}

var (
	markdown = goldmark.New(goldmark.WithRendererOptions(gmhtml.WithHardWraps()))

	bufferPool = sync.Pool{
		New: func() interface{} { return new(bytes.Buffer) },
	}
)

// ParseExportFormat maps a query value onto a format; empty means text
func ParseExportFormat(value string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "txt", "text":
		return ExportText, nil
	case "html":
		return ExportHTML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", value)
	}
}

// Export renders the current copy text as a downloadable artifact
func (c *Controller) Export(format ExportFormat) (*Artifact, error) {
	c.mu.Lock()
	text := c.text
	var title string
	if c.result != nil {
		title = c.result.Title
	}
	c.mu.Unlock()

	switch format {
	case ExportText:
		return &Artifact{
			FileName:    ExportBaseName + ".txt",
			ContentType: "text/plain; charset=utf-8",
			Body:        []byte(text),
		}, nil
	case ExportHTML:
		body, err := renderHTML(title, text)
		if err != nil {
			return nil, err
		}
		return &Artifact{
			FileName:    ExportBaseName + ".html",
			ContentType: "text/html; charset=utf-8",
			Body:        body,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// renderHTML converts the flattened text into a standalone HTML document.
// The scratch buffer goes back to the pool on every path.
func renderHTML(title, text string) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	if title == "" {
		title = "Product Description"
	}

	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	buf.WriteString(html.EscapeString(title))
	buf.WriteString("</title>\n</head>\n<body>\n")
	if err := markdown.Convert([]byte(textToMarkdown(text)), buf); err != nil {
		return nil, fmt.Errorf("render export: %w", err)
	}
	buf.WriteString("</body>\n</html>\n")

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

var sectionHeadings = map[string]bool{
	"Title:":             true,
	"Short Description:": true,
	"Key Features:":      true,
}

// textToMarkdown turns section labels of the flattened text into headings
func textToMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if sectionHeadings[line] {
			lines[i] = "## " + strings.TrimSuffix(line, ":") + "\n"
		}
	}
	return strings.Join(lines, "\n")
}
