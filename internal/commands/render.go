package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// renderMarkdown renders markdown for the terminal with the tokyo-night
// style used across the CLI.
func renderMarkdown(md string, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("tokyo-night"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}

	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

// renderJSON renders a JSON value as a highlighted code block.
func renderJSON(data json.RawMessage, width int) (string, error) {
	var b strings.Builder
	b.WriteString("```json\n")
	b.Write(indentJSON(data))
	b.WriteString("\n```\n")
	return renderMarkdown(b.String(), width)
}
