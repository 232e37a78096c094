package terminal

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// Renderer turns an answer into terminal output.
type Renderer func(text string) string

// PlainRenderer returns text unchanged.
func PlainRenderer(text string) string { return text }

// NewMarkdownRenderer renders answers as styled markdown wrapped at wordWrap
// columns. Rendering failures fall back to the raw text.
func NewMarkdownRenderer(wordWrap int) (Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if wordWrap > 0 {
		opts = append(opts, glamour.WithWordWrap(wordWrap))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("terminal: create markdown renderer: %w", err)
	}
	return func(text string) string {
		out, err := r.Render(text)
		if err != nil {
			return text
		}
		return out
	}, nil
}
