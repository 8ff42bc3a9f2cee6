package cliui

import "github.com/charmbracelet/glamour"

const defaultWrap = 80

// RenderMarkdown renders a completed assistant reply for terminal display,
// wrapping at width columns. On failure the original content is returned
// alongside the error.
func RenderMarkdown(content string, width int) (string, error) {
	if width <= 0 {
		width = defaultWrap
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return rendered, nil
}
