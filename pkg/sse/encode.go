package sse

import (
	"fmt"
	"io"
	"strings"
)

// WriteEvent writes a single SSE event to w. An empty name omits the
// "event:" field. Multi-line data is split across several "data:" lines.
func WriteEvent(w io.Writer, name, data string) error {
	var b strings.Builder
	if name != "" {
		b.WriteString("event: ")
		b.WriteString(name)
		b.WriteByte('\n')
	}
	for line := range strings.SplitSeq(data, "\n") {
		b.WriteString(dataPrefix)
		b.WriteByte(' ')
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}
