package cliui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const frameInterval = 80 * time.Millisecond

var frames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Spinner redraws a single status line until Stop is called. The message
// may be changed while it runs.
type Spinner struct {
	w     io.Writer
	start time.Time

	mu  sync.Mutex
	msg string

	stop chan struct{}
	done chan struct{}
}

// StartSpinner begins animating msg on w.
func StartSpinner(w io.Writer, msg string) *Spinner {
	s := &Spinner{
		w:     w,
		start: time.Now(),
		msg:   msg,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Spinner) loop() {
	defer close(s.done)

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		s.mu.Lock()
		fmt.Fprintf(s.w, "\r\x1b[2K  %s %s", spinnerStyle.Render(frames[frame%len(frames)]), s.msg)
		s.mu.Unlock()

		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// SetMessage replaces the status text shown on the next frame.
func (s *Spinner) SetMessage(msg string) {
	s.mu.Lock()
	s.msg = msg
	s.mu.Unlock()
}

// Stop ends the animation and leaves a ✓ or ✗ line with the elapsed time.
// It must be called once.
func (s *Spinner) Stop(err error) {
	close(s.stop)
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "\r\x1b[2K  %s %s %s\n",
		Mark(err),
		s.msg,
		DimStyle.Render("("+FormatDuration(time.Since(s.start))+")"),
	)
}

// Step runs fn behind a spinner showing msg and returns its error.
func Step(w io.Writer, msg string, fn func() error) error {
	s := StartSpinner(w, msg)
	err := fn()
	s.Stop(err)
	return err
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
