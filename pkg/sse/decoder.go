package sse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// readBufferSize is the size of a single read from the decoded text stream.
	readBufferSize = 32 * 1024

	dataPrefix = "data:"
)

var (
	crlfSeparator = []byte("\r\n\r\n")
	lfSeparator   = []byte("\n\n")
)

var (
	// ErrAborted is returned when the caller's context is cancelled mid-stream.
	// It is distinct from transport failures so that a user initiated stop can
	// be told apart from a real error with errors.Is.
	ErrAborted = errors.New("sse: stream aborted")

	// ErrConsumed is returned when Run is called on a Decoder more than once.
	ErrConsumed = errors.New("sse: decoder already consumed")

	errStopped = errors.New("sse: iteration stopped")
)

// Handler is invoked synchronously for each framed event, in framing order.
// Returning a non-nil error stops decoding and the error is returned by Run.
type Handler func(ev Event) error

// Decoder incrementally decodes an SSE byte stream into events.
//
// ┌──────────────────────┐
// │ src io.ReadCloser    │  arbitrary chunks, may split UTF-8 sequences
// └──────────────────────┘
// │
// ▼
// ┌──────────────────────┐
// │ UTF-8 transform      │  partial sequences carried to the next read
// └──────────────────────┘
// │
// ▼
// ┌──────────────────────┐   ┌──────────────┐
// │ buffer + boundaries  │──▶│ Handler(Event)│
// └──────────────────────┘   └──────────────┘
//
// A Decoder owns its buffer exclusively and is not safe for concurrent use.
// It is single use: once Run returns, the source has been closed.
type Decoder struct {
	src  io.ReadCloser
	text io.Reader

	// buf holds decoded text that has not yet been resolved into an event.
	buf []byte

	// scanFrom is the offset in buf where the next boundary search starts.
	// Bytes before it cannot begin a separator that is not already complete.
	scanFrom int

	started   bool
	closeOnce sync.Once
}

// NewDecoder returns a Decoder reading from src. The Decoder takes ownership
// of src and closes it exactly once when decoding ends.
func NewDecoder(src io.ReadCloser) *Decoder {
	return &Decoder{
		src:  src,
		text: transform.NewReader(src, unicode.UTF8.NewDecoder()),
	}
}

// Run reads the stream and invokes fn for each complete event. It returns:
//   - nil after the handler has seen an event whose data is the "[DONE]"
//     sentinel, even if more bytes remain upstream,
//   - nil when the source is exhausted; an unterminated trailing event is
//     discarded,
//   - an error matching ErrAborted when ctx is cancelled,
//   - the handler's error if it returns one,
//   - a wrapped read error otherwise.
//
// The source is closed on every exit path.
func (d *Decoder) Run(ctx context.Context, fn Handler) error {
	if d.started {
		return ErrConsumed
	}
	d.started = true
	defer d.release()

	// Closing the source unblocks a pending Read, so cancellation is observed
	// within one read cycle.
	stop := context.AfterFunc(ctx, d.release)
	defer stop()

	chunk := make([]byte, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return aborted(err)
		}

		n, err := d.text.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, chunk[:n]...)

			done, herr := d.dispatch(fn)
			if herr != nil {
				return herr
			}
			if done {
				return nil
			}
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return aborted(ctxErr)
			}
			if errors.Is(err, io.EOF) {
				d.buf = nil
				return nil
			}
			return fmt.Errorf("reading event stream: %w", err)
		}
	}
}

// Events returns the stream as a lazy, finite, non-restartable sequence.
// A terminal error (including ErrAborted) is yielded once as the last pair.
// Breaking out of the loop stops decoding and closes the source.
func (d *Decoder) Events(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		err := d.Run(ctx, func(ev Event) error {
			if !yield(ev, nil) {
				return errStopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield(Event{}, err)
		}
	}
}

// dispatch frames every complete event currently in the buffer. It reports
// true once the end-of-stream sentinel has been handled.
func (d *Decoder) dispatch(fn Handler) (bool, error) {
	for {
		idx, sepLen := findBoundary(d.buf, d.scanFrom)
		if idx < 0 {
			// A separator may straddle this chunk and the next one.
			d.scanFrom = max(0, len(d.buf)-(len(crlfSeparator)-1))
			return false, nil
		}

		raw := string(d.buf[:idx])
		d.buf = d.buf[idx+sepLen:]
		d.scanFrom = 0

		ev := Event{Raw: raw, Data: parseData(raw)}
		if err := fn(ev); err != nil {
			return false, err
		}
		if ev.IsDone() {
			return true, nil
		}
	}
}

func (d *Decoder) release() {
	d.closeOnce.Do(func() {
		_ = d.src.Close()
	})
}

// findBoundary returns the index and length of the earliest event separator
// in buf at or after from, or -1 when there is none. When both separators
// start at the same index the CRLF form wins as the longer match.
func findBoundary(buf []byte, from int) (int, int) {
	window := buf[from:]
	crlf := bytes.Index(window, crlfSeparator)
	lf := bytes.Index(window, lfSeparator)

	switch {
	case crlf < 0 && lf < 0:
		return -1, 0
	case crlf >= 0 && (lf < 0 || crlf <= lf):
		return from + crlf, len(crlfSeparator)
	default:
		return from + lf, len(lfSeparator)
	}
}

// parseData joins the values of all "data:" lines in a raw event.
// Both "\n" and "\r\n" line endings are recognized.
func parseData(raw string) string {
	var values []string
	for line := range strings.SplitSeq(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")

		value, ok := strings.CutPrefix(line, dataPrefix)
		if !ok {
			continue
		}
		values = append(values, strings.TrimPrefix(value, " "))
	}

	return strings.Join(values, "\n")
}

func aborted(cause error) error {
	return fmt.Errorf("%w: %w", ErrAborted, cause)
}
