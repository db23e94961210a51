package source

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/SawyerHood/openai-html-stream/internal/errors"
	"github.com/SawyerHood/openai-html-stream/internal/htmlstream"
)

const (
	DefaultEndMarker   = "</html>"
	DefaultIdleTimeout = 30 * time.Second
)

// TailOptions configures Tail.
type TailOptions struct {
	// EndMarker stops tailing once it has been read. Defaults to </html>.
	EndMarker string
	// IdleTimeout ends the sequence when the file has not grown for this
	// long. Zero means DefaultIdleTimeout; negative disables it.
	IdleTimeout time.Duration
	// ChunkSize caps the bytes per delta.
	ChunkSize int
}

func (o TailOptions) withDefaults() TailOptions {
	if o.EndMarker == "" {
		o.EndMarker = DefaultEndMarker
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	return o
}

// Tail follows a file that another process is still writing, such as a
// transcript being captured from a model. Existing content is yielded first,
// then every append, woken by fsnotify write events.
//
// The sequence ends once the end marker has been read, when the file is
// removed or renamed, or after the idle timeout. Context cancellation ends
// it with ctx.Err().
func Tail(ctx context.Context, path string, opts TailOptions) htmlstream.Source {
	opts = opts.withDefaults()
	return func(yield func(string, error) bool) {
		// Watch before the first read so no append is missed.
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			yield("", errors.NewInternalError(errors.ErrCodeInternalError, "creating file watcher", err))
			return
		}
		defer watcher.Close()

		if err := watcher.Add(path); err != nil {
			yield("", errors.NewUpstreamError(errors.ErrCodeUpstreamRead, "watching "+path, err))
			return
		}

		f, err := os.Open(path)
		if err != nil {
			yield("", errors.NewUpstreamError(errors.ErrCodeUpstreamRead, "opening "+path, err))
			return
		}
		defer f.Close()

		t := &tailer{
			file:   f,
			buf:    make([]byte, opts.ChunkSize),
			marker: opts.EndMarker,
		}

		var idle <-chan time.Time
		var timer *time.Timer
		if opts.IdleTimeout > 0 {
			timer = time.NewTimer(opts.IdleTimeout)
			defer timer.Stop()
			idle = timer.C
		}

		for {
			grew, done, ok := t.drain(yield)
			if !ok || done {
				return
			}
			if grew && timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(opts.IdleTimeout)
			}

			select {
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			case <-idle:
				t.finish(yield)
				return
			case event, open := <-watcher.Events:
				if !open {
					return
				}
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if _, done, ok := t.drain(yield); ok && !done {
						t.finish(yield)
					}
					return
				}
			case err, open := <-watcher.Errors:
				if !open {
					return
				}
				yield("", errors.NewUpstreamError(errors.ErrCodeUpstreamRead, "watching "+path, err))
				return
			}
		}
	}
}

type tailer struct {
	file    *os.File
	buf     []byte
	aligner runeAligner
	marker  string
	// recent holds the last len(marker)-1 bytes read, for markers split
	// across reads.
	recent string
}

// drain reads to the current end of file. It reports whether anything was
// read, whether the end marker was seen, and whether the consumer wants
// more.
func (t *tailer) drain(yield func(string, error) bool) (grew, done, ok bool) {
	for {
		n, err := t.file.Read(t.buf)
		if n > 0 {
			grew = true
			text := t.aligner.push(t.buf[:n])
			seen := t.sawMarker(text)
			if text != "" && !yield(text, nil) {
				return grew, true, false
			}
			if seen {
				t.finish(yield)
				return grew, true, true
			}
		}
		if err == io.EOF {
			return grew, false, true
		}
		if err != nil {
			yield("", errors.NewUpstreamError(errors.ErrCodeUpstreamRead, "reading "+t.file.Name(), err))
			return grew, true, false
		}
	}
}

func (t *tailer) sawMarker(text string) bool {
	window := t.recent + text
	if strings.Contains(window, t.marker) {
		return true
	}
	if keep := len(t.marker) - 1; len(window) > keep {
		window = window[len(window)-keep:]
	}
	t.recent = window
	return false
}

// finish yields any held back partial character.
func (t *tailer) finish(yield func(string, error) bool) {
	if text := t.aligner.flush(); text != "" {
		yield(text, nil)
	}
}
