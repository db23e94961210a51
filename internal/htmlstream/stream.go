package htmlstream

import (
	"context"
	"io"
	"iter"

	"github.com/SawyerHood/openai-html-stream/internal/errors"
)

// Source is an ordered sequence of text deltas. A non-nil error ends the
// sequence.
type Source = iter.Seq2[string, error]

// Rewrite returns the rewritten document as a sequence of fragments.
//
// Input is pulled one delta at a time, only after the fragment produced by
// the previous delta has been accepted by the consumer. Once </html> has been
// emitted the source is not read again. If the consumer stops early, the
// source is released without being read further. An error from the source is
// yielded once and ends the sequence.
func Rewrite(src Source, opts ...Option) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		rw := NewRewriter(opts...)
		for delta, err := range src {
			if err != nil {
				yield("", err)
				return
			}
			out, done := rw.Write(delta)
			if out != "" && !yield(out, nil) {
				return
			}
			if done {
				break
			}
		}
		for _, frag := range rw.Close() {
			if !yield(frag, nil) {
				return
			}
		}
	}
}

// WithContext stops src as soon as ctx is done. The context error is yielded
// in place of the next delta.
func WithContext(ctx context.Context, src Source) Source {
	return func(yield func(string, error) bool) {
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}
		for delta, err := range src {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(delta, nil) {
				return
			}
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
		}
	}
}

// FromSlice is a Source over fixed deltas.
func FromSlice(deltas ...string) Source {
	return func(yield func(string, error) bool) {
		for _, d := range deltas {
			if !yield(d, nil) {
				return
			}
		}
	}
}

type flusher interface {
	Flush()
}

// Stream rewrites src into w, flushing w after every fragment when it supports
// it. Source failures are returned as upstream errors, sink failures as write
// errors and cancellation of ctx as the bare context error.
func Stream(ctx context.Context, w io.Writer, src Source, opts ...Option) error {
	for frag, err := range Rewrite(WithContext(ctx, src), opts...) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return errors.WrapUpstream(err, "reading input delta")
		}
		if _, err := io.WriteString(w, frag); err != nil {
			return errors.WrapWrite(err, "writing output fragment")
		}
		if f, ok := w.(flusher); ok {
			f.Flush()
		}
	}
	return nil
}

// Collect drains a rewritten sequence into a single string.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var out []byte
	for frag, err := range seq {
		if err != nil {
			return string(out), err
		}
		out = append(out, frag...)
	}
	return string(out), nil
}
