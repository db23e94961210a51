// Package htmlstream turns a stream of generated text fragments into a streamed,
// well-formed HTML document.
//
// The rewriter waits until the first literal <head> or <body> tag shows up,
// discards everything before it, injects caller supplied markup into the head
// exactly once and from then on passes fragments through unchanged until
// </html> is seen. The emitted document always starts with
// "<!DOCTYPE html><html>" and always ends with "</html>", whatever the
// upstream produced and however it was chunked.
package htmlstream

import (
	"strings"
)

const (
	// Preamble opens every emitted document.
	Preamble = "<!DOCTYPE html><html>"

	headOpen  = "<head>"
	headClose = "</head>"
	bodyOpen  = "<body>"
	htmlClose = "</html>"
)

// Phase is the rewriter's position in its state machine. Phases only move forward.
type Phase int

const (
	PhaseSeeking Phase = iota
	PhaseStreaming
	PhaseClosed
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseSeeking:
		return "seeking"
	case PhaseStreaming:
		return "streaming"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Rewriter is the incremental head/body detecting state machine. It is driven
// by Write for every input delta and Close once the input ends. A Rewriter is
// not safe for concurrent use and must not be reused across documents.
type Rewriter struct {
	inject string
	phase  Phase

	// window holds the only part of the consumed text that can still take part
	// in a match: the last len(tag)-1 bytes seen so far.
	window string

	// sent counts the bytes of the rewritten document emitted so far.
	sent int

	closeEmitted bool
}

// NewRewriter creates a rewriter in the seeking phase.
func NewRewriter(opts ...Option) *Rewriter {
	o := applyOptions(opts)
	return &Rewriter{
		inject: o.injectIntoHead,
		phase:  PhaseSeeking,
	}
}

// Phase reports the current phase.
func (r *Rewriter) Phase() Phase { return r.phase }

// Write consumes one input delta and returns the output it produces, which
// may be empty. done is true once </html> has been emitted; callers must stop
// reading input at that point. Writes after that are ignored.
func (r *Rewriter) Write(delta string) (out string, done bool) {
	switch r.phase {
	case PhaseClosed:
		return "", true
	case PhaseSeeking:
		return r.seek(delta)
	default:
		return r.stream(delta)
	}
}

// Close marks the end of the input and returns the trailing fragments: the
// preamble if no boundary was ever found, then a synthetic </html> unless one
// was already emitted. Calling Close more than once returns nothing.
func (r *Rewriter) Close() []string {
	var out []string
	if r.phase == PhaseSeeking {
		out = append(out, Preamble)
		r.sent += len(Preamble)
	}
	if !r.closeEmitted {
		out = append(out, htmlClose)
		r.sent += len(htmlClose)
		r.closeEmitted = true
	}
	r.phase = PhaseClosed
	r.window = ""
	return out
}

func (r *Rewriter) seek(delta string) (string, bool) {
	if delta == "" {
		return "", false
	}
	text := r.window + delta
	tag, idx := firstBoundary(text)
	if idx < 0 {
		r.window = lastBytes(text, len(bodyOpen)-1)
		return "", false
	}
	return r.boundary(tag, text[idx+len(tag):])
}

// boundary performs the one-time rewrite at the seeking to streaming transition.
func (r *Rewriter) boundary(tag, afterMatch string) (string, bool) {
	var b strings.Builder
	b.Grow(len(Preamble) + len(headOpen) + len(r.inject) + len(headClose) + len(bodyOpen) + len(afterMatch))
	b.WriteString(Preamble)
	b.WriteString(headOpen)
	b.WriteString(r.inject)
	if tag == bodyOpen {
		b.WriteString(headClose)
		b.WriteString(bodyOpen)
	}
	b.WriteString(afterMatch)

	doc := b.String()
	if i := strings.Index(doc[len(Preamble):], htmlClose); i >= 0 {
		doc = doc[:len(Preamble)+i+len(htmlClose)]
		r.sent = len(doc)
		r.close()
		return doc, true
	}

	r.sent = len(doc)
	r.phase = PhaseStreaming
	r.window = lastBytes(doc, len(htmlClose)-1)
	return doc, false
}

func (r *Rewriter) stream(delta string) (string, bool) {
	if delta == "" {
		return "", false
	}
	text := r.window + delta
	if i := strings.Index(text, htmlClose); i >= 0 {
		// The window was already emitted; only the part of the delta up to
		// the end of the closing tag is new.
		out := delta[:i+len(htmlClose)-len(r.window)]
		r.sent += len(out)
		r.close()
		return out, true
	}
	r.sent += len(delta)
	r.window = lastBytes(text, len(htmlClose)-1)
	return delta, false
}

func (r *Rewriter) close() {
	r.phase = PhaseClosed
	r.closeEmitted = true
	r.window = ""
}

// firstBoundary returns the leftmost <head> or <body> in s.
func firstBoundary(s string) (string, int) {
	h := strings.Index(s, headOpen)
	b := strings.Index(s, bodyOpen)
	switch {
	case h < 0 && b < 0:
		return "", -1
	case b < 0 || (h >= 0 && h < b):
		return headOpen, h
	default:
		return bodyOpen, b
	}
}

func lastBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
