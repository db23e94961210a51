// Package charset is the final stage of the pipeline: it turns emitted UTF-8
// text into bytes in the charset the document is served in.
package charset

import (
	"io"
	"strings"

	"github.com/SawyerHood/openai-html-stream/internal/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Default is used when no charset is configured.
const Default = "utf-8"

// Lookup resolves a WHATWG encoding label such as "latin1" or "UTF8" to its
// encoding and canonical name.
func Lookup(label string) (encoding.Encoding, string, error) {
	if strings.TrimSpace(label) == "" {
		label = Default
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, "", errors.NewValidationError(errors.ErrCodeUnknownCharset, "unknown charset "+label).
			WithContext("charset", label)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return nil, "", errors.NewValidationError(errors.ErrCodeUnknownCharset, "charset has no canonical name: "+label).
			WithContext("charset", label)
	}
	return enc, name, nil
}

// ContentType returns the Content-Type header value for an HTML document in
// the given charset. Unknown labels fall back to UTF-8.
func ContentType(label string) string {
	_, name, err := Lookup(label)
	if err != nil {
		name = Default
	}
	return "text/html; charset=" + name
}

// Writer encodes UTF-8 text written to it into the target charset. Runes the
// charset cannot represent are written as HTML numeric character references.
// Multi-byte sequences split across writes are held back until complete.
type Writer struct {
	dst io.Writer
	tw  *transform.Writer
}

// NewWriter wraps w so that everything written is encoded into label.
func NewWriter(w io.Writer, label string) (*Writer, error) {
	enc, _, err := Lookup(label)
	if err != nil {
		return nil, err
	}
	cw := &Writer{dst: w}
	if enc != unicode.UTF8 {
		cw.tw = transform.NewWriter(w, encoding.HTMLEscapeUnsupported(enc.NewEncoder()))
	}
	return cw, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.tw == nil {
		return w.dst.Write(p)
	}
	return w.tw.Write(p)
}

// Flush flushes the destination when it supports it, e.g. an
// http.ResponseWriter.
func (w *Writer) Flush() {
	if f, ok := w.dst.(interface{ Flush() }); ok {
		f.Flush()
	}
}

// Close writes out anything still held back. It does not close the
// destination.
func (w *Writer) Close() error {
	if w.tw == nil {
		return nil
	}
	return w.tw.Close()
}
