// Package htmlcheck inspects a rewritten document for the shape the
// rewriter guarantees, plus a few accessibility hints.
package htmlcheck

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type Report struct {
	// Problems are structural defects; a document with any is not OK.
	Problems []string
	// Warnings are accessibility hints that do not fail the check.
	Warnings []string
	Tokens   int
}

func (r Report) OK() bool {
	return len(r.Problems) == 0
}

func (r *Report) problem(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Check tokenizes doc and reports structural problems: a missing doctype,
// a document not opened by <html> or not ended by </html>, and repeated
// <head> or <body> elements.
func Check(doc string) Report {
	var report Report

	z := html.NewTokenizer(strings.NewReader(doc))
	var (
		first, last   html.Token
		seenAny       bool
		doctypeFirst  bool
		firstStart    string
		heads, bodies int
	)

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				report.problem("tokenizer error: %v", err)
			}
			break
		}
		tok := z.Token()
		if tok.Type == html.TextToken && strings.TrimSpace(tok.Data) == "" {
			continue
		}
		report.Tokens++

		if !seenAny {
			first = tok
			seenAny = true
			doctypeFirst = tok.Type == html.DoctypeToken && strings.EqualFold(tok.Data, "html")
		}
		last = tok

		if tok.Type == html.StartTagToken {
			if firstStart == "" {
				firstStart = tok.Data
			}
			switch tok.DataAtom {
			case atom.Head:
				heads++
			case atom.Body:
				bodies++
			}
		}
	}

	if !doctypeFirst {
		report.problem("document does not start with <!DOCTYPE html> (first token %q)", describe(first, seenAny))
	}
	if firstStart != "html" {
		report.problem("first element is %q, not <html>", firstStart)
	}
	if !(last.Type == html.EndTagToken && last.DataAtom == atom.Html) {
		report.problem("document does not end with </html> (last token %q)", describe(last, seenAny))
	}
	if heads > 1 {
		report.problem("<head> appears %d times", heads)
	}
	if bodies > 1 {
		report.problem("<body> appears %d times", bodies)
	}

	report.Warnings = accessibilityHints(doc)
	return report
}

func describe(tok html.Token, ok bool) string {
	if !ok {
		return "<empty>"
	}
	return tok.String()
}
