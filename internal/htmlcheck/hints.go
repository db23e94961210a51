package htmlcheck

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type hintRule struct {
	id    string
	check func(doc *html.Node) []string
}

var hintRules = []hintRule{
	{id: "html-has-lang", check: checkLang},
	{id: "document-title", check: checkTitle},
	{id: "image-alt", check: checkImageAlt},
}

// accessibilityHints runs the hint rules over the parsed document.
func accessibilityHints(doc string) []string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil
	}
	var hints []string
	for _, rule := range hintRules {
		for _, msg := range rule.check(root) {
			hints = append(hints, rule.id+": "+msg)
		}
	}
	return hints
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func checkLang(root *html.Node) []string {
	var out []string
	walk(root, func(n *html.Node) {
		if n.DataAtom != atom.Html {
			return
		}
		if lang, ok := attr(n, "lang"); !ok || strings.TrimSpace(lang) == "" {
			out = append(out, "<html> element has no lang attribute")
		}
	})
	return out
}

func checkTitle(root *html.Node) []string {
	found := false
	walk(root, func(n *html.Node) {
		if n.DataAtom == atom.Title && n.FirstChild != nil && strings.TrimSpace(n.FirstChild.Data) != "" {
			found = true
		}
	})
	if found {
		return nil
	}
	return []string{"document has no non-empty <title>"}
}

func checkImageAlt(root *html.Node) []string {
	var out []string
	walk(root, func(n *html.Node) {
		if n.DataAtom != atom.Img {
			return
		}
		if _, ok := attr(n, "alt"); !ok {
			src, _ := attr(n, "src")
			out = append(out, "<img src=\""+src+"\"> has no alt attribute")
		}
	})
	return out
}
