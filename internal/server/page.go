package server

import (
	"context"
	"io"
	"net/http"

	"github.com/a-h/templ"
)

const pageStyle = `
body { font-family: system-ui, sans-serif; margin: 0; display: flex; flex-direction: column; height: 100vh; }
form { display: flex; gap: 8px; padding: 12px; border-bottom: 1px solid #ddd; }
input[name=prompt] { flex: 1; padding: 6px; }
.model { color: #666; font-size: 12px; align-self: center; }
iframe { flex: 1; border: 0; width: 100%; }
`

type attr struct {
	name, value string
}

// element renders <tag attrs>children</tag>. Attribute values are escaped.
// Void elements get neither children nor a closing tag.
func element(tag string, void bool, attrs []attr, children ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<"+tag); err != nil {
			return err
		}
		for _, a := range attrs {
			s := " " + a.name
			if a.value != "" {
				s += `="` + templ.EscapeString(a.value) + `"`
			}
			if _, err := io.WriteString(w, s); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, ">"); err != nil {
			return err
		}
		if void {
			return nil
		}
		for _, child := range children {
			if err := child.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</"+tag+">")
		return err
	})
}

func text(s string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, templ.EscapeString(s))
		return err
	})
}

// layout wraps the children passed through the context in a full document.
func layout(title string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<!DOCTYPE html>"); err != nil {
			return err
		}
		head := element("head", false, nil,
			element("meta", true, []attr{{"charset", "utf-8"}}),
			element("title", false, nil, text(title)),
			element("style", false, nil, templ.Raw(pageStyle)),
		)
		body := element("body", false, nil, templ.GetChildren(ctx))
		return element("html", false, []attr{{"lang", "en"}}, head, body).Render(ctx, w)
	})
}

func promptForm(model string) templ.Component {
	return element("form", false, []attr{{"action", "/generate"}, {"method", "get"}, {"target", "preview"}},
		element("input", true, []attr{{"name", "prompt"}, {"placeholder", "Describe a page"}, {"autofocus", ""}, {"required", ""}}),
		element("button", false, []attr{{"type", "submit"}}, text("Generate")),
		element("span", false, []attr{{"class", "model"}}, text(model)),
	)
}

func previewFrame() templ.Component {
	return element("iframe", false, []attr{{"name", "preview"}, {"title", "Generated page"}})
}

// indexPage renders the prompt form. Generated documents stream into the
// preview frame as they arrive.
func indexPage(model string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		children := templ.Join(promptForm(model), previewFrame())
		return layout("htmlstream").Render(templ.WithChildren(ctx, children), w)
	})
}

func (s *Server) handleIndex() http.Handler {
	return templ.Handler(indexPage(s.config.Upstream.Model))
}
