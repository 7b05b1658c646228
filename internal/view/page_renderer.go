/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
)

//go:embed templates
var templateFS embed.FS

// PageRenderer renderes web pages throuh a set of templates
type PageRenderer struct {
	templates map[string]*template.Template
}

// Creates a page renderer with the given set:
//
//	The key is a page name
//	The value is the list of template paths, inside files, composing it
func NewPageRenderer(files fs.FS, tmplMap map[string][]string) (*PageRenderer, error) {
	templates := make(map[string]*template.Template)

	for k, v := range tmplMap {
		t, err := template.New(k).Funcs(funcs).ParseFS(files, v...)
		if err != nil {
			return nil, fmt.Errorf("Could not parse template %s: %v", k, err)
		}
		templates[k] = t
	}
	return &PageRenderer{templates: templates}, nil
}

// NewDefaultPageRenderer builds the renderer of the pages shipped with the relay.
// Every page under templates/ is combined with every layout under templates/layouts/
func NewDefaultPageRenderer() (*PageRenderer, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	layouts, err := fs.Glob(sub, "layouts/*.html")
	if err != nil {
		return nil, err
	}
	pages, err := fs.Glob(sub, "*.html")
	if err != nil {
		return nil, err
	}

	mapping := make(map[string][]string)
	for _, page := range pages {
		files := append([]string{}, layouts...)
		files = append(files, page)
		mapping[path.Base(page)] = files
	}
	return NewPageRenderer(sub, mapping)
}

// Renders the template with name "name"
// It returns an error if the corresponding template is not present
func (pr *PageRenderer) RenderTemplate(wr io.Writer, name string, data any) error {
	if t, ok := pr.templates[name]; ok {
		return t.ExecuteTemplate(wr, name, data)
	}
	return fmt.Errorf("Template is missing{%s}", name)
}

var funcs = template.FuncMap{
	"uptime": func(seconds int64) string {
		return fmt.Sprintf("%dh %02dm %02ds", seconds/3600, (seconds/60)%60, seconds%60)
	},
}
