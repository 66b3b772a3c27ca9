package main

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/route-planner/internal/format"
	"finitefield.org/route-planner/internal/platform/requestctx"
)

// templateSet holds one template tree per page plus a shared tree for
// fragments. Every tree carries the layouts and partials. In dev mode the
// files are reparsed on each request.
type templateSet struct {
	dir   string
	dev   bool
	funcs template.FuncMap
	pages map[string]*template.Template
	frags *template.Template
}

func newTemplateSet(dir string, dev bool, funcs template.FuncMap) (*templateSet, error) {
	ts := &templateSet{dir: dir, dev: dev, funcs: funcs}
	pages, frags, err := ts.parse()
	if err != nil {
		return nil, err
	}
	ts.pages, ts.frags = pages, frags
	return ts, nil
}

func (ts *templateSet) parse() (map[string]*template.Template, *template.Template, error) {
	var common []string
	for _, sub := range []string{"layouts", "partials"} {
		files, err := filepath.Glob(filepath.Join(ts.dir, sub, "*.tmpl"))
		if err != nil {
			return nil, nil, err
		}
		common = append(common, files...)
	}
	pageFiles, err := filepath.Glob(filepath.Join(ts.dir, "pages", "*.tmpl"))
	if err != nil {
		return nil, nil, err
	}
	if len(common) == 0 || len(pageFiles) == 0 {
		return nil, nil, fmt.Errorf("no templates found under %s", ts.dir)
	}

	frags, err := template.New("_fragments").Funcs(ts.funcs).ParseFiles(common...)
	if err != nil {
		return nil, nil, err
	}
	pages := make(map[string]*template.Template, len(pageFiles))
	for _, file := range pageFiles {
		name := strings.TrimSuffix(filepath.Base(file), ".tmpl")
		files := append(append([]string{}, common...), file)
		t, err := template.New(name).Funcs(ts.funcs).ParseFiles(files...)
		if err != nil {
			return nil, nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, frags, nil
}

func (ts *templateSet) current() (map[string]*template.Template, *template.Template, error) {
	if ts.dev {
		return ts.parse()
	}
	return ts.pages, ts.frags, nil
}

func (ts *templateSet) page(name string) (*template.Template, error) {
	pages, _, err := ts.current()
	if err != nil {
		return nil, err
	}
	t, ok := pages[name]
	if !ok {
		return nil, fmt.Errorf("template page %q not found", name)
	}
	return t, nil
}

func (ts *templateSet) fragments() (*template.Template, error) {
	_, frags, err := ts.current()
	return frags, err
}

func (a *app) funcMap() template.FuncMap {
	return template.FuncMap{
		"t": func(lang, key string) string {
			return a.i18n.T(lang, key)
		},
		"tf": func(lang, key string, args ...any) string {
			return a.i18n.Tf(lang, key, args...)
		},
		"count": format.FmtCount,
		"inc":   func(i int) int { return i + 1 },
	}
}

// renderPage executes the base layout for page. Output is buffered so a
// template error never produces a half-written page.
func (a *app) renderPage(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	t, err := a.templates.page(page)
	if err != nil {
		a.templateError(w, r, err)
		return
	}
	a.execute(w, r, status, t, "base", data)
}

// renderFragment executes a single partial, e.g. "frag_planner".
func (a *app) renderFragment(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	t, err := a.templates.fragments()
	if err != nil {
		a.templateError(w, r, err)
		return
	}
	a.execute(w, r, status, t, name, data)
}

func (a *app) execute(w http.ResponseWriter, r *http.Request, status int, t *template.Template, name string, data any) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		a.templateError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (a *app) templateError(w http.ResponseWriter, r *http.Request, err error) {
	requestctx.Logger(r.Context()).Error("template render failed", zap.Error(err))
	http.Error(w, "template error", http.StatusInternalServerError)
}
