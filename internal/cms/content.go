// Package cms serves localized markdown pages such as the help page.
package cms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no language variant of a page exists.
var ErrNotFound = errors.New("cms: page not found")

// ContentPage is a rendered markdown page.
type ContentPage struct {
	Kind      string
	Slug      string
	Lang      string
	Title     string
	Summary   string
	Body      template.HTML
	UpdatedAt time.Time
}

type contentFrontMatter struct {
	Title     string `yaml:"title"`
	Summary   string `yaml:"summary"`
	Lang      string `yaml:"lang"`
	UpdatedAt string `yaml:"updated_at"`
}

const (
	defaultContentDir = "content"
	defaultCacheTTL   = 5 * time.Minute
)

type cacheEntry struct {
	page    ContentPage
	expires time.Time
}

// Client reads pages from <dir>/<kind>/<lang>/<slug>.md.
type Client struct {
	contentDir string
	fallback   string
	ttl        time.Duration
	md         goldmark.Markdown
	policy     *bluemonday.Policy

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewClient builds a content client. A ttl of zero disables caching.
func NewClient(dir, fallbackLang string, ttl time.Duration) *Client {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = defaultContentDir
	}
	if fallbackLang == "" {
		fallbackLang = "en"
	}
	if ttl < 0 {
		ttl = defaultCacheTTL
	}
	return &Client{
		contentDir: dir,
		fallback:   fallbackLang,
		ttl:        ttl,
		md:         goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:     newContentPolicy(),
		cache:      map[string]cacheEntry{},
	}
}

func newContentPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("class").OnElements("figure", "figcaption", "p", "span", "code")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// ContentDir returns the configured directory.
func (c *Client) ContentDir() string { return c.contentDir }

// GetContentPage returns the page in lang, falling back to the default language.
func (c *Client) GetContentPage(ctx context.Context, kind, slug, lang string) (ContentPage, error) {
	if err := ctx.Err(); err != nil {
		return ContentPage{}, err
	}
	kind = sanitizeSlug(kind)
	if kind == "" {
		kind = "pages"
	}
	slug = sanitizeSlug(slug)
	if slug == "" {
		return ContentPage{}, ErrNotFound
	}
	lang = strings.ToLower(strings.TrimSpace(lang))

	key := strings.Join([]string{kind, lang, slug}, "|")
	if page, ok := c.cached(key); ok {
		return page, nil
	}

	priority := []string{lang}
	if lang != c.fallback {
		priority = append(priority, c.fallback)
	}
	for _, candidate := range priority {
		if candidate == "" {
			continue
		}
		page, err := c.readMarkdown(kind, slug, candidate)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return ContentPage{}, err
		}
		c.store(key, page)
		return page, nil
	}
	return ContentPage{}, ErrNotFound
}

func (c *Client) readMarkdown(kind, slug, lang string) (ContentPage, error) {
	file := filepath.Join(c.contentDir, kind, lang, slug+".md")
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ContentPage{}, ErrNotFound
		}
		return ContentPage{}, err
	}
	fm, body := splitFrontMatter(string(data))
	var front contentFrontMatter
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return ContentPage{}, fmt.Errorf("cms: parse front matter %s: %w", file, err)
		}
	}

	var rendered bytes.Buffer
	if err := c.md.Convert([]byte(body), &rendered); err != nil {
		return ContentPage{}, fmt.Errorf("cms: render %s: %w", file, err)
	}

	page := ContentPage{
		Kind:      kind,
		Slug:      slug,
		Lang:      firstNonEmpty(strings.TrimSpace(front.Lang), lang),
		Title:     strings.TrimSpace(front.Title),
		Summary:   strings.TrimSpace(front.Summary),
		Body:      template.HTML(c.policy.SanitizeBytes(rendered.Bytes())),
		UpdatedAt: parseContentDate(front.UpdatedAt),
	}
	if page.UpdatedAt.IsZero() {
		if info, err := os.Stat(file); err == nil {
			page.UpdatedAt = info.ModTime()
		}
	}
	if page.Title == "" {
		page.Title = prettifySlug(slug)
	}
	return page, nil
}

func (c *Client) cached(key string) (ContentPage, bool) {
	if c.ttl == 0 {
		return ContentPage{}, false
	}
	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expires) {
		return ContentPage{}, false
	}
	return entry.page, true
}

func (c *Client) store(key string, page ContentPage) {
	if c.ttl == 0 {
		return
	}
	c.mu.Lock()
	c.cache[key] = cacheEntry{page: page, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			fm := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimLeft(body, "\n\r")
		}
	}
	return "", input
}

func parseContentDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func prettifySlug(slug string) string {
	parts := strings.Split(slug, "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}

func sanitizeSlug(slug string) string {
	slug = strings.Trim(strings.TrimSpace(strings.ToLower(slug)), "/")
	if slug == "" || strings.Contains(slug, "..") || strings.ContainsAny(slug, `/\`) {
		return ""
	}
	return slug
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
