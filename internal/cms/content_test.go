package cms

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func writePage(t *testing.T, dir, lang, slug, body string) {
	t.Helper()
	path := filepath.Join(dir, "help", lang)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, slug+".md"), []byte(body), 0o644))
}

func TestGetContentPageRendersMarkdown(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, "en", "index", `---
title: Using the planner
summary: Add stops, then optimize.
updated_at: 2024-04-01
---
## Adding addresses

Type an address and press **Add**.

<script>alert(1)</script>
[docs](https://example.com)
`)
	c := NewClient(dir, "en", time.Minute)

	page, err := c.GetContentPage(context.Background(), "help", "index", "en")
	require.NoError(t, err)
	require.Equal(t, "Using the planner", page.Title)
	require.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), page.UpdatedAt)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page.Body)))
	require.NoError(t, err)
	require.Equal(t, "Adding addresses", doc.Find("h2").Text())
	require.Equal(t, "Add", doc.Find("strong").Text())
	require.Zero(t, doc.Find("script").Length())
	rel, _ := doc.Find("a").Attr("rel")
	require.Contains(t, rel, "nofollow")
}

func TestGetContentPageFallsBackToDefaultLanguage(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, "en", "index", "# Help\n")
	c := NewClient(dir, "en", 0)

	page, err := c.GetContentPage(context.Background(), "help", "index", "ja")
	require.NoError(t, err)
	require.Equal(t, "en", page.Lang)
	require.Equal(t, "Index", page.Title)

	_, err = c.GetContentPage(context.Background(), "help", "../secret", "en")
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = c.GetContentPage(context.Background(), "help", "absent", "en")
	require.True(t, errors.Is(err, ErrNotFound))
}
