// Package seo builds the head metadata for rendered pages.
package seo

import "strings"

// Meta is rendered into <head>.
type Meta struct {
	Title       string
	Description string
	Canonical   string
	Robots      string
}

// Page composes the page title with the brand. Private pages are kept out of
// search indexes since they only render per-user data.
func Page(brand, title, description, canonical string, private bool) Meta {
	m := Meta{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Canonical:   canonical,
		Robots:      "index,follow",
	}
	switch {
	case m.Title == "":
		m.Title = brand
	case brand != "" && m.Title != brand:
		m.Title = m.Title + " | " + brand
	}
	if private {
		m.Robots = "noindex,nofollow"
	}
	return m
}
