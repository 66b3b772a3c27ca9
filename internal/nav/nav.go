// Package nav builds the header navigation.
package nav

import "strings"

// Item represents a top-level navigation item.
type Item struct {
	Path     string // e.g. "/help"
	LabelKey string // i18n key, e.g. "nav.help"
}

// RenderedItem is a view model for templates.
type RenderedItem struct {
	Href     string
	LabelKey string
	Active   bool
}

// Main is the navigation shown to signed-in users.
var Main = []Item{
	{Path: "/", LabelKey: "nav.planner"},
	{Path: "/help", LabelKey: "nav.help"},
}

// Guest is the navigation shown before login.
var Guest = []Item{
	{Path: "/login", LabelKey: "nav.login"},
	{Path: "/register", LabelKey: "nav.register"},
	{Path: "/help", LabelKey: "nav.help"},
}

// Build renders navigation items with active state given the current path.
func Build(currentPath string, signedIn bool) []RenderedItem {
	if currentPath == "" {
		currentPath = "/"
	}
	items := Main
	if !signedIn {
		items = Guest
	}
	out := make([]RenderedItem, 0, len(items))
	for _, it := range items {
		out = append(out, RenderedItem{
			Href:     it.Path,
			LabelKey: it.LabelKey,
			Active:   isActive(it.Path, currentPath),
		})
	}
	return out
}

func isActive(itemPath, currentPath string) bool {
	if itemPath == "/" {
		// plan pages belong to the planner
		return currentPath == "/" || strings.HasPrefix(currentPath, "/plans/")
	}
	return currentPath == itemPath || strings.HasPrefix(currentPath, itemPath+"/")
}
