// Package handlers holds view models shared by the web templates.
package handlers

import (
	"finitefield.org/route-planner/internal/cms"
	"finitefield.org/route-planner/internal/nav"
	"finitefield.org/route-planner/internal/seo"
)

// PageData is the view model for pages using the shared layout.
type PageData struct {
	Title     string
	Lang      string
	Languages []string
	SEO       seo.Meta
	Path      string
	Nav       []nav.RenderedItem
	User      *UserView
	CSRFToken string
	Flashes   []FlashView

	// Optional per-page view model payloads
	Planner *PlannerView
	Plan    *PlanView
	Auth    *AuthView
	Help    *cms.ContentPage
}

// UserView is the signed-in account shown in the header.
type UserView struct {
	ID       int64
	Username string
}

// FlashView is a translated one-shot message.
type FlashView struct {
	Kind    string
	Message string
}

// AuthView backs the login and register forms.
type AuthView struct {
	Action   string
	Username string
}
