package main

import (
	"errors"
	"net/http"

	"finitefield.org/route-planner/internal/cms"
	mw "finitefield.org/route-planner/internal/middleware"
)

// HelpHandler renders the markdown help page for the request language.
func (a *app) HelpHandler(w http.ResponseWriter, r *http.Request) {
	lang := mw.Lang(r)
	page, err := a.content.GetContentPage(r.Context(), "help", "index", lang)
	if errors.Is(err, cms.ErrNotFound) {
		a.notFound(w, r)
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	vm := a.pageData(r, "help.title", "help.description", false)
	if page.Title != "" {
		vm.Title = page.Title
		vm.SEO.Title = page.Title + " | " + a.t(lang, "brand.name")
	}
	if page.Summary != "" {
		vm.SEO.Description = page.Summary
	}
	vm.Help = &page
	a.renderPage(w, r, http.StatusOK, "help", vm)
}
