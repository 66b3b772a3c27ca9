package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	handlersPkg "finitefield.org/route-planner/internal/handlers"
	mw "finitefield.org/route-planner/internal/middleware"
	"finitefield.org/route-planner/internal/optimize"
	"finitefield.org/route-planner/internal/planner"
	"finitefield.org/route-planner/internal/platform/requestctx"
	"finitefield.org/route-planner/internal/store"
)

const recentPlanLimit = 10

// plannerView loads everything the planner panel shows for the user.
func (a *app) plannerView(ctx context.Context, userID int64, lang string, list []string) (*handlersPkg.PlannerView, error) {
	locations, err := a.store.ListLocations(ctx, userID)
	if err != nil {
		return nil, err
	}
	plans, err := a.store.ListPlans(ctx, userID, recentPlanLimit)
	if err != nil {
		return nil, err
	}
	return handlersPkg.BuildPlannerView(handlersPkg.PlannerInput{
		Lang:      lang,
		Addresses: list,
		Locations: locations,
		Presets:   a.presets,
		Plans:     plans,
		Max:       a.planner.Max(),
	}), nil
}

// PlannerHandler renders the planner page.
func (a *app) PlannerHandler(w http.ResponseWriter, r *http.Request) {
	user := mw.UserFromContext(r.Context())
	list, err := a.store.Draft(r.Context(), user.ID)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	a.renderPlanner(w, r, http.StatusOK, list, nil)
}

// renderPlanner answers htmx with the planner panel and browsers with the full page.
func (a *app) renderPlanner(w http.ResponseWriter, r *http.Request, status int, list []string, mutate func(*handlersPkg.PlannerView)) {
	user := mw.UserFromContext(r.Context())
	lang := mw.Lang(r)
	view, err := a.plannerView(r.Context(), user.ID, lang, list)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if mutate != nil {
		mutate(view)
	}
	vm := a.pageData(r, "planner.title", "planner.description", true)
	vm.Planner = view
	if mw.IsHTMX(r.Context()) {
		a.renderFragment(w, r, status, "frag_planner", vm)
		return
	}
	a.renderPage(w, r, status, "planner", vm)
}

// listEdited finishes a list edit. htmx gets the refreshed panel, with the
// error shown inline; plain forms get a flash and a redirect back.
func (a *app) listEdited(w http.ResponseWriter, r *http.Request, list []string, editErr error, typed string) {
	if editErr == nil {
		if mw.IsHTMX(r.Context()) {
			a.renderPlanner(w, r, http.StatusOK, list, nil)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	key := planner.MessageKey(editErr)
	if key == "" {
		a.serverError(w, r, editErr)
		return
	}
	if mw.IsHTMX(r.Context()) {
		lang := mw.Lang(r)
		a.renderPlanner(w, r, http.StatusOK, list, func(v *handlersPkg.PlannerView) {
			v.Error = a.t(lang, key)
			v.Typed = typed
		})
		return
	}
	sess := mw.GetSession(r)
	sess.AddFlash("error", key)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// AddAddressHandler appends the typed address, or the selected one.
func (a *app) AddAddressHandler(w http.ResponseWriter, r *http.Request) {
	typed := r.PostFormValue("address")
	selected := r.PostFormValue("saved")
	a.editDraft(w, r, typed, func(list []string) ([]string, error) {
		return a.planner.Add(list, typed, selected)
	})
}

// RemoveAddressHandler drops one entry by index.
func (a *app) RemoveAddressHandler(w http.ResponseWriter, r *http.Request) {
	idx, ok := handlersPkg.ParseIndex(chi.URLParam(r, "index"))
	a.editDraft(w, r, "", func(list []string) ([]string, error) {
		if !ok {
			return nil, planner.ErrNoSuchAddress
		}
		return a.planner.Remove(list, idx)
	})
}

// editDraft applies edit to the user's draft in one store transaction.
func (a *app) editDraft(w http.ResponseWriter, r *http.Request, typed string, edit func([]string) ([]string, error)) {
	ctx := r.Context()
	user := mw.UserFromContext(ctx)
	list, err := a.store.UpdateDraft(ctx, user.ID, edit)
	a.listEdited(w, r, list, err, typed)
}

// ClearAddressesHandler empties the list.
func (a *app) ClearAddressesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := mw.UserFromContext(ctx)
	next := a.planner.Clear()
	if err := a.store.SaveDraft(ctx, user.ID, next); err != nil {
		a.serverError(w, r, err)
		return
	}
	a.listEdited(w, r, next, nil, "")
}

// PlannerOptimizeHandler submits the list and renders the result panel.
// Browsers without htmx get the whole page with the result filled in.
func (a *app) PlannerOptimizeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := mw.UserFromContext(ctx)
	lang := mw.Lang(r)
	list, err := a.store.Draft(ctx, user.ID)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	result := &handlersPkg.ResultView{}
	status := http.StatusOK
	if err := a.planner.Validate(list); err != nil {
		result.Error = a.t(lang, planner.MessageKey(err))
	} else if !a.limiter.Allow(rateKey(user)) {
		result.Error = a.t(lang, "planner.error.rate_limited")
		status = http.StatusTooManyRequests
	} else {
		res, err := a.planner.Submit(ctx, a.optimizer.ForUser(user.ID), list)
		if err != nil {
			result.Error = a.submitMessage(lang, err)
			requestctx.Logger(ctx).Info("optimize rejected", zap.Error(err))
		} else {
			result.PlanID = res.PlanID
			result.Distance = res.Distance
			result.Order = res.Order
			result.MapHTML = res.MapHTML
		}
	}

	if mw.IsHTMX(ctx) {
		// htmx does not swap error statuses by default.
		vm := a.pageData(r, "planner.title", "", true)
		vm.Planner = &handlersPkg.PlannerView{Result: result}
		a.renderFragment(w, r, http.StatusOK, "frag_result", vm)
		return
	}
	a.renderPlanner(w, r, status, list, func(v *handlersPkg.PlannerView) {
		v.Result = result
	})
}

func (a *app) submitMessage(lang string, err error) string {
	if key := planner.MessageKey(err); key != "" {
		return a.t(lang, key)
	}
	return err.Error()
}

// PlanHandler re-renders a stored plan.
func (a *app) PlanHandler(w http.ResponseWriter, r *http.Request) {
	user := mw.UserFromContext(r.Context())
	plan, err := a.store.GetPlan(r.Context(), user.ID, chi.URLParam(r, "planID"))
	if errors.Is(err, store.ErrNotFound) {
		a.notFound(w, r)
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	lang := mw.Lang(r)
	vm := a.pageData(r, "plan.title", "", true)
	vm.Plan = handlersPkg.BuildPlanView(optimize.FromStored(plan), lang)
	a.renderPage(w, r, http.StatusOK, "plan", vm)
}

// DeleteLocationHandler removes a saved location.
func (a *app) DeleteLocationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := mw.UserFromContext(ctx)
	sess := mw.GetSession(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err == nil {
		err = a.store.DeleteLocation(ctx, user.ID, id)
	}
	switch {
	case err == nil:
		sess.AddFlash("success", "locations.deleted")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, strconv.ErrSyntax), errors.Is(err, strconv.ErrRange):
		sess.AddFlash("error", "locations.error.missing")
	default:
		a.serverError(w, r, err)
		return
	}
	if mw.IsHTMX(ctx) {
		list, err := a.store.Draft(ctx, user.ID)
		if err != nil {
			a.serverError(w, r, err)
			return
		}
		a.renderPlanner(w, r, http.StatusOK, list, nil)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
