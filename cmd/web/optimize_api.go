package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	mw "finitefield.org/route-planner/internal/middleware"
	"finitefield.org/route-planner/internal/optimize"
	"finitefield.org/route-planner/internal/platform/httpx"
	"finitefield.org/route-planner/internal/platform/requestctx"
)

const maxOptimizeBody = 64 << 10

// OptimizeAPIHandler accepts {"addresses": [...]} and answers with the
// summary and map fragment, or {"error": "..."}.
func (a *app) OptimizeAPIHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := mw.UserFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxOptimizeBody)
	var req optimize.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("body_too_large", "Request body too large.", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_json", "Invalid JSON body.", http.StatusBadRequest))
		return
	}

	if !a.limiter.Allow(rateKey(user)) {
		w.Header().Set("Retry-After", "60")
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", a.t(mw.Lang(r), "planner.error.rate_limited"), http.StatusTooManyRequests).
			WithDetails(map[string]any{"limit_per_minute": a.cfg.RateLimits.OptimizePerMinute}))
		return
	}

	plan, err := a.optimizer.Optimize(ctx, user.ID, req.Addresses)
	if err != nil {
		oe := optimize.AsError(err)
		logger := requestctx.Logger(ctx)
		if oe.Status >= http.StatusInternalServerError {
			logger.Error("optimize failed", zap.String("code", oe.Code), zap.Error(err))
		} else {
			logger.Info("optimize rejected", zap.String("code", oe.Code))
		}
		httpx.WriteError(ctx, w, oe.HTTP())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, plan.Response())
}
