package middleware

import (
	"net/http"
	"strings"

	"finitefield.org/route-planner/internal/platform/httpx"
)

// WantsJSON reports whether the client expects a JSON body.
func WantsJSON(r *http.Request) bool {
	if IsHTMX(r.Context()) {
		return true
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	if WantsJSON(r) {
		httpx.WriteError(r.Context(), w, httpx.NewError(code, msg, status))
		return
	}
	http.Error(w, msg, status)
}
