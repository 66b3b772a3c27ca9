// Package optimize turns a list of addresses into an ordered route with a map.
package optimize

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"finitefield.org/route-planner/internal/platform/httpx"
)

// MinAddresses is the smallest number of addresses that can be optimized.
const MinAddresses = 2

// Request is the JSON body accepted by the optimize endpoint.
type Request struct {
	Addresses []string `json:"addresses"`
}

// Summary describes an optimized route.
type Summary struct {
	Distance string   `json:"distance"`
	Order    []string `json:"order"`
}

// Response is the JSON body returned by the optimize endpoint. Error is set
// instead of Summary and MapHTML when the request failed.
type Response struct {
	PlanID  string   `json:"plan_id,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
	MapHTML string   `json:"map_html,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Plan is one optimize result.
type Plan struct {
	ID         string
	Addresses  []string
	Indices    []int
	Summary    Summary
	DistanceKm float64
	MapHTML    template.HTML
	CreatedAt  time.Time
}

// Response converts the plan into the endpoint payload.
func (p Plan) Response() Response {
	summary := p.Summary
	return Response{PlanID: p.ID, Summary: &summary, MapHTML: string(p.MapHTML)}
}

// FormatDistance renders kilometres the way summaries show them.
func FormatDistance(km float64) string {
	return fmt.Sprintf("%.2f km", km)
}

// Error codes attached to *Error.
const (
	CodeTooFewAddresses  = "too_few_addresses"
	CodeTooManyAddresses = "too_many_addresses"
	CodeGeocodeNotFound  = "geocode_not_found"
	CodeGeocodeTimeout   = "geocode_timeout"
	CodeGeocodeFailed    = "geocode_failed"
	CodeMatrixFailed     = "matrix_failed"
	CodeRouteFailed      = "route_failed"
	CodeMapFailed        = "map_failed"
	CodeStorageFailed    = "storage_failed"
)

// Error is a failure with the status and message the endpoint reports.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// HTTP converts the error into the JSON envelope.
func (e *Error) HTTP() httpx.Error {
	return httpx.NewError(e.Code, e.Message, e.Status)
}

func newError(status int, code, message string, cause error) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: cause}
}

func tooFewError() *Error {
	return newError(http.StatusBadRequest, CodeTooFewAddresses, "At least two addresses are required.", nil)
}

// AsError extracts an *Error, wrapping anything else as an internal failure.
func AsError(err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return newError(http.StatusInternalServerError, "internal", "Internal server error.", err)
}
