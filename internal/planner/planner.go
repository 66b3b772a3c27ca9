// Package planner owns the address list a user builds before optimizing a
// route, and submits it to an optimize endpoint.
package planner

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"unicode/utf8"

	"finitefield.org/route-planner/internal/optimize"
)

const (
	// DefaultMaxAddresses bounds the list length.
	DefaultMaxAddresses = 25
	// MaxAddressLength bounds a single address in runes.
	MaxAddressLength = 200
)

var (
	// ErrEmptyAddress is returned when neither typed text nor a selection is given.
	ErrEmptyAddress = errors.New("planner: empty address")
	// ErrTooFewAddresses is returned when submitting fewer than two addresses.
	ErrTooFewAddresses = errors.New("planner: too few addresses")
	// ErrTooManyAddresses is returned when the list is full.
	ErrTooManyAddresses = errors.New("planner: too many addresses")
	// ErrAddressTooLong is returned for oversized input.
	ErrAddressTooLong = errors.New("planner: address too long")
	// ErrNoSuchAddress is returned when removing an index outside the list.
	ErrNoSuchAddress = errors.New("planner: no such address")
)

// MessageKey maps a list error to its translation key. Unknown errors map to "".
func MessageKey(err error) string {
	switch {
	case errors.Is(err, ErrEmptyAddress):
		return "planner.error.empty"
	case errors.Is(err, ErrTooFewAddresses):
		return "planner.error.too_few"
	case errors.Is(err, ErrTooManyAddresses):
		return "planner.error.too_many"
	case errors.Is(err, ErrAddressTooLong):
		return "planner.error.too_long"
	case errors.Is(err, ErrNoSuchAddress):
		return "planner.error.missing"
	}
	return ""
}

// SubmitError wraps a failure to reach the optimize endpoint.
type SubmitError struct {
	Cause error
}

func (e *SubmitError) Error() string {
	return "Error optimizing route: " + e.Cause.Error()
}

func (e *SubmitError) Unwrap() error { return e.Cause }

// ServerError carries the message the optimize endpoint reported.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// Result is a successful optimize response ready for rendering.
type Result struct {
	PlanID   string
	Distance string
	Order    []string
	MapHTML  template.HTML
}

// Optimizer is the optimize endpoint, remote or in-process.
type Optimizer interface {
	Optimize(ctx context.Context, addresses []string) (optimize.Response, error)
}

// Controller applies list edits and submissions.
type Controller struct {
	max int
}

// NewController returns a controller limiting lists to max entries.
func NewController(max int) *Controller {
	if max <= 0 {
		max = DefaultMaxAddresses
	}
	return &Controller{max: max}
}

// Max reports the list limit.
func (c *Controller) Max() int { return c.max }

// Add appends typed text, or the selection when no text was typed. The
// returned list is a new slice; callers clear both inputs on success.
func (c *Controller) Add(list []string, typed, selected string) ([]string, error) {
	address := strings.TrimSpace(typed)
	if address == "" {
		address = strings.TrimSpace(selected)
	}
	if address == "" {
		return list, ErrEmptyAddress
	}
	if utf8.RuneCountInString(address) > MaxAddressLength {
		return list, ErrAddressTooLong
	}
	if len(list) >= c.max {
		return list, ErrTooManyAddresses
	}
	out := make([]string, len(list), len(list)+1)
	copy(out, list)
	return append(out, address), nil
}

// Remove drops the entry at index.
func (c *Controller) Remove(list []string, index int) ([]string, error) {
	if index < 0 || index >= len(list) {
		return list, ErrNoSuchAddress
	}
	out := make([]string, 0, len(list)-1)
	out = append(out, list[:index]...)
	return append(out, list[index+1:]...), nil
}

// Clear returns an empty list.
func (c *Controller) Clear() []string { return nil }

// Validate checks the list can be submitted.
func (c *Controller) Validate(list []string) error {
	if len(list) < optimize.MinAddresses {
		return ErrTooFewAddresses
	}
	if len(list) > c.max {
		return ErrTooManyAddresses
	}
	return nil
}

// Request builds the endpoint payload for a valid list.
func (c *Controller) Request(list []string) (optimize.Request, error) {
	if err := c.Validate(list); err != nil {
		return optimize.Request{}, err
	}
	addresses := make([]string, len(list))
	copy(addresses, list)
	return optimize.Request{Addresses: addresses}, nil
}

// Submit validates the list and sends exactly one request. Validation
// failures send nothing.
func (c *Controller) Submit(ctx context.Context, opt Optimizer, list []string) (Result, error) {
	req, err := c.Request(list)
	if err != nil {
		return Result{}, err
	}
	resp, err := opt.Optimize(ctx, req.Addresses)
	if err != nil {
		var se *optimize.ServerError
		if errors.As(err, &se) {
			return Result{}, &ServerError{Message: se.Message}
		}
		return Result{}, &SubmitError{Cause: err}
	}
	if resp.Error != "" {
		return Result{}, &ServerError{Message: resp.Error}
	}
	if resp.Summary == nil {
		return Result{}, &SubmitError{Cause: errors.New("response has no summary")}
	}
	return Result{
		PlanID:   resp.PlanID,
		Distance: resp.Summary.Distance,
		Order:    resp.Summary.Order,
		MapHTML:  template.HTML(resp.MapHTML),
	}, nil
}
