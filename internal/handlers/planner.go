package handlers

import (
	"html/template"
	"strconv"

	"finitefield.org/route-planner/internal/format"
	"finitefield.org/route-planner/internal/optimize"
	"finitefield.org/route-planner/internal/presets"
	"finitefield.org/route-planner/internal/store"
)

// PlannerView backs the planner page and its fragments.
type PlannerView struct {
	Addresses []AddressItem
	Options   []OptionItem
	Saved     []SavedItem
	Recent    []PlanSummary
	Max       int
	Count     int
	CanSubmit bool
	// Typed is echoed back when an add fails so the input is not lost.
	Typed  string
	Error  string
	Result *ResultView
}

// AddressItem is one row of the address list.
type AddressItem struct {
	Index int
	Text  string
}

// OptionItem is one entry of the saved/preset selection list.
type OptionItem struct {
	Value string
	Label string
	Group string // "saved" or "preset"
}

// SavedItem is a saved location that can be deleted.
type SavedItem struct {
	ID      int64
	Address string
}

// PlanSummary is one row of the recent plans list.
type PlanSummary struct {
	ID        string
	Distance  string
	Stops     string
	CreatedAt string
}

// ResultView renders an optimize result or its error.
type ResultView struct {
	PlanID   string
	Distance string
	Order    []string
	MapHTML  template.HTML
	Error    string
}

// PlanView backs the stored plan page.
type PlanView struct {
	ID        string
	CreatedAt string
	Addresses []string
	Result    ResultView
}

// PlannerInput gathers what BuildPlannerView needs.
type PlannerInput struct {
	Lang      string
	Addresses []string
	Locations []store.Location
	Presets   []presets.Preset
	Plans     []store.Plan
	Max       int
}

// BuildPlannerView assembles the planner page model. Saved locations come
// before presets in the selection list and addresses present in both are
// listed once.
func BuildPlannerView(in PlannerInput) *PlannerView {
	v := &PlannerView{
		Addresses: make([]AddressItem, 0, len(in.Addresses)),
		Max:       in.Max,
		Count:     len(in.Addresses),
		CanSubmit: len(in.Addresses) >= 2,
	}
	for i, a := range in.Addresses {
		v.Addresses = append(v.Addresses, AddressItem{Index: i, Text: a})
	}
	seen := map[string]struct{}{}
	for _, loc := range in.Locations {
		v.Saved = append(v.Saved, SavedItem{ID: loc.ID, Address: loc.Address})
		if _, dup := seen[loc.Address]; dup {
			continue
		}
		seen[loc.Address] = struct{}{}
		v.Options = append(v.Options, OptionItem{Value: loc.Address, Label: loc.Address, Group: "saved"})
	}
	for _, p := range in.Presets {
		if _, dup := seen[p.Address]; dup {
			continue
		}
		seen[p.Address] = struct{}{}
		v.Options = append(v.Options, OptionItem{Value: p.Address, Label: p.Label(), Group: "preset"})
	}
	for _, p := range in.Plans {
		distance := p.Distance
		if p.DistanceKm > 0 {
			distance = format.FmtDistance(p.DistanceKm, in.Lang)
		}
		v.Recent = append(v.Recent, PlanSummary{
			ID:        p.ID,
			Distance:  distance,
			Stops:     format.FmtCount(len(p.Addresses), in.Lang),
			CreatedAt: format.FmtDate(p.CreatedAt, in.Lang),
		})
	}
	return v
}

// BuildPlanView converts a stored plan for its page.
func BuildPlanView(p optimize.Plan, lang string) *PlanView {
	distance := p.Summary.Distance
	if p.DistanceKm > 0 {
		distance = format.FmtDistance(p.DistanceKm, lang)
	}
	return &PlanView{
		ID:        p.ID,
		CreatedAt: format.FmtDate(p.CreatedAt, lang),
		Addresses: p.Addresses,
		Result: ResultView{
			PlanID:   p.ID,
			Distance: distance,
			Order:    p.Summary.Order,
			MapHTML:  p.MapHTML,
		},
	}
}

// ParseIndex parses a list index path parameter.
func ParseIndex(raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
