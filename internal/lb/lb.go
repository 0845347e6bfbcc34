// Package lb turns healthy targets into per-region answer sets.
//
// Weighted round-robin is realized by repetition: a target with weight n is
// listed n times, so the nameserver's own answer rotation spreads traffic in
// proportion to the weights.
package lb

import (
	"sort"

	"github.com/curtisra-gif/simple-gslb/internal/model"
)

// Compose builds the default view and one view per region seen among the
// healthy targets. A region without healthy local targets for a record falls
// back to the default view's entry for that record; if that is empty too the
// record is left out of the region.
func Compose(healthy *model.HealthyRecordMap) model.Views {
	views := model.Views{model.DefaultView: model.ZoneView{}}

	def := views[model.DefaultView]
	for _, name := range healthy.Names() {
		targets := weighted(healthy.Targets(name), "")
		if len(targets) > 0 {
			def[name] = targets
		}
	}

	for _, region := range regions(healthy) {
		view := model.ZoneView{}
		for _, name := range healthy.Names() {
			targets := weighted(healthy.Targets(name), region)
			if len(targets) == 0 {
				targets = def[name]
			}
			if len(targets) > 0 {
				view[name] = targets
			}
		}
		if len(view) > 0 {
			views[region] = view
		}
	}

	return views
}

// ActiveRegions returns the sorted non-default view keys that publish at
// least one record.
func ActiveRegions(views model.Views) []string {
	active := []string{}
	for key, view := range views {
		if key == model.DefaultView || len(view) == 0 {
			continue
		}
		active = append(active, key)
	}
	sort.Strings(active)
	return active
}

// ViewOrder returns the view keys with the default view first and regions
// sorted after it.
func ViewOrder(views model.Views) []string {
	keys := []string{}
	if _, ok := views[model.DefaultView]; ok {
		keys = append(keys, model.DefaultView)
	}
	return append(keys, ActiveRegions(views)...)
}

func regions(healthy *model.HealthyRecordMap) []string {
	seen := map[string]bool{}
	var out []string
	for _, name := range healthy.Names() {
		for _, t := range healthy.Targets(name) {
			if t.IsDefault() {
				continue
			}
			r := t.Region()
			if seen[r] {
				continue
			}
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

// weighted repeats each target whose region matches. An empty region selects
// targets without a location.
func weighted(targets []model.Target, region string) []model.Target {
	var out []model.Target
	for _, t := range targets {
		if t.Region() != region {
			continue
		}
		for i := 0; i < t.Replicas(); i++ {
			out = append(out, t)
		}
	}
	return out
}
