package lb

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curtisra-gif/simple-gslb/internal/model"
)

func healthyMap(records map[string][]model.Target, order ...string) *model.HealthyRecordMap {
	m := model.NewHealthyRecordMap()
	for _, name := range order {
		m.Declare(name)
		for _, t := range records[name] {
			m.Add(name, t)
		}
	}
	return m
}

func TestComposeWeightsAndFallback(t *testing.T) {
	a := model.Target{Address: "10.0.0.1", Weight: 2}
	b := model.Target{Address: "10.0.0.2", Location: "us"}

	// C (EU) failed its probe, so only A and B reach the composer. The EU
	// region still exists because another record has a healthy EU target.
	d := model.Target{Address: "10.0.1.1", Location: "EU"}

	views := Compose(healthyMap(map[string][]model.Target{
		"www": {a, b},
		"api": {d},
	}, "www", "api"))

	want := model.Views{
		model.DefaultView: {"www": {a, a}},
		"US":              {"www": {b}},
		"EU":              {"www": {a, a}, "api": {d}},
	}
	if diff := cmp.Diff(want, views); diff != "" {
		t.Fatalf("unexpected views (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"EU", "US"}, ActiveRegions(views))
	assert.Equal(t, []string{model.DefaultView, "EU", "US"}, ViewOrder(views))
}

func TestComposeRecordAbsentWithoutFallback(t *testing.T) {
	us := model.Target{Address: "10.0.0.2", Location: "US"}
	eu := model.Target{Address: "10.0.0.3", Location: "EU"}

	views := Compose(healthyMap(map[string][]model.Target{
		"www": {us},
		"api": {eu},
	}, "www", "api"))

	require.Contains(t, views, "US")
	assert.NotContains(t, views["US"], "api")
	assert.NotContains(t, views["EU"], "www")
	assert.Empty(t, views[model.DefaultView])
}

func TestComposeReplicationPreservesOrder(t *testing.T) {
	x := model.Target{Address: "x", Weight: 3}
	y := model.Target{Address: "y"}
	z := model.Target{Address: "z", Weight: 2}

	views := Compose(healthyMap(map[string][]model.Target{"www": {x, y, z}}, "www"))

	got := []string{}
	for _, t := range views[model.DefaultView]["www"] {
		got = append(got, t.Address)
	}
	assert.Equal(t, []string{"x", "x", "x", "y", "z", "z"}, got)
}

func TestComposeRegionCaseInsensitive(t *testing.T) {
	lower := model.Target{Address: "10.0.0.1", Location: "ap"}
	upper := model.Target{Address: "10.0.0.2", Location: "AP"}

	views := Compose(healthyMap(map[string][]model.Target{"www": {lower, upper}}, "www"))

	assert.Len(t, views, 2)
	assert.Equal(t, []model.Target{lower, upper}, views["AP"]["www"])
}

func TestComposeEmpty(t *testing.T) {
	views := Compose(healthyMap(map[string][]model.Target{}, "www"))

	want := model.Views{model.DefaultView: {}}
	if diff := cmp.Diff(want, views); diff != "" {
		t.Fatalf("unexpected views (-want +got):\n%s", diff)
	}
	assert.Empty(t, ActiveRegions(views))
}

func TestComposeDeterministic(t *testing.T) {
	in := healthyMap(map[string][]model.Target{
		"www": {{Address: "1", Location: "b"}, {Address: "2", Location: "a", Weight: 2}, {Address: "3"}},
		"api": {{Address: "4", Location: "c"}},
	}, "www", "api")

	first := Compose(in)
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, Compose(in)); diff != "" {
			t.Fatalf("compose is not deterministic:\n%s", diff)
		}
	}
}
