package bundle

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/wardroster/wardroster/internal/types"
)

func itemsFromSeeds(seeds []int) []types.RuleBundleItem {
	layers := []types.BundleLayer{types.LayerLaw, types.LayerHospital, types.LayerTemplate, types.LayerNursePref}
	items := make([]types.RuleBundleItem, len(seeds))
	for i, s := range seeds {
		if s < 0 {
			s = -s
		}
		items[i] = types.RuleBundleItem{
			Layer:         layers[s%len(layers)],
			RuleID:        types.RuleID(string(rune('a' + i%26))),
			RuleVersionID: types.RuleVersionID(string(rune('A' + s%26))),
			DSLSHA256:     DSLSHA256(string(rune('0' + s%10))),
			RuleType:      types.RuleHard,
			Priority:      s % 100,
			Enabled:       s%2 == 0,
		}
	}
	return items
}

// Property: item order never changes the bundle hash.
func TestHash_PropertyOrderInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("reversing items preserves the hash", prop.ForAll(
		func(seeds []int) bool {
			items := itemsFromSeeds(seeds)
			reversed := make([]types.RuleBundleItem, len(items))
			for i, it := range items {
				reversed[len(items)-1-i] = it
			}
			return Hash(items) == Hash(reversed)
		},
		gen.SliceOfN(8, gen.IntRange(0, 10000)),
	))

	properties.TestingRun(t)
}

// Property: changing any hashed field changes the hash.
func TestHash_PropertyContentSensitive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("flipping priority changes the hash", prop.ForAll(
		func(seeds []int, idx int) bool {
			items := itemsFromSeeds(seeds)
			before := Hash(items)
			items[idx%len(items)].Priority += 1
			return Hash(items) != before
		},
		gen.SliceOfN(5, gen.IntRange(0, 10000)),
		gen.IntRange(0, 100),
	))

	properties.Property("flipping enablement changes the hash", prop.ForAll(
		func(seeds []int, idx int) bool {
			items := itemsFromSeeds(seeds)
			before := Hash(items)
			items[idx%len(items)].Enabled = !items[idx%len(items)].Enabled
			return Hash(items) != before
		},
		gen.SliceOfN(5, gen.IntRange(0, 10000)),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func TestHash_KnownShape(t *testing.T) {
	items := itemsFromSeeds([]int{1, 2, 3})
	h := Hash(items)
	if len(h) != 64 {
		t.Errorf("len(Hash()) = %v, want 64 hex chars", len(h))
	}
	if h != Hash(items) {
		t.Errorf("Hash() not stable across calls")
	}
}

func TestDSLSHA256_DistinctTexts(t *testing.T) {
	a, b := DSLSHA256("dsl_version: 1.0"), DSLSHA256("dsl_version: 1.1")
	if a == b {
		t.Errorf("DSLSHA256 collided for distinct texts")
	}
}
