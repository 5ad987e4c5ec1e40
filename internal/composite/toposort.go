package composite

import (
	"fmt"

	"github.com/melosso/portway/internal/catalog"
)

// topoSort orders steps so each one follows everything in its dependsOn
// list, breaking ties by declared order (§4.8 step 1). catalog.Validate
// already guarantees dependsOn only names earlier-declared steps, so this
// can never need to detect a cycle; it is a depth-first placement pass in
// declared order purely to resolve ordering, not to reject bad input.
func topoSort(steps []catalog.CompositeStep) []catalog.CompositeStep {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		index[s.Name] = i
	}

	placed := make([]bool, len(steps))
	order := make([]catalog.CompositeStep, 0, len(steps))

	var place func(i int)
	place = func(i int) {
		if placed[i] {
			return
		}
		placed[i] = true
		for _, dep := range steps[i].DependsOn {
			if depIdx, ok := index[dep]; ok {
				place(depIdx)
			}
		}
		order = append(order, steps[i])
	}

	for i := range steps {
		place(i)
	}
	return order
}

func stepByName(steps []catalog.CompositeStep, name string) (catalog.CompositeStep, error) {
	for _, s := range steps {
		if s.Name == name {
			return s, nil
		}
	}
	return catalog.CompositeStep{}, fmt.Errorf("unknown step %q", name)
}
