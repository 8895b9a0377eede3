// Package graph resolves collector execution order from declared
// name-based dependencies.
package graph

import (
	"fmt"
	"strings"

	"github.com/querybridge/querybridge/internal/catalog"
)

// CycleError reports a dependency cycle found during resolution.
type CycleError struct {
	Collector string   // the collector seen while already in progress
	Path      []string // the cycle, starting and ending at Collector
}

func (e *CycleError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("dependency cycle involving collector %q", e.Collector)
}

// DuplicateNameError reports two collectors in the same input set sharing a name.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate collector name %q in resolution set", e.Name)
}

// node visit states for the depth-first traversal.
const (
	unvisited = iota
	inProgress
	done
)

// ResolveOrder returns the collectors in an order where every collector
// appears after all of its in-set dependencies. Dependency names that do
// not resolve within the input set are skipped — they are assumed
// satisfied externally. The outer iteration follows the input order, so
// independent collectors keep their original relative order and resolution
// is deterministic.
//
// A cycle (including a self-dependency) fails with *CycleError and no
// partial ordering is returned. O(V+E).
func ResolveOrder(collectors []*catalog.Collector) ([]*catalog.Collector, error) {
	byName := make(map[string]*catalog.Collector, len(collectors))
	for _, c := range collectors {
		if _, exists := byName[c.Name]; exists {
			return nil, &DuplicateNameError{Name: c.Name}
		}
		byName[c.Name] = c
	}

	state := make(map[string]int, len(collectors))
	order := make([]*catalog.Collector, 0, len(collectors))
	var path []string

	var visit func(c *catalog.Collector) error
	visit = func(c *catalog.Collector) error {
		switch state[c.Name] {
		case done:
			return nil
		case inProgress:
			return &CycleError{Collector: c.Name, Path: cycleSlice(path, c.Name)}
		}

		state[c.Name] = inProgress
		path = append(path, c.Name)

		for _, depName := range c.Dependencies {
			dep, ok := byName[depName]
			if !ok {
				// Not in this resolution set; assumed satisfied externally.
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		state[c.Name] = done
		order = append(order, c)
		return nil
	}

	for _, c := range collectors {
		if err := visit(c); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// cycleSlice trims the DFS path down to the cycle itself and closes it.
func cycleSlice(path []string, start string) []string {
	for i, name := range path {
		if name == start {
			cycle := append([]string(nil), path[i:]...)
			return append(cycle, start)
		}
	}
	return []string{start, start}
}

// UnresolvedDependencies returns, per collector, dependency names that do
// not match any collector in the set. Reported, not fatal — callers that
// require strict resolution can treat a non-empty map as an error.
func UnresolvedDependencies(collectors []*catalog.Collector) map[string][]string {
	names := make(map[string]bool, len(collectors))
	for _, c := range collectors {
		names[c.Name] = true
	}

	out := make(map[string][]string)
	for _, c := range collectors {
		for _, dep := range c.Dependencies {
			if !names[dep] {
				out[c.Name] = append(out[c.Name], dep)
			}
		}
	}
	return out
}
