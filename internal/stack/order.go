package stack

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle is returned when depends_on forms a cycle
var ErrCycle = errors.New("dependency cycle")

// StartOrder returns service names with dependencies before dependents.
// Services that become ready at the same time are ordered by name.
func StartOrder(p *Project) ([]string, error) {
	levels, err := StartLevels(p)
	if err != nil {
		return nil, err
	}
	var order []string
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}

// StartLevels groups services into waves. Every service in a wave only
// depends on services from earlier waves, so a wave can start in parallel.
func StartLevels(p *Project) ([][]string, error) {
	indegree := make(map[string]int, len(p.Services))
	dependents := make(map[string][]string, len(p.Services))

	for _, name := range p.ServiceNames() {
		indegree[name] += 0
		for _, dep := range p.Services[name].DependsOn.Names() {
			if _, ok := p.Services[dep]; !ok {
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}

	var levels [][]string
	placed := 0
	for len(ready) > 0 {
		sort.Strings(ready)
		levels = append(levels, ready)
		placed += len(ready)

		var next []string
		for _, name := range ready {
			for _, dependent := range dependents[name] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		ready = next
	}

	if placed != len(p.Services) {
		cycle := FindCycle(p)
		if len(cycle) == 0 {
			return nil, ErrCycle
		}
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))
	}
	return levels, nil
}

// FindCycle returns one dependency cycle as a path that starts and ends with
// the same service, or nil when depends_on is acyclic.
func FindCycle(p *Project) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(p.Services))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range p.Services[name].DependsOn.Names() {
			if _, ok := p.Services[dep]; !ok {
				continue
			}
			switch state[dep] {
			case visiting:
				for i, s := range stack {
					if s == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return false
	}

	for _, name := range p.ServiceNames() {
		if state[name] == unvisited && visit(name) {
			return cycle
		}
	}
	return nil
}
