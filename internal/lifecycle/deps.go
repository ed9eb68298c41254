package lifecycle

import (
	"sort"

	"github.com/Bigsy/mcpherd/internal/protocol"
)

// startOrder topologically sorts the dependency graph so every server comes
// after the servers it depends on. Ties break alphabetically so the order is
// deterministic. Unknown dependency names and cycles are config errors.
func startOrder(deps map[string][]string) ([]string, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	indegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for _, name := range names {
		indegree[name] += 0
		for _, dep := range deps[name] {
			if _, ok := deps[dep]; !ok {
				return nil, protocol.ConfigError("server %q depends on unknown server %q", name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	// Kahn's algorithm with a sorted ready queue.
	ready := make([]string, 0, len(names))
	for _, name := range names {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(names))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		next := dependents[name]
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Strings(ready)
	}

	if len(order) != len(names) {
		var stuck []string
		for _, name := range names {
			if indegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, protocol.ConfigError("dependency cycle among servers: %v", stuck)
	}
	return order, nil
}

// stopOrder is the reverse of startOrder: dependents stop before the servers
// they depend on.
func stopOrder(deps map[string][]string) ([]string, error) {
	order, err := startOrder(deps)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}
