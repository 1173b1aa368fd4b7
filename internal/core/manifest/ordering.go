package manifest

import "sort"

// =============================================================================
// Service Ordering Functions
// =============================================================================

// AssignRanks computes each service's dependency rank: a service with no
// dependencies gets rank 0, and every other service gets one more than the
// highest rank among its dependencies. Start commands for rank N+1 are never
// issued before every rank-N service has been issued its start command.
//
// Returns ErrCircularDependency if the graph contains a cycle.
//
// Example:
//
//	// nginx → app → {postgres, redis}
//	services := []ServiceDescriptor{
//	    {Name: "nginx", DependsOn: []string{"app"}},
//	    {Name: "app", DependsOn: []string{"postgres", "redis"}},
//	    {Name: "postgres"},
//	    {Name: "redis"},
//	}
//	AssignRanks(services)
//	// postgres=0 redis=0 app=1 nginx=2
func AssignRanks(services []ServiceDescriptor) error {
	index := make(map[string]int, len(services))
	for i, svc := range services {
		index[svc.Name] = i
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make([]int, len(services))
	ranks := make([]int, len(services))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return NewParseError("services."+services[i].Name, "circular dependency detected", ErrCircularDependency)
		}
		state[i] = visiting

		rank := 0
		for _, dep := range services[i].DependsOn {
			j, ok := index[dep]
			if !ok {
				continue // validated separately
			}
			if err := visit(j); err != nil {
				return err
			}
			if ranks[j]+1 > rank {
				rank = ranks[j] + 1
			}
		}
		ranks[i] = rank
		state[i] = done
		return nil
	}

	for i := range services {
		if err := visit(i); err != nil {
			return err
		}
	}

	for i := range services {
		services[i].Rank = ranks[i]
	}
	return nil
}

// SortByRank orders services by ascending rank, breaking ties by name so the
// issuance order is deterministic.
func SortByRank(services []ServiceDescriptor) {
	sort.SliceStable(services, func(i, j int) bool {
		if services[i].Rank != services[j].Rank {
			return services[i].Rank < services[j].Rank
		}
		return services[i].Name < services[j].Name
	})
}
