package cache

// EntityPlan partitions a _entities call's representations into cache hits
// and misses.
type EntityPlan struct {
	// Hits maps the original representation index to its cached entry.
	Hits map[int]Entry
	// MissIndexes lists, in ascending order, the original indexes that must
	// still be sent to the subgraph. Their representations form the
	// shortened outgoing array in this same order.
	MissIndexes []int
}

// PlanEntityLookup looks up one key per representation and splits the result
// into hits/misses. keys[i] is the cache key for representation i.
func PlanEntityLookup(hitsByKey map[string]Entry, keys []string) EntityPlan {
	plan := EntityPlan{Hits: make(map[int]Entry)}
	for i, k := range keys {
		if e, ok := hitsByKey[k]; ok {
			plan.Hits[i] = e
			continue
		}
		plan.MissIndexes = append(plan.MissIndexes, i)
	}
	return plan
}

// AllHit reports whether every representation had a usable cache entry, in
// which case no subgraph call is needed.
func (p EntityPlan) AllHit(total int) bool {
	return len(p.Hits) == total
}

// MergeEntities reassembles the hit entries and the freshly fetched subgraph
// results (one per entry of plan.MissIndexes, in that order) into a single
// array ordered like the original request.
func MergeEntities(total int, plan EntityPlan, fetched [][]byte) [][]byte {
	out := make([][]byte, total)
	for idx, entry := range plan.Hits {
		out[idx] = entry.Value
	}
	for i, origIdx := range plan.MissIndexes {
		if i < len(fetched) {
			out[origIdx] = fetched[i]
		}
	}
	return out
}

// GraphQLError is the minimal shape of a subgraph error needed to renumber
// its path's entity-index segment after a partial-hit merge.
type GraphQLError struct {
	Message    string        `json:"message"`
	Path       []interface{} `json:"path,omitempty"`
	Extensions interface{}   `json:"extensions,omitempty"`
}

// RenumberEntityErrors rewrites each error's path[pathIndex] (the segment
// that indexes into the _entities result array) from the subgraph's
// shortened-batch position to its position in the merged array, using
// plan.MissIndexes as the position map. pathIndex is the path depth at which
// the entity array index appears (1 for a bare "_entities" path root).
func RenumberEntityErrors(errs []GraphQLError, plan EntityPlan, pathIndex int) []GraphQLError {
	out := make([]GraphQLError, len(errs))
	for i, e := range errs {
		out[i] = e
		if len(e.Path) <= pathIndex {
			continue
		}
		n, ok := e.Path[pathIndex].(float64)
		if !ok {
			continue
		}
		pos := int(n)
		if pos < 0 || pos >= len(plan.MissIndexes) {
			continue
		}
		newPath := append([]interface{}(nil), e.Path...)
		newPath[pathIndex] = plan.MissIndexes[pos]
		out[i].Path = newPath
	}
	return out
}
