package fetch

// RepairEntities implements Nullability repair for a completed
// _entities fetch: positions is the original-index each element of
// fetchedEntities/fetchedErrors corresponds to (the shortened batch order
// produced after a partial cache hit), and total is the full representations
// count. Errors whose path starts with "_entities"/pathIndex have that
// segment rewritten to the merged-array position; a representation that
// produced no entity at all (a fatal per-entity failure) gets a null slot
// with its errors cloned and renumbered.
func RepairEntities(total int, positions []int, fetchedEntities []interface{}, fetchedErrors []GraphQLError, pathIndex int) ([]interface{}, []GraphQLError) {
	merged := make([]interface{}, total)
	for i, pos := range positions {
		if i < len(fetchedEntities) {
			merged[pos] = fetchedEntities[i]
		}
	}

	renumbered := make([]GraphQLError, 0, len(fetchedErrors))
	for _, e := range fetchedErrors {
		ne := e
		if len(e.Path) > pathIndex {
			if n, ok := asInt(e.Path[pathIndex]); ok && n >= 0 && n < len(positions) {
				newPath := append([]interface{}(nil), e.Path...)
				newPath[pathIndex] = positions[n]
				ne.Path = newPath
				if merged[positions[n]] == nil {
					merged[positions[n]] = nil // fatal failure: explicit null slot
				}
			}
		}
		renumbered = append(renumbered, ne)
	}

	return merged, renumbered
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
