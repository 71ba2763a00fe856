package models

// Ancestors returns every block whose output is addressable from the
// given block: all transitive upstream sources over edges, with container
// membership treated as reachability. A block inside a loop or parallel
// can reference every sibling in the same container even without a
// direct edge between them, so siblings (and the container itself) are
// included and expanded transitively.
func (s *WorkflowState) Ancestors(blockID string) map[string]bool {
	visited := make(map[string]bool)
	queue := []string{blockID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range s.IncomingEdges(current) {
			if !visited[edge.Source] {
				visited[edge.Source] = true
				queue = append(queue, edge.Source)
			}
		}

		block, ok := s.Blocks[current]
		if !ok {
			continue
		}

		if block.ParentID != "" {
			if !visited[block.ParentID] {
				visited[block.ParentID] = true
				queue = append(queue, block.ParentID)
			}

			for _, siblingID := range s.ContainerMembers(block.ParentID) {
				if siblingID != blockID && !visited[siblingID] {
					visited[siblingID] = true
					queue = append(queue, siblingID)
				}
			}
		}
	}

	delete(visited, blockID)

	return visited
}

// AccessiblePrefixes returns the set of normalized block names the given
// block may reference in <name.path> expressions.
func (s *WorkflowState) AccessiblePrefixes(blockID string) map[string]bool {
	prefixes := make(map[string]bool)

	for ancestorID := range s.Ancestors(blockID) {
		if block, ok := s.Blocks[ancestorID]; ok {
			prefixes[NormalizeName(block.Name)] = true
		}
	}

	return prefixes
}
