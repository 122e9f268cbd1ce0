package bulk

// ClosureLookup supplies the hierarchy/dependents edges needed to
// compute a cascading status-update closure.
type ClosureLookup interface {
	// Children returns the direct child paths of parentPath.
	Children(parentPath string) []string
	// Dependents returns the keys of tasks that declare a dependency on
	// the task keyed by id, in the same key space as Children's paths
	// (the service adapter passes and returns paths).
	Dependents(id string) []string
}

// StatusClosure collects every task reachable from root by following
// hierarchy children and dependents, then orders the result so leaves
// are processed before ancestors (spec §4.7: "sorts so leaves are
// processed before ancestors"), reusing the same topological helper
// Execute uses for batch ordering.
func StatusClosure(root string, lk ClosureLookup) ([]string, error) {
	visited := map[string]bool{root: true}
	queue := []string{root}
	var all []string

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		all = append(all, cur)
		for _, child := range lk.Children(cur) {
			if !visited[child] {
				visited[child] = true
				queue = append(queue, child)
			}
		}
		for _, dep := range lk.Dependents(cur) {
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	// Order leaves before ancestors: a node's "dependency" edge here is
	// an ancestor/child-of relationship, so reverse it — a child must
	// come before its parent, and a dependency must come before its
	// dependent.
	childOf := make(map[string][]string, len(all))
	for _, node := range all {
		for _, child := range lk.Children(node) {
			if visited[child] {
				childOf[node] = append(childOf[node], child)
			}
		}
		for _, dep := range lk.Dependents(node) {
			if visited[dep] {
				childOf[dep] = append(childOf[dep], node)
			}
		}
	}

	ordered, err := topoSortKeys(all, func(key string) []string {
		return childOf[key]
	})
	if err != nil {
		return nil, err
	}
	return ordered, nil
}
