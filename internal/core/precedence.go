package core

// PathExists reports whether to is reachable from from in adj.
// A task always reaches itself.
func PathExists(adj [][]TaskID, from, to TaskID) bool {
	if from == to {
		return true
	}
	seen := make([]bool, len(adj))
	stack := []TaskID{from}
	seen[from] = true
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range adj[t] {
			if s == to {
				return true
			}
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return false
}

// Closure returns reach[i][j] = a non-empty path i->j exists.
func Closure(adj [][]TaskID) [][]bool {
	n := len(adj)
	reach := make([][]bool, n)
	for i := range reach {
		reach[i] = make([]bool, n)
		for _, j := range adj[i] {
			reach[i][j] = true
		}
	}
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if !reach[i][k] {
				continue
			}
			for j := 0; j < n; j++ {
				if reach[k][j] {
					reach[i][j] = true
				}
			}
		}
	}
	return reach
}

// Adjacency returns successor lists of the instance's precedence edges.
func (inst *Instance) Adjacency() [][]TaskID {
	adj := make([][]TaskID, len(inst.Tasks))
	for _, e := range inst.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}

// TopoOrder returns the tasks in a precedence-respecting order.
// Requires Finalize.
func (inst *Instance) TopoOrder() []TaskID {
	indeg := make([]int, len(inst.Tasks))
	copy(indeg, inst.npred)
	order := make([]TaskID, 0, len(inst.Tasks))
	for t := range indeg {
		if indeg[t] == 0 {
			order = append(order, TaskID(t))
		}
	}
	for i := 0; i < len(order); i++ {
		for _, e := range inst.succ[order[i]] {
			indeg[e.To]--
			if indeg[e.To] == 0 {
				order = append(order, e.To)
			}
		}
	}
	return order
}

// findCycle runs Kahn's algorithm and returns a task left on a cycle.
func findCycle(succ [][]Edge) (TaskID, bool) {
	indeg := make([]int, len(succ))
	for _, es := range succ {
		for _, e := range es {
			indeg[e.To]++
		}
	}
	queue := make([]TaskID, 0, len(succ))
	for t, d := range indeg {
		if d == 0 {
			queue = append(queue, TaskID(t))
		}
	}
	for i := 0; i < len(queue); i++ {
		for _, e := range succ[queue[i]] {
			indeg[e.To]--
			if indeg[e.To] == 0 {
				queue = append(queue, e.To)
			}
		}
	}
	if len(queue) == len(succ) {
		return 0, false
	}
	for t, d := range indeg {
		if d > 0 {
			return TaskID(t), true
		}
	}
	return 0, false
}
