package prep

import "github.com/elektrokombinacija/crane-mcts/internal/core"

// sameTrackOrder orders unrelated same-track pairs (t1, t2) when t1 cannot
// wait until t2 is done: es(t2) + h(t2) + min gap(t2 -> t1) > ls(t1).
// A pair is skipped when some unit pair of the two tasks does not interfere.
func (p *pass) sameTrackOrder() int {
	tasks := p.inst.Tasks
	var pairs [][2]core.TaskID
	for i := range tasks {
		t1 := core.TaskID(i)
		for j := range tasks {
			t2 := core.TaskID(j)
			if t1 == t2 || !p.unrelated(t1, t2) || tasks[i].Track != tasks[j].Track {
				continue
			}
			gap, free := p.minFollowGap(t2, t1)
			if free {
				continue
			}
			if tasks[j].EarliestStart+tasks[j].Duration+gap > tasks[i].LatestStart {
				pairs = append(pairs, [2]core.TaskID{t1, t2})
			}
		}
	}
	added := 0
	for _, pr := range pairs {
		if p.addEdge(pr[0], pr[1]) {
			added++
		}
	}
	return added
}

// minFollowGap returns the smallest separation b needs after a finishes.
// free is true when some pair of distinct units lets b follow a with no offset.
func (p *pass) minFollowGap(a, b core.TaskID) (gap float64, free bool) {
	gap = p.travel(a, b)
	for _, va := range p.inst.Tasks[a].Units {
		for _, vb := range p.inst.Tasks[b].Units {
			if va == vb {
				continue
			}
			d, ok := p.inst.Offset(a, b, va, vb)
			if !ok {
				return 0, true
			}
			gap = min(gap, d)
		}
	}
	return gap, false
}

// sameTrackChain orders unrelated same-track pairs (t1, t2) when t1 always
// finishes in time for t2, and the same holds between t1's track
// predecessors and t2 and its track successors.
func (p *pass) sameTrackChain() int {
	tasks := p.inst.Tasks
	n := len(tasks)
	preds := make([][]core.TaskID, n)
	succs := make([][]core.TaskID, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && tasks[i].Track == tasks[j].Track && p.reach[i][j] {
				succs[i] = append(succs[i], core.TaskID(j))
				preds[j] = append(preds[j], core.TaskID(i))
			}
		}
	}

	lateFinish := func(t core.TaskID) float64 { return tasks[t].LatestStart + tasks[t].Duration }
	fits := func(a, b core.TaskID) bool {
		return lateFinish(a)+p.gap(a, b) <= tasks[b].EarliestStart
	}
	fitsSuccs := func(a, b core.TaskID) bool {
		for _, s := range succs[b] {
			if !p.reach[a][s] && !fits(a, s) {
				return false
			}
		}
		return true
	}

	var pairs [][2]core.TaskID
	for i := 0; i < n; i++ {
		t1 := core.TaskID(i)
	next:
		for j := 0; j < n; j++ {
			t2 := core.TaskID(j)
			if t1 == t2 || !p.unrelated(t1, t2) || tasks[i].Track != tasks[j].Track {
				continue
			}
			if !fits(t1, t2) || !fitsSuccs(t1, t2) {
				continue
			}
			for _, pr := range preds[t1] {
				if p.reach[pr][t2] {
					continue
				}
				if !fits(pr, t2) || !fitsSuccs(pr, t2) {
					continue next
				}
			}
			pairs = append(pairs, [2]core.TaskID{t1, t2})
		}
	}
	added := 0
	for _, pr := range pairs {
		if p.addEdge(pr[0], pr[1]) {
			added++
		}
	}
	return added
}

// crossTrackOrder orders every unrelated cross-track pair, earlier start
// bound first, unless that would close a cycle in the graph of orders that
// are still possible (known precedences plus both directions of unrelated
// same-track pairs).
func (p *pass) crossTrackOrder() int {
	tasks := p.inst.Tasks
	n := len(tasks)
	var pairs [][2]core.TaskID
	possible := make([][]core.TaskID, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			t1, t2 := core.TaskID(i), core.TaskID(j)
			sameTrack := tasks[i].Track == tasks[j].Track
			if p.reach[i][j] || (sameTrack && p.unrelated(t1, t2)) {
				possible[i] = append(possible[i], t2)
			}
			if i < j && !sameTrack && p.unrelated(t1, t2) {
				pairs = append(pairs, [2]core.TaskID{t1, t2})
			}
		}
	}

	added := 0
	for k := len(pairs) - 1; k >= 0; k-- {
		t1, t2 := pairs[k][0], pairs[k][1]
		if !p.unrelated(t1, t2) {
			continue
		}
		forward := !core.PathExists(possible, t2, t1)
		backward := !core.PathExists(possible, t1, t2)
		var pred, succ core.TaskID
		switch {
		case tasks[t1].EarliestStart < tasks[t2].EarliestStart && forward:
			pred, succ = t1, t2
		case tasks[t1].EarliestStart < tasks[t2].EarliestStart && backward:
			pred, succ = t2, t1
		case tasks[t1].EarliestStart >= tasks[t2].EarliestStart && backward:
			pred, succ = t2, t1
		case tasks[t1].EarliestStart >= tasks[t2].EarliestStart && forward:
			pred, succ = t1, t2
		default:
			continue
		}
		if !p.addEdge(pred, succ) {
			continue
		}
		added++
		possible[pred] = append(possible[pred], succ)
		p.link(pred, succ)
	}
	return added
}

// link records pred -> succ in the reachability closure.
func (p *pass) link(pred, succ core.TaskID) {
	n := len(p.reach)
	from := make([]core.TaskID, 0, n)
	to := make([]core.TaskID, 0, n)
	for a := 0; a < n; a++ {
		if core.TaskID(a) == pred || p.reach[a][pred] {
			from = append(from, core.TaskID(a))
		}
		if core.TaskID(a) == succ || p.reach[succ][a] {
			to = append(to, core.TaskID(a))
		}
	}
	for _, a := range from {
		for _, b := range to {
			if a != b {
				p.reach[a][b] = true
			}
		}
	}
}
