// Package bulk implements the C10 bulk & status batch processor:
// dependency-ordered execution of create/update/delete batches and
// cascading status propagation closures (spec §4.7).
//
// The topological sort is grounded on the canonical-index min-heap
// pattern from the example pack's script-weaver DAG executor
// (internal/dag/executor.go's downstreamReachable): picking the
// lowest canonical index among ready nodes makes the output
// independent of Go's randomized map iteration, so the same batch
// always produces the same execution order.
package bulk

import (
	"container/heap"
	"fmt"

	"github.com/taskcore/taskcore/internal/coreerr"
)

type intMinHeap []int

func (h intMinHeap) Len() int            { return len(h) }
func (h intMinHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)         { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// CycleError reports a dependency cycle found during topological sort,
// carrying the full cycle as a sequence of keys ending back at its
// start (spec §4.7, scenario S3: `{cycle:["A","B","A"]}`).
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("bulk: dependency cycle detected: %v", e.Cycle)
}

// AsCoreError renders the cycle as the taxonomy's DEPENDENCY_CYCLE kind
// for callers that only switch on coreerr.Kind.
func (e *CycleError) AsCoreError() *coreerr.Error {
	return coreerr.New(coreerr.KindDependencyCycle, e.Error()).WithDetails(map[string]any{"cycle": e.Cycle})
}

// topoSortKeys computes a deterministic topological order over nodes
// (identified by key) given a forward-edge function: edges(k) returns
// the keys k depends on that are also present in the batch. Edges to
// keys outside the node set are treated as already-satisfied forward
// references, per spec §4.7's "ids not yet created ... treated as
// satisfied within the batch" for keys resolved elsewhere, and are
// simply not represented as graph edges here.
func topoSortKeys(keys []string, edges func(key string) []string) ([]string, error) {
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}

	// inDegree[i] counts dependencies of node i still unresolved;
	// dependents[i] lists nodes that depend on i, i.e. the graph is
	// stored dependency -> dependent for Kahn's algorithm to walk
	// forward from resolved nodes.
	inDegree := make([]int, len(keys))
	dependents := make([][]int, len(keys))
	for i, k := range keys {
		for _, dep := range edges(k) {
			depIdx, ok := index[dep]
			if !ok {
				continue
			}
			inDegree[i]++
			dependents[depIdx] = append(dependents[depIdx], i)
		}
	}

	ready := &intMinHeap{}
	heap.Init(ready)
	for i, deg := range inDegree {
		if deg == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]string, 0, len(keys))
	remaining := make([]int, len(keys))
	copy(remaining, inDegree)

	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		order = append(order, keys[u])
		for _, v := range dependents[u] {
			remaining[v]--
			if remaining[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}

	if len(order) == len(keys) {
		return order, nil
	}

	cycle := findCycle(keys, edges, remaining)
	return nil, &CycleError{Cycle: cycle}
}

// findCycle walks the subgraph of nodes that never reached in-degree
// zero (remaining[i] > 0) with plain DFS coloring to report one
// concrete cycle for diagnostics.
func findCycle(keys []string, edges func(key string) []string, remaining []int) []string {
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(keys))
	var path []string

	var visit func(i int) []string
	visit = func(i int) []string {
		color[i] = gray
		path = append(path, keys[i])
		for _, dep := range edges(keys[i]) {
			j, ok := index[dep]
			if !ok || remaining[j] == 0 {
				continue
			}
			switch color[j] {
			case gray:
				return append(append([]string{}, path...), keys[j])
			case black:
				continue
			default:
				if cyc := visit(j); cyc != nil {
					return cyc
				}
			}
		}
		color[i] = black
		path = path[:len(path)-1]
		return nil
	}

	for i, r := range remaining {
		if r > 0 && color[i] == white {
			if cyc := visit(i); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}
