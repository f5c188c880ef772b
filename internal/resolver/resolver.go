// Package resolver reasons about the dependency graph: cycle detection,
// depth, topological ordering, and readiness. It holds no state of its
// own beyond a short-lived cache of the unresolved-edge graph, keyed by
// a generation counter the caller bumps after any mutation.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odgrim/abathur-swarm/internal/store/sqlite"
	"github.com/odgrim/abathur-swarm/internal/types"
)

// ErrCycle is returned whenever a requested operation would require
// traversing or creating a cycle in the dependency graph.
var ErrCycle = errors.New("dependency cycle detected")

// Store is the subset of the persistent store the resolver needs. A
// *sqlite.Store satisfies it directly.
type Store interface {
	GetUnresolvedEdges(ctx context.Context) ([]*types.TaskDependency, error)
	GetTask(ctx context.Context, id string) (*types.Task, error)
	ListTasks(ctx context.Context, filter sqlite.ListTasksFilter) ([]*types.Task, error)
}

var _ Store = (*sqlite.Store)(nil)

// graph is the unresolved-edge adjacency, in both directions.
type graph struct {
	prereqsOf    map[string][]string // dependent -> unresolved prerequisite ids
	dependentsOf map[string][]string // prerequisite -> unresolved dependent ids
}

// Resolver answers dependency-graph questions against a Store. It caches
// the unresolved-edge graph and computed depths between invalidations.
type Resolver struct {
	store Store

	mu         sync.Mutex
	generation int64
	cachedGen  int64
	cached     *graph
	depthCache map[string]int
}

// New builds a Resolver over store.
func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Invalidate discards the cached graph and memoized depths. Callers
// invoke this after any mutation to task_dependencies (enqueue,
// complete, fail, cancel).
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
}

func (r *Resolver) snapshot(ctx context.Context) (*graph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil && r.cachedGen == r.generation {
		return r.cached, nil
	}

	edges, err := r.store.GetUnresolvedEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("load unresolved edges: %w", err)
	}
	g := &graph{prereqsOf: map[string][]string{}, dependentsOf: map[string][]string{}}
	for _, e := range edges {
		g.prereqsOf[e.DependentTaskID] = append(g.prereqsOf[e.DependentTaskID], e.PrerequisiteTaskID)
		g.dependentsOf[e.PrerequisiteTaskID] = append(g.dependentsOf[e.PrerequisiteTaskID], e.DependentTaskID)
	}
	r.cached = g
	r.cachedGen = r.generation
	r.depthCache = map[string]int{}
	return g, nil
}

// DetectCircularDependencies reports whether adding an edge
// dependentID -> prerequisiteID (dependentID requires prerequisiteID) to
// the current unresolved graph would create a cycle, without actually
// inserting it.
func (r *Resolver) DetectCircularDependencies(ctx context.Context, dependentID, prerequisiteID string) error {
	if dependentID == prerequisiteID {
		return fmt.Errorf("task cannot depend on itself: %w", ErrCycle)
	}
	g, err := r.snapshot(ctx)
	if err != nil {
		return err
	}

	// A new edge creates a cycle iff prerequisiteID already (transitively)
	// requires dependentID — walk prerequisiteID's own requirement chain
	// looking for dependentID.
	visited := map[string]bool{}
	var dfs func(id string) bool
	dfs = func(id string) bool {
		if id == dependentID {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		for _, next := range g.prereqsOf[id] {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	if dfs(prerequisiteID) {
		return fmt.Errorf("adding dependency %s -> %s: %w", dependentID, prerequisiteID, ErrCycle)
	}
	return nil
}

// CalculateDependencyDepth returns the length of the longest prerequisite
// chain leading to taskID (0 for a task with no unresolved prerequisites).
func (r *Resolver) CalculateDependencyDepth(ctx context.Context, taskID string) (int, error) {
	g, err := r.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depthOf(g, taskID, map[string]bool{})
}

func (r *Resolver) depthOf(g *graph, id string, visiting map[string]bool) (int, error) {
	if d, ok := r.depthCache[id]; ok {
		return d, nil
	}
	if visiting[id] {
		return 0, fmt.Errorf("cycle detected while computing depth of %s: %w", id, ErrCycle)
	}
	visiting[id] = true
	defer delete(visiting, id)

	prereqs := g.prereqsOf[id]
	if len(prereqs) == 0 {
		r.depthCache[id] = 0
		return 0, nil
	}
	max := 0
	for _, p := range prereqs {
		d, err := r.depthOf(g, p, visiting)
		if err != nil {
			return 0, err
		}
		if d+1 > max {
			max = d + 1
		}
	}
	r.depthCache[id] = max
	return max, nil
}

// CalculateSubgraphDepth returns the longest prerequisite chain leading to
// taskID, considering only edges whose prerequisite is itself a member of
// taskIDs — depth within that induced subgraph, rather than
// CalculateDependencyDepth's global-graph depth. A batch plan built from
// this never grows gratuitous leading-empty batches when taskIDs excludes
// prerequisites outside the set.
func (r *Resolver) CalculateSubgraphDepth(ctx context.Context, taskID string, taskIDs []string) (int, error) {
	g, err := r.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	set := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		set[id] = true
	}

	visiting := map[string]bool{}
	var depthOf func(id string) (int, error)
	depthOf = func(id string) (int, error) {
		if visiting[id] {
			return 0, fmt.Errorf("cycle detected while computing subgraph depth of %s: %w", id, ErrCycle)
		}
		visiting[id] = true
		defer delete(visiting, id)

		max := 0
		for _, p := range g.prereqsOf[id] {
			if !set[p] {
				continue
			}
			d, err := depthOf(p)
			if err != nil {
				return 0, err
			}
			if d+1 > max {
				max = d + 1
			}
		}
		return max, nil
	}
	return depthOf(taskID)
}

// GetUnmetDependencies returns the unresolved prerequisite ids for taskID.
func (r *Resolver) GetUnmetDependencies(ctx context.Context, taskID string) ([]string, error) {
	g, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), g.prereqsOf[taskID]...), nil
}

// AreAllDependenciesMet reports whether taskID has zero unresolved
// prerequisites.
func (r *Resolver) AreAllDependenciesMet(ctx context.Context, taskID string) (bool, error) {
	unmet, err := r.GetUnmetDependencies(ctx, taskID)
	if err != nil {
		return false, err
	}
	return len(unmet) == 0, nil
}

// GetReadyTasks returns every task currently in READY status, optionally
// restricted to taskIDs. A nil/empty taskIDs returns every ready task.
func (r *Resolver) GetReadyTasks(ctx context.Context, taskIDs []string) ([]*types.Task, error) {
	status := types.StatusReady
	tasks, err := r.store.ListTasks(ctx, sqlite.ListTasksFilter{Status: &status})
	if err != nil || len(taskIDs) == 0 {
		return tasks, err
	}
	want := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		want[id] = true
	}
	out := make([]*types.Task, 0, len(tasks))
	for _, t := range tasks {
		if want[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetBlockedTasks returns every BLOCKED task whose unresolved prerequisites
// include prereqID — the tasks prereqID is itself currently blocking.
func (r *Resolver) GetBlockedTasks(ctx context.Context, prereqID string) ([]*types.Task, error) {
	g, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	status := types.StatusBlocked
	tasks, err := r.store.ListTasks(ctx, sqlite.ListTasksFilter{Status: &status})
	if err != nil {
		return nil, err
	}

	out := make([]*types.Task, 0, len(tasks))
	for _, t := range tasks {
		for _, p := range g.prereqsOf[t.ID] {
			if p == prereqID {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

type executionNode struct {
	depth       int
	submittedAt time.Time
}

// GetExecutionOrder returns taskIDs in a deterministic topological order:
// among tasks with no remaining unresolved prerequisite inside the set,
// the next one picked is the one with the lowest (depth, submitted_at,
// id), in that priority.
func (r *Resolver) GetExecutionOrder(ctx context.Context, taskIDs []string) ([]string, error) {
	g, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(taskIDs) == 0 {
		return nil, nil
	}

	set := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		set[id] = true
	}

	indegree := make(map[string]int, len(taskIDs))
	for _, id := range taskIDs {
		indegree[id] = 0
		for _, p := range g.prereqsOf[id] {
			if set[p] {
				indegree[id]++
			}
		}
	}

	nodes := make(map[string]executionNode, len(taskIDs))
	for _, id := range taskIDs {
		task, err := r.store.GetTask(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load task %s for execution order: %w", id, err)
		}
		depth, err := r.CalculateDependencyDepth(ctx, id)
		if err != nil {
			return nil, err
		}
		nodes[id] = executionNode{depth: depth, submittedAt: task.SubmittedAt}
	}

	remaining := append([]string(nil), taskIDs...)
	order := make([]string, 0, len(taskIDs))

	for len(order) < len(taskIDs) {
		var frontier []string
		for _, id := range remaining {
			if indegree[id] == 0 {
				frontier = append(frontier, id)
			}
		}
		if len(frontier) == 0 {
			return nil, fmt.Errorf("execution order over %d task(s): %w", len(remaining), ErrCycle)
		}
		sort.Slice(frontier, func(i, j int) bool {
			ni, nj := nodes[frontier[i]], nodes[frontier[j]]
			if ni.depth != nj.depth {
				return ni.depth < nj.depth
			}
			if !ni.submittedAt.Equal(nj.submittedAt) {
				return ni.submittedAt.Before(nj.submittedAt)
			}
			return frontier[i] < frontier[j]
		})

		next := frontier[0]
		order = append(order, next)

		kept := remaining[:0]
		for _, id := range remaining {
			if id != next {
				kept = append(kept, id)
			}
		}
		remaining = kept

		for _, dep := range g.dependentsOf[next] {
			if set[dep] {
				indegree[dep]--
			}
		}
	}
	return order, nil
}

// GetDependencyChain returns every transitive (unresolved) prerequisite
// of taskID, in execution order.
func (r *Resolver) GetDependencyChain(ctx context.Context, taskID string) ([]string, error) {
	g, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{}
	var ancestors []string
	var collect func(id string)
	collect = func(id string) {
		for _, p := range g.prereqsOf[id] {
			if !visited[p] {
				visited[p] = true
				ancestors = append(ancestors, p)
				collect(p)
			}
		}
	}
	collect(taskID)

	if len(ancestors) == 0 {
		return nil, nil
	}
	return r.GetExecutionOrder(ctx, ancestors)
}
