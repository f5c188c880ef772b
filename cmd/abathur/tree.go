package main

import (
	"context"
	"fmt"

	"github.com/odgrim/abathur-swarm/internal/types"
)

// treeNode is one row of a rendered prerequisite tree: task plus its
// depth from the root task that `task show --tree` was invoked on.
type treeNode struct {
	task  *types.Task
	depth int
}

// buildPrerequisiteTree walks every prerequisite edge of rootID, resolved
// or not, depth-first; the seen set lists each task once and keeps the
// walk from looping.
func buildPrerequisiteTree(ctx context.Context, rootID string) ([]treeNode, error) {
	root, err := store.GetTask(ctx, rootID)
	if err != nil {
		return nil, err
	}

	var nodes []treeNode
	var walk func(id string, depth int) error
	seen := map[string]bool{}
	walk = func(id string, depth int) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		task, err := store.GetTask(ctx, id)
		if err != nil {
			return err
		}
		nodes = append(nodes, treeNode{task: task, depth: depth})

		prereqs, err := store.GetPrerequisites(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range prereqs {
			if err := walk(p, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root.ID, 0); err != nil {
		return nil, err
	}
	return nodes, nil
}

// buildLineageTree walks up to the topmost ancestor of rootID via
// ParentTaskID, then back down through GetChildTasks, so the rendered
// tree always shows a whole family rather than just rootID's descendants.
func buildLineageTree(ctx context.Context, rootID string) ([]treeNode, error) {
	top, err := store.GetTask(ctx, rootID)
	if err != nil {
		return nil, err
	}
	for top.ParentTaskID != nil {
		parent, err := store.GetTask(ctx, *top.ParentTaskID)
		if err != nil {
			return nil, err
		}
		top = parent
	}

	var nodes []treeNode
	var walk func(task *types.Task, depth int) error
	walk = func(task *types.Task, depth int) error {
		nodes = append(nodes, treeNode{task: task, depth: depth})
		children, err := store.GetChildTasks(ctx, []string{task.ID})
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(top, 0); err != nil {
		return nil, err
	}
	return nodes, nil
}

// treeRenderer renders a prerequisite tree with box-drawing connectors,
// adapted from the teacher's tree renderer: one boolean per depth level
// tracks whether that level still has a sibling to draw, so a "│" only
// appears where a vertical continuation is actually needed.
type treeRenderer struct {
	activeConnectors []bool
}

// useASCIITree switches the box-drawing connectors to plain ASCII for
// terminals/pipes that don't render Unicode box characters cleanly.
var useASCIITree = false

func renderPrerequisiteTree(nodes []treeNode) {
	if len(nodes) == 0 {
		return
	}

	children := make(map[string][]treeNode)
	var root treeNode
	byParentDepth := map[int][]treeNode{}
	for _, n := range nodes {
		byParentDepth[n.depth] = append(byParentDepth[n.depth], n)
	}
	root = nodes[0]

	// Rebuild the parent relationship from adjacency captured in
	// buildPrerequisiteTree's walk order: a node's parent is the nearest
	// preceding node one depth shallower.
	parentOf := make(map[string]string)
	var stack []treeNode
	for _, n := range nodes {
		for len(stack) > 0 && stack[len(stack)-1].depth >= n.depth {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			parentOf[n.task.ID] = stack[len(stack)-1].task.ID
		}
		stack = append(stack, n)
	}
	for _, n := range nodes {
		if parent, ok := parentOf[n.task.ID]; ok {
			children[parent] = append(children[parent], n)
		}
	}

	r := &treeRenderer{activeConnectors: make([]bool, len(nodes)+1)}
	r.renderNode(root, children, 0, true)
}

func (r *treeRenderer) renderNode(node treeNode, children map[string][]treeNode, depth int, isLast bool) {
	vertical, tee, elbow := "│   ", "├── ", "└── "
	if useASCIITree {
		vertical, tee, elbow = "|   ", "|-- ", "`-- "
	}

	var prefix string
	for i := 0; i < depth; i++ {
		if r.activeConnectors[i] {
			prefix += vertical
		} else {
			prefix += "    "
		}
	}
	if depth > 0 {
		if isLast {
			prefix += elbow
		} else {
			prefix += tee
		}
	}

	fmt.Println(prefix + formatTreeLine(node.task))

	kids := children[node.task.ID]
	for i, child := range kids {
		if depth < len(r.activeConnectors) {
			r.activeConnectors[depth] = i < len(kids)-1
		}
		r.renderNode(child, children, depth+1, i == len(kids)-1)
	}
}

func formatTreeLine(t *types.Task) string {
	line := fmt.Sprintf("%s %s [P%d] (%s)", renderStatus(t.Status), t.ID[:8], t.BasePriority, t.Summary)
	if t.Status == types.StatusReady {
		line += " " + renderReadyBadge()
	}
	return line
}
