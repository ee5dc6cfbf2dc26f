// Package graph provides the dependency graph used to order plugin loading.
//
// Edges point from a dependent to its dependency. Sort returns every
// dependency before the nodes that depend on it, and ties between independent
// nodes are broken by insertion order so identical input always sorts the
// same way.
package graph

import (
	"container/heap"
	"fmt"
	"slices"
)

// Graph is a directed graph of comparable nodes.
// It is not safe for concurrent use.
type Graph[T comparable] struct {
	// index maps a node to its insertion position.
	index map[T]int

	// nodes in insertion order.
	nodes []T

	// deps[i] holds the positions node i depends on, in AddEdges order.
	deps [][]int
}

// New creates an empty graph.
func New[T comparable]() *Graph[T] {
	return &Graph[T]{
		index: make(map[T]int),
	}
}

// Add inserts a node with no edges.
// Returns false if the node is already present.
func (g *Graph[T]) Add(node T) bool {
	if _, exists := g.index[node]; exists {
		return false
	}
	g.index[node] = len(g.nodes)
	g.nodes = append(g.nodes, node)
	g.deps = append(g.deps, nil)
	return true
}

// AddEdges records that from depends on each node in to.
// Nodes that are not yet present are added first, in argument order.
// Duplicate edges are ignored.
func (g *Graph[T]) AddEdges(from T, to ...T) {
	g.Add(from)
	fi := g.index[from]
	for _, dep := range to {
		g.Add(dep)
		di := g.index[dep]
		if slices.Contains(g.deps[fi], di) {
			continue
		}
		g.deps[fi] = append(g.deps[fi], di)
	}
}

// Len returns the number of nodes.
func (g *Graph[T]) Len() int {
	return len(g.nodes)
}

// Contains reports whether node is in the graph.
func (g *Graph[T]) Contains(node T) bool {
	_, ok := g.index[node]
	return ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph[T]) Nodes() []T {
	return slices.Clone(g.nodes)
}

// Dependencies returns the direct dependencies of node.
func (g *Graph[T]) Dependencies(node T) []T {
	i, ok := g.index[node]
	if !ok {
		return nil
	}
	out := make([]T, 0, len(g.deps[i]))
	for _, d := range g.deps[i] {
		out = append(out, g.nodes[d])
	}
	return out
}

// Sort returns the nodes ordered so that every dependency precedes its
// dependents. If the graph has a cycle Sort returns nil and a *CycleError.
func (g *Graph[T]) Sort() ([]T, error) {
	n := len(g.nodes)
	pending := make([]int, n)
	dependents := make([][]int, n)
	for i, deps := range g.deps {
		pending[i] = len(deps)
		for _, d := range deps {
			dependents[d] = append(dependents[d], i)
		}
	}

	ready := &indexHeap{}
	for i := 0; i < n; i++ {
		if pending[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]T, 0, n)
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, g.nodes[i])
		for _, dep := range dependents[i] {
			pending[dep]--
			if pending[dep] == 0 {
				heap.Push(ready, dep)
			}
		}
	}

	if len(order) != n {
		return nil, &CycleError{Cycle: g.findCycle(pending)}
	}
	return order, nil
}

// findCycle walks the nodes Kahn's algorithm could not release and returns
// one cycle among them.
func (g *Graph[T]) findCycle(pending []int) []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(g.nodes))
	var stack []int
	var cycle []string

	var visit func(i int) bool
	visit = func(i int) bool {
		state[i] = onStack
		stack = append(stack, i)
		for _, d := range g.deps[i] {
			if pending[d] == 0 {
				continue
			}
			switch state[d] {
			case onStack:
				start := slices.Index(stack, d)
				for _, s := range stack[start:] {
					cycle = append(cycle, fmt.Sprint(g.nodes[s]))
				}
				cycle = append(cycle, fmt.Sprint(g.nodes[d]))
				return true
			case unvisited:
				if visit(d) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		return false
	}

	for i := range g.nodes {
		if pending[i] > 0 && state[i] == unvisited {
			if visit(i) {
				return cycle
			}
		}
	}
	return nil
}

// indexHeap is a min-heap of insertion positions.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *indexHeap) Push(x any) {
	*h = append(*h, x.(int))
}

func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
