// Package graph provides a directed graph over string identifiers with
// cycle-safe edge insertion. The auditor uses it to keep the
// superseded-by relation between diagram artifacts acyclic.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrCycleDetected indicates an edge would close a directed cycle.
var ErrCycleDetected = errors.New("cycle detected")

// Directed is a mutex-guarded directed graph. AddEdge refuses edges that
// would close a cycle, so a populated graph is always acyclic.
type Directed struct {
	mu sync.RWMutex
	// nodes holds every registered identifier.
	nodes map[string]bool
	// edges maps an identifier to the targets of its outgoing edges.
	edges map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates an empty graph.
func New() *Directed {
	return &Directed{
		nodes:    make(map[string]bool),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *Directed) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// AddNode registers an identifier. Re-adding an existing node is a no-op.
func (g *Directed) AddNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[id] = true
}

// AddEdge adds the directed edge from -> to. Both endpoints must be
// registered. An edge that would close a cycle is rejected with
// ErrCycleDetected and the graph is left unchanged.
func (g *Directed) AddEdge(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.nodes[from] {
		return fmt.Errorf("unknown node %q", from)
	}
	if !g.nodes[to] {
		return fmt.Errorf("unknown node %q", to)
	}

	g.edges[from] = append(g.edges[from], to)
	if g.hasCycleLocked() {
		g.edges[from] = g.edges[from][:len(g.edges[from])-1]
		g.debugLog("[graph] rejected edge %s -> %s: would close a cycle", from, to)
		return ErrCycleDetected
	}

	g.debugLog("[graph] edge %s -> %s", from, to)
	return nil
}

// HasCycle returns true if the graph contains a directed cycle.
// Uses depth-first search with coloring to detect back edges.
func (g *Directed) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked is the internal implementation that assumes the lock is held.
func (g *Directed) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1 // Mark as in progress.

		for _, next := range g.edges[id] {
			switch colors[next] {
			case 1:
				// Found a back edge - cycle detected.
				return true
			case 0:
				if visit(next) {
					return true
				}
			}
			// color == 2 means already processed, skip.
		}

		colors[id] = 2 // Mark as done.
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// From returns the targets of id's outgoing edges, sorted.
func (g *Directed) From(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, len(g.edges[id]))
	copy(out, g.edges[id])
	sort.Strings(out)
	return out
}

// Size returns the number of registered nodes.
func (g *Directed) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
