// Package kg implements the Knowledge-Graph Index (§4.L3): an in-memory,
// concurrency-safe adjacency-list graph with neighbors/find_path/lookup
// operations, grounded on the teacher's sync.RWMutex-guarded container
// idioms (pkg/maps, pkg/sync).
package kg

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kejora-ai/orchestrator/pkg/types"
)

// MaxNeighborDepth bounds the neighbors() traversal (§4.L3: "depth<=2").
const MaxNeighborDepth = 2

var (
	// ErrDanglingEdge is returned when AddEdge names a node that does not
	// exist (§4.L3 invariant).
	ErrDanglingEdge = errors.New("kg: edge references a node that does not exist")
	ErrNodeNotFound = errors.New("kg: node not found")
	ErrDepthTooDeep = errors.New("kg: requested depth exceeds the maximum")
)

// Graph is the in-memory knowledge-graph store. Reads (Neighbors, FindPath,
// Lookup) take the read lock; writes (AddNode, AddEdge) take the write lock.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]types.KGNode
	// out and in are adjacency lists keyed by node ID, each pointing at the
	// indices of edges in the flat `edges` slice.
	edges []types.KGEdge
	out   map[string][]int
	in    map[string][]int
}

// New constructs an empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]types.KGNode),
		out:   make(map[string][]int),
		in:    make(map[string][]int),
	}
}

// AddNode inserts or replaces a node.
func (g *Graph) AddNode(n types.KGNode) error {
	if n.ID == "" {
		return errors.New("kg: node id is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[n.ID] = n
	return nil
}

// AddEdge inserts a directed, weighted edge. Both Src and Dst must already
// exist as nodes; otherwise the edge is rejected (§4.L3 invariant).
func (g *Graph) AddEdge(e types.KGEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[e.Src]; !ok {
		return fmt.Errorf("%w: src=%s", ErrDanglingEdge, e.Src)
	}
	if _, ok := g.nodes[e.Dst]; !ok {
		return fmt.Errorf("%w: dst=%s", ErrDanglingEdge, e.Dst)
	}

	idx := len(g.edges)
	g.edges = append(g.edges, e)
	g.out[e.Src] = append(g.out[e.Src], idx)
	g.in[e.Dst] = append(g.in[e.Dst], idx)
	return nil
}

// Subgraph is what Neighbors returns: the nodes reached within depth hops
// of the origin, plus the edges connecting them.
type Subgraph struct {
	Origin string
	Nodes  []types.KGNode
	Edges  []types.KGEdge
}

// Neighbors implements `neighbors(node_id, edge_types?, depth<=2)`.
// edgeTypes filters which edges to traverse; nil/empty means all types.
func (g *Graph) Neighbors(nodeID string, edgeTypes []string, depth int) (Subgraph, error) {
	if depth > MaxNeighborDepth {
		return Subgraph{}, fmt.Errorf("%w: %d > %d", ErrDepthTooDeep, depth, MaxNeighborDepth)
	}
	if depth < 0 {
		depth = MaxNeighborDepth
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[nodeID]; !ok {
		return Subgraph{}, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	allowed := toSet(edgeTypes)
	visitedNodes := map[string]bool{nodeID: true}
	visitedEdges := map[int]bool{}
	frontier := []string{nodeID}

	for hop := 0; hop < depth; hop++ {
		var next []string
		for _, id := range frontier {
			for _, idx := range g.out[id] {
				e := g.edges[idx]
				if len(allowed) > 0 && !allowed[e.Type] {
					continue
				}
				if !visitedEdges[idx] {
					visitedEdges[idx] = true
				}
				if !visitedNodes[e.Dst] {
					visitedNodes[e.Dst] = true
					next = append(next, e.Dst)
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	sub := Subgraph{Origin: nodeID}
	for id := range visitedNodes {
		sub.Nodes = append(sub.Nodes, g.nodes[id])
	}
	for idx := range visitedEdges {
		sub.Edges = append(sub.Edges, g.edges[idx])
	}
	sort.Slice(sub.Nodes, func(i, j int) bool { return sub.Nodes[i].ID < sub.Nodes[j].ID })
	return sub, nil
}

// FindPath implements `find_path(src, dst, max_hops) -> path | none` via
// bounded breadth-first search, ties broken by total edge weight (§4.L3).
func (g *Graph) FindPath(src, dst string, maxHops int) (*types.Path, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[src]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, src)
	}
	if _, ok := g.nodes[dst]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, dst)
	}
	if src == dst {
		return &types.Path{}, nil
	}

	type frame struct {
		node   string
		edges  []types.KGEdge
		weight float64
	}

	queue := []frame{{node: src}}
	visited := map[string]bool{src: true}
	var best *frame

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if len(cur.edges) >= maxHops {
			continue
		}

		for _, idx := range g.out[cur.node] {
			e := g.edges[idx]
			if visited[e.Dst] {
				continue
			}

			nextEdges := append(append([]types.KGEdge{}, cur.edges...), e)
			nextWeight := cur.weight + e.Weight

			if e.Dst == dst {
				candidate := frame{node: e.Dst, edges: nextEdges, weight: nextWeight}
				if best == nil || len(candidate.edges) < len(best.edges) ||
					(len(candidate.edges) == len(best.edges) && candidate.weight < best.weight) {
					best = &candidate
				}
				continue
			}

			visited[e.Dst] = true
			queue = append(queue, frame{node: e.Dst, edges: nextEdges, weight: nextWeight})
		}
	}

	if best == nil {
		return nil, nil
	}
	return &types.Path{Edges: best.edges, TotalHops: len(best.edges), TotalWeight: best.weight}, nil
}

// Lookup implements `lookup(text) -> candidate nodes`: a case-insensitive
// substring match over node labels, used to resolve free-text mentions to
// graph nodes before a relationship query.
func (g *Graph) Lookup(text string) []types.KGNode {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []types.KGNode
	for _, n := range g.nodes {
		if strings.Contains(strings.ToLower(n.Label), needle) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}
