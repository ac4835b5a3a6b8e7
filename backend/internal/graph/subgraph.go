package graph

import "sort"

// MaxDepth is the largest supported blast radius
const MaxDepth = 2

// Resolver extracts bounded-radius subgraphs ("blast radius") from a
// store. Traversal treats edge direction as irrelevant: each hop unions
// successors and predecessors.
type Resolver struct {
	store *Store
}

// NewResolver creates a resolver over a store
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the node set reachable from the seeds within depth
// undirected hops, plus the full induced edge set: every edge whose both
// endpoints landed in the node set, whether or not traversal used it.
//
// Unknown seed ids are silently filtered. An empty seed set yields an
// empty subgraph regardless of depth. Depths above MaxDepth are clamped.
func (r *Resolver) Resolve(seedIDs []string, depth int) *Subgraph {
	if depth < 0 {
		depth = 0
	}
	if depth > MaxDepth {
		depth = MaxDepth
	}

	included := make(map[string]struct{})
	frontier := make([]string, 0, len(seedIDs))
	for _, id := range seedIDs {
		if !r.store.HasNode(id) {
			continue
		}
		if _, ok := included[id]; ok {
			continue
		}
		included[id] = struct{}{}
		frontier = append(frontier, id)
	}

	if len(frontier) == 0 {
		return &Subgraph{Nodes: []*Node{}, Edges: []*Edge{}}
	}

	for hop := 0; hop < depth; hop++ {
		next := make([]string, 0)
		for _, id := range frontier {
			for _, neighbor := range r.store.neighbors(id) {
				if _, ok := included[neighbor]; ok {
					continue
				}
				included[neighbor] = struct{}{}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	return r.induced(included)
}

// induced collects the nodes of the set and every edge strictly inside it
func (r *Resolver) induced(ids map[string]struct{}) *Subgraph {
	nodes := make([]*Node, 0, len(ids))
	edges := make([]*Edge, 0)
	for id := range ids {
		n, ok := r.store.Node(id)
		if !ok {
			continue
		}
		nodes = append(nodes, n)
		for target, e := range r.store.out[id] {
			if _, ok := ids[target]; ok {
				edges = append(edges, e.Clone())
			}
		}
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return &Subgraph{Nodes: nodes, Edges: edges}
}
