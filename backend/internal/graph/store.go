package graph

import (
	"sort"

	"go.uber.org/zap"

	"nexus/backend/pkg/errors"
	"nexus/backend/pkg/logger"
)

// Store is the directed node/edge graph for one canvas. It keeps
// forward and reverse adjacency indexes keyed by node id so the
// subgraph resolver can walk neighborhoods in both directions in O(1)
// amortized per neighbor.
//
// The store assumes a single logical writer; it carries no locking.
type Store struct {
	nodes map[string]*Node
	out   map[string]map[string]*Edge
	in    map[string]map[string]struct{}

	logger *zap.Logger
}

// NewStore creates an empty graph store
func NewStore() *Store {
	return &Store{
		nodes:  make(map[string]*Node),
		out:    make(map[string]map[string]*Edge),
		in:     make(map[string]map[string]struct{}),
		logger: logger.Named("graph"),
	}
}

// NodeCount returns the number of nodes
func (s *Store) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges
func (s *Store) EdgeCount() int {
	n := 0
	for _, targets := range s.out {
		n += len(targets)
	}
	return n
}

// HasNode reports whether a node exists
func (s *Store) HasNode(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

// Node returns a copy of a node
func (s *Store) Node(id string) (*Node, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Nodes returns copies of all nodes ordered by id
func (s *Store) Nodes() []*Node {
	out := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns copies of all edges ordered by (source, target)
func (s *Store) Edges() []*Edge {
	out := make([]*Edge, 0, s.EdgeCount())
	for _, targets := range s.out {
		for _, e := range targets {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// UpsertNode inserts a node or fully replaces an existing node's
// attribute set. Incident edges are untouched.
func (s *Store) UpsertNode(n *Node) {
	s.nodes[n.ID] = n.Clone()
	if s.out[n.ID] == nil {
		s.out[n.ID] = make(map[string]*Edge)
	}
	if s.in[n.ID] == nil {
		s.in[n.ID] = make(map[string]struct{})
	}
}

// UpdateNode merges a partial attribute set into an existing node
func (s *Store) UpdateNode(id string, updates map[string]interface{}) error {
	n, ok := s.nodes[id]
	if !ok {
		return errors.NewNodeNotFound(id)
	}
	n.Apply(updates)
	return nil
}

// DeleteNode removes a node and every edge where it is source or target
func (s *Store) DeleteNode(id string) error {
	if _, ok := s.nodes[id]; !ok {
		return errors.NewNodeNotFound(id)
	}
	for target := range s.out[id] {
		delete(s.in[target], id)
	}
	for source := range s.in[id] {
		delete(s.out[source], id)
	}
	delete(s.out, id)
	delete(s.in, id)
	delete(s.nodes, id)
	return nil
}

// AddEdge inserts or replaces the edge (source, target). It fails with
// no mutation if either endpoint is absent or if the source ranks
// strictly higher than the target: a node may point sideways or up the
// hierarchy, never down. Cycles among same-rank nodes are allowed.
func (s *Store) AddEdge(source, target, justification string, confidence float64) error {
	src, ok := s.nodes[source]
	if !ok {
		return errors.NewNodeNotFound(source)
	}
	dst, ok := s.nodes[target]
	if !ok {
		return errors.NewNodeNotFound(target)
	}

	if src.NodeType.Rank() < dst.NodeType.Rank() {
		s.logger.Warn("Hierarchy violation",
			zap.String("source", source),
			zap.String("source_type", string(src.NodeType)),
			zap.String("target", target),
			zap.String("target_type", string(dst.NodeType)),
		)
		return errors.NewHierarchyViolation(source, string(src.NodeType), target, string(dst.NodeType))
	}

	s.out[source][target] = &Edge{
		Source:        source,
		Target:        target,
		Justification: justification,
		Confidence:    confidence,
	}
	s.in[target][source] = struct{}{}
	return nil
}

// HasEdge reports whether the edge (source, target) exists
func (s *Store) HasEdge(source, target string) bool {
	_, ok := s.out[source][target]
	return ok
}

// Edge returns a copy of the edge (source, target)
func (s *Store) Edge(source, target string) (*Edge, bool) {
	e, ok := s.out[source][target]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// DeleteEdge removes the edge (source, target)
func (s *Store) DeleteEdge(source, target string) error {
	if _, ok := s.out[source][target]; !ok {
		return errors.NewEdgeNotFound(source, target)
	}
	delete(s.out[source], target)
	delete(s.in[target], source)
	return nil
}

// UpdateEdge merges a partial attribute set into an existing edge
func (s *Store) UpdateEdge(source, target string, updates map[string]interface{}) error {
	e, ok := s.out[source][target]
	if !ok {
		return errors.NewEdgeNotFound(source, target)
	}
	e.Apply(updates)
	return nil
}

// neighbors returns the union of successors and predecessors of a node;
// edge direction is irrelevant to reachability.
func (s *Store) neighbors(id string) []string {
	seen := make(map[string]struct{}, len(s.out[id])+len(s.in[id]))
	for target := range s.out[id] {
		seen[target] = struct{}{}
	}
	for source := range s.in[id] {
		seen[source] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

// Summaries returns the collaborator-facing view of every node except
// excludeID, ordered by id
func (s *Store) Summaries(excludeID string) []Summary {
	out := make([]Summary, 0, len(s.nodes))
	for id, n := range s.nodes {
		if id == excludeID {
			continue
		}
		out = append(out, n.Summarize())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Document snapshots the graph into its persisted shape
func (s *Store) Document() *Document {
	return &Document{
		Nodes: s.Nodes(),
		Edges: s.Edges(),
	}
}

// FromDocument builds a store from a persisted snapshot. Edges whose
// endpoints are missing from the document are dropped with a warning
// rather than failing the load.
func FromDocument(doc *Document) *Store {
	s := NewStore()
	if doc == nil {
		return s
	}
	for _, n := range doc.Nodes {
		if n.ID == "" {
			continue
		}
		s.UpsertNode(n)
	}
	for _, e := range doc.Edges {
		if !s.HasNode(e.Source) || !s.HasNode(e.Target) {
			s.logger.Warn("Dropping edge with missing endpoint",
				zap.String("source", e.Source),
				zap.String("target", e.Target),
			)
			continue
		}
		s.out[e.Source][e.Target] = e.Clone()
		s.in[e.Target][e.Source] = struct{}{}
	}
	return s
}
