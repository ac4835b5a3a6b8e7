package graph

import "testing"

// chainStore builds A <- B <- C <- D where each arrow is a child-level
// edge pointing left, plus an isolated node Z.
func chainStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	for _, id := range []string{"A", "B", "C", "D", "Z"} {
		s.UpsertNode(testNode(id, NodeTypeChild))
	}
	for _, pair := range [][2]string{{"B", "A"}, {"C", "B"}, {"D", "C"}} {
		if err := s.AddEdge(pair[0], pair[1], "chain", 1.0); err != nil {
			t.Fatalf("AddEdge(%s, %s) failed: %v", pair[0], pair[1], err)
		}
	}
	return s
}

func nodeIDs(sg *Subgraph) map[string]bool {
	ids := make(map[string]bool, len(sg.Nodes))
	for _, n := range sg.Nodes {
		ids[n.ID] = true
	}
	return ids
}

func TestResolver_EmptySeeds(t *testing.T) {
	r := NewResolver(chainStore(t))
	for depth := 0; depth <= MaxDepth; depth++ {
		sg := r.Resolve(nil, depth)
		if len(sg.Nodes) != 0 || len(sg.Edges) != 0 {
			t.Errorf("depth %d: expected empty subgraph, got %d nodes / %d edges",
				depth, len(sg.Nodes), len(sg.Edges))
		}
	}
}

func TestResolver_UnknownSeedsFiltered(t *testing.T) {
	r := NewResolver(chainStore(t))
	sg := r.Resolve([]string{"GHOST", "B", "PHANTOM"}, 0)
	ids := nodeIDs(sg)
	if len(ids) != 1 || !ids["B"] {
		t.Errorf("Expected only B, got %v", ids)
	}

	// All-unknown seeds behave like an empty seed set
	sg = r.Resolve([]string{"GHOST"}, 2)
	if len(sg.Nodes) != 0 || len(sg.Edges) != 0 {
		t.Error("Expected empty subgraph for unknown-only seeds")
	}
}

func TestResolver_DepthZero_InducedEdges(t *testing.T) {
	r := NewResolver(chainStore(t))
	// B and C are adjacent; the connecting edge must appear even though
	// depth 0 does no traversal.
	sg := r.Resolve([]string{"B", "C"}, 0)
	ids := nodeIDs(sg)
	if len(ids) != 2 || !ids["B"] || !ids["C"] {
		t.Fatalf("Expected {B, C}, got %v", ids)
	}
	if len(sg.Edges) != 1 || sg.Edges[0].Source != "C" || sg.Edges[0].Target != "B" {
		t.Errorf("Expected induced edge C -> B, got %v", sg.Edges)
	}
}

func TestResolver_DepthOne_UndirectedNeighborhood(t *testing.T) {
	r := NewResolver(chainStore(t))
	// B's successors: {A}; predecessors: {C}. Direction must not matter.
	sg := r.Resolve([]string{"B"}, 1)
	ids := nodeIDs(sg)
	for _, want := range []string{"A", "B", "C"} {
		if !ids[want] {
			t.Errorf("Expected %s in 1-hop neighborhood, got %v", want, ids)
		}
	}
	if ids["D"] || ids["Z"] {
		t.Errorf("D and Z must not be reachable at depth 1, got %v", ids)
	}
	if len(sg.Edges) != 2 {
		t.Errorf("Expected induced edges {B->A, C->B}, got %v", sg.Edges)
	}
}

func TestResolver_DepthTwo_SecondLayer(t *testing.T) {
	r := NewResolver(chainStore(t))
	sg := r.Resolve([]string{"B"}, 2)
	ids := nodeIDs(sg)
	for _, want := range []string{"A", "B", "C", "D"} {
		if !ids[want] {
			t.Errorf("Expected %s at depth 2, got %v", want, ids)
		}
	}
	if ids["Z"] {
		t.Error("Isolated node must never be pulled in")
	}
	if len(sg.Edges) != 3 {
		t.Errorf("Expected the full chain's edges, got %v", sg.Edges)
	}
}

func TestResolver_Monotonicity(t *testing.T) {
	r := NewResolver(chainStore(t))
	seeds := []string{"A", "Z"}

	var previous map[string]bool
	for depth := 0; depth <= MaxDepth; depth++ {
		ids := nodeIDs(r.Resolve(seeds, depth))
		for id := range previous {
			if !ids[id] {
				t.Errorf("depth %d dropped %s present at depth %d", depth, id, depth-1)
			}
		}
		previous = ids
	}
}

func TestResolver_DeduplicatesOverlappingNeighborhoods(t *testing.T) {
	s := NewStore()
	// Star: leaves L1..L3 all point at hub H
	s.UpsertNode(testNode("H", NodeTypeParent))
	for _, id := range []string{"L1", "L2", "L3"} {
		s.UpsertNode(testNode(id, NodeTypeChild))
		if err := s.AddEdge(id, "H", "spoke", 1.0); err != nil {
			t.Fatalf("AddEdge failed: %v", err)
		}
	}

	sg := NewResolver(s).Resolve([]string{"L1", "L2"}, 1)
	if len(sg.Nodes) != 3 {
		t.Errorf("Expected set-union dedup (L1, L2, H), got %d nodes", len(sg.Nodes))
	}

	sg = NewResolver(s).Resolve([]string{"L1"}, 2)
	if len(sg.Nodes) != 4 || len(sg.Edges) != 3 {
		t.Errorf("Expected whole star at depth 2, got %d nodes / %d edges",
			len(sg.Nodes), len(sg.Edges))
	}
}

func TestResolver_DepthClamped(t *testing.T) {
	r := NewResolver(chainStore(t))
	deep := nodeIDs(r.Resolve([]string{"A"}, 99))
	max := nodeIDs(r.Resolve([]string{"A"}, MaxDepth))
	if len(deep) != len(max) {
		t.Errorf("Depth beyond %d must clamp, got %v vs %v", MaxDepth, deep, max)
	}
}
