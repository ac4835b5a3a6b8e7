package graph

import (
	"encoding/json"
	"testing"
	"time"

	"nexus/backend/pkg/errors"
)

func testNode(id string, nodeType NodeType) *Node {
	return &Node{
		ID:        id,
		NodeType:  nodeType,
		Type:      "document",
		Module:    "General",
		MainTopic: "Uncategorized",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestStore_AddEdge_HierarchyRule(t *testing.T) {
	s := NewStore()
	s.UpsertNode(testNode("A", NodeTypeTopic))
	s.UpsertNode(testNode("B", NodeTypeModule))
	s.UpsertNode(testNode("C", NodeTypeChild))

	// Child may point up to a module
	if err := s.AddEdge("C", "B", "elaborates", 1.0); err != nil {
		t.Fatalf("AddEdge(C, B) failed: %v", err)
	}
	if !s.HasEdge("C", "B") {
		t.Error("Expected edge C -> B to exist")
	}

	// Module may not point down to a child
	err := s.AddEdge("B", "C", "breaks down", 1.0)
	if err == nil {
		t.Fatal("Expected AddEdge(B, C) to fail")
	}
	if !errors.IsHierarchyViolation(err) {
		t.Errorf("Expected hierarchy violation, got %v", err)
	}
	if s.HasEdge("B", "C") {
		t.Error("Rejected edge must not be created")
	}

	// Same rank is allowed, including self loops
	if err := s.AddEdge("A", "A", "self", 1.0); err != nil {
		t.Fatalf("AddEdge(A, A) failed: %v", err)
	}

	// Skip-level edges are permitted: child straight to topic
	if err := s.AddEdge("C", "A", "supports", 0.9); err != nil {
		t.Fatalf("AddEdge(C, A) failed: %v", err)
	}
}

func TestStore_AddEdge_MissingEndpoint(t *testing.T) {
	s := NewStore()
	s.UpsertNode(testNode("A", NodeTypeChild))

	before := s.EdgeCount()
	err := s.AddEdge("A", "GHOST", "links", 0.5)
	if err == nil {
		t.Fatal("Expected AddEdge with missing target to fail")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}
	if s.EdgeCount() != before {
		t.Error("Edge set must be unchanged after a rejected add")
	}
}

func TestStore_AddEdge_ReplacesExisting(t *testing.T) {
	s := NewStore()
	s.UpsertNode(testNode("A", NodeTypeChild))
	s.UpsertNode(testNode("B", NodeTypeChild))

	if err := s.AddEdge("A", "B", "first", 0.4); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	if err := s.AddEdge("A", "B", "second", 0.9); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	if s.EdgeCount() != 1 {
		t.Errorf("Expected one edge per ordered pair, got %d", s.EdgeCount())
	}
	e, ok := s.Edge("A", "B")
	if !ok {
		t.Fatal("Edge A -> B missing")
	}
	if e.Justification != "second" || e.Confidence != 0.9 {
		t.Errorf("Expected replaced edge attributes, got %+v", e)
	}
}

func TestStore_DeleteNode_CascadesEdges(t *testing.T) {
	s := NewStore()
	s.UpsertNode(testNode("N", NodeTypeParent))
	s.UpsertNode(testNode("X", NodeTypeChild))
	s.UpsertNode(testNode("Y", NodeTypeParent))

	if err := s.AddEdge("X", "N", "in", 1.0); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	if err := s.AddEdge("N", "Y", "out", 1.0); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	if err := s.DeleteNode("N"); err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}

	if s.HasNode("N") {
		t.Error("Node N should be gone")
	}
	if s.HasEdge("X", "N") || s.HasEdge("N", "Y") {
		t.Error("Edges incident to N should be gone")
	}
	if s.EdgeCount() != 0 {
		t.Errorf("Expected no edges left, got %d", s.EdgeCount())
	}
}

func TestStore_DeleteNode_NotFound(t *testing.T) {
	s := NewStore()
	err := s.DeleteNode("GHOST")
	if err == nil {
		t.Fatal("Expected DeleteNode of unknown id to fail")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestStore_UpsertNode_ReplacesAttributes(t *testing.T) {
	s := NewStore()
	n := testNode("A", NodeTypeChild)
	n.Title = "Original"
	n.Extra = map[string]interface{}{"video_id": "abc"}
	s.UpsertNode(n)
	s.UpsertNode(testNode("B", NodeTypeChild))
	if err := s.AddEdge("A", "B", "linked", 1.0); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	replacement := testNode("A", NodeTypeParent)
	replacement.Title = "Replaced"
	s.UpsertNode(replacement)

	got, ok := s.Node("A")
	if !ok {
		t.Fatal("Node A missing")
	}
	if got.Title != "Replaced" || got.NodeType != NodeTypeParent {
		t.Errorf("Expected replaced attributes, got %+v", got)
	}
	if got.Extra != nil {
		t.Error("Upsert must fully replace the attribute set")
	}
	if !s.HasEdge("A", "B") {
		t.Error("Upsert must not disturb incident edges")
	}
}

func TestStore_UpdateNode_MergesFields(t *testing.T) {
	s := NewStore()
	n := testNode("A", NodeTypeChild)
	n.Title = "Before"
	n.Summary = "Keep me"
	s.UpsertNode(n)

	err := s.UpdateNode("A", map[string]interface{}{
		"title":    "After",
		"tags":     []interface{}{"alpha", "beta"},
		"position": map[string]interface{}{"x": 10.5, "y": -3.0},
		"custom":   "value",
	})
	if err != nil {
		t.Fatalf("UpdateNode failed: %v", err)
	}

	got, _ := s.Node("A")
	if got.Title != "After" {
		t.Errorf("Expected title After, got %q", got.Title)
	}
	if got.Summary != "Keep me" {
		t.Error("Unmentioned fields must survive a partial update")
	}
	if len(got.Tags) != 2 || got.Tags[0] != "alpha" {
		t.Errorf("Expected parsed tags, got %v", got.Tags)
	}
	if got.Position == nil || got.Position.X != 10.5 {
		t.Errorf("Expected parsed position, got %+v", got.Position)
	}
	if got.Extra["custom"] != "value" {
		t.Error("Unknown keys must land in the extension map")
	}

	if err := s.UpdateNode("GHOST", map[string]interface{}{"title": "x"}); err == nil {
		t.Error("Expected update of unknown node to fail")
	}
}

func TestStore_EdgeUpdateAndDelete(t *testing.T) {
	s := NewStore()
	s.UpsertNode(testNode("A", NodeTypeChild))
	s.UpsertNode(testNode("B", NodeTypeChild))
	if err := s.AddEdge("A", "B", "initial", 0.5); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	if err := s.UpdateEdge("A", "B", map[string]interface{}{"justification": "revised", "confidence": 0.8}); err != nil {
		t.Fatalf("UpdateEdge failed: %v", err)
	}
	e, _ := s.Edge("A", "B")
	if e.Justification != "revised" || e.Confidence != 0.8 {
		t.Errorf("Expected updated edge, got %+v", e)
	}

	if err := s.UpdateEdge("B", "A", nil); !errors.IsNotFound(err) {
		t.Errorf("Expected not-found for missing edge, got %v", err)
	}

	if err := s.DeleteEdge("A", "B"); err != nil {
		t.Fatalf("DeleteEdge failed: %v", err)
	}
	if s.HasEdge("A", "B") {
		t.Error("Edge should be gone")
	}
	if err := s.DeleteEdge("A", "B"); !errors.IsNotFound(err) {
		t.Errorf("Expected not-found on double delete, got %v", err)
	}
}

func TestStore_DocumentRoundTrip(t *testing.T) {
	s := NewStore()
	a := testNode("A", NodeTypeTopic)
	a.Title = "Payments"
	a.Tags = []string{"money"}
	a.Extra = map[string]interface{}{"video_id": "xyz"}
	s.UpsertNode(a)
	b := testNode("B", NodeTypeChild)
	b.Position = &Position{X: 1, Y: 2}
	s.UpsertNode(b)
	if err := s.AddEdge("B", "A", "belongs to", 0.7); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	data, err := json.Marshal(s.Document())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	reloaded := FromDocument(&doc)

	if reloaded.NodeCount() != 2 || reloaded.EdgeCount() != 1 {
		t.Fatalf("Expected 2 nodes / 1 edge, got %d / %d", reloaded.NodeCount(), reloaded.EdgeCount())
	}
	got, _ := reloaded.Node("A")
	if got.Title != "Payments" || got.NodeType != NodeTypeTopic {
		t.Errorf("Node A attributes lost: %+v", got)
	}
	if got.Extra["video_id"] != "xyz" {
		t.Error("Extension fields must survive the round trip")
	}
	gotB, _ := reloaded.Node("B")
	if gotB.Position == nil || gotB.Position.X != 1 || gotB.Position.Y != 2 {
		t.Errorf("Position lost: %+v", gotB.Position)
	}
	e, ok := reloaded.Edge("B", "A")
	if !ok || e.Justification != "belongs to" || e.Confidence != 0.7 {
		t.Errorf("Edge attributes lost: %+v", e)
	}
}

func TestNodeType_Rank(t *testing.T) {
	cases := []struct {
		nodeType NodeType
		rank     int
	}{
		{NodeTypeTopic, 0},
		{NodeTypeModule, 1},
		{NodeTypeParent, 2},
		{NodeTypeChild, 3},
		{NodeType("mystery"), 3},
		{NodeType(""), 3},
	}
	for _, c := range cases {
		if got := c.nodeType.Rank(); got != c.rank {
			t.Errorf("Rank(%q) = %d, expected %d", c.nodeType, got, c.rank)
		}
	}
}
