package graph

import (
	"encoding/json"
	"time"
)

// NodeType is the hierarchy level of a node. Edges may only point from a
// node to another node of the same or higher level: specific facts
// justify general claims, not the reverse.
type NodeType string

const (
	NodeTypeTopic  NodeType = "topic"
	NodeTypeModule NodeType = "module"
	NodeTypeParent NodeType = "parent"
	NodeTypeChild  NodeType = "child"
)

var ranks = map[NodeType]int{
	NodeTypeTopic:  0,
	NodeTypeModule: 1,
	NodeTypeParent: 2,
	NodeTypeChild:  3,
}

// Rank returns the hierarchy rank of a node type. Unknown types rank as
// child, the most specific level.
func (t NodeType) Rank() int {
	if r, ok := ranks[t]; ok {
		return r
	}
	return ranks[NodeTypeChild]
}

// Position is a display position on the canvas
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a document node on a canvas. Required fields are strongly
// typed; collaborator-proposed or user-custom keys live in Extra and are
// flattened into the node object on disk.
type Node struct {
	ID        string
	NodeType  NodeType
	Type      string // content kind, e.g. "document"
	Title     string
	Summary   string
	Content   string
	Module    string
	MainTopic string
	Tags      []string
	Color     string
	Thumbnail string
	Position  *Position
	CreatedAt time.Time
	Extra     map[string]interface{}
}

// Edge is a justified, directed connection between two nodes. At most
// one edge exists per ordered pair.
type Edge struct {
	Source        string
	Target        string
	Justification string
	Confidence    float64
	Extra         map[string]interface{}
}

// Summary is the lightweight node view handed to the content
// intelligence collaborator for classification and linking.
type Summary struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Tags      []string `json:"tags"`
	Module    string   `json:"module"`
	MainTopic string   `json:"main_topic"`
	NodeType  NodeType `json:"node_type"`
}

// Subgraph is a bounded-radius extraction: a node set plus every edge
// whose both endpoints are in that set.
type Subgraph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Document is the persisted graph snapshot shape
type Document struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Clone returns a deep copy of the node
func (n *Node) Clone() *Node {
	c := *n
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	if n.Position != nil {
		p := *n.Position
		c.Position = &p
	}
	if n.Extra != nil {
		c.Extra = make(map[string]interface{}, len(n.Extra))
		for k, v := range n.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Clone returns a copy of the edge
func (e *Edge) Clone() *Edge {
	c := *e
	if e.Extra != nil {
		c.Extra = make(map[string]interface{}, len(e.Extra))
		for k, v := range e.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Summarize returns the collaborator-facing view of the node
func (n *Node) Summarize() Summary {
	title := n.Title
	if title == "" {
		title = n.ID
	}
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return Summary{
		ID:        n.ID,
		Title:     title,
		Summary:   n.Summary,
		Tags:      tags,
		Module:    n.Module,
		MainTopic: n.MainTopic,
		NodeType:  n.NodeType,
	}
}

// Apply merges a partial attribute set into the node. Known keys land in
// their typed fields, anything else in the extension map.
func (n *Node) Apply(updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "id":
			// Identity is immutable
		case "node_type":
			if s, ok := value.(string); ok {
				n.NodeType = NodeType(s)
			}
		case "type":
			if s, ok := value.(string); ok {
				n.Type = s
			}
		case "title":
			if s, ok := value.(string); ok {
				n.Title = s
			}
		case "summary":
			if s, ok := value.(string); ok {
				n.Summary = s
			}
		case "content":
			if s, ok := value.(string); ok {
				n.Content = s
			}
		case "module":
			if s, ok := value.(string); ok {
				n.Module = s
			}
		case "main_topic":
			if s, ok := value.(string); ok {
				n.MainTopic = s
			}
		case "color":
			if s, ok := value.(string); ok {
				n.Color = s
			}
		case "thumbnail":
			if s, ok := value.(string); ok {
				n.Thumbnail = s
			}
		case "tags":
			n.Tags = toStringSlice(value)
		case "position":
			if p := toPosition(value); p != nil {
				n.Position = p
			}
		default:
			if n.Extra == nil {
				n.Extra = make(map[string]interface{})
			}
			n.Extra[key] = value
		}
	}
}

// Apply merges a partial attribute set into the edge
func (e *Edge) Apply(updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "source", "target":
			// Endpoints are immutable
		case "justification":
			if s, ok := value.(string); ok {
				e.Justification = s
			}
		case "confidence":
			if f, ok := toFloat(value); ok {
				e.Confidence = f
			}
		default:
			if e.Extra == nil {
				e.Extra = make(map[string]interface{})
			}
			e.Extra[key] = value
		}
	}
}

// MarshalJSON flattens the extension map into the node object
func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(n.Extra)+12)
	for k, v := range n.Extra {
		out[k] = v
	}
	out["id"] = n.ID
	out["node_type"] = n.NodeType
	out["module"] = n.Module
	out["main_topic"] = n.MainTopic
	if n.Type != "" {
		out["type"] = n.Type
	}
	if n.Title != "" {
		out["title"] = n.Title
	}
	if n.Summary != "" {
		out["summary"] = n.Summary
	}
	if n.Content != "" {
		out["content"] = n.Content
	}
	if n.Tags != nil {
		out["tags"] = n.Tags
	}
	if n.Color != "" {
		out["color"] = n.Color
	}
	if n.Thumbnail != "" {
		out["thumbnail"] = n.Thumbnail
	}
	if n.Position != nil {
		out["position"] = n.Position
	}
	if !n.CreatedAt.IsZero() {
		out["created_at"] = n.CreatedAt.Format(time.RFC3339)
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits known keys into typed fields and keeps the rest
// in the extension map
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if s, ok := raw["id"].(string); ok {
		n.ID = s
	}
	if s, ok := raw["node_type"].(string); ok {
		n.NodeType = NodeType(s)
	} else {
		n.NodeType = NodeTypeChild
	}
	if s, ok := raw["type"].(string); ok {
		n.Type = s
	}
	if s, ok := raw["title"].(string); ok {
		n.Title = s
	}
	if s, ok := raw["summary"].(string); ok {
		n.Summary = s
	}
	if s, ok := raw["content"].(string); ok {
		n.Content = s
	}
	if s, ok := raw["module"].(string); ok {
		n.Module = s
	}
	if s, ok := raw["main_topic"].(string); ok {
		n.MainTopic = s
	}
	if s, ok := raw["color"].(string); ok {
		n.Color = s
	}
	if s, ok := raw["thumbnail"].(string); ok {
		n.Thumbnail = s
	}
	if v, ok := raw["tags"]; ok {
		n.Tags = toStringSlice(v)
	}
	if v, ok := raw["position"]; ok {
		n.Position = toPosition(v)
	}
	if s, ok := raw["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			n.CreatedAt = t
		}
	}

	for _, known := range nodeKeys {
		delete(raw, known)
	}
	if len(raw) > 0 {
		n.Extra = raw
	}
	return nil
}

var nodeKeys = []string{
	"id", "node_type", "type", "title", "summary", "content",
	"module", "main_topic", "tags", "color", "thumbnail",
	"position", "created_at",
}

// MarshalJSON flattens the extension map into the edge object
func (e *Edge) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Extra)+4)
	for k, v := range e.Extra {
		out[k] = v
	}
	out["source"] = e.Source
	out["target"] = e.Target
	out["justification"] = e.Justification
	out["confidence"] = e.Confidence
	return json.Marshal(out)
}

// UnmarshalJSON splits known keys into typed fields and keeps the rest
// in the extension map
func (e *Edge) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if s, ok := raw["source"].(string); ok {
		e.Source = s
	}
	if s, ok := raw["target"].(string); ok {
		e.Target = s
	}
	if s, ok := raw["justification"].(string); ok {
		e.Justification = s
	}
	if f, ok := toFloat(raw["confidence"]); ok {
		e.Confidence = f
	}
	for _, known := range []string{"source", "target", "justification", "confidence"} {
		delete(raw, known)
	}
	if len(raw) > 0 {
		e.Extra = raw
	}
	return nil
}

func toStringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...)
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toPosition(v interface{}) *Position {
	switch vv := v.(type) {
	case *Position:
		p := *vv
		return &p
	case Position:
		p := vv
		return &p
	case map[string]interface{}:
		p := &Position{}
		if x, ok := toFloat(vv["x"]); ok {
			p.X = x
		}
		if y, ok := toFloat(vv["y"]); ok {
			p.Y = y
		}
		return p
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case json.Number:
		f, err := vv.Float64()
		return f, err == nil
	}
	return 0, false
}
