package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nexus/backend/internal/adapter"
	"nexus/backend/internal/graph"
	"nexus/backend/internal/weaver"
	"nexus/backend/pkg/errors"
	"nexus/backend/pkg/logger"
)

// Bridge handles context hydration, blast radius calculation and
// collaborator interaction. Without a configured LLM endpoint every
// generator degrades to a deterministic fallback instead of failing.
type Bridge struct {
	weaver *weaver.Weaver
	llm    *adapter.LLMAdapter
	logger *zap.Logger
}

// New creates the bridge. llm may be nil.
func New(w *weaver.Weaver, llm *adapter.LLMAdapter) *Bridge {
	return &Bridge{
		weaver: w,
		llm:    llm,
		logger: logger.Named("bridge"),
	}
}

// Available reports whether the collaborator endpoint is configured
func (b *Bridge) Available() bool {
	return b.llm.Available()
}

// ContextStats summarizes a resolved context
type ContextStats struct {
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`
}

// ContextData is the resolved blast radius prepared for the UI and the
// collaborator prompt
type ContextData struct {
	ContextNodes   []*graph.Node `json:"context_nodes"`
	ContextEdges   []*graph.Edge `json:"context_edges"`
	DominantModule string        `json:"dominant_module"`
	Stats          ContextStats  `json:"stats"`
}

// CalculateContext resolves the blast radius and computes the dominant
// module: the module holding a strict majority of the context nodes, or
// "Cross-Module" when no module does.
func (b *Bridge) CalculateContext(selectedNodes []string, depth int) *ContextData {
	sg := b.weaver.GetSubgraph(selectedNodes, depth)

	moduleCounts := map[string]int{}
	for _, node := range sg.Nodes {
		moduleCounts[node.Module]++
	}

	dominant := "Cross-Module"
	total := len(sg.Nodes)
	if total > 0 {
		for mod, count := range moduleCounts {
			if float64(count)/float64(total) > 0.5 {
				dominant = mod
				break
			}
		}
	}

	return &ContextData{
		ContextNodes:   sg.Nodes,
		ContextEdges:   sg.Edges,
		DominantModule: dominant,
		Stats: ContextStats{
			NodeCount: total,
			EdgeCount: len(sg.Edges),
		},
	}
}

// hydrateContext converts graph data into a text block for the system
// prompt
func hydrateContext(data *ContextData) string {
	var lines []string
	lines = append(lines, "### CONTEXT NODES ###")
	for _, node := range data.ContextNodes {
		lines = append(lines, fmt.Sprintf("ID: [%s] | Type: %s | Content: %s", node.ID, node.Type, node.Content))
	}

	lines = append(lines, "\n### JUSTIFIED EDGES (RELATIONSHIPS) ###")
	for _, edge := range data.ContextEdges {
		justification := edge.Justification
		if justification == "" {
			justification = "Linked"
		}
		lines = append(lines, fmt.Sprintf("From [%s] -> To [%s] | Justification: %s", edge.Source, edge.Target, justification))
	}

	return strings.Join(lines, "\n")
}

// StructureProposal is a taxonomy entry the collaborator wants created
type StructureProposal struct {
	Name        string `json:"name"`
	Topic       string `json:"topic,omitempty"`
	Description string `json:"description,omitempty"`
}

// Metadata is the structured extraction result for a document
type Metadata struct {
	Title             string             `json:"title"`
	Summary           string             `json:"summary"`
	Tags              []string           `json:"tags"`
	Module            string             `json:"module"`
	MainTopic         string             `json:"main_topic"`
	ProposedNewTopic  *StructureProposal `json:"proposed_new_topic,omitempty"`
	ProposedNewModule *StructureProposal `json:"proposed_new_module,omitempty"`
}

const metadataSystemPrompt = `You are Nexus, an AI Knowledge Weaver. Analyze the document and extract structured metadata.

Requirements:
1. Title: Concise and descriptive.
2. Summary: One sentence explaining the core value/issue.
3. Module: Suggest a functional module name (e.g., "Payments", "Auth", "Logistics", "UI").
4. Main Topic: A high-level grouping (e.g., "Error Handling", "Performance", "Feature Spec").
5. Tags: List of specific keywords.
6. If the document clearly belongs to a topic or module that does not exist yet, propose it.

Output JSON:
{
    "title": "String",
    "summary": "String",
    "module": "String",
    "main_topic": "String",
    "tags": ["String"],
    "proposed_new_topic": {"name": "String", "description": "String"},
    "proposed_new_module": {"name": "String", "topic": "String", "description": "String"}
}
Omit the proposal fields when nothing new is needed.`

// maxExtractionChars bounds the document slice sent to the collaborator
const maxExtractionChars = 4000

// ExtractMetadata asks the collaborator for title, summary, tags and
// classification. Without a collaborator it returns a marker fallback.
func (b *Bridge) ExtractMetadata(ctx context.Context, content string) *Metadata {
	fallback := &Metadata{
		Title:     "Unknown Title",
		Summary:   "LLM Unavailable",
		Tags:      []string{},
		Module:    "General",
		MainTopic: "Uncategorized",
	}
	if !b.llm.Available() {
		return fallback
	}

	userMsg := content
	if len(userMsg) > maxExtractionChars {
		userMsg = userMsg[:maxExtractionChars] + "... (truncated)"
	}

	var meta Metadata
	if err := b.llm.GenerateJSON(ctx, metadataSystemPrompt, "Input Text:\n"+userMsg, &meta); err != nil {
		b.logger.Error("Metadata extraction failed", zap.Error(err))
		return fallback
	}
	if meta.Tags == nil {
		meta.Tags = []string{}
	}
	b.logger.Info("Metadata extraction successful", zap.String("title", meta.Title))
	return &meta
}

// LinkSuggestion is a proposed edge from a freshly classified node to
// an existing one
type LinkSuggestion struct {
	TargetID      string  `json:"target_id"`
	Justification string  `json:"justification"`
	Confidence    float64 `json:"confidence"`
}

const relationshipSystemPrompt = `You are Nexus. A new document node has been added to the graph.
Your task is to identify logical connections (edges) between this new node and existing nodes.

Instructions:
1. Analyze semantic relationships (e.g., shared topics, dependency, conflict, elaboration).
2. Create edges ONLY if there is a strong justification.
3. Limit to the top 3 strongest connections.
4. "confidence" should be between 0.0 and 1.0.

Output JSON List:
[
    {
        "target_id": "Existing Node ID",
        "justification": "Why they are linked (max 10 words)",
        "confidence": 0.85
    }
]
If no connections, return [].`

// DetectRelationships analyzes a new node against candidate summaries.
// Failures and an absent collaborator both yield no suggestions.
func (b *Bridge) DetectRelationships(ctx context.Context, newNode graph.Summary, candidates []graph.Summary) []LinkSuggestion {
	if !b.llm.Available() || len(candidates) == 0 {
		return nil
	}

	candidatesJSON, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return nil
	}
	userMsg := fmt.Sprintf(
		"New Node:\nID: %s\nTitle: %s\nSummary: %s\nTags: %s\nModule: %s\n\nExisting Nodes (Candidates):\n%s",
		newNode.ID, newNode.Title, newNode.Summary, strings.Join(newNode.Tags, ", "), newNode.Module, candidatesJSON,
	)

	var links []LinkSuggestion
	if err := b.llm.GenerateJSON(ctx, relationshipSystemPrompt, userMsg, &links); err != nil {
		b.logger.Error("Relationship detection failed", zap.Error(err))
		return nil
	}
	b.logger.Info("AI suggested links",
		zap.String("node_id", newNode.ID),
		zap.Int("count", len(links)),
	)
	return links
}

// fallbackChatResponse is returned when no collaborator is configured
const fallbackChatResponse = "Simulated Response: [TICKET-101] and [SRS-PAY-02] suggest a timing issue. (LLM Key Missing)"

// GenerateResponse answers a user prompt strictly against the hydrated
// context, carrying the session history for continuity
func (b *Bridge) GenerateResponse(ctx context.Context, history []weaver.ChatMessage, data *ContextData, userPrompt string) string {
	systemInstruction := "You are Nexus, an evidence-based reasoning engine.\n" +
		"You must only answer based on the provided Context Nodes. Do not use outside knowledge.\n" +
		"The output MUST follow a strict citation format: [NODE-ID] whenever you reference a specific piece of information.\n\n" +
		hydrateContext(data)

	if !b.llm.Available() {
		return fallbackChatResponse
	}

	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("### CONVERSATION SO FAR ###\n")
		for _, msg := range history {
			sb.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("User Query: ")
	sb.WriteString(userPrompt)

	response, err := b.llm.Generate(ctx, systemInstruction, sb.String())
	if err != nil {
		return fmt.Sprintf("Error communicating with the collaborator: %v", err)
	}
	return response
}

// ExpansionItem is one node the collaborator proposes during expansion
type ExpansionItem struct {
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	Content       string   `json:"content"`
	Tags          []string `json:"tags"`
	NodeType      string   `json:"node_type"`
	Justification string   `json:"justification"`
}

const breakdownSystemPrompt = `You are Nexus. Break the given node down into MECE sub-components
(Mutually Exclusive, Collectively Exhaustive). Each sub-component becomes its own node.

Output JSON List:
[
    {
        "title": "String",
        "summary": "String",
        "content": "String",
        "tags": ["String"],
        "node_type": "child",
        "justification": "Why this is a sub-component (max 10 words)"
    }
]`

// GenerateBreakdown proposes MECE sub-components of a node, capped at
// maxSubnodes. No collaborator means no proposals.
func (b *Bridge) GenerateBreakdown(ctx context.Context, node *graph.Node, maxSubnodes int) []ExpansionItem {
	if !b.llm.Available() {
		return nil
	}

	userMsg := fmt.Sprintf(
		"Node to break down:\nTitle: %s\nSummary: %s\nContent: %s\n\nProduce at most %d sub-components.",
		node.Title, node.Summary, node.Content, maxSubnodes,
	)

	var items []ExpansionItem
	if err := b.llm.GenerateJSON(ctx, breakdownSystemPrompt, userMsg, &items); err != nil {
		b.logger.Error("Breakdown generation failed", zap.String("node_id", node.ID), zap.Error(err))
		return nil
	}
	if len(items) > maxSubnodes {
		items = items[:maxSubnodes]
	}
	return items
}

const abstractionSystemPrompt = `You are Nexus. Produce a single higher-level abstraction node that the
given node is an instance of. The abstraction should generalize, not repeat.

Output JSON:
{
    "title": "String",
    "summary": "String",
    "content": "String",
    "node_type": "parent",
    "justification": "Why this abstraction covers the node (max 10 words)"
}`

// GenerateAbstraction proposes a single parent abstraction for a node
func (b *Bridge) GenerateAbstraction(ctx context.Context, node *graph.Node) *ExpansionItem {
	if !b.llm.Available() {
		return nil
	}

	userMsg := fmt.Sprintf(
		"Node to abstract:\nTitle: %s\nSummary: %s\nContent: %s",
		node.Title, node.Summary, node.Content,
	)

	var item ExpansionItem
	if err := b.llm.GenerateJSON(ctx, abstractionSystemPrompt, userMsg, &item); err != nil {
		b.logger.Error("Abstraction generation failed", zap.String("node_id", node.ID), zap.Error(err))
		return nil
	}
	if item.Title == "" {
		return nil
	}
	return &item
}

const justificationSystemPrompt = `You are Nexus. Explain in at most 10 words why the source node should
link to the target node. Answer with the justification text only, no JSON.`

// GenerateEdgeJustification drafts a justification for a manual edge.
// The user hint, when given, steers the phrasing.
func (b *Bridge) GenerateEdgeJustification(ctx context.Context, source, target *graph.Node, userHint string) string {
	if !b.llm.Available() {
		return "Linked"
	}

	userMsg := fmt.Sprintf(
		"Source Node:\nTitle: %s\nSummary: %s\n\nTarget Node:\nTitle: %s\nSummary: %s",
		source.Title, source.Summary, target.Title, target.Summary,
	)
	if userHint != "" {
		userMsg += "\n\nUser hint: " + userHint
	}

	response, err := b.llm.Generate(ctx, justificationSystemPrompt, userMsg)
	if err != nil {
		b.logger.Error("Edge justification failed", zap.Error(err))
		return "Linked"
	}
	return strings.TrimSpace(adapter.StripCodeFence(response))
}

// RewriteResult is the collaborator's context-aware revision of a node
type RewriteResult struct {
	Summary         string `json:"summary"`
	Content         string `json:"content"`
	SuggestedTopic  string `json:"suggested_topic,omitempty"`
	SuggestedModule string `json:"suggested_module,omitempty"`
}

const rewriteSystemPrompt = `You are Nexus. Rewrite the node's summary and content so they reflect its
position in the graph: what it connects to and why. Keep the factual core, improve clarity.
Suggest a better topic or module only when the current classification is clearly wrong.

Output JSON:
{
    "summary": "String",
    "content": "String",
    "suggested_topic": "String",
    "suggested_module": "String"
}
Omit suggestion fields when the current classification fits.`

// RewriteNode revises a node's summary and content against its
// surrounding blast radius
func (b *Bridge) RewriteNode(ctx context.Context, node *graph.Node) (*RewriteResult, error) {
	if !b.llm.Available() {
		return nil, errors.ErrCollaboratorUnavailable
	}

	// The depth-1 neighborhood is the rewrite context
	data := b.CalculateContext([]string{node.ID}, 1)

	userMsg := fmt.Sprintf(
		"Node to rewrite:\nID: %s\nTitle: %s\nSummary: %s\nContent: %s\nModule: %s\nTopic: %s\n\n%s",
		node.ID, node.Title, node.Summary, node.Content, node.Module, node.MainTopic, hydrateContext(data),
	)

	var result RewriteResult
	if err := b.llm.GenerateJSON(ctx, rewriteSystemPrompt, userMsg, &result); err != nil {
		b.logger.Error("Node rewrite failed", zap.String("node_id", node.ID), zap.Error(err))
		return nil, err
	}
	return &result, nil
}
